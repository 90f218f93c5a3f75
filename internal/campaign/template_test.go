package campaign

import (
	"strings"
	"testing"
	"time"
)

func TestTrimPool(t *testing.T) {
	t.Parallel()

	t.Run("drops empties and whitespace", func(t *testing.T) {
		t.Parallel()

		got := TrimPool([]string{"  hello  ", "", "   ", "world"})
		if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
			t.Fatalf("TrimPool = %#v", got)
		}
	})

	t.Run("emoji-only decoration is not variation", func(t *testing.T) {
		t.Parallel()

		got := TrimPool([]string{"Oi, tudo bem?", "Oi, tudo bem? 🚀", "oi, TUDO bem?"})
		if len(got) != 1 {
			t.Fatalf("expected 1 surviving template, got %#v", got)
		}
	})

	t.Run("distinct texts survive", func(t *testing.T) {
		t.Parallel()

		got := TrimPool([]string{"variant one", "variant two"})
		if len(got) != 2 {
			t.Fatalf("expected 2 templates, got %#v", got)
		}
	})
}

func TestExpandJobs(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("contacts times moments times templates", func(t *testing.T) {
		t.Parallel()

		contacts := []Contact{
			{Name: "Ana", Number: "11987654321"},
			{Name: "Bia", Number: "11912345678"},
		}
		pool := []string{"tpl a", "tpl b"}

		jobs, seeds := ExpandJobs(contacts, pool, []int{3}, start)
		if want := 2 * 2 * 2; len(jobs) != want {
			t.Fatalf("expected %d jobs, got %d", want, len(jobs))
		}
		if len(seeds) != len(jobs) {
			t.Fatalf("seeds (%d) and jobs (%d) out of step", len(seeds), len(jobs))
		}
		for i := range jobs {
			if jobs[i].To != seeds[i].Number || jobs[i].Text != seeds[i].Text {
				t.Fatalf("seed %d does not mirror its job", i)
			}
		}
	})

	t.Run("invalid numbers are skipped", func(t *testing.T) {
		t.Parallel()

		contacts := []Contact{
			{Name: "Ana", Number: "123"},
			{Name: "Bia", Number: "11987654321"},
		}
		jobs, _ := ExpandJobs(contacts, []string{"oi"}, nil, start)
		if len(jobs) != 1 {
			t.Fatalf("expected only the valid contact, got %d jobs", len(jobs))
		}
		if jobs[0].To != "5511987654321" {
			t.Fatalf("job targets %q", jobs[0].To)
		}
	})

	t.Run("cadence offsets land on later days", func(t *testing.T) {
		t.Parallel()

		contacts := []Contact{{Name: "Ana", Number: "11987654321"}}
		jobs, _ := ExpandJobs(contacts, []string{"oi"}, []int{2, 5}, start)
		if len(jobs) != 3 {
			t.Fatalf("expected 3 moments, got %d", len(jobs))
		}
		if !jobs[1].ScheduledAt.Equal(start.Add(2 * 24 * time.Hour)) {
			t.Fatalf("second moment at %v", jobs[1].ScheduledAt)
		}
		if !jobs[2].ScheduledAt.Equal(start.Add(5 * 24 * time.Hour)) {
			t.Fatalf("third moment at %v", jobs[2].ScheduledAt)
		}
	})

	t.Run("placeholders resolve both languages", func(t *testing.T) {
		t.Parallel()

		contacts := []Contact{{Name: "Ana", Number: "11987654321"}}
		jobs, _ := ExpandJobs(contacts, []string{"Oi {{nome}} ({{name}}), seu numero: {{numero}}"}, nil, start)
		if len(jobs) != 1 {
			t.Fatalf("expected 1 job, got %d", len(jobs))
		}
		if !strings.Contains(jobs[0].Text, "Ana (Ana)") {
			t.Fatalf("name placeholder not resolved: %q", jobs[0].Text)
		}
		if !strings.Contains(jobs[0].Text, "11987654321") {
			t.Fatalf("number placeholder not resolved: %q", jobs[0].Text)
		}
	})
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := Preview("short", 10); got != "short" {
		t.Fatalf("Preview = %q", got)
	}
	got := Preview("👩‍👩‍👧‍👦👩‍👩‍👧‍👦👩‍👩‍👧‍👦", 2)
	if strings.Count(got, "👩‍👩‍👧‍👦") != 2 {
		t.Fatalf("Preview split grapheme clusters: %q", got)
	}
}
