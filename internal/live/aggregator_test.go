package live

import (
	"testing"
	"time"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/campaign"
)

func TestIsEndpointFallback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want bool
	}{
		{"fallback endpoint not found (404)", true},
		{"all endpoints failed:\nhttp://gw/send/text: fallback endpoint not found (404)", true},
		{"Fallback /sendText Not Found", true},
		{"number not on whatsapp", false},
		{"not found", false},
		{"fallback engaged", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsEndpointFallback(tc.text); got != tc.want {
			t.Fatalf("IsEndpointFallback(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestCoalesceFallback(t *testing.T) {
	t.Parallel()

	items := []Item{
		{ID: 1, Status: campaign.StatusError, Error: "fallback endpoint not found (404)"},
		{ID: 2, Status: campaign.StatusError, Error: "number not on whatsapp"},
		{ID: 3, Status: campaign.StatusDelivered},
	}
	CoalesceFallback(items)

	if items[0].Status != campaign.StatusSent || items[0].Error != "" {
		t.Fatalf("fallback noise not coalesced: %+v", items[0])
	}
	if items[1].Status != campaign.StatusError {
		t.Fatalf("real error rewritten: %+v", items[1])
	}
	if items[2].Status != campaign.StatusDelivered {
		t.Fatalf("non-error row touched: %+v", items[2])
	}
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	t.Run("keeps highest rank per number", func(t *testing.T) {
		t.Parallel()

		items := []Item{
			{ID: 1, Number: "5511987654321", Status: campaign.StatusSent, SentAt: base},
			{ID: 2, Number: "11987654321", Status: campaign.StatusRead, ReadAt: base.Add(time.Minute)},
			{ID: 3, Number: "5511911112222", Status: campaign.StatusDelivered, DeliveredAt: base},
		}
		got := Dedupe(items)
		if len(got) != 2 {
			t.Fatalf("expected 2 contacts, got %d", len(got))
		}
		if got[0].ID != 2 {
			t.Fatalf("highest-ranked row should sort first, got id %d", got[0].ID)
		}
	})

	t.Run("rank tie broken by fresher milestone", func(t *testing.T) {
		t.Parallel()

		items := []Item{
			{ID: 1, Number: "5511987654321", Status: campaign.StatusRead, ReadAt: base},
			{ID: 2, Number: "5511987654321", Status: campaign.StatusRead, ReadAt: base.Add(time.Hour)},
		}
		got := Dedupe(items)
		if len(got) != 1 || got[0].ID != 2 {
			t.Fatalf("fresher row not kept: %+v", got)
		}
	})

	t.Run("error rows rank lowest", func(t *testing.T) {
		t.Parallel()

		items := []Item{
			{ID: 1, Number: "5511911110001", Status: campaign.StatusError},
			{ID: 2, Number: "5511911110002", Status: campaign.StatusQueued},
		}
		got := Dedupe(items)
		if got[len(got)-1].Status != campaign.StatusError {
			t.Fatalf("error row should sort last: %+v", got)
		}
	})
}

func TestReplyTracker(t *testing.T) {
	t.Parallel()

	t.Run("contact leaving the list is inferred replied", func(t *testing.T) {
		t.Parallel()

		tr := NewReplyTracker()
		tr.Observe([]string{"5511911110001", "5511911110002"})
		tr.Observe([]string{"5511911110002"})

		items := []Item{
			{ID: 1, Number: "5511911110001", Status: campaign.StatusRead},
			{ID: 2, Number: "5511911110002", Status: campaign.StatusRead},
		}
		tr.Augment(items)

		if items[0].Status != campaign.StatusReplied {
			t.Fatalf("departed contact not upgraded: %+v", items[0])
		}
		if items[0].RepliedAt.IsZero() {
			t.Fatalf("inferred reply has no timestamp")
		}
		if items[1].Status != campaign.StatusRead {
			t.Fatalf("remaining contact upgraded: %+v", items[1])
		}
	})

	t.Run("inference is sticky across snapshots", func(t *testing.T) {
		t.Parallel()

		tr := NewReplyTracker()
		tr.Observe([]string{"5511911110001"})
		tr.Observe([]string{})
		tr.Observe([]string{})

		items := []Item{{ID: 1, Number: "5511911110001", Status: campaign.StatusSent}}
		tr.Augment(items)
		if items[0].Status != campaign.StatusReplied {
			t.Fatalf("inference lost on later snapshot: %+v", items[0])
		}
	})

	t.Run("error rows are not upgraded", func(t *testing.T) {
		t.Parallel()

		tr := NewReplyTracker()
		tr.Observe([]string{"5511911110001"})
		tr.Observe([]string{})

		items := []Item{{ID: 1, Number: "5511911110001", Status: campaign.StatusError, Error: "boom"}}
		tr.Augment(items)
		if items[0].Status != campaign.StatusError {
			t.Fatalf("error row upgraded: %+v", items[0])
		}
	})

	t.Run("first snapshot only primes the baseline", func(t *testing.T) {
		t.Parallel()

		tr := NewReplyTracker()
		tr.Observe([]string{"5511911110001"})

		items := []Item{{ID: 1, Number: "5511911110001", Status: campaign.StatusSent}}
		tr.Augment(items)
		if items[0].Status != campaign.StatusSent {
			t.Fatalf("baseline snapshot inferred a reply: %+v", items[0])
		}
	})
}

func TestDeriveBatchStatus(t *testing.T) {
	t.Parallel()

	items := []Item{
		{ID: 1, Number: "5511911110001", Status: campaign.StatusError, Error: "fallback endpoint not found (404)"},
		{ID: 2, Number: "5511911110002", Status: campaign.StatusReplied},
	}
	CoalesceFallback(items)
	if got := DeriveBatchStatus(Dedupe(items)); got != campaign.StatusDone {
		t.Fatalf("status = %q, want done after coalescing", got)
	}
}
