package campaign

import (
	mathrand "math/rand/v2"
	"testing"
	"time"
)

func fixedRand() *mathrand.Rand {
	return mathrand.New(mathrand.NewPCG(1, 2))
}

func makeJobs(n int, at time.Time) []*Job {
	jobs := make([]*Job, n)
	for i := range jobs {
		jobs[i] = &Job{To: "5511987654321", Text: "oi", ScheduledAt: at}
	}
	return jobs
}

func TestWindowNextOpen(t *testing.T) {
	t.Parallel()

	w := Window{StartHour: 8, EndHour: 18}
	loc := time.UTC

	t.Run("inside window unchanged", func(t *testing.T) {
		t.Parallel()

		at := time.Date(2026, 3, 2, 10, 30, 0, 0, loc)
		if got := w.NextOpen(at); !got.Equal(at) {
			t.Fatalf("NextOpen = %v", got)
		}
	})

	t.Run("before opening clamps to today", func(t *testing.T) {
		t.Parallel()

		at := time.Date(2026, 3, 2, 6, 0, 0, 0, loc)
		want := time.Date(2026, 3, 2, 8, 0, 0, 0, loc)
		if got := w.NextOpen(at); !got.Equal(want) {
			t.Fatalf("NextOpen = %v, want %v", got, want)
		}
	})

	t.Run("after closing rolls to tomorrow", func(t *testing.T) {
		t.Parallel()

		at := time.Date(2026, 3, 2, 19, 0, 0, 0, loc)
		want := time.Date(2026, 3, 3, 8, 0, 0, 0, loc)
		if got := w.NextOpen(at); !got.Equal(want) {
			t.Fatalf("NextOpen = %v, want %v", got, want)
		}
	})
}

func TestSchedule_FixedDelays(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	jobs := makeJobs(3, now)

	cfg := PacingConfig{DelayMin: time.Second, DelayMax: time.Second}
	Schedule(jobs, now, cfg, fixedRand())

	for i, j := range jobs {
		want := now.Add(time.Duration(i+1) * time.Second)
		if !j.ScheduledAt.Equal(want) {
			t.Fatalf("job %d at %v, want %v", i, j.ScheduledAt, want)
		}
	}
}

func TestSchedule_PauseAfterEveryGroup(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	jobs := makeJobs(5, now)

	cfg := PacingConfig{
		DelayMin:      time.Second,
		DelayMax:      time.Second,
		PauseEvery:    2,
		PauseDuration: time.Minute,
	}
	Schedule(jobs, now, cfg, fixedRand())

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		63 * time.Second,
		64 * time.Second,
		125 * time.Second,
	}
	for i, j := range jobs {
		if got := j.ScheduledAt.Sub(now); got != want[i] {
			t.Fatalf("job %d offset %v, want %v", i, got, want[i])
		}
	}
}

func TestSchedule_JitterWithinBounds(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	jobs := makeJobs(50, now)

	cfg := PacingConfig{DelayMin: 2 * time.Second, DelayMax: 5 * time.Second}
	Schedule(jobs, now, cfg, fixedRand())

	prev := now
	for i, j := range jobs {
		gap := j.ScheduledAt.Sub(prev)
		if gap < cfg.DelayMin || gap > cfg.DelayMax {
			t.Fatalf("job %d gap %v outside [%v, %v]", i, gap, cfg.DelayMin, cfg.DelayMax)
		}
		prev = j.ScheduledAt
	}
}

func TestSchedule_NonDecreasingAcrossMoments(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	later := now.Add(24 * time.Hour)

	// Interleave two nominal moments out of order.
	jobs := []*Job{
		{ScheduledAt: later}, {ScheduledAt: now}, {ScheduledAt: later}, {ScheduledAt: now},
	}
	cfg := PacingConfig{DelayMin: time.Second, DelayMax: 3 * time.Second}
	Schedule(jobs, now, cfg, fixedRand())

	for i := 1; i < len(jobs); i++ {
		if jobs[i].ScheduledAt.Before(jobs[i-1].ScheduledAt) {
			t.Fatalf("timestamps regressed at %d: %v < %v", i, jobs[i].ScheduledAt, jobs[i-1].ScheduledAt)
		}
	}
}

func TestSchedule_SwappedAndNegativeBounds(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	jobs := makeJobs(10, now)

	cfg := PacingConfig{DelayMin: 5 * time.Second, DelayMax: -2 * time.Second}
	Schedule(jobs, now, cfg, fixedRand())

	prev := now
	for i, j := range jobs {
		gap := j.ScheduledAt.Sub(prev)
		if gap < 0 || gap > 5*time.Second {
			t.Fatalf("job %d gap %v outside clamped bounds", i, gap)
		}
		prev = j.ScheduledAt
	}
}

func TestRollup(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty is queued", nil, StatusQueued},
		{"all pending stays queued", []Status{StatusQueued, StatusQueued}, StatusQueued},
		{"one reply wins", []Status{StatusQueued, StatusSent, StatusReplied}, StatusReplied},
		{"read beats delivered", []Status{StatusDelivered, StatusRead, StatusQueued}, StatusRead},
		{"sending visible while pending", []Status{StatusQueued, StatusSending}, StatusSending},
		{"all terminal is done", []Status{StatusSent, StatusError, StatusReplied}, StatusDone},
		{"errors alone do not finish a pending batch", []Status{StatusError, StatusQueued}, StatusQueued},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Rollup(tc.statuses); got != tc.want {
				t.Fatalf("Rollup = %q, want %q", got, tc.want)
			}
		})
	}
}
