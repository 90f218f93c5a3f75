package campaign

import (
	mathrand "math/rand/v2"
	"sort"
	"time"
)

// Window is the daily interval in which sends may start, in local hours.
// StartHour is inclusive, EndHour exclusive (08:00-18:00 by default).
type Window struct {
	StartHour int
	EndHour   int
}

// Contains reports whether t falls inside the daily window.
func (w Window) Contains(t time.Time) bool {
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}

// NextOpen clamps t to the next window opening: t itself when inside the
// window, today's opening when before it, otherwise tomorrow's opening.
func (w Window) NextOpen(t time.Time) time.Time {
	if w.Contains(t) {
		return t
	}
	open := time.Date(t.Year(), t.Month(), t.Day(), w.StartHour, 0, 0, 0, t.Location())
	if t.Before(open) {
		return open
	}
	return open.AddDate(0, 0, 1)
}

// PacingConfig controls jitter and periodic pauses between sends.
type PacingConfig struct {
	DelayMin      time.Duration
	DelayMax      time.Duration
	PauseEvery    int
	PauseDuration time.Duration
}

// Schedule reorders jobs chronologically by their nominal moment and assigns
// each a paced send timestamp: a running cursor starting at
// max(now, first nominal moment) advanced by a uniform random gap in
// [min, max] per job, plus PauseDuration after every completed group of
// PauseEvery jobs. Bounds may be supplied in either order; negative bounds
// are clamped to zero. The resulting timestamps are non-decreasing.
//
// Pacing is additive only: it never re-clamps a job that jitter pushed past
// the daily window end.
func Schedule(jobs []*Job, now time.Time, cfg PacingConfig, rng *mathrand.Rand) {
	if len(jobs) == 0 {
		return
	}

	min, max := cfg.DelayMin, cfg.DelayMax
	if min > max {
		min, max = max, min
	}
	if min < 0 {
		min = 0
	}
	if max < 0 {
		max = 0
	}

	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].ScheduledAt.Before(jobs[j].ScheduledAt)
	})

	cursor := now
	if jobs[0].ScheduledAt.After(cursor) {
		cursor = jobs[0].ScheduledAt
	}

	sincePause := 0
	for _, j := range jobs {
		gap := min
		if span := max - min; span > 0 {
			gap = min + time.Duration(randInt64N(rng, int64(span)+1))
		}
		cursor = cursor.Add(gap)
		j.ScheduledAt = cursor
		sincePause++
		if cfg.PauseEvery > 0 && sincePause%cfg.PauseEvery == 0 && cfg.PauseDuration > 0 {
			cursor = cursor.Add(cfg.PauseDuration)
		}
	}
}

func randInt64N(rng *mathrand.Rand, n int64) int64 {
	if rng == nil {
		return mathrand.Int64N(n)
	}
	return rng.Int64N(n)
}
