package live

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/campaign"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/phone"
)

// Item is one row of the live campaign view, as served over the list and
// stream endpoints.
type Item struct {
	ID          int64           `json:"id"`
	BatchID     int64           `json:"batch_id"`
	Number      string          `json:"number"`
	Name        string          `json:"name,omitempty"`
	Status      campaign.Status `json:"status"`
	Error       string          `json:"error,omitempty"`
	SentAt      time.Time       `json:"sent_at,omitempty"`
	DeliveredAt time.Time       `json:"delivered_at,omitempty"`
	ReadAt      time.Time       `json:"read_at,omitempty"`
	RepliedAt   time.Time       `json:"replied_at,omitempty"`
}

// IsEndpointFallback recognizes the transport's endpoint-probing noise: an
// error string mentioning both a fallback attempt and a not-found response.
// Such rows did go out on a later candidate endpoint, so the error is
// cosmetic.
func IsEndpointFallback(errText string) bool {
	s := strings.ToLower(errText)
	return strings.Contains(s, "fallback") && strings.Contains(s, "not found")
}

// CoalesceFallback rewrites fallback-noise error rows as sent, in place.
func CoalesceFallback(items []Item) {
	for i := range items {
		if items[i].Status == campaign.StatusError && IsEndpointFallback(items[i].Error) {
			items[i].Status = campaign.StatusSent
			items[i].Error = ""
		}
	}
}

// bestTimestamp picks the most advanced milestone timestamp an item carries,
// for ordering rows that tie on status rank.
func bestTimestamp(it Item) time.Time {
	switch {
	case !it.RepliedAt.IsZero():
		return it.RepliedAt
	case !it.ReadAt.IsZero():
		return it.ReadAt
	case !it.DeliveredAt.IsZero():
		return it.DeliveredAt
	default:
		return it.SentAt
	}
}

// Dedupe keeps one item per canonical number, preferring the higher status
// rank and, on ties, the fresher milestone timestamp. Output is ordered by
// descending rank, then descending timestamp, then id for stability.
func Dedupe(items []Item) []Item {
	best := make(map[string]Item, len(items))
	for _, it := range items {
		key := phone.Canonicalize(it.Number)
		if key == "" {
			key = it.Number
		}
		cur, ok := best[key]
		if !ok {
			best[key] = it
			continue
		}
		ri, rc := campaign.Rank(it.Status), campaign.Rank(cur.Status)
		switch {
		case ri > rc:
			best[key] = it
		case ri == rc && bestTimestamp(it).After(bestTimestamp(cur)):
			best[key] = it
		}
	}

	out := make([]Item, 0, len(best))
	for _, it := range best {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := campaign.Rank(out[i].Status), campaign.Rank(out[j].Status)
		if ri != rj {
			return ri > rj
		}
		ti, tj := bestTimestamp(out[i]), bestTimestamp(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ReplyTracker infers replies for providers that never deliver reply
// webhooks: a contact present in the initial remaining-contacts list who
// later disappears from it must have responded. Inferred replies are sticky
// across snapshots.
type ReplyTracker struct {
	mu      sync.Mutex
	initial map[string]struct{}
	replied map[string]struct{}
	prev    map[string]struct{}
	primed  bool
}

func NewReplyTracker() *ReplyTracker {
	return &ReplyTracker{
		initial: make(map[string]struct{}),
		replied: make(map[string]struct{}),
	}
}

// Observe takes the current remaining-contacts numbers. The first call seeds
// the baseline; later calls flag every number that left the list.
func (t *ReplyTracker) Observe(remaining []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := make(map[string]struct{}, len(remaining))
	for _, n := range remaining {
		if c := phone.Canonicalize(n); c != "" {
			current[c] = struct{}{}
		}
	}

	if !t.primed {
		t.initial = current
		t.prev = current
		t.primed = true
		return
	}

	for n := range t.prev {
		if _, still := current[n]; !still {
			if _, wasInitial := t.initial[n]; wasInitial {
				t.replied[n] = struct{}{}
			}
		}
	}
	t.prev = current
}

// Augment upgrades items whose contact was inferred to have replied. Rows
// already at replied or error rank are left alone.
func (t *ReplyTracker) Augment(items []Item) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range items {
		key := phone.Canonicalize(items[i].Number)
		if _, ok := t.replied[key]; !ok {
			continue
		}
		s := items[i].Status
		if s == campaign.StatusReplied || s == campaign.StatusError {
			continue
		}
		items[i].Status = campaign.StatusReplied
		if items[i].RepliedAt.IsZero() {
			items[i].RepliedAt = time.Now()
		}
	}
}

// DeriveBatchStatus rolls deduped items up to one batch status, after
// fallback coalescing so endpoint probing noise cannot hold a batch in error.
func DeriveBatchStatus(items []Item) campaign.Status {
	statuses := make([]campaign.Status, len(items))
	for i, it := range items {
		statuses[i] = it.Status
	}
	return campaign.Rollup(statuses)
}
