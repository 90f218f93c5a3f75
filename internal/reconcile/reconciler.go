package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/campaign"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/log"
)

// MessageRef is the slice of a message row reconciliation needs.
type MessageRef struct {
	ID      int64
	BatchID int64
	Status  campaign.Status
}

// Store is the persistence collaborator for reconciliation. Every mutation is
// conditional on the status rank so late or replayed events cannot regress a
// row.
type Store interface {
	FindByProviderID(ctx context.Context, providerID string) (*MessageRef, error)

	ApplyAck(ctx context.Context, messageID int64, to campaign.Status, at time.Time) error
	MarkReplied(ctx context.Context, messageID int64, at time.Time) error
	MarkFailed(ctx context.Context, messageID int64, reason string) error

	// SeedOutbound inserts a row for a send observed only via webhook, so the
	// ack is not lost when the original enqueue never reached the store.
	SeedOutbound(ctx context.Context, providerID, number string, status campaign.Status) (*MessageRef, error)
	SeedInbound(ctx context.Context, number, text string) (int64, error)

	BatchStatuses(ctx context.Context, batchID int64) ([]campaign.Status, error)
	SetBatchStatus(ctx context.Context, batchID int64, status campaign.Status) error

	Audit(ctx context.Context, kind string, messageID int64, payload map[string]any) error
	RemoveRespondent(ctx context.Context, number string) error
}

var ackStatus = map[int]campaign.Status{
	1: campaign.StatusSent,
	2: campaign.StatusDelivered,
	3: campaign.StatusRead,
}

// Outcome labels what Apply did with an event, mainly for the webhook
// controller's response and for tests.
type Outcome string

const (
	OutcomeReplied   Outcome = "replied"
	OutcomeInbound   Outcome = "inbound"
	OutcomeAcked     Outcome = "acked"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Reconciler folds provider events into row and batch state.
type Reconciler struct {
	store Store
	seen  SeenCache
	group singleflight.Group
}

func NewReconciler(store Store, seen SeenCache) *Reconciler {
	return &Reconciler{store: store, seen: seen}
}

// Apply processes one normalized event. It never returns an error for
// malformed or unmatched payloads; those are audited and reported as ignored
// so the provider is not driven into retry loops.
func (r *Reconciler) Apply(ctx context.Context, ev Event) Outcome {
	entry := log.EventOp(ev.Dialect, ev.ProviderID)

	if err := r.store.Audit(ctx, "webhook_raw", 0, ev.Raw); err != nil {
		entry.Warnf("audit raw event: %v", err)
	}

	if ev.IsInboundText {
		return r.applyInbound(ctx, ev)
	}
	if ev.FromMe && ev.ProviderID != "" {
		return r.applyOutbound(ctx, ev)
	}

	entry.Debug("event ignored")
	return OutcomeIgnored
}

// applyInbound handles a text from a contact. A quoted reply to one of our
// rows marks that row replied; anything else becomes a loose inbound row.
// Either way the contact has responded, so it drops out of the targeting
// lists.
func (r *Reconciler) applyInbound(ctx context.Context, ev Event) Outcome {
	entry := log.EventOp(ev.Dialect, ev.ProviderID)

	var ref *MessageRef
	var err error
	if ev.ReplyToID != "" {
		ref, err = r.store.FindByProviderID(ctx, ev.ReplyToID)
		if err != nil {
			entry.Warnf("lookup quoted row: %v", err)
		}
	}

	if ref == nil {
		id, err := r.store.SeedInbound(ctx, ev.Number, ev.Text)
		if err != nil {
			entry.Warnf("seed inbound: %v", err)
		}
		if err := r.store.Audit(ctx, "inbound", id, map[string]any{"text": ev.Text}); err != nil {
			entry.Warnf("audit inbound: %v", err)
		}
		if err := r.store.RemoveRespondent(ctx, ev.Number); err != nil {
			entry.Warnf("remove respondent: %v", err)
		}
		return OutcomeInbound
	}

	if err := r.store.MarkReplied(ctx, ref.ID, time.Now()); err != nil {
		entry.Errorf("mark replied: %v", err)
		return OutcomeIgnored
	}
	if err := r.store.Audit(ctx, "reply", ref.ID, map[string]any{"text": ev.Text}); err != nil {
		entry.Warnf("audit reply: %v", err)
	}
	if err := r.store.RemoveRespondent(ctx, ev.Number); err != nil {
		entry.Warnf("remove respondent: %v", err)
	}
	r.recomputeBatch(ctx, ref.BatchID)
	return OutcomeReplied
}

// applyOutbound handles an ack or failure for a message we sent. Events are
// deduped on (providerID, ack) and status moves only forward in rank.
func (r *Reconciler) applyOutbound(ctx context.Context, ev Event) Outcome {
	entry := log.EventOp(ev.Dialect, ev.ProviderID)

	marker := fmt.Sprintf("%s:%d", ev.ProviderID, ev.Ack)
	if ev.Failed {
		marker = ev.ProviderID + ":failed"
	}
	fresh, err := r.seen.MarkSeen(ctx, marker)
	if err != nil {
		entry.Warnf("seen cache: %v", err)
		fresh = true // fail open, the rank guard still protects the row
	}
	if !fresh {
		return OutcomeDuplicate
	}

	ref, err := r.store.FindByProviderID(ctx, ev.ProviderID)
	if err != nil {
		entry.Warnf("lookup row: %v", err)
	}
	if ref == nil {
		// The ack beat the local insert. Seed at sending and let the normal
		// ack path below advance the row and stamp its milestone column.
		ref, err = r.store.SeedOutbound(ctx, ev.ProviderID, ev.Number, campaign.StatusSending)
		if err != nil {
			entry.Errorf("seed outbound: %v", err)
			return OutcomeIgnored
		}
		if err := r.store.Audit(ctx, "ack_skipped_seed", ref.ID, ev.Raw); err != nil {
			entry.Warnf("audit seed: %v", err)
		}
	}

	outcome := OutcomeIgnored

	if ev.Failed {
		if err := r.store.MarkFailed(ctx, ref.ID, ev.FailReason); err != nil {
			entry.Errorf("mark failed: %v", err)
		} else {
			outcome = OutcomeFailed
		}
	} else if to, ok := ackStatus[ev.Ack]; ok && ev.HasAck {
		if campaign.Rank(to) > campaign.Rank(ref.Status) {
			if err := r.store.ApplyAck(ctx, ref.ID, to, time.Now()); err != nil {
				entry.Errorf("apply ack %d: %v", ev.Ack, err)
			} else {
				outcome = OutcomeAcked
			}
		} else {
			outcome = OutcomeDuplicate
		}
	}

	if err := r.store.Audit(ctx, "provider_event", ref.ID, ev.Raw); err != nil {
		entry.Warnf("audit event: %v", err)
	}

	if outcome == OutcomeAcked || outcome == OutcomeFailed {
		r.recomputeBatch(ctx, ref.BatchID)
	}
	return outcome
}

// recomputeBatch re-derives the batch roll-up from its rows. Concurrent
// recomputes of the same batch are coalesced into one store round-trip.
func (r *Reconciler) recomputeBatch(ctx context.Context, batchID int64) {
	if batchID == 0 {
		return
	}
	key := fmt.Sprintf("batch:%d", batchID)
	_, _, _ = r.group.Do(key, func() (any, error) {
		statuses, err := r.store.BatchStatuses(ctx, batchID)
		if err != nil {
			log.CampaignOp(batchID, "rollup").Warnf("load statuses: %v", err)
			return nil, nil
		}
		status := campaign.Rollup(statuses)
		if err := r.store.SetBatchStatus(ctx, batchID, status); err != nil {
			log.CampaignOp(batchID, "rollup").Warnf("persist status: %v", err)
		}
		return nil, nil
	})
}
