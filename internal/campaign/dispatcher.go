package campaign

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/pkg/log"
)

// Dispatcher drains queued batches in the background. At most one drain loop
// runs at a time, guarded by a weighted semaphore; overlapping Kick calls are
// no-ops while a drain is active.
type Dispatcher struct {
	store  Store
	sender Sender

	sem      *semaphore.Weighted
	pollStep time.Duration

	mu      sync.Mutex
	batches map[int64]*Batch

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(store Store, sender Sender) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:    store,
		sender:   sender,
		sem:      semaphore.NewWeighted(1),
		pollStep: time.Second,
		batches:  make(map[int64]*Batch),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Enqueue registers a batch for draining. Jobs must already carry their paced
// timestamps; the dispatcher sends them strictly in slice order.
func (d *Dispatcher) Enqueue(b *Batch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.batches[b.ID]; ok {
		existing.Jobs = append(existing.Jobs, b.Jobs...)
		return
	}
	d.batches[b.ID] = b
}

// Kick starts the drain loop unless one is already running.
func (d *Dispatcher) Kick() {
	if !d.sem.TryAcquire(1) {
		return
	}
	go func() {
		defer d.sem.Release(1)
		d.processBatches()
	}()
}

// QueueDepth returns the number of jobs still pending across all batches.
func (d *Dispatcher) QueueDepth() (batches, jobs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.batches {
		if len(b.Jobs) > 0 {
			batches++
			jobs += len(b.Jobs)
		}
	}
	return batches, jobs
}

// Stop cancels the drain loop and waits for it to park. Pending jobs stay
// queued in the store and are resumed on next boot.
func (d *Dispatcher) Stop() {
	d.cancel()
	// Block out future drains, then wait for the running one to release.
	_ = d.sem.Acquire(context.Background(), 1)
	d.sem.Release(1)
}

func (d *Dispatcher) processBatches() {
	for {
		b := d.nextBatch()
		if b == nil {
			return
		}
		d.drainBatch(b)
		if d.ctx.Err() != nil {
			return
		}
	}
}

// nextBatch picks the oldest batch with pending jobs and flags it in
// progress. Fully drained batches are dropped from the map.
func (d *Dispatcher) nextBatch() *Batch {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]int64, 0, len(d.batches))
	for id, b := range d.batches {
		if len(b.Jobs) == 0 {
			delete(d.batches, id)
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool {
		return d.batches[ids[i]].CreatedAt.Before(d.batches[ids[j]].CreatedAt)
	})

	b := d.batches[ids[0]]
	b.InProgress = true
	return b
}

// drainBatch sends the batch's jobs head-first, honoring each job's scheduled
// timestamp with bounded sleeps so cancellation is observed within a second.
// A failed send marks its row and moves on; it never aborts the batch.
func (d *Dispatcher) drainBatch(b *Batch) {
	defer func() {
		if r := recover(); r != nil {
			log.CampaignOp(b.ID, "drain").Errorf("panic while draining: %v", r)
		}
		d.mu.Lock()
		b.InProgress = false
		if len(b.Jobs) == 0 {
			delete(d.batches, b.ID)
		}
		d.mu.Unlock()
	}()

	for {
		d.mu.Lock()
		if len(b.Jobs) == 0 {
			d.mu.Unlock()
			return
		}
		head := b.Jobs[0]
		d.mu.Unlock()

		if wait := time.Until(head.ScheduledAt); wait > 0 {
			if wait > d.pollStep {
				wait = d.pollStep
			}
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		d.mu.Lock()
		b.Jobs = b.Jobs[1:]
		d.mu.Unlock()

		d.sendOne(head)

		if d.ctx.Err() != nil {
			return
		}
	}
}

func (d *Dispatcher) sendOne(j *Job) {
	entry := log.SendOp(j.BatchID, j.MessageID, j.To)

	if j.MessageID != 0 {
		if err := d.store.MarkSending(d.ctx, j.MessageID); err != nil {
			entry.Warnf("mark sending: %v", err)
		}
	}

	providerID, err := d.sender.Send(d.ctx, j.To, j.Text)
	if err != nil {
		entry.Errorf("send failed: %v", err)
		if j.MessageID != 0 {
			if serr := d.store.MarkFailed(d.ctx, j.MessageID, err.Error()); serr != nil {
				entry.Warnf("mark failed: %v", serr)
			}
		}
		return
	}

	entry.Info("message sent")
	if j.MessageID != 0 {
		if err := d.store.MarkSent(d.ctx, j.MessageID, providerID, time.Now()); err != nil {
			entry.Warnf("mark sent: %v", err)
		}
	}
}
