package campaign

import (
	"context"
	"time"
)

// Store is the persistence collaborator for batches and message rows. The
// concrete implementation lives in internal/storage; tests substitute fakes.
type Store interface {
	CreateBatch(ctx context.Context, listID int64, listName string, total int) (int64, error)
	// InsertQueued bulk-inserts one queued row per seed and returns the
	// generated ids in input order.
	InsertQueued(ctx context.Context, batchID, listID int64, seeds []RowSeed) ([]int64, error)
	UpdateScheduledAt(ctx context.Context, messageID int64, at time.Time) error

	MarkSending(ctx context.Context, messageID int64) error
	MarkSent(ctx context.Context, messageID int64, providerID string, at time.Time) error
	MarkFailed(ctx context.Context, messageID int64, reason string) error

	BatchProgress(ctx context.Context, batchID int64) (*Progress, error)
}

// Sender is the outbound message transport. A successful send returns the
// provider's message id so acks can be matched back to the row. Failures
// carry diagnostic detail in the error; the runner records them per message
// and moves on.
type Sender interface {
	Send(ctx context.Context, number, text string) (string, error)
}
