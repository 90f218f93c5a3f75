package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/campaign"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/live"
	"github.com/gdbrns/go-whatsapp-campaign-dispatcher/internal/reconcile"
)

// Store is the postgres persistence layer. It satisfies both the scheduling
// side (campaign.Store) and the reconciliation side (reconcile.Store).
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateBatch(ctx context.Context, listID int64, listName string, total int) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO batches (list_id, list_name, total, status)
		VALUES (NULLIF($1, 0), $2, $3, 'queued')
		RETURNING id
	`, listID, listName, total).Scan(&id)
	return id, err
}

// InsertQueued inserts one queued outbound row per seed inside a single
// transaction and returns the generated ids in input order.
func (s *Store) InsertQueued(ctx context.Context, batchID, listID int64, seeds []campaign.RowSeed) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (batch_id, list_id, number, body, status, direction, scheduled_at)
		VALUES ($1, NULLIF($2, 0), $3, $4, 'queued', 'outbound', $5)
		RETURNING id
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	ids := make([]int64, 0, len(seeds))
	for _, seed := range seeds {
		var id int64
		if err := stmt.QueryRowContext(ctx, batchID, listID, seed.Number, seed.Text, seed.ScheduledAt).Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) UpdateScheduledAt(ctx context.Context, messageID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET scheduled_at = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2
	`, at, messageID)
	return err
}

func (s *Store) MarkSending(ctx context.Context, messageID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = 'sending', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'queued'
	`, messageID)
	return err
}

// MarkSent records the send and the provider's message id. Guarded so a
// webhook ack that already advanced the row past sent is not regressed.
func (s *Store) MarkSent(ctx context.Context, messageID int64, providerID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET
			status = 'sent',
			sent_at = COALESCE(sent_at, $2),
			provider_message_id = CASE WHEN $3 <> '' THEN $3 ELSE provider_message_id END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('queued', 'sending')
	`, messageID, at, providerID)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, messageID int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = 'error', error = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, messageID, reason)
	return err
}

func (s *Store) BatchProgress(ctx context.Context, batchID int64) (*campaign.Progress, error) {
	p := &campaign.Progress{BatchID: batchID}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('sent', 'delivered', 'read', 'replied')),
			COUNT(*) FILTER (WHERE status = 'error'),
			COUNT(*) FILTER (WHERE status IN ('queued', 'sending'))
		FROM messages
		WHERE batch_id = $1 AND direction = 'outbound'
	`, batchID).Scan(&p.Sent, &p.Failed, &p.Queued)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT error FROM messages
		WHERE batch_id = $1 AND status = 'error' AND error IS NOT NULL AND error <> ''
		ORDER BY id DESC
		LIMIT 10
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		p.Errors = append(p.Errors, e)
	}
	return p, rows.Err()
}

func (s *Store) FindByProviderID(ctx context.Context, providerID string) (*reconcile.MessageRef, error) {
	var ref reconcile.MessageRef
	var batchID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, batch_id, status FROM messages
		WHERE provider_message_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, providerID).Scan(&ref.ID, &batchID, &ref.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ref.BatchID = batchID.Int64
	return &ref, nil
}

var ackColumn = map[campaign.Status]string{
	campaign.StatusSent:      "sent_at",
	campaign.StatusDelivered: "delivered_at",
	campaign.StatusRead:      "read_at",
}

// ApplyAck advances a row to the acked status and stamps the matching
// milestone column, keeping the earliest observed timestamp on replays.
func (s *Store) ApplyAck(ctx context.Context, messageID int64, to campaign.Status, at time.Time) error {
	col, ok := ackColumn[to]
	if !ok {
		return fmt.Errorf("no ack column for status %q", to)
	}
	q := fmt.Sprintf(`
		UPDATE messages SET status = $2, %s = COALESCE(%s, $3), updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, col, col)
	_, err := s.db.ExecContext(ctx, q, messageID, to, at)
	return err
}

func (s *Store) MarkReplied(ctx context.Context, messageID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET status = 'replied', replied_at = COALESCE(replied_at, $2), updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, messageID, at)
	return err
}

func (s *Store) SeedOutbound(ctx context.Context, providerID, number string, status campaign.Status) (*reconcile.MessageRef, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (number, status, direction, provider_message_id)
		VALUES ($1, $2, 'outbound', $3)
		RETURNING id
	`, number, status, providerID).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &reconcile.MessageRef{ID: id, Status: status}, nil
}

func (s *Store) SeedInbound(ctx context.Context, number, text string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (number, body, status, direction)
		VALUES ($1, $2, 'replied', 'inbound')
		RETURNING id
	`, number, text).Scan(&id)
	return id, err
}

func (s *Store) BatchStatuses(ctx context.Context, batchID int64) ([]campaign.Status, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status FROM messages WHERE batch_id = $1 AND direction = 'outbound'
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []campaign.Status
	for rows.Next() {
		var st campaign.Status
		if err := rows.Scan(&st); err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, rows.Err()
}

func (s *Store) SetBatchStatus(ctx context.Context, batchID int64, status campaign.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE batches SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, batchID, status)
	return err
}

func (s *Store) Audit(ctx context.Context, kind string, messageID int64, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO message_events (message_id, kind, payload)
		VALUES (NULLIF($1, 0), $2, $3::jsonb)
	`, messageID, kind, string(body))
	return err
}

// RemoveRespondent records that a contact replied and must drop out of the
// remaining-contacts view. Inserting twice for the same number is a no-op.
func (s *Store) RemoveRespondent(ctx context.Context, number string) error {
	if number == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO removed_contacts (number, reason)
		SELECT $1, 'replied'
		WHERE NOT EXISTS (SELECT 1 FROM removed_contacts WHERE number = $1)
	`, number)
	return err
}

func (s *Store) SaveContactList(ctx context.Context, name string, contacts []campaign.Contact) (int64, error) {
	body, err := json.Marshal(contacts)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO contact_lists (name, contacts) VALUES ($1, $2::jsonb) RETURNING id
	`, name, string(body)).Scan(&id)
	return id, err
}

func (s *Store) ContactList(ctx context.Context, listID int64) ([]campaign.Contact, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT contacts FROM contact_lists WHERE id = $1
	`, listID).Scan(&body)
	if err != nil {
		return nil, err
	}
	var contacts []campaign.Contact
	if err := json.Unmarshal(body, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// RemainingNumbers lists the numbers of a contact list that have not been
// removed as respondents. The live view diffs successive snapshots of this to
// infer replies from providers that never deliver reply webhooks.
func (s *Store) RemainingNumbers(ctx context.Context, listID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c->>'numero'
		FROM contact_lists, jsonb_array_elements(contacts) AS c
		WHERE contact_lists.id = $1
		  AND c->>'numero' NOT IN (SELECT number FROM removed_contacts)
	`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n sql.NullString
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		if n.Valid && n.String != "" {
			numbers = append(numbers, n.String)
		}
	}
	return numbers, rows.Err()
}

func (s *Store) BatchListID(ctx context.Context, batchID int64) (int64, error) {
	var listID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT list_id FROM batches WHERE id = $1
	`, batchID).Scan(&listID)
	if err != nil {
		return 0, err
	}
	return listID.Int64, nil
}

// LiveItems loads the batch's outbound rows for the live view.
func (s *Store) LiveItems(ctx context.Context, batchID int64) ([]live.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, number, status, COALESCE(error, ''),
		       sent_at, delivered_at, read_at, replied_at
		FROM messages
		WHERE batch_id = $1 AND direction = 'outbound'
		ORDER BY id
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []live.Item
	for rows.Next() {
		var it live.Item
		var sentAt, deliveredAt, readAt, repliedAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.BatchID, &it.Number, &it.Status, &it.Error,
			&sentAt, &deliveredAt, &readAt, &repliedAt); err != nil {
			return nil, err
		}
		it.SentAt = sentAt.Time
		it.DeliveredAt = deliveredAt.Time
		it.ReadAt = readAt.Time
		it.RepliedAt = repliedAt.Time
		items = append(items, it)
	}
	return items, rows.Err()
}

// PendingJobs loads rows still queued or sending, used at boot to resume
// batches interrupted by a restart.
func (s *Store) PendingJobs(ctx context.Context) ([]*campaign.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, number, COALESCE(body, ''), COALESCE(scheduled_at, CURRENT_TIMESTAMP)
		FROM messages
		WHERE status IN ('queued', 'sending') AND direction = 'outbound' AND batch_id IS NOT NULL
		ORDER BY scheduled_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*campaign.Job
	for rows.Next() {
		j := &campaign.Job{}
		if err := rows.Scan(&j.MessageID, &j.BatchID, &j.To, &j.Text, &j.ScheduledAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
