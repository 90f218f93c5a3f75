package storage

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open dials postgres through the pgx stdlib driver with the pool limits the
// service runs with in production.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)
	if err = db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the schema if it does not exist. Statements are idempotent
// so boot is safe against an already-migrated database.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS batches (
			id BIGSERIAL PRIMARY KEY,
			list_id BIGINT,
			list_name TEXT,
			total INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'queued',
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			batch_id BIGINT REFERENCES batches(id),
			list_id BIGINT,
			number TEXT NOT NULL,
			body TEXT,
			status TEXT NOT NULL DEFAULT 'queued',
			direction TEXT NOT NULL DEFAULT 'outbound',
			provider_message_id TEXT,
			error TEXT,
			scheduled_at TIMESTAMPTZ,
			sent_at TIMESTAMPTZ,
			delivered_at TIMESTAMPTZ,
			read_at TIMESTAMPTZ,
			replied_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_provider_id ON messages (provider_message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_batch_id ON messages (batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_number ON messages (number)`,
		`CREATE TABLE IF NOT EXISTS contact_lists (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			contacts JSONB NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS removed_contacts (
			id BIGSERIAL PRIMARY KEY,
			number TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT 'replied',
			removed_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS message_events (
			id BIGSERIAL PRIMARY KEY,
			message_id BIGINT,
			kind TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
