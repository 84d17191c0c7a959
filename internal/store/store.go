// Package store persists finished import jobs and their lifecycle events in
// SQLite. It implements core.Recorder and core.Purger.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DefaultListLimit is the page size used when a filter sets none.
const DefaultListLimit = 50

// Store is a SQLite-backed history of import jobs and audit events.
type Store struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS import_history (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		table_key TEXT,
		actor TEXT,
		file_name TEXT,
		format TEXT,
		total_rows INTEGER NOT NULL DEFAULT 0,
		processed_rows INTEGER NOT NULL DEFAULT 0,
		error_rows INTEGER NOT NULL DEFAULT 0,
		skipped_rows INTEGER NOT NULL DEFAULT 0,
		error_code TEXT,
		retry_of TEXT,
		created_at INTEGER NOT NULL,
		completed_at INTEGER,
		snapshot TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_import_history_created ON import_history (created_at)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		severity TEXT NOT NULL,
		job_id TEXT,
		actor TEXT,
		table_key TEXT,
		ip_address TEXT,
		user_agent TEXT,
		message TEXT,
		details TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_job ON audit_events (job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_events_created ON audit_events (created_at)`,
}

// Open opens or creates the database at path and creates missing tables.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	// Each ":memory:" connection opens its own database.
	db.SetMaxOpenConns(1)

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate history store: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PurgeBefore deletes jobs and events created before cutoff and returns the
// number of rows removed.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if already committed

	var total int64
	for _, table := range []string{"import_history", "audit_events"} {
		res, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", toMillis(cutoff))
		if err != nil {
			return 0, fmt.Errorf("purge %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return total, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
