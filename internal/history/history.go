// Package history keeps a local log of completed sync runs in SQLite.
// It records final reports only; it never stores file content or drives
// the engine.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/eapp-tools/dirsync/pkg/syncer"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	target       TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	duration_ms  INTEGER NOT NULL,
	created      INTEGER NOT NULL,
	replaced     INTEGER NOT NULL,
	deleted      INTEGER NOT NULL,
	kept         INTEGER NOT NULL,
	pruned       INTEGER NOT NULL,
	bytes_copied INTEGER NOT NULL,
	failures     INTEGER NOT NULL,
	cancelled    INTEGER NOT NULL
);
`

// Run is one recorded sync run.
type Run struct {
	ID          string
	Source      string
	Target      string
	StartedAt   time.Time
	Duration    time.Duration
	Created     int
	Replaced    int
	Deleted     int
	Kept        int
	Pruned      int
	BytesCopied int64
	Failures    int
	Cancelled   bool
}

// Store is a SQLite-backed run log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the run log at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one final report.
func (s *Store) Record(ctx context.Context, r *syncer.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, source, target, started_at, duration_ms,
			created, replaced, deleted, kept, pruned,
			bytes_copied, failures, cancelled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID.String(), r.Source, r.Target,
		r.StartedAt.UTC(), r.Duration.Milliseconds(),
		r.Created, r.Replaced, r.Deleted, r.Kept, r.Pruned,
		r.BytesCopied, len(r.Failed), r.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, target, started_at, duration_ms,
		       created, replaced, deleted, kept, pruned,
		       bytes_copied, failures, cancelled
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMS int64
		if err := rows.Scan(
			&r.ID, &r.Source, &r.Target, &r.StartedAt, &durationMS,
			&r.Created, &r.Replaced, &r.Deleted, &r.Kept, &r.Pruned,
			&r.BytesCopied, &r.Failures, &r.Cancelled,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
