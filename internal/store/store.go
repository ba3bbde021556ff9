// Package store persists the planner's local documents and a journal of
// sync outcomes in a SQLite database. The database is the local source of
// truth between syncs; the engine reads documents from here, merges them
// with remote state, and writes the result back.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Document is one named local JSON blob with its last-modified time.
type Document struct {
	Name      string
	Body      []byte
	UpdatedAt time.Time
}

// SyncRecord is one entry in the sync history journal.
type SyncRecord struct {
	Provider   string
	Direction  string
	Outcome    string
	Detail     string
	FinishedAt time.Time
}

// Direction values for sync history entries.
const (
	DirectionSync     = "sync"
	DirectionUpload   = "upload"
	DirectionDownload = "download"
)

// Outcome values for sync history entries.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Store wraps the SQLite database holding documents and sync history.
// It is safe for concurrent use; SetMaxOpenConns(1) serializes writers.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if necessary) the database at dbPath, applies
// pending migrations, and returns a ready Store. Use ":memory:" in tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("store opened", slog.String("path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: closing database: %w", err)
	}
	return nil
}

// Document returns the named document, or (nil, nil) when no document
// with that name has been saved yet.
func (s *Store) Document(ctx context.Context, name string) (*Document, error) {
	var (
		body    []byte
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT body, updated_at FROM documents WHERE name = ?`, name,
	).Scan(&body, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading document %s: %w", name, err)
	}

	return &Document{
		Name:      name,
		Body:      body,
		UpdatedAt: time.Unix(updated, 0).UTC(),
	}, nil
}

// SaveDocument inserts or replaces the named document.
func (s *Store) SaveDocument(ctx context.Context, name string, body []byte) error {
	now := s.nowFunc().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		name, body, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: saving document %s: %w", name, err)
	}

	s.logger.Debug("document saved",
		slog.String("name", name),
		slog.Int("bytes", len(body)),
	)
	return nil
}

// RecordSync appends an entry to the sync history journal.
func (s *Store) RecordSync(ctx context.Context, provider, direction, outcome, detail string) error {
	now := s.nowFunc().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_history (provider, direction, outcome, detail, finished_at)
		 VALUES (?, ?, ?, ?, ?)`,
		provider, direction, outcome, detail, now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: recording sync for %s: %w", provider, err)
	}
	return nil
}

// LastSync returns the most recent history entry for the provider, or
// (nil, nil) when the provider has never synced.
func (s *Store) LastSync(ctx context.Context, provider string) (*SyncRecord, error) {
	var (
		rec      SyncRecord
		finished int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT provider, direction, outcome, detail, finished_at
		 FROM sync_history WHERE provider = ?
		 ORDER BY finished_at DESC, id DESC LIMIT 1`,
		provider,
	).Scan(&rec.Provider, &rec.Direction, &rec.Outcome, &rec.Detail, &finished)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading last sync for %s: %w", provider, err)
	}

	rec.FinishedAt = time.Unix(finished, 0).UTC()
	return &rec, nil
}

// History returns up to limit most-recent journal entries across all
// providers, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]SyncRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, direction, outcome, detail, finished_at
		 FROM sync_history ORDER BY finished_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: reading sync history: %w", err)
	}
	defer rows.Close()

	var records []SyncRecord
	for rows.Next() {
		var (
			rec      SyncRecord
			finished int64
		)
		if err := rows.Scan(&rec.Provider, &rec.Direction, &rec.Outcome, &rec.Detail, &finished); err != nil {
			return nil, fmt.Errorf("store: scanning sync history row: %w", err)
		}
		rec.FinishedAt = time.Unix(finished, 0).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating sync history: %w", err)
	}

	return records, nil
}
