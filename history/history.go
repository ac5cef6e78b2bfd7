// Package history persists one record per analysis run in SQLite so past
// rankings and suggestions can be listed and fetched again.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Limits for List.
const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// Schema is the run history schema.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id               TEXT PRIMARY KEY,
    urls_json        TEXT NOT NULL,
    website_type     TEXT NOT NULL DEFAULT '',
    rankings         TEXT NOT NULL DEFAULT '',
    suggestions_json TEXT NOT NULL DEFAULT '[]',
    best_images_json TEXT NOT NULL DEFAULT '{}',
    status           TEXT NOT NULL,
    error            TEXT NOT NULL DEFAULT '',
    duration_ms      INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS stage_timings (
    stage       TEXT NOT NULL,
    ok          INTEGER NOT NULL,
    duration_ms REAL NOT NULL,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stage_timings ON stage_timings(stage, created_at);
`

// Run is the stored record of one analysis request. Suggestions is kept
// as raw JSON so this package does not depend on the advisor types.
type Run struct {
	ID          string            `json:"id"`
	URLs        []string          `json:"urls"`
	WebsiteType string            `json:"website_type,omitempty"`
	Rankings    string            `json:"rankings,omitempty"`
	Suggestions json.RawMessage   `json:"suggestions,omitempty"`
	BestImages  map[string]string `json:"best_images,omitempty"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	DurationMs  int64             `json:"duration_ms"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Store reads and writes runs.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the history database at path. Use ":memory:"
// in tests.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.DB.Close() }

// Record inserts a run. CreatedAt defaults to now.
func (s *Store) Record(ctx context.Context, r *Run) error {
	if r.ID == "" {
		return fmt.Errorf("history: run id is required")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = StatusOK
	}

	urls, err := json.Marshal(r.URLs)
	if err != nil {
		return fmt.Errorf("history: marshal urls: %w", err)
	}
	suggestions := []byte(r.Suggestions)
	if len(suggestions) == 0 {
		suggestions = []byte("[]")
	}
	best, err := json.Marshal(r.BestImages)
	if err != nil {
		return fmt.Errorf("history: marshal best images: %w", err)
	}
	if r.BestImages == nil {
		best = []byte("{}")
	}

	_, err = execRetry(ctx, s.DB,
		`INSERT INTO runs (id, urls_json, website_type, rankings, suggestions_json,
		best_images_json, status, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(urls), r.WebsiteType, r.Rankings, string(suggestions),
		string(best), r.Status, r.Error, r.DurationMs, r.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	return nil
}

const selectRun = `SELECT id, urls_json, website_type, rankings, suggestions_json,
	best_images_json, status, error, duration_ms, created_at FROM runs`

// Get returns one run, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: get run: %w", err)
	}
	return r, nil
}

// List returns the most recent runs first. limit is clamped to
// [1, MaxLimit]; 0 means DefaultLimit.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	rows, err := s.DB.QueryContext(ctx, selectRun+` ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                Run
		urls, sugg, best string
		createdAt        int64
	)
	if err := sc.Scan(&r.ID, &urls, &r.WebsiteType, &r.Rankings, &sugg,
		&best, &r.Status, &r.Error, &r.DurationMs, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(urls), &r.URLs); err != nil {
		return nil, fmt.Errorf("urls_json: %w", err)
	}
	if err := json.Unmarshal([]byte(best), &r.BestImages); err != nil {
		return nil, fmt.Errorf("best_images_json: %w", err)
	}
	r.Suggestions = json.RawMessage(sugg)
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &r, nil
}
