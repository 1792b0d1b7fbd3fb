// Package usage keeps a local ledger of finished import jobs in SQLite,
// so totals survive the Redis job keys being cleaned up.
package usage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS import_usage (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id        TEXT NOT NULL UNIQUE,
    destination   TEXT NOT NULL,
    format        TEXT NOT NULL DEFAULT '',
    provider      TEXT NOT NULL DEFAULT '',
    model         TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    elements      INTEGER NOT NULL DEFAULT 0,
    total         INTEGER NOT NULL DEFAULT 0,
    started_at    TEXT NOT NULL,
    completed_at  TEXT NOT NULL,
    duration_ms   INTEGER NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    output_path   TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_import_usage_provider ON import_usage(provider);
`

// Store provides SQLite-backed storage for usage records.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the usage database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}

	// WAL lets the CLI read while the daemon writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Insert stores a usage record. Duplicate job_id inserts are silently ignored.
func (s *Store) Insert(r Record) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO import_usage (
			job_id, destination, format, provider, model, status,
			elements, total,
			started_at, completed_at, duration_ms,
			error_message, output_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Destination, r.Format, r.Provider, r.Model, r.Status,
		r.Elements, r.Total,
		r.StartedAt.UTC().Format(time.RFC3339), r.CompletedAt.UTC().Format(time.RFC3339), r.DurationMs,
		r.ErrorMessage, r.OutputPath,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, destination, format, provider, model, status,
		       elements, total,
		       started_at, completed_at, duration_ms,
		       error_message, output_path
		FROM import_usage
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var startedAt, completedAt string
		if err := rows.Scan(
			&r.ID, &r.JobID, &r.Destination, &r.Format, &r.Provider, &r.Model, &r.Status,
			&r.Elements, &r.Total,
			&startedAt, &completedAt, &r.DurationMs,
			&r.ErrorMessage, &r.OutputPath,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			r.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339, completedAt); err == nil {
			r.CompletedAt = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary aggregates the whole ledger.
type Summary struct {
	Jobs      int64
	Completed int64
	Failed    int64
	Cancelled int64
	Elements  int64
}

// Summarize returns ledger-wide totals.
func (s *Store) Summarize() (Summary, error) {
	var sum Summary
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(elements), 0)
		FROM import_usage`).Scan(&sum.Jobs, &sum.Completed, &sum.Failed, &sum.Cancelled, &sum.Elements)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize usage: %w", err)
	}
	return sum, nil
}

// ProviderUsage is the per-provider rollup.
type ProviderUsage struct {
	Provider string
	Model    string
	Jobs     int64
	Elements int64
}

// ByProvider groups completed work by embedding provider and model.
// Records with no provider (fully precomputed jobs) group under "".
func (s *Store) ByProvider() ([]ProviderUsage, error) {
	rows, err := s.db.Query(`
		SELECT provider, model, COUNT(*), COALESCE(SUM(elements), 0)
		FROM import_usage
		GROUP BY provider, model
		ORDER BY SUM(elements) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query by provider: %w", err)
	}
	defer rows.Close()

	var out []ProviderUsage
	for rows.Next() {
		var p ProviderUsage
		if err := rows.Scan(&p.Provider, &p.Model, &p.Jobs, &p.Elements); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
