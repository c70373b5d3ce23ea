// Package store keeps the run-history ledger. Runs are appended after
// completion; nothing in the engine reads the store mid-run.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/brightpath-ops/ebilling-cli/internal/model"
)

// RunFilter narrows List results.
type RunFilter struct {
	Mode     model.RunMode
	Provider string
	Limit    int
}

// Store is the sqlite-backed run ledger.
type Store struct {
	db *sql.DB
}

// Open opens the ledger at the given path and configures WAL mode.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "store: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	region      TEXT NOT NULL,
	provider    TEXT,
	fast_path   INTEGER NOT NULL DEFAULT 0,
	success     INTEGER NOT NULL DEFAULT 0,
	partial     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	result      TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);
CREATE INDEX IF NOT EXISTS idx_runs_provider ON runs(provider);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the schema if absent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "store: migrate")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append records a completed run.
func (s *Store) Append(ctx context.Context, run model.RunResult) error {
	resultJSON, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "store: marshal run")
	}
	sum := run.Summary()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, region, provider, fast_path, success, partial, failed, skipped, result, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), run.Region, run.Provider, boolInt(run.FastPath),
		sum.Success, sum.Partial, sum.Failed, sum.Skipped,
		string(resultJSON), run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "store: insert run %s", run.ID)
}

// Get returns one run by id.
func (s *Store) Get(ctx context.Context, id string) (*model.RunResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT result FROM runs WHERE id = ?`, id)

	var resultJSON string
	err := row.Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("store: run not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}

	var run model.RunResult
	if err := json.Unmarshal([]byte(resultJSON), &run); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run")
	}
	return &run, nil
}

// ListEntry is one row of the run ledger, without the full result payload.
type ListEntry struct {
	ID         string
	Mode       model.RunMode
	Region     string
	Provider   string
	FastPath   bool
	Summary    model.RunSummary
	StartedAt  time.Time
	FinishedAt time.Time
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, filter RunFilter) ([]ListEntry, error) {
	query := `SELECT id, mode, region, provider, fast_path, success, partial, failed, skipped, started_at, finished_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.Mode != "" {
		query += ` AND mode = ?`
		args = append(args, string(filter.Mode))
	}
	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var entries []ListEntry
	for rows.Next() {
		var e ListEntry
		var mode string
		var provider sql.NullString
		var fastPath int
		if err := rows.Scan(&e.ID, &mode, &e.Region, &provider, &fastPath,
			&e.Summary.Success, &e.Summary.Partial, &e.Summary.Failed, &e.Summary.Skipped,
			&e.StartedAt, &e.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan run row")
		}
		e.Mode = model.RunMode(mode)
		e.Provider = provider.String
		e.FastPath = fastPath != 0
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "store: list runs iterate")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
