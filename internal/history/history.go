// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history persists finished runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	stepflowerrors "github.com/tombee/stepflow/pkg/errors"
)

// Entry is one finished run.
type Entry struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	ProgramID   string        `json:"program_id" yaml:"program_id"`
	State       string        `json:"state" yaml:"state"`
	Message     string        `json:"message,omitempty" yaml:"message,omitempty"`
	ReturnValue string        `json:"return_value,omitempty" yaml:"return_value,omitempty"`
	Log         string        `json:"log,omitempty" yaml:"log,omitempty"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ProgramID string
	State     string
	Limit     int
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// Store is a SQLite run-history store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// SQLite serializes writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context, wal bool) error {
	stmts := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if wal {
		stmts = append(stmts, "PRAGMA journal_mode=WAL")
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			program_id TEXT NOT NULL,
			state TEXT NOT NULL,
			message TEXT,
			return_value TEXT,
			log TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_program ON runs(program_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at)`,
	)
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: %s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Record stores a finished run. Recording the same run id twice replaces
// the earlier entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		return &stepflowerrors.ValidationError{Field: "run_id", Message: "run id is required"}
	}
	if e.Duration == 0 && !e.FinishedAt.IsZero() {
		e.Duration = e.FinishedAt.Sub(e.StartedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, program_id, state, message, return_value, log, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.ProgramID, e.State, e.Message, e.ReturnValue, e.Log,
		formatTime(e.StartedAt), formatTime(e.FinishedAt), e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", e.RunID, err)
	}
	return nil
}

const selectColumns = `SELECT run_id, program_id, state, message, return_value, log, started_at, finished_at, duration_ms FROM runs`

// Get returns one run, or a *errors.NotFoundError.
func (s *Store) Get(ctx context.Context, runID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE run_id = ?", runID)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, &stepflowerrors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return e, nil
}

// List returns runs newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]*Entry, error) {
	query := selectColumns + " WHERE 1=1"
	var args []any
	if f.ProgramID != "" {
		query += " AND program_id = ?"
		args = append(args, f.ProgramID)
	}
	if f.State != "" {
		query += " AND state = ?"
		args = append(args, f.State)
	}
	query += " ORDER BY finished_at DESC, run_id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes runs that finished before cutoff and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE finished_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var message, ret, log sql.NullString
	var startedAt, finishedAt string
	var durationMS int64
	if err := row.Scan(&e.RunID, &e.ProgramID, &e.State, &message, &ret, &log, &startedAt, &finishedAt, &durationMS); err != nil {
		return nil, err
	}
	e.Message = message.String
	e.ReturnValue = ret.String
	e.Log = log.String
	e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
	e.Duration = time.Duration(durationMS) * time.Millisecond
	return &e, nil
}

// formatTime writes UTC with fixed-width fractions so that text ordering
// matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
