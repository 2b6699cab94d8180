// Copyright (c) 2026 John Earle
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

// Package store provides a Postgres archive of analysis records and of the
// report of every run.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/mailtriage/internal/config"
	"github.com/bcem/mailtriage/internal/models"
)

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// Store archives records and run reports in Postgres.
type Store struct {
	db DB

	mu          sync.Mutex
	schemaReady bool
}

// Connect creates a connection pool. Connections are opened lazily, so an
// unreachable server surfaces on the first Open or Ping rather than here.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse DATABASE_URL: %v", config.ErrInvalid, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

// NewStore creates a store backed by db. Tables are created on first use.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ensure creates the tables once per process.
func (s *Store) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemaReady {
		return nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	s.schemaReady = true
	slog.Info("record archive initialised")
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_records (
			id            UUID PRIMARY KEY,
			run_id        TEXT NOT NULL,
			message_id    TEXT NOT NULL,
			subject       TEXT NOT NULL DEFAULT '',
			sender        TEXT NOT NULL DEFAULT '',
			received_at   TIMESTAMPTZ,
			language      TEXT NOT NULL,
			summary       TEXT NOT NULL,
			commands      TEXT[] NOT NULL,
			draft_1       JSONB NOT NULL,
			draft_2       JSONB NOT NULL,
			tone          TEXT NOT NULL,
			confidence    INTEGER NOT NULL,
			teams         TEXT[] NOT NULL,
			action_name   TEXT NOT NULL,
			action_color  TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_records_run ON analysis_records(run_id);
		CREATE INDEX IF NOT EXISTS idx_records_message ON analysis_records(message_id);

		CREATE TABLE IF NOT EXISTS triage_runs (
			run_id      TEXT PRIMARY KEY,
			account     TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			started_at  TIMESTAMPTZ NOT NULL,
			elapsed_ms  BIGINT NOT NULL,
			scanned     INTEGER NOT NULL,
			processed   INTEGER NOT NULL,
			filtered    INTEGER NOT NULL,
			skipped     INTEGER NOT NULL,
			priority    INTEGER NOT NULL,
			languages   TEXT[] NOT NULL,
			commands    TEXT[] NOT NULL,
			high_value  TEXT[] NOT NULL,
			sinks       JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON triage_runs(started_at DESC);
	`)
	return err
}

// Name identifies the sink in reports and metrics.
func (s *Store) Name() string { return "postgres" }

// Open checks the connection before a sync phase and creates the tables on
// the first successful connection.
func (s *Store) Open(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return s.ensure(ctx)
}

// Create archives one record. Records are immutable, so a repeated id is an
// error rather than an update.
func (s *Store) Create(ctx context.Context, rec *models.AnalysisRecord) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO analysis_records
			(id, run_id, message_id, subject, sender, received_at, language, summary,
			 commands, draft_1, draft_2, tone, confidence, teams, action_name, action_color, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, args...)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// RecordRun persists the report of a finished run.
func (s *Store) RecordRun(ctx context.Context, stats *models.RunStats) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	args, err := runArgs(stats)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO triage_runs
			(run_id, account, status, error, started_at, elapsed_ms, scanned, processed,
			 filtered, skipped, priority, languages, commands, high_value, sinks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (run_id) DO NOTHING
	`, args...)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest run reports, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.RunStats, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT run_id, account, status, error, started_at, elapsed_ms, scanned, processed,
		       filtered, skipped, priority, languages, commands, high_value, sinks
		FROM triage_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRuns(rows)
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.Ping(ctx)
}

// recordArgs flattens a record into insert arguments.
func recordArgs(rec *models.AnalysisRecord) ([]any, error) {
	d1, err := json.Marshal(rec.Draft1)
	if err != nil {
		return nil, fmt.Errorf("marshal draft 1: %w", err)
	}
	d2, err := json.Marshal(rec.Draft2)
	if err != nil {
		return nil, fmt.Errorf("marshal draft 2: %w", err)
	}

	var received *time.Time
	if !rec.ReceivedAt.IsZero() {
		received = &rec.ReceivedAt
	}

	return []any{
		rec.ID, rec.RunID, rec.MessageID, rec.Subject, rec.Sender, received,
		rec.Language, rec.Summary, nonNil(rec.Commands), d1, d2, rec.Tone,
		rec.Confidence, nonNil(rec.Teams), rec.Action.Name, rec.Action.Color, rec.CreatedAt,
	}, nil
}

// runArgs flattens a run report into insert arguments.
func runArgs(stats *models.RunStats) ([]any, error) {
	sinks, err := json.Marshal(nonNilSinks(stats.Sinks))
	if err != nil {
		return nil, fmt.Errorf("marshal sink reports: %w", err)
	}
	return []any{
		stats.RunID, stats.Account, string(stats.Status), stats.Error, stats.StartedAt,
		stats.Elapsed.Milliseconds(), stats.Scanned, stats.Processed, stats.Filtered,
		stats.Skipped, stats.Priority, nonNil(stats.Languages), nonNil(stats.Commands),
		nonNil(stats.HighValue), sinks,
	}, nil
}

// collectRuns scans multiple rows into run reports.
func collectRuns(rows pgx.Rows) ([]models.RunStats, error) {
	var runs []models.RunStats
	for rows.Next() {
		var (
			r         models.RunStats
			status    string
			elapsedMS int64
			sinks     []byte
		)
		if err := rows.Scan(
			&r.RunID, &r.Account, &status, &r.Error, &r.StartedAt, &elapsedMS, &r.Scanned,
			&r.Processed, &r.Filtered, &r.Skipped, &r.Priority, &r.Languages, &r.Commands,
			&r.HighValue, &sinks,
		); err != nil {
			return nil, err
		}
		r.Status = models.RunStatus(status)
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if err := json.Unmarshal(sinks, &r.Sinks); err != nil {
			return nil, fmt.Errorf("decode sink reports for run %s: %w", r.RunID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSinks(s []models.SinkReport) []models.SinkReport {
	if s == nil {
		return []models.SinkReport{}
	}
	return s
}
