// Package runstore keeps a history of pipeline runs in PostgreSQL.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
)

const table = "pipeline_runs"

// Run statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrNotFound is returned by Get for an unknown run.
var ErrNotFound = errors.New("run not found")

// Run is one row of the run history.
type Run struct {
	ID             string     `db:"run_id"`
	Status         string     `db:"status"`
	ObjectLocation *string    `db:"object_location"`
	Rows           *int       `db:"result_rows"`
	ErrorMessage   *string    `db:"error_message"`
	StartedAt      time.Time  `db:"started_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// DB is the part of *sqlx.DB the store needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store records run lifecycle transitions.
type Store struct {
	db DB
	qb squirrel.StatementBuilderType
}

// New creates a Store on db.
func New(db DB) *Store {
	return &Store{
		db: db,
		qb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

const schema = `CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id          TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	object_location TEXT,
	result_rows     INTEGER,
	error_message   TEXT,
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ
)`

// EnsureSchema creates the history table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

// Start inserts a run in the running state.
func (s *Store) Start(ctx context.Context, runID string, startedAt time.Time) error {
	query, args, err := s.qb.Insert(table).
		Columns("run_id", "status", "started_at").
		Values(runID, StatusRunning, startedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finish records the outcome of a run started with Start.
func (s *Store) Finish(ctx context.Context, run Run) error {
	completedAt := time.Now().UTC()
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	query := s.qb.Update(table).
		Set("status", run.Status).
		Set("completed_at", completedAt)

	if run.ObjectLocation != nil {
		query = query.Set("object_location", *run.ObjectLocation)
	}
	if run.Rows != nil {
		query = query.Set("result_rows", *run.Rows)
	}
	if run.ErrorMessage != nil {
		query = query.Set("error_message", *run.ErrorMessage)
	}

	sqlQuery, args, err := query.Where(squirrel.Eq{"run_id": run.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// Get loads a run by id.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	query, args, err := s.qb.
		Select("run_id", "status", "object_location", "result_rows", "error_message", "started_at", "completed_at").
		From(table).
		Where(squirrel.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var run Run
	err = s.db.GetContext(ctx, &run, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}
