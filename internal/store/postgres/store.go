package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Johnnenna2/weekly-news/internal/domain"
	"github.com/Johnnenna2/weekly-news/internal/runner"
	"github.com/Johnnenna2/weekly-news/internal/scheduler"
)

// Store implements scheduler.Store and runner.Store using PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE runs (
//	    id           UUID PRIMARY KEY,
//	    trigger_kind TEXT NOT NULL,
//	    scheduled_at TIMESTAMPTZ,
//	    status       TEXT NOT NULL,
//	    failure      TEXT NOT NULL DEFAULT '',
//	    exit_code    INT NOT NULL DEFAULT -1,
//	    error        TEXT NOT NULL DEFAULT '',
//	    started_at   TIMESTAMPTZ,
//	    finished_at  TIMESTAMPTZ,
//	    created_at   TIMESTAMPTZ NOT NULL
//	);
//	CREATE UNIQUE INDEX runs_scheduled_minute ON runs (scheduled_at)
//	    WHERE trigger_kind = 'schedule';
//
// The partial unique index is what makes scheduled triggers idempotent
// across overlapping tick windows and multiple instances.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertRun inserts a new run record.
// Returns scheduler.ErrDuplicateRun if a scheduled run for the same minute
// already exists.
func (s *Store) InsertRun(ctx context.Context, run domain.Run) error {
	_, err := s.db.ExecContext(ctx, queryInsertRun,
		run.ID,
		string(run.Trigger),
		nullTime(run.ScheduledAt),
		string(run.Status),
		string(run.Failure),
		run.ExitCode,
		run.Error,
		run.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return scheduler.ErrDuplicateRun
		}
		return err
	}
	return nil
}

// UpdateRunStatus records an intermediate status transition.
// Returns runner.ErrStatusTransitionDenied if the run is already terminal.
// The guard lives in the WHERE clause so the check and the update are one
// atomic statement.
func (s *Store) UpdateRunStatus(ctx context.Context, run domain.Run) error {
	result, err := s.db.ExecContext(ctx, queryUpdateRunStatus,
		string(run.Status),
		nullTime(run.StartedAt),
		run.ID,
	)
	if err != nil {
		return err
	}
	return s.checkGuard(ctx, result, run.ID)
}

// CompleteRun records the terminal state of a run. Same terminal-state guard
// as UpdateRunStatus.
func (s *Store) CompleteRun(ctx context.Context, run domain.Run) error {
	result, err := s.db.ExecContext(ctx, queryCompleteRun,
		string(run.Status),
		string(run.Failure),
		run.ExitCode,
		run.Error,
		nullTime(run.StartedAt),
		nullTime(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return err
	}
	return s.checkGuard(ctx, result, run.ID)
}

// checkGuard distinguishes "run missing" from "run already terminal" when a
// guarded UPDATE touched no rows.
func (s *Store) checkGuard(ctx context.Context, result sql.Result, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var currentStatus string
	err = s.db.QueryRowContext(ctx, queryGetRunStatus, id).Scan(&currentStatus)
	if err == sql.ErrNoRows {
		return domain.ErrRunNotFound
	}
	if err != nil {
		return err
	}
	return runner.ErrStatusTransitionDenied
}

// GetRun returns a run by its ID.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (domain.Run, error) {
	row := s.db.QueryRowContext(ctx, queryGetRun, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return domain.Run{}, domain.ErrRunNotFound
	}
	return run, err
}

// ListRuns returns runs newest first, paginated by limit and offset.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, queryListRuns, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetOrphanedRuns returns non-terminal runs created before the threshold,
// oldest first, limited to maxResults.
func (s *Store) GetOrphanedRuns(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, queryGetOrphanedRuns, olderThan, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (domain.Run, error) {
	var run domain.Run
	var trigger, status, failure string
	var scheduledAt, startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&trigger,
		&scheduledAt,
		&status,
		&failure,
		&run.ExitCode,
		&run.Error,
		&startedAt,
		&finishedAt,
		&run.CreatedAt,
	)
	if err != nil {
		return domain.Run{}, err
	}

	run.Trigger = domain.TriggerKind(trigger)
	run.Status = domain.RunStatus(status)
	run.Failure = domain.FailureKind(failure)
	run.ScheduledAt = scheduledAt.Time
	run.StartedAt = startedAt.Time
	run.FinishedAt = finishedAt.Time
	return run, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	// PostgreSQL unique violation error code is 23505
	errStr := err.Error()
	return strings.Contains(errStr, "23505") ||
		strings.Contains(errStr, "unique constraint") ||
		strings.Contains(errStr, "duplicate key")
}

// Compile-time interface assertions
var (
	_ scheduler.Store = (*Store)(nil)
	_ runner.Store    = (*Store)(nil)
)
