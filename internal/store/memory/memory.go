// Package memory provides an in-process run store. It backs the one-shot
// run command and DB-less serve mode; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Johnnenna2/weekly-news/internal/domain"
	"github.com/Johnnenna2/weekly-news/internal/runner"
	"github.com/Johnnenna2/weekly-news/internal/scheduler"
)

type Store struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]domain.Run
	scheduled map[time.Time]uuid.UUID // scheduled minute -> run, idempotency index
}

func New() *Store {
	return &Store{
		runs:      make(map[uuid.UUID]domain.Run),
		scheduled: make(map[time.Time]uuid.UUID),
	}
}

func (s *Store) InsertRun(ctx context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.Trigger == domain.TriggerKindSchedule {
		key := run.ScheduledAt.UTC().Truncate(time.Minute)
		if _, exists := s.scheduled[key]; exists {
			return scheduler.ErrDuplicateRun
		}
		s.scheduled[key] = run.ID
	}

	s.runs[run.ID] = run
	return nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.runs[run.ID]
	if !ok {
		return domain.ErrRunNotFound
	}
	if existing.Status.Terminal() {
		return runner.ErrStatusTransitionDenied
	}

	existing.Status = run.Status
	if !run.StartedAt.IsZero() {
		existing.StartedAt = run.StartedAt
	}
	s.runs[run.ID] = existing
	return nil
}

func (s *Store) CompleteRun(ctx context.Context, run domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.runs[run.ID]
	if !ok {
		return domain.ErrRunNotFound
	}
	if existing.Status.Terminal() {
		return runner.ErrStatusTransitionDenied
	}

	existing.Status = run.Status
	existing.Failure = run.Failure
	existing.ExitCode = run.ExitCode
	existing.Error = run.Error
	if !run.StartedAt.IsZero() {
		existing.StartedAt = run.StartedAt
	}
	existing.FinishedAt = run.FinishedAt
	s.runs[run.ID] = existing
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return domain.Run{}, domain.ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]domain.Run, 0, len(s.runs))
	for _, run := range s.runs {
		all = append(all, run)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []domain.Run{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// GetOrphanedRuns returns non-terminal runs created before the cutoff.
func (s *Store) GetOrphanedRuns(ctx context.Context, olderThan time.Time, limit int) ([]domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orphans []domain.Run
	for _, run := range s.runs {
		if run.Status.Terminal() {
			continue
		}
		if run.CreatedAt.Before(olderThan) {
			orphans = append(orphans, run)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].CreatedAt.Before(orphans[j].CreatedAt)
	})
	if limit > 0 && limit < len(orphans) {
		orphans = orphans[:limit]
	}
	return orphans, nil
}

var (
	_ scheduler.Store = (*Store)(nil)
	_ runner.Store    = (*Store)(nil)
)
