package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Johnnenna2/weekly-news/internal/domain"
	"github.com/Johnnenna2/weekly-news/internal/runner"
	"github.com/Johnnenna2/weekly-news/internal/scheduler"
)

func scheduledRun(at time.Time) domain.Run {
	return domain.Run{
		ID:          uuid.New(),
		Trigger:     domain.TriggerKindSchedule,
		ScheduledAt: at,
		Status:      domain.RunStatusPending,
		ExitCode:    -1,
		CreatedAt:   at,
	}
}

func TestInsertRun_DuplicateScheduledMinute(t *testing.T) {
	s := New()
	ctx := context.Background()
	at := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)

	if err := s.InsertRun(ctx, scheduledRun(at)); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err := s.InsertRun(ctx, scheduledRun(at))
	if !errors.Is(err, scheduler.ErrDuplicateRun) {
		t.Errorf("second insert = %v, want ErrDuplicateRun", err)
	}
}

func TestInsertRun_ManualRunsNeverCollide(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := domain.Run{
			ID:        uuid.New(),
			Trigger:   domain.TriggerKindManual,
			Status:    domain.RunStatusPending,
			ExitCode:  -1,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.InsertRun(ctx, run); err != nil {
			t.Fatalf("manual insert %d: %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("run count = %d, want 3", len(runs))
	}
}

func TestUpdateRunStatus_TerminalGuard(t *testing.T) {
	s := New()
	ctx := context.Background()
	run := scheduledRun(time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC))

	if err := s.InsertRun(ctx, run); err != nil {
		t.Fatalf("insert: %v", err)
	}

	run.Status = domain.RunStatusExecuting
	if err := s.UpdateRunStatus(ctx, run); err != nil {
		t.Fatalf("update to executing: %v", err)
	}

	run.Status = domain.RunStatusSucceeded
	run.ExitCode = 0
	run.FinishedAt = time.Now().UTC()
	if err := s.CompleteRun(ctx, run); err != nil {
		t.Fatalf("complete: %v", err)
	}

	run.Status = domain.RunStatusExecuting
	err := s.UpdateRunStatus(ctx, run)
	if !errors.Is(err, runner.ErrStatusTransitionDenied) {
		t.Errorf("update after terminal = %v, want ErrStatusTransitionDenied", err)
	}

	run.Status = domain.RunStatusFailed
	err = s.CompleteRun(ctx, run)
	if !errors.Is(err, runner.ErrStatusTransitionDenied) {
		t.Errorf("complete after terminal = %v, want ErrStatusTransitionDenied", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != domain.RunStatusSucceeded {
		t.Errorf("status = %q, want succeeded (terminal state preserved)", got.Status)
	}
}

func TestUpdateRunStatus_UnknownRun(t *testing.T) {
	s := New()

	err := s.UpdateRunStatus(context.Background(), domain.Run{ID: uuid.New()})
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := New()

	_, err := s.GetRun(context.Background(), uuid.New())
	if !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestCompleteRun_RecordsFailureDetails(t *testing.T) {
	s := New()
	ctx := context.Background()
	run := scheduledRun(time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC))

	if err := s.InsertRun(ctx, run); err != nil {
		t.Fatalf("insert: %v", err)
	}

	run.Status = domain.RunStatusFailed
	run.Failure = domain.FailureScript
	run.ExitCode = 2
	run.Error = "script exited with status 2"
	run.FinishedAt = time.Now().UTC()
	if err := s.CompleteRun(ctx, run); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Failure != domain.FailureScript {
		t.Errorf("failure = %q, want script", got.Failure)
	}
	if got.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2", got.ExitCode)
	}
	if got.Error == "" {
		t.Error("error text not recorded")
	}
}

func TestListRuns_OrderAndPagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		run := scheduledRun(base.Add(time.Duration(i) * time.Hour))
		if err := s.InsertRun(ctx, run); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if !runs[0].CreatedAt.After(runs[1].CreatedAt) {
		t.Error("runs not ordered newest first")
	}

	rest, err := s.ListRuns(ctx, 10, 2)
	if err != nil {
		t.Fatalf("ListRuns offset: %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("len after offset = %d, want 3", len(rest))
	}

	empty, err := s.ListRuns(ctx, 10, 100)
	if err != nil {
		t.Fatalf("ListRuns past end: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("len past end = %d, want 0", len(empty))
	}
}

func TestGetOrphanedRuns(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	stale := scheduledRun(now.Add(-3 * time.Hour))
	fresh := scheduledRun(now.Add(-10 * time.Minute))
	done := scheduledRun(now.Add(-5 * time.Hour))

	for _, run := range []domain.Run{stale, fresh, done} {
		if err := s.InsertRun(ctx, run); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	done.Status = domain.RunStatusSucceeded
	done.ExitCode = 0
	if err := s.CompleteRun(ctx, done); err != nil {
		t.Fatalf("complete: %v", err)
	}

	orphans, err := s.GetOrphanedRuns(ctx, now.Add(-2*time.Hour), 10)
	if err != nil {
		t.Fatalf("GetOrphanedRuns: %v", err)
	}
	if len(orphans) != 1 {
		t.Fatalf("orphan count = %d, want 1", len(orphans))
	}
	if orphans[0].ID != stale.ID {
		t.Errorf("orphan = %s, want %s", orphans[0].ID, stale.ID)
	}
}
