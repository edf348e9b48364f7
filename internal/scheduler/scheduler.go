// Package scheduler decides when runs happen.
//
// A single cron schedule is evaluated on a fixed tick. Every calendar match
// inside the window (lastTick, now] produces exactly one run; duplicate
// inserts for the same scheduled minute are suppressed by the store. Windows
// before the process started are never backfilled.
package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Johnnenna2/weekly-news/internal/domain"
)

// ErrDuplicateRun is returned by stores when a scheduled run for the same
// minute already exists.
var ErrDuplicateRun = errors.New("run already exists for this scheduled time")

type Store interface {
	InsertRun(ctx context.Context, run domain.Run) error
}

// CronSchedule is the compiled schedule the scheduler walks.
type CronSchedule interface {
	Next(after time.Time) time.Time
	Matches(t time.Time) bool
}

type EventEmitter interface {
	Emit(ctx context.Context, event domain.TriggerEvent) error
}

// MetricsSink records scheduler metrics. Methods must be non-blocking.
type MetricsSink interface {
	TickCompleted(duration time.Duration)
	TriggerEmitted(kind string)
}

type Config struct {
	TickInterval time.Duration
}

type Scheduler struct {
	config   Config
	store    Store
	schedule CronSchedule
	emitter  EventEmitter
	metrics  MetricsSink // optional, nil = disabled
	clock    func() time.Time
	lastTick time.Time
}

func New(config Config, store Store, schedule CronSchedule, emitter EventEmitter) *Scheduler {
	return &Scheduler{
		config:   config,
		store:    store,
		schedule: schedule,
		emitter:  emitter,
		clock:    time.Now,
	}
}

// WithMetrics attaches a metrics sink to the scheduler.
func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	log.Printf("scheduler: started, tick=%s", s.config.TickInterval)
	s.lastTick = s.clock().UTC()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.processTick(ctx); err != nil {
				log.Printf("scheduler: tick error: %v", err)
			}
		}
	}
}

func (s *Scheduler) processTick(ctx context.Context) error {
	start := s.clock()
	now := start.UTC()

	// Walk every due time inside the window. The guard bounds the scan if
	// the process was suspended for a very long stretch.
	const maxIterations = 1000
	t := s.schedule.Next(s.lastTick)

	for i := 0; i < maxIterations && !t.After(now); i++ {
		if err := s.emitScheduled(ctx, t.UTC().Truncate(time.Minute), now); err != nil {
			log.Printf("scheduler: emit at %s error: %v", t.Format(time.RFC3339), err)
		}
		t = s.schedule.Next(t)
	}

	s.lastTick = now
	if s.metrics != nil {
		s.metrics.TickCompleted(s.clock().Sub(start))
	}
	return nil
}

func (s *Scheduler) emitScheduled(ctx context.Context, scheduledAt, now time.Time) error {
	run := domain.Run{
		ID:          uuid.New(),
		Trigger:     domain.TriggerKindSchedule,
		ScheduledAt: scheduledAt,
		Status:      domain.RunStatusPending,
		ExitCode:    -1,
		CreatedAt:   now,
	}

	if err := s.store.InsertRun(ctx, run); err != nil {
		if errors.Is(err, ErrDuplicateRun) {
			return nil // another instance already claimed this minute
		}
		return fmt.Errorf("insert run: %w", err)
	}

	event := domain.TriggerEvent{
		RunID:          run.ID,
		Kind:           domain.TriggerKindSchedule,
		ScheduledAt:    scheduledAt,
		FiredAt:        now,
		IdempotencyKey: generateIdempotencyKey(scheduledAt),
		CreatedAt:      now,
	}

	if err := s.emitter.Emit(ctx, event); err != nil {
		return fmt.Errorf("emit: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TriggerEmitted(string(domain.TriggerKindSchedule))
	}
	log.Printf("scheduler: emitted run=%s scheduled_at=%s", run.ID, scheduledAt.Format(time.RFC3339))
	return nil
}

// TriggerNow fires a manual run immediately, outside the calendar schedule.
// The run is queued behind any in-flight run; it is never coalesced with a
// scheduled one.
func (s *Scheduler) TriggerNow(ctx context.Context) (domain.Run, error) {
	now := s.clock().UTC()

	run := domain.Run{
		ID:        uuid.New(),
		Trigger:   domain.TriggerKindManual,
		Status:    domain.RunStatusPending,
		ExitCode:  -1,
		CreatedAt: now,
	}

	if err := s.store.InsertRun(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("insert run: %w", err)
	}

	event := domain.TriggerEvent{
		RunID:     run.ID,
		Kind:      domain.TriggerKindManual,
		FiredAt:   now,
		CreatedAt: now,
	}

	if err := s.emitter.Emit(ctx, event); err != nil {
		return domain.Run{}, fmt.Errorf("emit: %w", err)
	}

	if s.metrics != nil {
		s.metrics.TriggerEmitted(string(domain.TriggerKindManual))
	}
	log.Printf("scheduler: manual run %s triggered", run.ID)
	return run, nil
}

func generateIdempotencyKey(scheduledAt time.Time) string {
	data := fmt.Sprintf("schedule:%d", scheduledAt.Unix())
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
