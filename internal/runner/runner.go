// Package runner drives the run state machine:
//
//	pending -> provisioning -> executing -> succeeded|failed
//
// Each trigger event produces exactly one run. A run never retries and no
// state carries over between runs; the next opportunity after a failure is
// the next calendar match or another manual trigger.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Johnnenna2/weekly-news/internal/domain"
	"github.com/Johnnenna2/weekly-news/internal/provision"
	"github.com/Johnnenna2/weekly-news/internal/script"
)

// ErrStatusTransitionDenied is returned by stores when a status update would
// regress from a terminal state (succeeded/failed).
var ErrStatusTransitionDenied = errors.New("status transition denied: run already in terminal state")

type Store interface {
	// UpdateRunStatus records an intermediate transition. Implementations
	// MUST reject transitions out of terminal states with
	// ErrStatusTransitionDenied.
	UpdateRunStatus(ctx context.Context, run domain.Run) error

	// CompleteRun records the terminal state of a run, including failure
	// classification and exit code. Same terminal-state guard applies.
	CompleteRun(ctx context.Context, run domain.Run) error
}

// AnalyticsSink records run outcomes as a best-effort side effect.
type AnalyticsSink interface {
	Record(ctx context.Context, run domain.Run)
}

// MetricsSink defines the interface for recording runner metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	RunStarted(trigger string)
	RunCompleted(status, failure string, duration time.Duration)
	ProvisionCompleted(duration time.Duration, err error)
	ScriptCompleted(exitCode int, duration time.Duration)
	RunsInFlightIncr()
	RunsInFlightDecr()
}

// DefaultDrainTimeout is the maximum time to wait for buffered trigger
// events during shutdown.
const DefaultDrainTimeout = 30 * time.Second

type Runner struct {
	creds     domain.Credentials
	prov      provision.Provisioner
	script    script.Runner
	store     Store
	analytics AnalyticsSink // optional, nil = disabled
	metrics   MetricsSink   // optional, nil = disabled
	clock     func() time.Time
	drain     time.Duration
}

func New(creds domain.Credentials, prov provision.Provisioner, scr script.Runner, store Store) *Runner {
	return &Runner{
		creds:  creds,
		prov:   prov,
		script: scr,
		store:  store,
		clock:  time.Now,
		drain:  DefaultDrainTimeout,
	}
}

func (r *Runner) WithAnalytics(sink AnalyticsSink) *Runner {
	r.analytics = sink
	return r
}

// WithMetrics attaches a metrics sink to the runner.
func (r *Runner) WithMetrics(sink MetricsSink) *Runner {
	r.metrics = sink
	return r
}

func (r *Runner) WithDrainTimeout(d time.Duration) *Runner {
	if d > 0 {
		r.drain = d
	}
	return r
}

// Run processes trigger events from the channel until ctx is cancelled,
// then drains remaining buffered events with a timeout. Consuming from a
// single goroutine serializes runs: at most one is in flight per process.
func (r *Runner) Run(ctx context.Context, ch <-chan domain.TriggerEvent) {
	for {
		select {
		case <-ctx.Done():
			r.drainEvents(ch)
			return
		case event := <-ch:
			if _, err := r.Execute(ctx, event); err != nil {
				log.Printf("runner: run %s: %v", event.RunID, err)
			}
		}
	}
}

// drainEvents processes remaining buffered events after the shutdown signal.
// Uses a background context since the main context is already cancelled.
func (r *Runner) drainEvents(ch <-chan domain.TriggerEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), r.drain)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("runner: drain timeout, processed %d events", count)
			}
			return
		case event, ok := <-ch:
			if !ok {
				log.Printf("runner: drain complete, processed %d events", count)
				return
			}
			if _, err := r.Execute(drainCtx, event); err != nil {
				log.Printf("runner: drain error: %v", err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("runner: drain complete, processed %d events", count)
			}
			return
		}
	}
}

// Execute performs one complete run for the given trigger event. The run
// record is assumed to exist already (inserted by whichever trigger source
// emitted the event). The returned run carries the terminal status; err is
// the classified failure, if any.
func (r *Runner) Execute(ctx context.Context, event domain.TriggerEvent) (domain.Run, error) {
	if r.metrics != nil {
		r.metrics.RunStarted(string(event.Kind))
		r.metrics.RunsInFlightIncr()
		defer r.metrics.RunsInFlightDecr()
	}

	run := domain.Run{
		ID:          event.RunID,
		Trigger:     event.Kind,
		ScheduledAt: event.ScheduledAt,
		Status:      domain.RunStatusPending,
		ExitCode:    -1,
		StartedAt:   r.clock().UTC(),
		CreatedAt:   event.CreatedAt,
	}

	log.Printf("runner: run %s started (trigger=%s)", run.ID, run.Trigger)

	// Credentials are checked before any external call; the script must
	// never start with an incomplete environment.
	if err := r.creds.Validate(); err != nil {
		return r.fail(ctx, run, err)
	}

	run.Status = domain.RunStatusProvisioning
	if err := r.transition(ctx, run); err != nil {
		return run, err
	}

	provStart := r.clock()
	provErr := r.prov.Provision(ctx)
	if r.metrics != nil {
		r.metrics.ProvisionCompleted(r.clock().Sub(provStart), provErr)
	}
	if provErr != nil {
		return r.fail(ctx, run, &domain.Failure{Kind: domain.FailureSetup, Err: provErr})
	}

	run.Status = domain.RunStatusExecuting
	if err := r.transition(ctx, run); err != nil {
		return run, err
	}

	scriptStart := r.clock()
	code, scriptErr := r.script.Run(ctx, r.creds.Env())
	if r.metrics != nil {
		r.metrics.ScriptCompleted(code, r.clock().Sub(scriptStart))
	}

	run.ExitCode = code
	if scriptErr != nil {
		return r.fail(ctx, run, &domain.Failure{Kind: domain.FailureScript, Err: scriptErr})
	}
	if code != 0 {
		return r.fail(ctx, run, &domain.Failure{
			Kind: domain.FailureScript,
			Err:  fmt.Errorf("script exited with status %d", code),
		})
	}

	run.Status = domain.RunStatusSucceeded
	run.FinishedAt = r.clock().UTC()
	r.complete(ctx, &run)

	log.Printf("runner: run %s succeeded in %s", run.ID, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	return run, nil
}

// fail records the terminal failed state for the run and returns the
// classified error.
func (r *Runner) fail(ctx context.Context, run domain.Run, cause error) (domain.Run, error) {
	run.Status = domain.RunStatusFailed
	run.Failure = domain.FailureKindOf(cause)
	run.Error = cause.Error()
	run.FinishedAt = r.clock().UTC()
	r.complete(ctx, &run)

	log.Printf("runner: run %s failed (%s): %v", run.ID, run.Failure, cause)
	return run, cause
}

func (r *Runner) transition(ctx context.Context, run domain.Run) error {
	if err := r.store.UpdateRunStatus(ctx, run); err != nil {
		if errors.Is(err, ErrStatusTransitionDenied) {
			// Run already terminal (likely reprocessed after a crash).
			log.Printf("runner: run %s already terminal, skipping transition to %s", run.ID, run.Status)
			return err
		}
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

func (r *Runner) complete(ctx context.Context, run *domain.Run) {
	if err := r.store.CompleteRun(ctx, *run); err != nil {
		if errors.Is(err, ErrStatusTransitionDenied) {
			log.Printf("runner: run %s already terminal, skipping completion", run.ID)
		} else {
			log.Printf("runner: failed to record completion of run %s: %v", run.ID, err)
		}
	}

	if r.analytics != nil {
		r.analytics.Record(ctx, *run)
	}
	if r.metrics != nil {
		r.metrics.RunCompleted(string(run.Status), string(run.Failure), run.FinishedAt.Sub(run.StartedAt))
	}
}
