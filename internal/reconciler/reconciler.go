// Package reconciler closes out abandoned runs.
//
// A run is abandoned when it is still non-terminal long after it was
// created, typically because the process crashed mid-run. Abandoned runs
// are marked failed; they are never re-executed. The next opportunity after
// a crash is the next calendar match or a manual trigger.
package reconciler

import (
	"context"
	"log"
	"time"

	"github.com/Johnnenna2/weekly-news/internal/domain"
)

// Store defines the interface for finding and closing abandoned runs.
type Store interface {
	GetOrphanedRuns(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.Run, error)
	CompleteRun(ctx context.Context, run domain.Run) error
}

// MetricsSink records reconciler metrics. Methods must be non-blocking.
type MetricsSink interface {
	OrphanedRunsUpdate(count int)
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs.
	// Default: 5 minutes.
	Interval time.Duration

	// Threshold is the age after which a non-terminal run is considered
	// abandoned. Must comfortably exceed the longest plausible run.
	// Default: 2 hours.
	Threshold time.Duration

	// BatchSize is the maximum number of orphans to process per cycle.
	// Default: 50.
	BatchSize int
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		Threshold: 2 * time.Hour,
		BatchSize: 50,
	}
}

// Reconciler detects abandoned runs and marks them failed.
type Reconciler struct {
	config  Config
	store   Store
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

// New creates a new Reconciler.
func New(config Config, store Store) *Reconciler {
	return &Reconciler{
		config: config,
		store:  store,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink to the reconciler.
func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, threshold=%s, batch=%d)",
		r.config.Interval, r.config.Threshold, r.config.BatchSize)

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one reconciliation cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()
	threshold := now.Add(-r.config.Threshold)

	orphans, err := r.store.GetOrphanedRuns(ctx, threshold, r.config.BatchSize)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		log.Printf("reconciler: failed to fetch orphans: %v", err)
		return
	}

	if r.metrics != nil {
		r.metrics.OrphanedRunsUpdate(len(orphans))
	}

	if len(orphans) == 0 {
		// Nothing to do. Silent success.
		return
	}

	log.Printf("reconciler: found %d abandoned runs", len(orphans))

	closed := 0
	for _, run := range orphans {
		// Check context before each update to allow graceful shutdown
		if ctx.Err() != nil {
			log.Printf("reconciler: cycle interrupted, closed %d/%d orphans", closed, len(orphans))
			return
		}

		run.Status = domain.RunStatusFailed
		if run.Failure == domain.FailureNone {
			run.Failure = domain.FailureScript
		}
		run.Error = "run abandoned before completion"
		run.FinishedAt = now

		if err := r.store.CompleteRun(ctx, run); err != nil {
			// The run may have finished between the scan and this update.
			log.Printf("reconciler: failed to close run=%s: %v", run.ID, err)
			continue
		}

		log.Printf("reconciler: closed abandoned run=%s trigger=%s (age=%s)",
			run.ID, run.Trigger, now.Sub(run.CreatedAt).Round(time.Second))
		closed++
	}

	log.Printf("reconciler: cycle complete, closed=%d", closed)
}
