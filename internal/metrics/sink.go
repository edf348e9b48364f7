package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable, implementations
// log warnings and continue.
type Sink interface {
	// Scheduler metrics
	TickCompleted(duration time.Duration)
	TriggerEmitted(kind string)

	// Runner metrics
	RunStarted(trigger string)
	RunCompleted(status, failure string, duration time.Duration)
	ProvisionCompleted(duration time.Duration, err error)
	ScriptCompleted(exitCode int, duration time.Duration)
	RunsInFlightIncr()
	RunsInFlightDecr()

	// Reconciler metrics
	OrphanedRunsUpdate(count int)

	// Event bus metrics
	BufferSizeUpdate(size int)
	EmitError()
}
