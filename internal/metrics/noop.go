package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TickCompleted(duration time.Duration)                        {}
func (n *NoopSink) TriggerEmitted(kind string)                                  {}
func (n *NoopSink) RunStarted(trigger string)                                   {}
func (n *NoopSink) RunCompleted(status, failure string, duration time.Duration) {}
func (n *NoopSink) ProvisionCompleted(duration time.Duration, err error)        {}
func (n *NoopSink) ScriptCompleted(exitCode int, duration time.Duration)        {}
func (n *NoopSink) RunsInFlightIncr()                                           {}
func (n *NoopSink) RunsInFlightDecr()                                           {}
func (n *NoopSink) OrphanedRunsUpdate(count int)                                {}
func (n *NoopSink) BufferSizeUpdate(size int)                                   {}
func (n *NoopSink) EmitError()                                                  {}
