// Package channel provides an in-process event bus carrying trigger events
// from their source (scheduler tick or manual request) to the runner.
package channel

import (
	"context"
	"errors"
	"time"

	"github.com/Johnnenna2/weekly-news/internal/domain"
)

// ErrBufferFull is returned when an emit cannot be accepted within the
// configured timeout. A full buffer means the runner is badly behind; the
// event is dropped rather than blocking the trigger source forever.
var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink records bus metrics. Methods must be non-blocking.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	EmitError()
}

type EventBus struct {
	ch          chan domain.TriggerEvent
	emitTimeout time.Duration // 0 = block until ctx is done
	metrics     MetricsSink   // optional, nil = disabled
}

type Option func(*EventBus)

func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		b.emitTimeout = d
	}
}

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = sink
	}
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	bus := &EventBus{
		ch: make(chan domain.TriggerEvent, buffer),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

func (b *EventBus) Emit(ctx context.Context, event domain.TriggerEvent) error {
	if err := b.emit(ctx, event); err != nil {
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return err
	}
	if b.metrics != nil {
		b.metrics.BufferSizeUpdate(len(b.ch))
	}
	return nil
}

func (b *EventBus) emit(ctx context.Context, event domain.TriggerEvent) error {
	if b.emitTimeout > 0 {
		timer := time.NewTimer(b.emitTimeout)
		defer timer.Stop()

		select {
		case b.ch <- event:
			return nil
		case <-timer.C:
			return ErrBufferFull
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case b.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *EventBus) Channel() <-chan domain.TriggerEvent {
	return b.ch
}
