package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Scheduler metrics
	ticksTotal    prometheus.Counter
	tickDuration  prometheus.Histogram
	triggersTotal *prometheus.CounterVec

	// Runner metrics
	runsStartedTotal   *prometheus.CounterVec
	runsCompletedTotal *prometheus.CounterVec
	runDuration        prometheus.Histogram
	provisionDuration  prometheus.Histogram
	provisionErrors    prometheus.Counter
	scriptDuration     prometheus.Histogram
	scriptExitsTotal   *prometheus.CounterVec
	runsInFlight       prometheus.Gauge

	// Reconciler metrics
	orphanedRuns prometheus.Gauge

	// Event bus metrics
	busBufferSize prometheus.Gauge
	busEmitErrors prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// Metrics that fail to register are logged and left unexported; the sink
// itself stays functional.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initSchedulerMetrics(reg)
	s.initRunnerMetrics(reg)
	s.initReconcilerMetrics(reg)
	s.initBusMetrics(reg)
	return s
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weeklynews_scheduler_ticks_total",
		Help: "Total number of scheduler ticks processed.",
	})
	s.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "weeklynews_scheduler_tick_duration_seconds",
		Help:    "Duration of each scheduler tick in seconds.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	s.triggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weeklynews_triggers_total",
		Help: "Total number of trigger events emitted.",
	}, []string{"kind"})

	s.register(reg, s.ticksTotal, "weeklynews_scheduler_ticks_total")
	s.register(reg, s.tickDuration, "weeklynews_scheduler_tick_duration_seconds")
	s.register(reg, s.triggersTotal, "weeklynews_triggers_total")
}

func (s *PrometheusSink) initRunnerMetrics(reg prometheus.Registerer) {
	s.runsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weeklynews_runs_started_total",
		Help: "Total number of runs started.",
	}, []string{"trigger"})

	s.runsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weeklynews_runs_completed_total",
		Help: "Total number of completed runs by terminal status and failure class.",
	}, []string{"status", "failure"})

	s.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "weeklynews_run_duration_seconds",
		Help:    "Total run duration in seconds, provisioning included.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	s.provisionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "weeklynews_provision_duration_seconds",
		Help:    "Dependency install duration in seconds.",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	})

	s.provisionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weeklynews_provision_errors_total",
		Help: "Total number of failed provisioning attempts.",
	})

	s.scriptDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "weeklynews_script_duration_seconds",
		Help:    "Script execution duration in seconds.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	s.scriptExitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "weeklynews_script_exits_total",
		Help: "Total number of script exits by exit code.",
	}, []string{"exit_code"})

	s.runsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weeklynews_runs_in_flight",
		Help: "Number of runs currently executing.",
	})

	s.register(reg, s.runsStartedTotal, "weeklynews_runs_started_total")
	s.register(reg, s.runsCompletedTotal, "weeklynews_runs_completed_total")
	s.register(reg, s.runDuration, "weeklynews_run_duration_seconds")
	s.register(reg, s.provisionDuration, "weeklynews_provision_duration_seconds")
	s.register(reg, s.provisionErrors, "weeklynews_provision_errors_total")
	s.register(reg, s.scriptDuration, "weeklynews_script_duration_seconds")
	s.register(reg, s.scriptExitsTotal, "weeklynews_script_exits_total")
	s.register(reg, s.runsInFlight, "weeklynews_runs_in_flight")
}

func (s *PrometheusSink) initReconcilerMetrics(reg prometheus.Registerer) {
	s.orphanedRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weeklynews_orphaned_runs",
		Help: "Number of abandoned runs found by the last reconcile pass.",
	})

	s.register(reg, s.orphanedRuns, "weeklynews_orphaned_runs")
}

func (s *PrometheusSink) initBusMetrics(reg prometheus.Registerer) {
	s.busBufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weeklynews_eventbus_buffer_size",
		Help: "Number of trigger events currently buffered on the bus.",
	})
	s.busEmitErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weeklynews_eventbus_emit_errors_total",
		Help: "Total number of trigger events the bus refused or dropped.",
	})

	s.register(reg, s.busBufferSize, "weeklynews_eventbus_buffer_size")
	s.register(reg, s.busEmitErrors, "weeklynews_eventbus_emit_errors_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Scheduler metrics implementation

func (s *PrometheusSink) TickCompleted(duration time.Duration) {
	s.ticksTotal.Inc()
	s.tickDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) TriggerEmitted(kind string) {
	s.triggersTotal.WithLabelValues(kind).Inc()
}

// Runner metrics implementation

func (s *PrometheusSink) RunStarted(trigger string) {
	s.runsStartedTotal.WithLabelValues(trigger).Inc()
}

func (s *PrometheusSink) RunCompleted(status, failure string, duration time.Duration) {
	if failure == "" {
		failure = "none"
	}
	s.runsCompletedTotal.WithLabelValues(status, failure).Inc()
	s.runDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) ProvisionCompleted(duration time.Duration, err error) {
	s.provisionDuration.Observe(duration.Seconds())
	if err != nil {
		s.provisionErrors.Inc()
	}
}

func (s *PrometheusSink) ScriptCompleted(exitCode int, duration time.Duration) {
	s.scriptExitsTotal.WithLabelValues(strconv.Itoa(exitCode)).Inc()
	s.scriptDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) RunsInFlightIncr() {
	s.runsInFlight.Inc()
}

func (s *PrometheusSink) RunsInFlightDecr() {
	s.runsInFlight.Dec()
}

// Reconciler metrics implementation

func (s *PrometheusSink) OrphanedRunsUpdate(count int) {
	s.orphanedRuns.Set(float64(count))
}

// Event bus metrics implementation

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.busBufferSize.Set(float64(size))
}

func (s *PrometheusSink) EmitError() {
	s.busEmitErrors.Inc()
}
