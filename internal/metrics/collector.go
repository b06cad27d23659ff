package metrics

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"foley/internal/logging"
	"foley/internal/resilience"
)

const namespace = "foley"

// Collector implements resilience.Observer and tracks stage timings and
// label outcomes for one process.
type Collector struct {
	registry *prometheus.Registry

	calls         *prometheus.CounterVec
	callAttempts  *prometheus.HistogramVec
	callDuration  *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	labels        *prometheus.CounterVec
	runs          *prometheus.CounterVec

	logger *slog.Logger
}

// NewCollector builds a collector backed by its own registry.
func NewCollector(logger *slog.Logger) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		logger:   logging.NewComponentLogger(logger, "metrics"),
	}
	c.calls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "service_calls_total",
		Help:      "Resilient service calls by policy and outcome",
	}, []string{"policy", "outcome"})
	c.callAttempts = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "service_call_attempts",
		Help:      "Attempts made per resilient service call",
		Buckets:   []float64{1, 2, 3, 5, 8, 13},
	}, []string{"policy"})
	c.callDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "service_call_duration_seconds",
		Help:      "Wall time per resilient service call including backoff",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1200},
	}, []string{"policy"})
	c.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration",
		Buckets:   []float64{0.01, 0.1, 1, 5, 30, 120, 600},
	}, []string{"stage"})
	c.labels = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "labels_total",
		Help:      "Labels by final status",
	}, []string{"status"})
	c.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Pipeline runs by result",
	}, []string{"result"})

	c.registry.MustRegister(c.calls, c.callAttempts, c.callDuration, c.stageDuration, c.labels, c.runs)
	return c
}

// ObserveCall records one resilient call.
func (c *Collector) ObserveCall(policy string, outcome resilience.Outcome, attempts int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.calls.WithLabelValues(policy, string(outcome)).Inc()
	c.callAttempts.WithLabelValues(policy).Observe(float64(attempts))
	c.callDuration.WithLabelValues(policy).Observe(elapsed.Seconds())
}

// ObserveStage records how long a pipeline stage took.
func (c *Collector) ObserveStage(stage string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveLabel counts a label reaching a final status.
func (c *Collector) ObserveLabel(status string) {
	if c == nil {
		return
	}
	c.labels.WithLabelValues(status).Inc()
}

// ObserveRun counts a finished run.
func (c *Collector) ObserveRun(result string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry for tests and exporters.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics: ensure dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	c.logger.Debug("metrics written", logging.String("path", path))
	return nil
}
