// Package metrics provides Prometheus-based metrics recording for
// workflow runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records workflow metrics to Prometheus.
type Recorder struct {
	stageDuration    *prometheus.HistogramVec
	escalationsTotal *prometheus.CounterVec
	retriesTotal     *prometheus.CounterVec
	outcomesTotal    *prometheus.CounterVec
	testFixAttempts  prometheus.Histogram
}

// NewRecorder creates a recorder registered on the default registry.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.DefaultRegisterer)
}

// NewRecorderWith creates a recorder on a specific registerer. Tests
// use this to avoid duplicate registration on the global registry.
func NewRecorderWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_stage_duration_seconds",
				Help:    "Duration of workflow stages in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
			},
			[]string{"stage"},
		),
		escalationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_escalations_total",
				Help: "Total number of human escalations by workflow step",
			},
			[]string{"step"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_retries_total",
				Help: "Total number of retried operations",
			},
			[]string{"operation"},
		),
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_outcomes_total",
				Help: "Total number of completed workflow runs by outcome",
			},
			[]string{"outcome"},
		),
		testFixAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "workflow_test_fix_attempts",
				Help:    "Number of fix attempts needed before tests passed",
				Buckets: prometheus.LinearBuckets(0, 1, 6),
			},
		),
	}
}

// ObserveStage records how long a workflow stage took.
func (r *Recorder) ObserveStage(stage string, duration time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncEscalation counts a human escalation raised at step.
func (r *Recorder) IncEscalation(step string) {
	r.escalationsTotal.WithLabelValues(step).Inc()
}

// IncRetry counts a retried operation.
func (r *Recorder) IncRetry(operation string) {
	r.retriesTotal.WithLabelValues(operation).Inc()
}

// ObserveOutcome counts a finished run (completed, failed, escalated).
func (r *Recorder) ObserveOutcome(outcome string) {
	r.outcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveTestFixAttempts records how many fix iterations a story needed.
func (r *Recorder) ObserveTestFixAttempts(attempts int) {
	r.testFixAttempts.Observe(float64(attempts))
}
