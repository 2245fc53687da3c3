// Package metrics exposes refresh and session counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "duewatch"

// Cycle outcomes
const (
	OutcomeOK        = "ok"
	OutcomePartial   = "partial"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics owns a private registry so that several instances can coexist
// in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	cycles             *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	courseFailures     *prometheus.CounterVec
	missingAssignments prometheus.Gauge
	sessionTransitions *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Aggregation cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_cycle_duration_seconds",
			Help:      "Wall time of aggregation cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		courseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "course_fetch_failures_total",
			Help:      "Per-course assignment fetch failures.",
		}, []string{"course_id"}),
		missingAssignments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "missing_assignments",
			Help:      "Missing assignments in the latest snapshot.",
		}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.courseFailures,
		m.missingAssignments,
		m.sessionTransitions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCycle records one finished cycle
func (m *Metrics) ObserveCycle(outcome string, elapsed time.Duration) {
	m.cycles.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(elapsed.Seconds())
}

// CourseFailed counts a per-course fetch failure
func (m *Metrics) CourseFailed(courseID string) {
	m.courseFailures.WithLabelValues(courseID).Inc()
}

// SetMissing records the size of the latest missing list
func (m *Metrics) SetMissing(n int) {
	m.missingAssignments.Set(float64(n))
}

// SessionTransition counts a move into state
func (m *Metrics) SessionTransition(state string) {
	m.sessionTransitions.WithLabelValues(state).Inc()
}
