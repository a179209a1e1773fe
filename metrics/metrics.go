// Package metrics provides Prometheus metrics for LabDojo management
// operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the SDK.
type Metrics struct {
	enabled bool

	// Session metrics
	loginsTotal         *prometheus.CounterVec
	loginFailuresTotal  *prometheus.CounterVec
	refreshTotal        *prometheus.CounterVec

	// Authorization metrics
	authzDecisionsTotal *prometheus.CounterVec
	hierarchyFetches    *prometheus.CounterVec

	// Bulk operation metrics
	bulkSubmissionsTotal *prometheus.CounterVec
	bulkItemsTotal       *prometheus.CounterVec
	bulkDuration         prometheus.Histogram

	// Health metrics
	healthScore prometheus.Gauge
}

// New creates and registers Prometheus metrics.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	m := &Metrics{enabled: enabled}

	if !enabled {
		return m
	}

	m.loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labdojo_logins_total",
		Help: "Total successful login callbacks",
	}, []string{"provider"})

	m.loginFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labdojo_login_failures_total",
		Help: "Total failed login callbacks",
	}, []string{"reason"})

	m.refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labdojo_token_refreshes_total",
		Help: "Total token refresh attempts",
	}, []string{"result"})

	m.authzDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labdojo_authz_decisions_total",
		Help: "Total authorization gate decisions",
	}, []string{"decision"})

	m.hierarchyFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labdojo_hierarchy_fetches_total",
		Help: "Role hierarchy lookups by cache outcome",
	}, []string{"outcome"})

	m.bulkSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labdojo_bulk_submissions_total",
		Help: "Total bulk operation submissions",
	}, []string{"operation"})

	m.bulkItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labdojo_bulk_items_total",
		Help: "Per-item bulk operation outcomes",
	}, []string{"operation", "result"})

	m.bulkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "labdojo_bulk_duration_seconds",
		Help:    "Bulk operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.healthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "labdojo_health_score",
		Help: "Derived system health score (0-100)",
	})

	return m
}

// RecordLogin records a successful login callback.
func (m *Metrics) RecordLogin(provider string) {
	if !m.enabled {
		return
	}
	m.loginsTotal.WithLabelValues(provider).Inc()
}

// RecordLoginFailure records a failed login callback.
func (m *Metrics) RecordLoginFailure(reason string) {
	if !m.enabled {
		return
	}
	m.loginFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRefresh records a token refresh attempt.
func (m *Metrics) RecordRefresh(success bool) {
	if !m.enabled {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

// RecordAuthzDecision records an authorization gate decision.
func (m *Metrics) RecordAuthzDecision(allowed bool) {
	if !m.enabled {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.authzDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordHierarchyFetch records a role hierarchy lookup outcome
// ("hit" for cached, "miss" for a backend fetch).
func (m *Metrics) RecordHierarchyFetch(outcome string) {
	if !m.enabled {
		return
	}
	m.hierarchyFetches.WithLabelValues(outcome).Inc()
}

// RecordBulkSubmission records one accepted bulk submission.
func (m *Metrics) RecordBulkSubmission(operation string) {
	if !m.enabled {
		return
	}
	m.bulkSubmissionsTotal.WithLabelValues(operation).Inc()
}

// RecordBulkItem records a per-item bulk outcome.
func (m *Metrics) RecordBulkItem(operation, result string) {
	if !m.enabled {
		return
	}
	m.bulkItemsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveBulkDuration records the wall time of a completed bulk run.
func (m *Metrics) ObserveBulkDuration(seconds float64) {
	if !m.enabled {
		return
	}
	m.bulkDuration.Observe(seconds)
}

// SetHealthScore sets the current derived health score.
func (m *Metrics) SetHealthScore(score float64) {
	if !m.enabled {
		return
	}
	m.healthScore.Set(score)
}
