package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	labdojo "github.com/labdojo/labdojo-go"
	"github.com/labdojo/labdojo-go/metrics"
)

// Backend defines the contract for pluggable telemetry backends.
type Backend interface {
	FetchHealth(ctx context.Context) (*labdojo.Health, error)
	FetchCacheStats(ctx context.Context) (*labdojo.CacheStats, error)
	FetchGlobalLogout(ctx context.Context) (*labdojo.GlobalLogoutStatus, error)
	FetchAlerts(ctx context.Context) ([]labdojo.Alert, error)

	AcknowledgeAlert(ctx context.Context, alertID string) error
	ClearCache(ctx context.Context, cacheType string) error
	TriggerGlobalLogout(ctx context.Context) error
	ClearGlobalLogout(ctx context.Context) error
}

// Monitor implements labdojo.HealthMonitor over a Backend.
type Monitor struct {
	backend Backend
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.Mutex
	snapshot labdojo.HealthSnapshot
	analysis labdojo.HealthMetrics
	polled   bool
	stopPoll chan struct{} // nil when the poller is not running
	interval time.Duration
}

// compile-time check
var _ labdojo.HealthMonitor = (*Monitor)(nil)

// Option configures the Monitor.
type Option func(*Monitor)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics attaches Prometheus metrics; the derived score is
// exported as a gauge after every snapshot.
func WithMetrics(mm *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mm }
}

// WithPollInterval sets the auto-poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a health monitor with the given backend.
func New(backend Backend, opts ...Option) *Monitor {
	m := &Monitor{
		backend:  backend,
		logger:   slog.Default(),
		now:      time.Now,
		interval: labdojo.DefaultHealthPollInterval,
	}
	for _, o := range opts {
		o(m)
	}
	// Before the first poll the analysis reflects a fully absent
	// snapshot, not a perfect score.
	m.analysis = Analyze(m.snapshot)
	return m
}

// Snapshot fetches all telemetry, replacing the previous snapshot
// wholesale. An unreachable endpoint yields a nil field, folded into
// the score as degraded data, never an error from this method.
func (m *Monitor) Snapshot(ctx context.Context) (*labdojo.HealthSnapshot, error) {
	snap := labdojo.HealthSnapshot{}

	if h, err := m.backend.FetchHealth(ctx); err != nil {
		m.logger.Warn("health endpoint unavailable", "error", err)
	} else {
		snap.Health = h
	}
	if cs, err := m.backend.FetchCacheStats(ctx); err != nil {
		m.logger.Warn("cache statistics unavailable", "error", err)
	} else {
		snap.CacheStats = cs
	}
	if gl, err := m.backend.FetchGlobalLogout(ctx); err != nil {
		m.logger.Warn("global logout status unavailable", "error", err)
	} else {
		snap.GlobalLogout = gl
	}
	if alerts, err := m.backend.FetchAlerts(ctx); err != nil {
		m.logger.Warn("alerts unavailable", "error", err)
	} else {
		snap.Alerts = alerts
	}

	analysis := Analyze(snap)

	m.mu.Lock()
	m.snapshot = snap
	m.analysis = analysis
	m.polled = true
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetHealthScore(float64(analysis.HealthScore))
	}
	return &snap, nil
}

// Metrics returns the analysis of the most recent snapshot.
func (m *Monitor) Metrics() labdojo.HealthMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analysis
}

// AcknowledgeAlert marks one alert acknowledged. The local snapshot
// is updated on success; acknowledgement is one-way.
func (m *Monitor) AcknowledgeAlert(ctx context.Context, alertID string) bool {
	if err := m.backend.AcknowledgeAlert(ctx, alertID); err != nil {
		m.logger.Error("failed to acknowledge alert", "alert_id", alertID, "error", err)
		return false
	}

	m.mu.Lock()
	for i := range m.snapshot.Alerts {
		if m.snapshot.Alerts[i].ID == alertID {
			m.snapshot.Alerts[i].Acknowledged = true
		}
	}
	m.analysis = Analyze(m.snapshot)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetHealthScore(float64(m.Metrics().HealthScore))
	}
	return true
}

// AcknowledgeAll acknowledges every pending alert, returning false if
// any acknowledgement failed.
func (m *Monitor) AcknowledgeAll(ctx context.Context) bool {
	m.mu.Lock()
	pending := make([]string, 0, len(m.snapshot.Alerts))
	for _, alert := range m.snapshot.Alerts {
		if !alert.Acknowledged {
			pending = append(pending, alert.ID)
		}
	}
	m.mu.Unlock()

	ok := true
	for _, id := range pending {
		if !m.AcknowledgeAlert(ctx, id) {
			ok = false
		}
	}
	return ok
}

// UnacknowledgedCount counts pending alerts in the last snapshot.
func (m *Monitor) UnacknowledgedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, alert := range m.snapshot.Alerts {
		if !alert.Acknowledged {
			count++
		}
	}
	return count
}

// CacheHealthStatus buckets the last snapshot's cache hit rate.
func (m *Monitor) CacheHealthStatus() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return CacheStatus(m.snapshot.CacheStats)
}

// ClearCache asks the backend to drop one cache.
func (m *Monitor) ClearCache(ctx context.Context, cacheType string) bool {
	if err := m.backend.ClearCache(ctx, cacheType); err != nil {
		m.logger.Error("failed to clear cache", "cache_type", cacheType, "error", err)
		return false
	}
	return true
}

// TriggerGlobalLogout invalidates every user session platform-wide.
func (m *Monitor) TriggerGlobalLogout(ctx context.Context) bool {
	if err := m.backend.TriggerGlobalLogout(ctx); err != nil {
		m.logger.Error("failed to trigger global logout", "error", err)
		return false
	}
	return true
}

// ClearGlobalLogout lifts a platform-wide session invalidation.
func (m *Monitor) ClearGlobalLogout(ctx context.Context) bool {
	if err := m.backend.ClearGlobalLogout(ctx); err != nil {
		m.logger.Error("failed to clear global logout", "error", err)
		return false
	}
	return true
}

// report is the exported health report shape.
type report struct {
	Timestamp      time.Time                   `json:"timestamp"`
	SystemHealth   *labdojo.Health             `json:"system_health"`
	CacheStats     *labdojo.CacheStats         `json:"cache_statistics"`
	GlobalLogout   *labdojo.GlobalLogoutStatus `json:"global_logout_status"`
	Alerts         []labdojo.Alert             `json:"alerts"`
	HealthAnalysis labdojo.HealthMetrics       `json:"health_analysis"`
}

// ExportReport serializes the last snapshot and its analysis as
// indented JSON. Parsing the output reproduces the health_analysis
// fields exactly.
func (m *Monitor) ExportReport() (string, error) {
	m.mu.Lock()
	r := report{
		Timestamp:      m.now().UTC(),
		SystemHealth:   m.snapshot.Health,
		CacheStats:     m.snapshot.CacheStats,
		GlobalLogout:   m.snapshot.GlobalLogout,
		Alerts:         m.snapshot.Alerts,
		HealthAnalysis: m.analysis,
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("labdojo/health: export report: %w", err)
	}
	return string(data), nil
}

// StartPolling launches the background telemetry poller: one
// immediate snapshot, then one per interval. Overlapping polls are
// tolerated; the snapshot swap is atomic. Idempotent.
func (m *Monitor) StartPolling() {
	m.mu.Lock()
	if m.stopPoll != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	m.stopPoll = stop
	interval := m.interval
	m.mu.Unlock()

	go func() {
		m.poll()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.poll()
			case <-stop:
				return
			}
		}
	}()
}

// StopPolling cancels the poller. Idempotent.
func (m *Monitor) StopPolling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopPoll == nil {
		return
	}
	close(m.stopPoll)
	m.stopPoll = nil
}

// Close stops background polling.
func (m *Monitor) Close() error {
	m.StopPolling()
	return nil
}

func (m *Monitor) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := m.Snapshot(ctx); err != nil {
		m.logger.Error("health poll failed", "error", err)
	}
}
