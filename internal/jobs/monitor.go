// Package jobs holds the daemon's background work. The monitor job
// snapshots the station on an interval and publishes the result to
// the cache for the API to serve.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/benchtop-io/benchd/internal/cache"
	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/metrics"
	"github.com/benchtop-io/benchd/station"
)

// SnapshotKey is the cache key the monitor publishes under; the API
// monitor endpoint reads the same key.
const SnapshotKey = "station:snapshot"

// Status is the monitor's view of its own progress.
type Status struct {
	LastRun         time.Time `json:"last_run"`
	LastError       string    `json:"last_error,omitempty"`
	Runs            int64     `json:"runs"`
	InstrumentsSeen int       `json:"instruments_seen"`
}

// Snapshotter is the station surface the monitor needs.
type Snapshotter interface {
	Snapshot(ctx context.Context) (station.Snapshot, error)
}

// Notifier receives monitor alerts. notify/slack satisfies it.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Monitor periodically snapshots the station into the cache.
type Monitor struct {
	station  Snapshotter
	cache    cache.Cache
	interval time.Duration
	ttl      time.Duration
	notifier Notifier

	mu      sync.Mutex
	status  Status
	failing bool
}

// Option adjusts a Monitor.
type Option func(*Monitor)

// WithNotifier alerts when snapshots start failing and again when
// they recover. Alerts fire on the transition, not on every pass.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// NewMonitor builds a monitor that snapshots every interval and
// caches the marshaled result for ttl.
func NewMonitor(st Snapshotter, c cache.Cache, interval, ttl time.Duration, opts ...Option) *Monitor {
	m := &Monitor{station: st, cache: c, interval: interval, ttl: ttl}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns a copy of the monitor's progress.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastSnapshot reports the last successful pass and the last error,
// shaped for the readiness checker.
func (m *Monitor) LastSnapshot() (time.Time, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.LastRun, m.status.LastError
}

// fail records the error and reports whether this pass is the first
// failure after a healthy stretch.
func (m *Monitor) fail(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	first := !m.failing
	m.failing = true
	m.status.LastError = err.Error()
	return first
}

// alert delivers a notification if one is wired; delivery trouble is
// logged, never propagated.
func (m *Monitor) alert(ctx context.Context, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, text); err != nil {
		logger := log.WithComponentFromContext(ctx, "monitor")
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "monitor.alert_failed").
			Msg("alert delivery failed")
	}
}

// RunOnce performs a single snapshot pass: read the station, marshal,
// cache. Failures are recorded in Status and returned.
func (m *Monitor) RunOnce(ctx context.Context) error {
	ctx = log.ContextWithJobID(ctx, uuid.NewString())
	logger := log.WithComponentFromContext(ctx, "monitor")

	start := time.Now()
	snap, err := m.station.Snapshot(ctx)
	duration := time.Since(start)
	metrics.ObserveMonitorSnapshot(err, duration)
	if err != nil {
		if m.fail(err) {
			m.alert(ctx, fmt.Sprintf("bench monitor: station snapshot failing: %v", err))
		}
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "monitor.snapshot_failed").
			Dur("duration", duration).
			Msg("station snapshot failed")
		return fmt.Errorf("station snapshot: %w", err)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		if m.fail(err) {
			m.alert(ctx, fmt.Sprintf("bench monitor: station snapshot failing: %v", err))
		}
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	m.cache.Set(SnapshotKey, payload, m.ttl)

	m.mu.Lock()
	recovered := m.failing
	m.failing = false
	m.status.LastRun = time.Now()
	m.status.LastError = ""
	m.status.Runs++
	m.status.InstrumentsSeen = len(snap.Instruments)
	m.mu.Unlock()

	if recovered {
		m.alert(ctx, fmt.Sprintf("bench monitor: station snapshot recovered, %d instruments", len(snap.Instruments)))
	}

	logger.Debug().
		Str(log.FieldEvent, "monitor.snapshot").
		Int("instruments", len(snap.Instruments)).
		Dur("duration", duration).
		Msg("station snapshot cached")
	return nil
}

// Run keeps snapshotting until ctx is canceled. A failed pass is
// recorded and retried on the next tick; only cancellation stops the
// loop, and that is a clean stop, not an error.
func (m *Monitor) Run(ctx context.Context) error {
	if m.station == nil {
		return fmt.Errorf("monitor needs a station")
	}
	if m.interval <= 0 {
		return fmt.Errorf("monitor interval must be positive, got %s", m.interval)
	}

	logger := log.WithComponentFromContext(ctx, "monitor")
	logger.Info().
		Str(log.FieldEvent, "monitor.start").
		Dur("interval", m.interval).
		Msg("station monitor started")

	// Warm the cache before the first tick.
	_ = m.RunOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Str(log.FieldEvent, "monitor.stop").Msg("station monitor stopped")
			return nil
		case <-ticker.C:
			_ = m.RunOnce(ctx)
		}
	}
}
