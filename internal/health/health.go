// Package health answers liveness and readiness probes with
// per-component detail: database, station, snapshot cache, monitor
// recency. Docker HEALTHCHECK and Kubernetes probes both work
// against it.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/benchtop-io/benchd/internal/log"
)

// Status grades one component or the whole daemon.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the liveness reply.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the readiness reply.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one probeable component.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs registered checkers and aggregates their results.
// Register all checkers during startup; registration is not safe
// concurrently with serving.
type Manager struct {
	version  string
	checkers []Checker
}

// NewManager builds a manager reporting the given daemon version.
func NewManager(version string) *Manager {
	return &Manager{version: version}
}

// RegisterChecker adds a component to both probes.
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health is the liveness view: the process is alive, and verbose
// callers also see component detail.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.runChecks(ctx)
	}
	return resp
}

// Ready reports whether the daemon should receive traffic. Any
// unhealthy component makes it not ready; degraded components only
// downgrade the status.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}
	resp.Checks, resp.Status = m.runChecks(ctx)
	resp.Ready = resp.Status != StatusUnhealthy
	return resp
}

func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	checks := make(map[string]CheckResult, len(m.checkers))
	status := StatusHealthy
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		checks[checker.Name()] = result
		switch result.Status {
		case StatusUnhealthy:
			status = StatusUnhealthy
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return checks, status
}

// ServeHealth handles the liveness endpoint. Always 200: a reply
// proves the process is alive.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "health.encode_error").Msg("failed to encode health response")
	}
}

// ServeReady handles the readiness endpoint: 200 when ready, 503
// otherwise.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str(log.FieldEvent, "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// DatabaseChecker pings the run store. A store that cannot answer
// makes the daemon not ready: measurements could not be recorded.
type DatabaseChecker struct {
	ping func(ctx context.Context) error
}

// NewDatabaseChecker wraps the store's ping.
func NewDatabaseChecker(ping func(ctx context.Context) error) *DatabaseChecker {
	return &DatabaseChecker{ping: ping}
}

func (c *DatabaseChecker) Name() string { return "database" }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusUnhealthy, Error: "store not configured"}
	}
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "store answers"}
}

// StationChecker reports how many instruments are open. An empty
// bench is degraded, not unhealthy: the API still serves runs.
type StationChecker struct {
	names func() []string
}

// NewStationChecker wraps the station's name listing.
func NewStationChecker(names func() []string) *StationChecker {
	return &StationChecker{names: names}
}

func (c *StationChecker) Name() string { return "station" }

func (c *StationChecker) Check(context.Context) CheckResult {
	if c.names == nil {
		return CheckResult{Status: StatusDegraded, Message: "station not loaded"}
	}
	n := len(c.names())
	if n == 0 {
		return CheckResult{Status: StatusDegraded, Message: "no instruments open"}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d instruments open", n),
	}
}

// CacheChecker pings cache backends that support it. A dead cache is
// degraded, not unhealthy: the monitor falls back to live snapshots.
type CacheChecker struct {
	pinger interface {
		HealthCheck(ctx context.Context) error
	}
}

// NewCacheChecker inspects the cache for a health-check capability.
// In-process backends have none and always report healthy.
func NewCacheChecker(c any) *CacheChecker {
	pinger, _ := c.(interface {
		HealthCheck(ctx context.Context) error
	})
	return &CacheChecker{pinger: pinger}
}

func (c *CacheChecker) Name() string { return "cache" }

func (c *CacheChecker) Check(ctx context.Context) CheckResult {
	if c.pinger == nil {
		return CheckResult{Status: StatusHealthy, Message: "in-process"}
	}
	if err := c.pinger.HealthCheck(ctx); err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "backend answers"}
}

// SnapshotChecker watches monitor recency. It never makes the daemon
// unhealthy; a stalled monitor degrades it.
type SnapshotChecker struct {
	last   func() (time.Time, string)
	maxAge time.Duration
}

// NewSnapshotChecker wraps the monitor job's last-pass state. maxAge
// is how stale a snapshot may get before the daemon degrades.
func NewSnapshotChecker(last func() (time.Time, string), maxAge time.Duration) *SnapshotChecker {
	return &SnapshotChecker{last: last, maxAge: maxAge}
}

func (c *SnapshotChecker) Name() string { return "monitor" }

func (c *SnapshotChecker) Check(context.Context) CheckResult {
	lastRun, lastError := c.last()
	if lastError != "" {
		return CheckResult{Status: StatusDegraded, Error: lastError, Message: "last snapshot failed"}
	}
	if lastRun.IsZero() {
		return CheckResult{Status: StatusDegraded, Message: "no snapshot yet"}
	}
	if age := time.Since(lastRun); age > c.maxAge {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last snapshot %s ago", age.Round(time.Second)),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "snapshots current"}
}

// InventoryChecker watches the station inventory file. A missing
// file degrades the daemon: the running station keeps working but
// reloads would fail.
type InventoryChecker struct {
	path string
}

// NewInventoryChecker watches path; an empty path reports healthy.
func NewInventoryChecker(path string) *InventoryChecker {
	return &InventoryChecker{path: path}
}

func (c *InventoryChecker) Name() string { return "inventory" }

func (c *InventoryChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured"}
	}
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusDegraded, Error: "inventory file missing", Message: c.path}
		}
		return CheckResult{Status: StatusDegraded, Error: err.Error()}
	}
	if info.IsDir() {
		return CheckResult{Status: StatusDegraded, Error: "expected file, got directory"}
	}
	return CheckResult{Status: StatusHealthy, Message: "inventory present"}
}
