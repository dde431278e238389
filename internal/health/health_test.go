package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtop-io/benchd/config"
	"github.com/benchtop-io/benchd/internal/health"
)

type stubChecker struct {
	name   string
	result health.CheckResult
}

func (c stubChecker) Name() string                             { return c.name }
func (c stubChecker) Check(context.Context) health.CheckResult { return c.result }

func TestManagerReadyAggregates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tests := []struct {
		name       string
		checks     []health.CheckResult
		wantReady  bool
		wantStatus health.Status
	}{
		{
			name:       "no_checkers",
			wantReady:  true,
			wantStatus: health.StatusHealthy,
		},
		{
			name: "all_healthy",
			checks: []health.CheckResult{
				{Status: health.StatusHealthy},
				{Status: health.StatusHealthy},
			},
			wantReady:  true,
			wantStatus: health.StatusHealthy,
		},
		{
			name: "degraded_stays_ready",
			checks: []health.CheckResult{
				{Status: health.StatusHealthy},
				{Status: health.StatusDegraded, Message: "no instruments open"},
			},
			wantReady:  true,
			wantStatus: health.StatusDegraded,
		},
		{
			name: "unhealthy_blocks_traffic",
			checks: []health.CheckResult{
				{Status: health.StatusDegraded},
				{Status: health.StatusUnhealthy, Error: "store gone"},
			},
			wantReady:  false,
			wantStatus: health.StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := health.NewManager("test")
			for i, result := range tt.checks {
				m.RegisterChecker(stubChecker{name: fmt.Sprintf("check%d", i), result: result})
			}

			resp := m.Ready(ctx)
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checks))
		})
	}
}

func TestManagerHealthVerbose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m := health.NewManager("1.2.3")
	m.RegisterChecker(stubChecker{name: "database", result: health.CheckResult{Status: health.StatusUnhealthy}})

	quiet := m.Health(ctx, false)
	assert.Equal(t, health.StatusHealthy, quiet.Status, "liveness without detail only proves the process runs")
	assert.Empty(t, quiet.Checks)
	assert.Equal(t, "1.2.3", quiet.Version)

	verbose := m.Health(ctx, true)
	assert.Equal(t, health.StatusUnhealthy, verbose.Status)
	assert.Contains(t, verbose.Checks, "database")
}

func TestServeEndpoints(t *testing.T) {
	m := health.NewManager("test")
	m.RegisterChecker(stubChecker{name: "database", result: health.CheckResult{Status: health.StatusUnhealthy, Error: "store gone"}})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "liveness is always 200")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var healthResp health.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &healthResp))
	assert.Equal(t, health.StatusUnhealthy, healthResp.Status)

	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var readyResp health.ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readyResp))
	assert.False(t, readyResp.Ready)
	assert.Equal(t, "store gone", readyResp.Checks["database"].Error)
}

func TestDatabaseChecker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ok := health.NewDatabaseChecker(func(context.Context) error { return nil })
	assert.Equal(t, health.StatusHealthy, ok.Check(ctx).Status)

	down := health.NewDatabaseChecker(func(context.Context) error { return errors.New("database is locked") })
	result := down.Check(ctx)
	assert.Equal(t, health.StatusUnhealthy, result.Status)
	assert.Equal(t, "database is locked", result.Error)

	missing := health.NewDatabaseChecker(nil)
	assert.Equal(t, health.StatusUnhealthy, missing.Check(ctx).Status)
}

func TestStationChecker(t *testing.T) {
	ctx := context.Background()

	open := health.NewStationChecker(func() []string { return []string{"smu", "lockin"} })
	result := open.Check(ctx)
	assert.Equal(t, health.StatusHealthy, result.Status)
	assert.Equal(t, "2 instruments open", result.Message)

	empty := health.NewStationChecker(func() []string { return nil })
	assert.Equal(t, health.StatusDegraded, empty.Check(ctx).Status)

	unloaded := health.NewStationChecker(nil)
	assert.Equal(t, health.StatusDegraded, unloaded.Check(ctx).Status)
}

type failingPinger struct{}

func (failingPinger) HealthCheck(context.Context) error { return errors.New("connection refused") }

func TestCacheChecker(t *testing.T) {
	ctx := context.Background()

	inProcess := health.NewCacheChecker(struct{}{})
	result := inProcess.Check(ctx)
	assert.Equal(t, health.StatusHealthy, result.Status)
	assert.Equal(t, "in-process", result.Message)

	down := health.NewCacheChecker(failingPinger{})
	result = down.Check(ctx)
	assert.Equal(t, health.StatusDegraded, result.Status, "a dead cache degrades, snapshots fall back to live reads")
	assert.Equal(t, "connection refused", result.Error)
}

func TestSnapshotChecker(t *testing.T) {
	ctx := context.Background()

	fresh := health.NewSnapshotChecker(func() (time.Time, string) { return time.Now(), "" }, time.Minute)
	assert.Equal(t, health.StatusHealthy, fresh.Check(ctx).Status)

	never := health.NewSnapshotChecker(func() (time.Time, string) { return time.Time{}, "" }, time.Minute)
	result := never.Check(ctx)
	assert.Equal(t, health.StatusDegraded, result.Status)
	assert.Equal(t, "no snapshot yet", result.Message)

	failed := health.NewSnapshotChecker(func() (time.Time, string) { return time.Now(), "smu: read timeout" }, time.Minute)
	result = failed.Check(ctx)
	assert.Equal(t, health.StatusDegraded, result.Status)
	assert.Equal(t, "smu: read timeout", result.Error)

	stale := health.NewSnapshotChecker(func() (time.Time, string) { return time.Now().Add(-time.Hour), "" }, time.Minute)
	result = stale.Check(ctx)
	assert.Equal(t, health.StatusDegraded, result.Status)
	assert.Contains(t, result.Message, "ago")
}

func TestInventoryChecker(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: qlab\n"), 0o600))

	assert.Equal(t, health.StatusHealthy, health.NewInventoryChecker(path).Check(ctx).Status)
	assert.Equal(t, health.StatusHealthy, health.NewInventoryChecker("").Check(ctx).Status)

	missing := health.NewInventoryChecker(filepath.Join(dir, "gone.yaml")).Check(ctx)
	assert.Equal(t, health.StatusDegraded, missing.Status)
	assert.Equal(t, "inventory file missing", missing.Error)

	assert.Equal(t, health.StatusDegraded, health.NewInventoryChecker(dir).Check(ctx).Status)
}

func validStartupConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	station := filepath.Join(dir, "station.yaml")
	require.NoError(t, os.WriteFile(station, []byte("name: qlab\ninstruments: {}\n"), 0o600))
	return config.Config{
		DataDir:       dir,
		APIListenAddr: ":8088",
		StationFile:   station,
		CacheBackend:  "memory",
	}
}

func TestPerformStartupChecks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, health.PerformStartupChecks(ctx, validStartupConfig(t)))

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing_data_dir",
			mutate:  func(c *config.Config) { c.DataDir = filepath.Join(c.DataDir, "nope") },
			wantErr: "does not exist",
		},
		{
			name:    "bad_listen_addr",
			mutate:  func(c *config.Config) { c.APIListenAddr = "no-port" },
			wantErr: "invalid API listen address",
		},
		{
			name:    "out_of_range_port",
			mutate:  func(c *config.Config) { c.APIListenAddr = ":70000" },
			wantErr: "invalid API listen port",
		},
		{
			name:    "missing_station_file",
			mutate:  func(c *config.Config) { c.StationFile = filepath.Join(c.DataDir, "gone.yaml") },
			wantErr: "does not exist",
		},
		{
			name:    "station_file_wrong_format",
			mutate:  func(c *config.Config) { c.StationFile = filepath.Join(c.DataDir, "station.json") },
			wantErr: "must be a YAML file",
		},
		{
			name:    "redis_without_addr",
			mutate:  func(c *config.Config) { c.CacheBackend = "redis" },
			wantErr: "requires an address",
		},
		{
			name:    "unknown_cache_backend",
			mutate:  func(c *config.Config) { c.CacheBackend = "memcached" },
			wantErr: "unknown cache backend",
		},
		{
			name:    "insecure_webhook",
			mutate:  func(c *config.Config) { c.SlackWebhookURL = "http://hooks.slack.com/services/T0/B0/x" },
			wantErr: "must use https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validStartupConfig(t)
			tt.mutate(&cfg)
			err := health.PerformStartupChecks(ctx, cfg)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
