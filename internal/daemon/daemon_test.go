package daemon_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/benchtop-io/benchd/config"
	"github.com/benchtop-io/benchd/internal/daemon"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Version:       "test",
		DataDir:       dir,
		DBPath:        filepath.Join(dir, "runs.db"),
		APIListenAddr: "127.0.0.1:0",
		CacheBackend:  "memory",
		CacheTTL:      30 * time.Second,
	}
}

// start runs the manager in the background and waits until the API
// listener is bound.
func start(t *testing.T, m *daemon.Manager) (string, context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	select {
	case <-m.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("daemon exited before ready: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("daemon never bound its listener")
	}
	require.NotEmpty(t, m.Addr())
	return m.Addr(), cancel, done
}

func waitStopped(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop in time")
		return nil
	}
}

func TestRunServesUntilCanceled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := daemon.New(testConfig(t))
	addr, cancel, done := start(t, m)
	defer cancel()
	require.NotNil(t, m.Station(), "station is open once ready")

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()

	resp, err := client.Get("http://" + addr + "/readyz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %s", body)

	var ready struct {
		Ready  bool   `json:"ready"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.True(t, ready.Ready)
	assert.Equal(t, "degraded", ready.Status, "an empty bench serves, degraded")

	cancel()
	require.NoError(t, waitStopped(t, done))
}

func TestRunWithMonitorJob(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	cfg.MonitorEnabled = true
	cfg.MonitorInterval = 50 * time.Millisecond

	m := daemon.New(cfg)
	addr, cancel, done := start(t, m)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	defer client.CloseIdleConnections()

	var status struct {
		Runs int64 `json:"runs"`
	}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + addr + "/api/v1/monitor/status")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false
		}
		return status.Runs >= 1
	}, 5*time.Second, 20*time.Millisecond, "monitor never completed a pass")

	cancel()
	require.NoError(t, waitStopped(t, done))
}

func TestRunFailsOnBadListenAddr(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	cfg.APIListenAddr = "127.0.0.1" // no port

	err := daemon.New(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen address")
}

func TestRunFailsOnBrokenInventory(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	cfg.StationFile = filepath.Join(cfg.DataDir, "station.yaml")
	cfg.StationAutoload = true
	require.NoError(t, os.WriteFile(cfg.StationFile, []byte("name: [broken\n"), 0o600))

	err := daemon.New(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load station inventory")
}

func TestRunRejectsSecondStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := daemon.New(testConfig(t))
	_, cancel, done := start(t, m)
	cancel()
	require.NoError(t, waitStopped(t, done))

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}
