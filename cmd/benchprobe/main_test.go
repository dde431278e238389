package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDaemon answers the probed endpoints the way a healthy benchd
// does, without dragging the real daemon into a command test.
func stubDaemon(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true, "status": "healthy"})
	})
	mux.HandleFunc("GET /api/v1/instruments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"station":     "bench",
			"instruments": map[string]any{"smu": map[string]any{"driver": "keysight_b2902b"}},
		})
	})
	mux.HandleFunc("GET /api/v1/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"runs": []any{}, "total": 0})
	})
	mux.HandleFunc("GET /api/v1/instruments/{name}/parameters/{param}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "probe-test")
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":      "instrument not found",
			"request_id": "probe-test",
		})
	})
	mux.HandleFunc("GET /api/v1/monitor/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":      "monitor is disabled",
			"request_id": "probe-test",
		})
	})
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("benchd_api_requests_total 4\n"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func checkByName(t *testing.T, report ProbeReport, name string) CheckResult {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q missing from report", name)
	return CheckResult{}
}

func TestProbesHealthyDaemon(t *testing.T) {
	srv := stubDaemon(t)

	var out bytes.Buffer
	report := runProbes(srv.URL, &out)

	require.Len(t, report.Checks, 7)
	for _, c := range report.Checks {
		assert.True(t, c.Passed, "check %s failed: %s", c.Name, c.Details)
	}
	assert.Equal(t, srv.URL, report.BaseURL)
	assert.Contains(t, out.String(), "PASS: health")
	assert.Contains(t, out.String(), `station "bench": 1 instruments [smu]`)
	// Monitor off counts as a pass: the route answered.
	assert.True(t, checkByName(t, report, "monitor_status").Passed)
}

func TestProbeFailsOnUnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	report := runProbes(srv.URL, &out)

	health := checkByName(t, report, "health")
	assert.False(t, health.Passed)
	assert.Contains(t, health.Details, "status 503")
	assert.Contains(t, health.Body, "unhealthy")
	assert.Contains(t, out.String(), "FAIL: health")
}

func TestProbeFlagsMissingErrorEnvelope(t *testing.T) {
	mux := http.NewServeMux()
	// Plain-text 404 without an envelope, the shape a misconfigured
	// reverse proxy would produce.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var out bytes.Buffer
	report := runProbes(srv.URL, &out)

	envelope := checkByName(t, report, "error_envelope")
	assert.False(t, envelope.Passed)
	assert.Contains(t, envelope.Details, "content-type")
}

func TestProbeFailsWhenDaemonUnreachable(t *testing.T) {
	srv := stubDaemon(t)
	addr := srv.URL
	srv.Close()

	var out bytes.Buffer
	report := runProbes(addr, &out)

	for _, c := range report.Checks {
		assert.False(t, c.Passed, "check %s passed against a closed socket", c.Name)
	}
	assert.Equal(t, strings.Count(out.String(), "FAIL:"), len(report.Checks))
}

func TestBaseURLFallsBackToEnv(t *testing.T) {
	srv := stubDaemon(t)
	t.Setenv("BENCHD_BASE_URL", srv.URL+"/")

	var out bytes.Buffer
	report := runProbes("", &out)

	// Trailing slash trimmed, env respected.
	assert.Equal(t, srv.URL, report.BaseURL)
	assert.True(t, checkByName(t, report, "health").Passed)
}
