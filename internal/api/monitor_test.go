package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtop-io/benchd/internal/jobs"
)

func TestMonitorServesCachedSnapshot(t *testing.T) {
	ts := newTestServer(t)

	payload := []byte(`{"station":"cached","instruments":{}}`)
	ts.cache.Set(jobs.SnapshotKey, payload, time.Minute)

	rec := ts.get(t, "/api/v1/monitor")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, string(payload), rec.Body.String(), "a cache hit serves the stored bytes untouched")
}

func TestMonitorFallsBackToLiveSnapshot(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get(t, "/api/v1/monitor")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		Station     string                     `json:"station"`
		Instruments map[string]json.RawMessage `json:"instruments"`
	}
	decodeJSON(t, rec, &snap)
	assert.Equal(t, "qlab", snap.Station)
	assert.Len(t, snap.Instruments, 2)

	cached, ok := ts.cache.Get(jobs.SnapshotKey)
	require.True(t, ok, "a miss repopulates the cache")
	assert.Equal(t, rec.Body.String(), string(cached))

	again := ts.get(t, "/api/v1/monitor")
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, string(cached), again.Body.String())
}

func TestMonitorSnapshotFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.bench.failSnapshots(errors.New("scpi timeout"))

	rec := ts.get(t, "/api/v1/monitor")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "station snapshot failed")
}

func TestMonitorStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.get(t, "/api/v1/monitor/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var before jobs.Status
	decodeJSON(t, rec, &before)
	assert.Zero(t, before.Runs)
	assert.True(t, before.LastRun.IsZero())

	require.NoError(t, ts.monitor.RunOnce(context.Background()))

	rec = ts.get(t, "/api/v1/monitor/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var after jobs.Status
	decodeJSON(t, rec, &after)
	assert.Equal(t, int64(1), after.Runs)
	assert.Equal(t, 2, after.InstrumentsSeen)
	assert.Empty(t, after.LastError)
	assert.False(t, after.LastRun.IsZero())
}
