package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/internal/cache"
	"github.com/benchtop-io/benchd/internal/jobs"
	"github.com/benchtop-io/benchd/station"
)

type stubStation struct {
	mu    sync.Mutex
	calls int
	snap  station.Snapshot
	err   error
}

func (s *stubStation) Snapshot(context.Context) (station.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return station.Snapshot{}, s.err
	}
	return s.snap, nil
}

func (s *stubStation) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubStation) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func benchSnapshot() station.Snapshot {
	return station.Snapshot{
		Station: "qlab",
		TakenAt: time.Now().UTC(),
		Instruments: map[string]instrument.Snapshot{
			"smu":  {Name: "smu", Driver: "keysight_b2902b", Address: "10.0.0.5:5025"},
			"mcls": {Name: "mcls", Driver: "thorlabs_mcls1"},
		},
	}
}

func TestMonitorRunOnceCachesSnapshot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st := &stubStation{snap: benchSnapshot()}
	c := cache.NewMemory(0)
	m := jobs.NewMonitor(st, c, time.Second, time.Minute)

	require.NoError(t, m.RunOnce(ctx))

	payload, ok := c.Get(jobs.SnapshotKey)
	require.True(t, ok, "snapshot should land in the cache")

	var snap station.Snapshot
	require.NoError(t, json.Unmarshal(payload, &snap))
	assert.Equal(t, "qlab", snap.Station)
	assert.Contains(t, snap.Instruments, "smu")
	assert.Equal(t, "10.0.0.5:5025", snap.Instruments["smu"].Address)

	status := m.Status()
	assert.Equal(t, int64(1), status.Runs)
	assert.Equal(t, 2, status.InstrumentsSeen)
	assert.Empty(t, status.LastError)
	assert.False(t, status.LastRun.IsZero())
}

func TestMonitorRunOnceRecordsFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st := &stubStation{err: errors.New("smu: connection reset")}
	c := cache.NewMemory(0)
	m := jobs.NewMonitor(st, c, time.Second, time.Minute)

	err := m.RunOnce(ctx)
	require.ErrorContains(t, err, "station snapshot")

	_, ok := c.Get(jobs.SnapshotKey)
	assert.False(t, ok, "a failed pass must not publish a snapshot")

	lastRun, lastErr := m.LastSnapshot()
	assert.True(t, lastRun.IsZero())
	assert.Equal(t, "smu: connection reset", lastErr)
	assert.Equal(t, int64(0), m.Status().Runs)
}

func TestMonitorRecoversAfterFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st := &stubStation{snap: benchSnapshot(), err: errors.New("warming up")}
	c := cache.NewMemory(0)
	m := jobs.NewMonitor(st, c, time.Second, time.Minute)

	require.Error(t, m.RunOnce(ctx))
	st.setError(nil)
	require.NoError(t, m.RunOnce(ctx))

	lastRun, lastErr := m.LastSnapshot()
	assert.False(t, lastRun.IsZero())
	assert.Empty(t, lastErr, "a successful pass clears the last error")
	assert.Equal(t, int64(1), m.Status().Runs)
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

func TestMonitorAlertsOnTransitionsOnly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st := &stubStation{snap: benchSnapshot(), err: errors.New("smu: connection reset")}
	c := cache.NewMemory(0)
	n := &recordingNotifier{}
	m := jobs.NewMonitor(st, c, time.Second, time.Minute, jobs.WithNotifier(n))

	// Two failing passes, one alert.
	require.Error(t, m.RunOnce(ctx))
	require.Error(t, m.RunOnce(ctx))

	// Two healthy passes, one recovery alert.
	st.setError(nil)
	require.NoError(t, m.RunOnce(ctx))
	require.NoError(t, m.RunOnce(ctx))

	texts := n.all()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "snapshot failing")
	assert.Contains(t, texts[0], "connection reset")
	assert.Contains(t, texts[1], "recovered, 2 instruments")
}

func TestMonitorRunLoops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &stubStation{snap: benchSnapshot()}
	c := cache.NewMemory(0)
	m := jobs.NewMonitor(st, c, 20*time.Millisecond, time.Minute)

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return st.count() >= 3 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err, "cancellation is a clean stop")
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}

func TestMonitorRunValidates(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := cache.NewMemory(0)

	err := jobs.NewMonitor(nil, c, time.Second, time.Minute).Run(ctx)
	require.ErrorContains(t, err, "needs a station")

	err = jobs.NewMonitor(&stubStation{}, c, 0, time.Minute).Run(ctx)
	require.ErrorContains(t, err, "must be positive")
}
