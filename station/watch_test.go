package station

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oasdiff/yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func writeBenchFile(t *testing.T, path string, names []string) {
	t.Helper()
	instruments := make(map[string]interface{}, len(names))
	for i, name := range names {
		instruments[name] = map[string]interface{}{
			"driver":  "fake",
			"address": fmt.Sprintf("10.0.0.%d:5025", i+1),
		}
	}
	data, err := yaml.Marshal(map[string]interface{}{
		"name":        "qlab",
		"instruments": instruments,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestWatchReloadsOnInventoryChange(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "bench.yaml")
	writeBenchFile(t, path, []string{"alpha"})

	inv, err := Load(path)
	require.NoError(t, err)

	bench := newFakeBench()
	st, err := Open(ctx, inv, Options{Registry: bench.registry()})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	done := make(chan error, 1)
	go func() { done <- st.Watch(ctx, path) }()

	// Let the watcher arm before touching the file.
	time.Sleep(100 * time.Millisecond)

	writeBenchFile(t, path, []string{"alpha", "beta"})
	require.Eventually(t, func() bool {
		_, ok := st.Instrument("beta")
		return ok
	}, 3*time.Second, 50*time.Millisecond, "watcher should open the added instrument")

	// A file that no longer parses must not tear the station down.
	require.NoError(t, os.WriteFile(path, []byte("name: [broken\n"), 0o600))
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, []string{"alpha", "beta"}, st.Names())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchSurvivesFileReplacement(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	writeBenchFile(t, path, []string{"alpha"})

	inv, err := Load(path)
	require.NoError(t, err)

	bench := newFakeBench()
	st, err := Open(ctx, inv, Options{Registry: bench.registry()})
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	done := make(chan error, 1)
	go func() { done <- st.Watch(ctx, path) }()

	time.Sleep(100 * time.Millisecond)

	// Editors and atomic writers replace the file instead of writing
	// it in place.
	tmp := filepath.Join(dir, "bench.yaml.tmp")
	writeBenchFile(t, tmp, []string{"alpha", "gamma"})
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		_, ok := st.Instrument("gamma")
		return ok
	}, 3*time.Second, 50*time.Millisecond, "watcher should survive a file replacement")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
