package loops_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtop-io/benchd/legacy/actions"
	"github.com/benchtop-io/benchd/legacy/loops"
	"github.com/benchtop-io/benchd/parameter"
)

func settable(t *testing.T, name, unit string, sets *[]string) *parameter.Parameter {
	t.Helper()
	p, err := parameter.New(nil, "sim", parameter.Config{
		Name: name,
		Unit: unit,
		Set: func(_ context.Context, v any) error {
			*sets = append(*sets, fmt.Sprintf("%s=%v", name, v))
			return nil
		},
	})
	require.NoError(t, err)
	return p
}

func gettable(t *testing.T, name, unit string, read func() (float64, error)) *parameter.Parameter {
	t.Helper()
	p, err := parameter.New(nil, "sim", parameter.Config{
		Name: name,
		Unit: unit,
		Get: func(context.Context) (any, error) {
			v, err := read()
			return v, err
		},
	})
	require.NoError(t, err)
	return p
}

func TestSweepRecordsRows(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sets []string
	gate := settable(t, "gate", "V", &sets)

	reads := 0
	current := gettable(t, "current", "A", func() (float64, error) {
		reads++
		return float64(reads) * 1e-6, nil
	})

	ds, err := loops.Loop{Parameter: gate, Values: []float64{0, 0.5, 1}}.
		Each(loops.Record(current)).
		Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"gate_set", "current"}, ds.ArrayIDs())
	assert.Equal(t, []string{"gate=0", "gate=0.5", "gate=1"}, sets)

	setpoints, ok := ds.Array("gate_set")
	require.True(t, ok)
	assert.Equal(t, "gate", setpoints.Name)
	assert.Equal(t, "V", setpoints.Unit)
	assert.Equal(t, []float64{0, 0.5, 1}, setpoints.Values)

	measured, ok := ds.Array("current")
	require.True(t, ok)
	assert.Equal(t, []float64{1e-6, 2e-6, 3e-6}, measured.Values)
}

func TestSweepNestsLoops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sets []string
	gate := settable(t, "gate", "V", &sets)
	bias := settable(t, "bias", "mV", &sets)
	current := gettable(t, "current", "A", func() (float64, error) { return 4.2e-6, nil })

	ds, err := loops.Loop{Parameter: gate, Values: []float64{0, 1}}.
		Over(loops.Loop{Parameter: bias, Values: []float64{10, 20, 30}}.
			Each(loops.Record(current))).
		Run(ctx)
	require.NoError(t, err)

	// The outer setpoint moves once per full inner sweep.
	assert.Equal(t, []string{
		"gate=0", "bias=10", "bias=20", "bias=30",
		"gate=1", "bias=10", "bias=20", "bias=30",
	}, sets)

	gateArr, ok := ds.Array("gate_set")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 0, 1, 1, 1}, gateArr.Values)

	biasArr, ok := ds.Array("bias_set")
	require.True(t, ok)
	assert.Equal(t, []float64{10, 20, 30, 10, 20, 30}, biasArr.Values)

	measured, ok := ds.Array("current")
	require.True(t, ok)
	assert.Equal(t, 6, measured.Len())
}

func TestSweepBreakStopsInnermostLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sets []string
	gate := settable(t, "gate", "V", &sets)

	var lastBias float64
	bias, err := parameter.New(nil, "sim", parameter.Config{
		Name: "bias",
		Unit: "mV",
		Set: func(_ context.Context, v any) error {
			lastBias = v.(float64)
			return nil
		},
	})
	require.NoError(t, err)

	current := gettable(t, "current", "A", func() (float64, error) { return 1e-6, nil })

	ds, err := loops.Loop{Parameter: gate, Values: []float64{0, 1}}.
		Over(loops.Loop{Parameter: bias, Values: []float64{1, 2, 3, 4}}.
			Each(
				loops.Record(current),
				actions.BreakIf(func(context.Context) bool { return lastBias >= 2 }),
			)).
		Run(ctx)
	require.NoError(t, err, "a break is a normal early exit, not a failure")

	// Each outer point runs the inner loop until the break fires at
	// bias=2, so the outer loop still visits both of its values.
	biasArr, ok := ds.Array("bias_set")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 1, 2}, biasArr.Values)

	gateArr, ok := ds.Array("gate_set")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 1, 1}, gateArr.Values)
}

func TestSweepActionErrorAborts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sets []string
	gate := settable(t, "gate", "V", &sets)

	calls := 0
	failing := actions.Task(func(context.Context) error {
		calls++
		if calls == 2 {
			return errors.New("detector offline")
		}
		return nil
	})

	ds, err := loops.Loop{Parameter: gate, Values: []float64{0, 1, 2}}.
		Each(failing).
		Run(ctx)
	require.ErrorContains(t, err, "detector offline")

	setpoints, ok := ds.Array("gate_set")
	require.True(t, ok)
	assert.Equal(t, []float64{0}, setpoints.Values, "rows completed before the failure are kept")
}

func TestSweepFillsMissingReadingsWithNaN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sets []string
	gate := settable(t, "gate", "V", &sets)
	current := gettable(t, "current", "A", func() (float64, error) { return 2e-6, nil })
	late := gettable(t, "late", "K", func() (float64, error) { return 4.2, nil })

	iteration := 0
	body := actions.Task(func(ctx context.Context) error {
		iteration++
		if iteration != 2 {
			if err := loops.Record(current).Do(ctx); err != nil {
				return err
			}
		}
		if iteration == 3 {
			return loops.Record(late).Do(ctx)
		}
		return nil
	})

	ds, err := loops.Loop{Parameter: gate, Values: []float64{0, 1, 2}}.
		Each(body).
		Run(ctx)
	require.NoError(t, err)

	measured, ok := ds.Array("current")
	require.True(t, ok)
	require.Equal(t, 3, measured.Len())
	assert.Equal(t, 2e-6, measured.Values[0])
	assert.True(t, math.IsNaN(measured.Values[1]), "a skipped reading leaves a NaN hole")
	assert.Equal(t, 2e-6, measured.Values[2])

	lateArr, ok := ds.Array("late")
	require.True(t, ok)
	require.Equal(t, 3, lateArr.Len())
	assert.True(t, math.IsNaN(lateArr.Values[0]), "columns first seen mid-sweep are backfilled")
	assert.True(t, math.IsNaN(lateArr.Values[1]))
	assert.Equal(t, 4.2, lateArr.Values[2])
}

func TestSweepValidation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var sets []string
	gate := settable(t, "gate", "V", &sets)
	readOnly := gettable(t, "temperature", "K", func() (float64, error) { return 4.2, nil })

	tests := []struct {
		name    string
		sweep   *loops.Sweep
		wantErr string
	}{
		{
			name:    "no_parameter",
			sweep:   loops.Loop{Values: []float64{1}}.Each(),
			wantErr: "no parameter",
		},
		{
			name:    "no_values",
			sweep:   loops.Loop{Parameter: gate}.Each(),
			wantErr: "has no values",
		},
		{
			name:    "not_settable",
			sweep:   loops.Loop{Parameter: readOnly, Values: []float64{1}}.Each(),
			wantErr: "not settable",
		},
		{
			name: "same_parameter_twice",
			sweep: loops.Loop{Parameter: gate, Values: []float64{1}}.
				Over(loops.Loop{Parameter: gate, Values: []float64{2}}.Each()),
			wantErr: "used at two levels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sweep.Run(ctx)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSweepHonorsDelayAndCancellation(t *testing.T) {
	var sets []string
	gate := settable(t, "gate", "V", &sets)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	_, err := loops.Loop{Parameter: gate, Values: []float64{0, 1, 2}, Delay: 30 * time.Millisecond}.
		Each().
		Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	canceled, stop := context.WithCancel(context.Background())
	stop()
	ds, err := loops.Loop{Parameter: gate, Values: []float64{0, 1}}.Each().Run(canceled)
	require.ErrorIs(t, err, context.Canceled)
	setpoints, ok := ds.Array("gate_set")
	require.True(t, ok)
	assert.Zero(t, setpoints.Len())
}

func TestRecordOutsideSweep(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	current := gettable(t, "current", "A", func() (float64, error) { return 0, nil })
	err := loops.Record(current).Do(ctx)
	require.ErrorContains(t, err, "outside a running sweep")
}
