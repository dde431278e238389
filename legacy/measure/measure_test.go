package measure_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchtop-io/benchd/legacy/measure"
	"github.com/benchtop-io/benchd/parameter"
)

func reading(t *testing.T, name, unit string, read func() (float64, error)) *parameter.Parameter {
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

func TestMeasureReadsOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	voltReads := 0
	volt := reading(t, "voltage", "V", func() (float64, error) {
		voltReads++
		return 1.25, nil
	})
	temp := reading(t, "temperature", "K", func() (float64, error) { return 4.2, nil })

	ds, err := measure.Measure(volt, temp).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, voltReads)
	assert.Equal(t, []string{"voltage", "temperature"}, ds.ArrayIDs())
	assert.Equal(t, 1, ds.Rows())

	arr, ok := ds.Array("voltage")
	require.True(t, ok)
	assert.Equal(t, "V", arr.Unit)
	assert.Equal(t, []float64{1.25}, arr.Values)

	arr, ok = ds.Array("temperature")
	require.True(t, ok)
	assert.Equal(t, []float64{4.2}, arr.Values)
}

func TestMeasureRequiresParameters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := measure.Measure().Run(ctx)
	require.ErrorContains(t, err, "at least one parameter")
}

func TestMeasurePropagatesReadErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	broken := reading(t, "current", "A", func() (float64, error) {
		return 0, errors.New("overload")
	})

	_, err := measure.Measure(broken).Run(ctx)
	require.ErrorContains(t, err, "read current")
	require.ErrorContains(t, err, "overload")
}
