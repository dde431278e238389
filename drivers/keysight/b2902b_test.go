package keysight_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/benchtop-io/benchd/drivers/keysight"
	"github.com/benchtop-io/benchd/transport/transporttest"
)

func newB2902BServer() *transporttest.Server {
	srv := transporttest.NewServer()
	srv.Respond("*IDN?", "Keysight Technologies,B2902B,MY61390123,5.0.2011.1711")
	return srv
}

func TestB2902BConnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := newB2902BServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := keysight.NewB2902B(ctx, "smu", srv.Addr(), keysight.Options{})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, "B2902B", d.IDN().Model)
	assert.Equal(t, []string{"*IDN?"}, srv.Requests())
}

func TestB2902BInterlockStates(t *testing.T) {
	srv := newB2902BServer()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := keysight.NewB2902B(ctx, "smu", srv.Addr(), keysight.Options{})
	require.NoError(t, err)
	defer d.Close()

	interlock, ok := d.Parameter("interlock_status")
	require.True(t, ok)

	tests := []struct {
		code string
		want string
	}{
		{"0", "interlock closed, output unrestricted"},
		{"1", "interlock open, output limited to 42 V"},
		{"2", "interlock tripped while the output was on"},
		{"7", "unrecognized interlock state 7"},
		{"-1", "unrecognized interlock state -1"},
	}
	for _, tt := range tests {
		t.Run("code_"+tt.code, func(t *testing.T) {
			srv.Respond(":SYST:INT:TRIP?", tt.code)

			state, err := interlock.Get(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestB2902BOutputTokens(t *testing.T) {
	srv := newB2902BServer()
	defer srv.Close()
	srv.Respond("OUTP1?", "1")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := keysight.NewB2902B(ctx, "smu", srv.Addr(), keysight.Options{})
	require.NoError(t, err)
	defer d.Close()

	outputA, ok := d.Parameter("output_A")
	require.True(t, ok)
	on, err := outputA.GetBool(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	outputB, ok := d.Parameter("output_B")
	require.True(t, ok)
	require.NoError(t, outputB.Set(ctx, true))
	assert.Contains(t, srv.Requests(), ":OUTP2 ON")
}

func TestB2902BChannelSetpoints(t *testing.T) {
	srv := newB2902BServer()
	defer srv.Close()
	srv.Respond("MEAS:CURR? (@1)", "+1.513000E-06")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := keysight.NewB2902B(ctx, "smu", srv.Addr(), keysight.Options{})
	require.NoError(t, err)
	defer d.Close()

	voltageB, ok := d.Parameter("voltage_source_B")
	require.True(t, ok)
	require.NoError(t, voltageB.Set(ctx, -5))
	assert.Contains(t, srv.Requests(), "SOUR2:VOLT -5")
	require.Error(t, voltageB.Set(ctx, 25))

	// Both channels source at most 3 A in either direction.
	for _, name := range []string{"current_source_A", "current_source_B"} {
		current, ok := d.Parameter(name)
		require.True(t, ok, name)
		require.NoError(t, current.Set(ctx, -3), name)
		require.Error(t, current.Set(ctx, -30), name)
	}

	measureA, ok := d.Parameter("current_measure_A")
	require.True(t, ok)
	assert.False(t, measureA.Settable())
	amps, err := measureA.GetFloat(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.513e-6, amps, 1e-15)
}

func TestB2902BGlobals(t *testing.T) {
	srv := newB2902BServer()
	defer srv.Close()
	srv.Respond(":OUTP:FUNC:MODE?", "VOLT")
	srv.Respond("SOUR:WAIT?", "0")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	d, err := keysight.NewB2902B(ctx, "smu", srv.Addr(), keysight.Options{})
	require.NoError(t, err)
	defer d.Close()

	mode, ok := d.Parameter("output_mode")
	require.True(t, ok)
	src, err := mode.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "VOLT", src)
	require.NoError(t, mode.Set(ctx, "CURR"))
	assert.Contains(t, srv.Requests(), ":OUTP:FUNC:MODE CURR")
	require.Error(t, mode.Set(ctx, "RES"))

	waitStatus, ok := d.Parameter("waittime_status")
	require.True(t, ok)
	waiting, err := waitStatus.GetBool(ctx)
	require.NoError(t, err)
	assert.False(t, waiting)
	require.NoError(t, waitStatus.Set(ctx, true))
	assert.Contains(t, srv.Requests(), ":SOUR:WAIT ON")

	waittime, ok := d.Parameter("waittime")
	require.True(t, ok)
	require.NoError(t, waittime.Set(ctx, 0.5))
	assert.Contains(t, srv.Requests(), "SOUR:WAIT:OFFS 0.5")
	require.Error(t, waittime.Set(ctx, 60))

	autorange, ok := d.Parameter("autorange")
	require.True(t, ok)
	require.NoError(t, autorange.Set(ctx, false))
	assert.Contains(t, srv.Requests(), ":SOUR:VOLT:RANG:AUTO OFF")
}
