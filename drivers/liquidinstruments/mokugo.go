// Package liquidinstruments drives Liquid Instruments Moku devices
// through their SCPI compatibility interface.
package liquidinstruments

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/parameter"
	"github.com/benchtop-io/benchd/transport"
	"github.com/benchtop-io/benchd/validators"
)

// DriverMokuGo identifies the Moku:Go driver in station inventories.
const DriverMokuGo = "liquidinstruments_mokugo"

// Options configures the connection to a Moku device.
type Options struct {
	Transport transport.Options
}

// MokuGo drives a Liquid Instruments Moku:Go in its oscilloscope and
// waveform generator roles.
type MokuGo struct {
	*instrument.IPInstrument
}

// NewMokuGo connects to a Moku:Go at address, registers its
// parameters and reads the device identity.
func NewMokuGo(ctx context.Context, name, address string, opts Options) (*MokuGo, error) {
	ip, err := instrument.Connect(ctx, name, DriverMokuGo, address, opts.Transport)
	if err != nil {
		return nil, err
	}

	d := &MokuGo{IPInstrument: ip}
	if err := d.addParameters(); err != nil {
		_ = d.Close()
		return nil, err
	}
	if _, err := d.QueryIDN(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *MokuGo) addParameters() error {
	cfgs := []parameter.Config{
		{
			Name:      "timebase_range",
			Label:     "Timebase range",
			Unit:      "s",
			GetCmd:    "OSC:TIMEBASE:RANGE?",
			SetCmd:    "OSC:TIMEBASE:RANGE {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(1e-3, 1e9),
		},
		{
			Name:      "trigger_mode",
			Label:     "Trigger mode",
			GetCmd:    "OSC:TRIG:MODE?",
			SetCmd:    "OSC:TRIG:MODE {}",
			Validator: validators.Enum("AUTO", "NORMAL", "SINGLE"),
		},
		{
			Name:      "wgen_function",
			Label:     "Waveform type",
			GetCmd:    "WGEN:FUNC?",
			SetCmd:    "WGEN:FUNC {}",
			Validator: validators.Enum("SINE", "SQUARE", "RAMP", "PULSE", "NOISE", "DC"),
		},
		{
			Name:      "wgen_frequency",
			Label:     "Waveform frequency",
			Unit:      "Hz",
			GetCmd:    "WGEN:FREQ?",
			SetCmd:    "WGEN:FREQ {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(1e-3, 2e7),
		},
		{
			Name:      "wgen_voltage",
			Label:     "Waveform amplitude",
			Unit:      "V",
			GetCmd:    "WGEN:VOLT?",
			SetCmd:    "WGEN:VOLT {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(-5, 5),
		},
		{
			Name:      "wgen_output",
			Label:     "Waveform output",
			GetCmd:    "WGEN:OUTP?",
			SetCmd:    "WGEN:OUTP {}",
			Parse:     parameter.ParseBool,
			Format:    parameter.FormatOnOff,
			Validator: validators.Bools(),
		},
	}

	for ch := 1; ch <= 2; ch++ {
		cfgs = append(cfgs, parameter.Config{
			Name:      fmt.Sprintf("ch%d_scale", ch),
			Label:     fmt.Sprintf("Channel %d vertical scale", ch),
			Unit:      "V/div",
			GetCmd:    fmt.Sprintf("OSC:CH%d:SCAL?", ch),
			SetCmd:    fmt.Sprintf("OSC:CH%d:SCAL {}", ch),
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(1e-3, 1e9),
		})
	}

	return d.NewParameters(cfgs...)
}

// FetchTrace reads the current oscilloscope trace as a comma-separated
// sample list. An idle scope returns an empty trace.
func (d *MokuGo) FetchTrace(ctx context.Context) ([]float64, error) {
	reply, err := d.Ask(ctx, "OSC:DATA?")
	if err != nil {
		return nil, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, nil
	}

	fields := strings.Split(reply, ",")
	samples := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, fmt.Errorf("parse trace sample %q: %w", field, err)
		}
		samples = append(samples, v)
	}
	return samples, nil
}

// Reset restores the factory power-on state.
func (d *MokuGo) Reset(ctx context.Context) error {
	return d.Write(ctx, "*RST")
}

// Clear clears the status and error queues.
func (d *MokuGo) Clear(ctx context.Context) error {
	return d.Write(ctx, "*CLS")
}
