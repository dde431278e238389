// Package keysight drives Keysight source measure units over their
// SCPI LAN interface.
package keysight

import (
	"context"
	"fmt"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/parameter"
	"github.com/benchtop-io/benchd/transport"
	"github.com/benchtop-io/benchd/validators"
)

// DriverB2902B identifies the B2902B driver in station inventories.
const DriverB2902B = "keysight_b2902b"

// Interlock trip codes from the programming manual.
var interlockStates = map[int64]string{
	0: "interlock closed, output unrestricted",
	1: "interlock open, output limited to 42 V",
	2: "interlock tripped while the output was on",
}

// Options configures the connection to a Keysight SMU.
type Options struct {
	Transport transport.Options
}

// B2902B drives a Keysight B2902B two-channel precision source
// measure unit. Parameters carry an _A or _B suffix for the channel
// they act on.
type B2902B struct {
	*instrument.IPInstrument
}

// NewB2902B connects to a B2902B at address, registers its parameters
// and reads the device identity.
func NewB2902B(ctx context.Context, name, address string, opts Options) (*B2902B, error) {
	ip, err := instrument.Connect(ctx, name, DriverB2902B, address, opts.Transport)
	if err != nil {
		return nil, err
	}

	d := &B2902B{IPInstrument: ip}
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

func (d *B2902B) addParameters() error {
	cfgs := []parameter.Config{
		{
			Name:   "identity",
			Label:  "Identity",
			GetCmd: "*IDN?",
		},
		{
			Name:      "output_mode",
			Label:     "Source mode",
			GetCmd:    ":OUTP:FUNC:MODE?",
			SetCmd:    ":OUTP:FUNC:MODE {}",
			Validator: validators.Enum("CURR", "VOLT"),
		},
		// The SMU reports wait state as 0/1 but only accepts ON/OFF.
		{
			Name:      "waittime_status",
			Label:     "Source wait",
			GetCmd:    "SOUR:WAIT?",
			SetCmd:    ":SOUR:WAIT {}",
			Parse:     parameter.ParseBool,
			Format:    parameter.FormatOnOff,
			Validator: validators.Bools(),
		},
		{
			Name:      "waittime",
			Label:     "Source wait offset",
			Unit:      "s",
			GetCmd:    "SOUR:WAIT:OFFS?",
			SetCmd:    "SOUR:WAIT:OFFS {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(1e-3, 10),
		},
		{
			Name:      "autorange",
			Label:     "Voltage autorange",
			GetCmd:    "SOUR:VOLT:RANG:AUTO?",
			SetCmd:    ":SOUR:VOLT:RANG:AUTO {}",
			Parse:     parameter.ParseBool,
			Format:    parameter.FormatOnOff,
			Validator: validators.Bools(),
		},
		{
			Name:   "interlock_status",
			Label:  "Interlock state",
			GetCmd: ":SYST:INT:TRIP?",
			Parse:  parseInterlock,
		},
	}

	channels := []struct {
		n      int
		suffix string
	}{
		{1, "A"},
		{2, "B"},
	}
	for _, ch := range channels {
		cfgs = append(cfgs,
			parameter.Config{
				Name:      "output_" + ch.suffix,
				Label:     fmt.Sprintf("Channel %s output", ch.suffix),
				GetCmd:    fmt.Sprintf("OUTP%d?", ch.n),
				SetCmd:    fmt.Sprintf(":OUTP%d {}", ch.n),
				Parse:     parameter.ParseBool,
				Format:    parameter.FormatOnOff,
				Validator: validators.Bools(),
			},
			parameter.Config{
				Name:      "voltage_range_" + ch.suffix,
				Label:     fmt.Sprintf("Channel %s voltage range", ch.suffix),
				Unit:      "V",
				GetCmd:    fmt.Sprintf("SOUR%d:VOLT:RANG?", ch.n),
				SetCmd:    fmt.Sprintf("SOUR%d:VOLT:RANG {}", ch.n),
				Parse:     parameter.ParseFloat,
				Format:    parameter.FormatFloat,
				Validator: validators.Numbers(0.2, 200),
			},
			parameter.Config{
				Name:      "voltage_source_" + ch.suffix,
				Label:     fmt.Sprintf("Channel %s voltage setpoint", ch.suffix),
				Unit:      "V",
				GetCmd:    fmt.Sprintf("SOUR%d:VOLT?", ch.n),
				SetCmd:    fmt.Sprintf("SOUR%d:VOLT {}", ch.n),
				Parse:     parameter.ParseFloat,
				Format:    parameter.FormatFloat,
				Validator: validators.Numbers(-20, 20),
			},
			parameter.Config{
				Name:      "voltage_limit_" + ch.suffix,
				Label:     fmt.Sprintf("Channel %s voltage range floor", ch.suffix),
				Unit:      "V",
				GetCmd:    fmt.Sprintf("SENS%d:VOLT:RANG:AUTO:LLIM?", ch.n),
				SetCmd:    fmt.Sprintf("SENS%d:VOLT:RANG:AUTO:LLIM {}", ch.n),
				Parse:     parameter.ParseFloat,
				Format:    parameter.FormatFloat,
				Validator: validators.Numbers(0.2, 200),
			},
			parameter.Config{
				Name:      "voltage_compliance_" + ch.suffix,
				Label:     fmt.Sprintf("Channel %s voltage compliance", ch.suffix),
				Unit:      "V",
				GetCmd:    fmt.Sprintf("SENS%d:VOLT:PROT?", ch.n),
				SetCmd:    fmt.Sprintf("SENS%d:VOLT:PROT {}", ch.n),
				Parse:     parameter.ParseFloat,
				Format:    parameter.FormatFloat,
				Validator: validators.Numbers(1e-6, 2),
			},
			parameter.Config{
				Name:      "current_range_" + ch.suffix,
				Label:     fmt.Sprintf("Channel %s current range", ch.suffix),
				Unit:      "A",
				GetCmd:    fmt.Sprintf("SOUR%d:CURR:RANG?", ch.n),
				SetCmd:    fmt.Sprintf("SOUR%d:CURR:RANG {}", ch.n),
				Parse:     parameter.ParseFloat,
				Format:    parameter.FormatFloat,
				Validator: validators.Numbers(1e-9, 3),
			},
			parameter.Config{
				Name:      "current_source_" + ch.suffix,
				Label:     fmt.Sprintf("Channel %s current setpoint", ch.suffix),
				Unit:      "A",
				GetCmd:    fmt.Sprintf("SOUR%d:CURR?", ch.n),
				SetCmd:    fmt.Sprintf("SOUR%d:CURR {}", ch.n),
				Parse:     parameter.ParseFloat,
				Format:    parameter.FormatFloat,
				Validator: validators.Numbers(-3, 3),
			},
			parameter.Config{
				Name:      "current_limit_" + ch.suffix,
				Label:     fmt.Sprintf("Channel %s current range floor", ch.suffix),
				Unit:      "A",
				GetCmd:    fmt.Sprintf("SENS%d:CURR:RANG:AUTO:LLIM?", ch.n),
				SetCmd:    fmt.Sprintf("SENS%d:CURR:RANG:AUTO:LLIM {}", ch.n),
				Parse:     parameter.ParseFloat,
				Format:    parameter.FormatFloat,
				Validator: validators.Numbers(1e-6, 2),
			},
			parameter.Config{
				Name:      "current_compliance_" + ch.suffix,
				Label:     fmt.Sprintf("Channel %s current compliance", ch.suffix),
				Unit:      "A",
				GetCmd:    fmt.Sprintf("SENS%d:CURR:PROT?", ch.n),
				SetCmd:    fmt.Sprintf("SENS%d:CURR:PROT {}", ch.n),
				Parse:     parameter.ParseFloat,
				Format:    parameter.FormatFloat,
				Validator: validators.Numbers(1e-8, 1),
			},
			parameter.Config{
				Name:   "current_measure_" + ch.suffix,
				Label:  fmt.Sprintf("Channel %s measured current", ch.suffix),
				Unit:   "A",
				GetCmd: fmt.Sprintf("MEAS:CURR? (@%d)", ch.n),
				Parse:  parameter.ParseFloat,
			},
			parameter.Config{
				Name:   "voltage_measure_" + ch.suffix,
				Label:  fmt.Sprintf("Channel %s measured voltage", ch.suffix),
				Unit:   "V",
				GetCmd: fmt.Sprintf("MEAS:VOLT? (@%d)", ch.n),
				Parse:  parameter.ParseFloat,
			},
		)
	}

	return d.NewParameters(cfgs...)
}

// Reset restores the factory power-on state.
func (d *B2902B) Reset(ctx context.Context) error {
	return d.Write(ctx, "*RST")
}

// parseInterlock describes the interlock trip state. Codes outside
// the documented set come back described rather than failing the
// read.
func parseInterlock(reply string) (any, error) {
	code, err := parameter.ParseInt(reply)
	if err != nil {
		return nil, err
	}
	n := code.(int64)
	if desc, ok := interlockStates[n]; ok {
		return desc, nil
	}
	return fmt.Sprintf("unrecognized interlock state %d", n), nil
}
