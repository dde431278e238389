package rohdeschwarz

import (
	"context"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/parameter"
	"github.com/benchtop-io/benchd/validators"
)

var (
	hmfFunctions = parameter.NewValMapping(map[any]string{
		"sine":      "SIN",
		"square":    "SQU",
		"ramp":      "RAMP",
		"pulse":     "PULS",
		"arbitrary": "ARB",
	})

	hmfLoads = parameter.NewValMapping(map[any]string{
		"terminated": "TERM",
		"infinity":   "INF",
	})

	hmfPolarities = parameter.NewValMapping(map[any]string{
		"normal":   "NORM",
		"inverted": "INV",
	})

	hmfVoltageUnits = parameter.NewValMapping(map[any]string{
		"dBm": "DBM",
		"V":   "VOLT",
	})

	hmfWaveforms = parameter.NewValMapping(map[any]string{
		"sine":     "SIN",
		"square":   "SQU",
		"pramp":    "PRAM",
		"nramp":    "NRAM",
		"triangle": "TRI",
		"wnoise":   "WNO",
		"pnoise":   "PNO",
		"cardinal": "CARD",
		"exprise":  "EXPR",
		"expfall":  "EXPF",
		"ram":      "RAM",
	})
)

// HMF2550 drives a Rohde & Schwarz HMF2550 50 MHz arbitrary function
// generator.
type HMF2550 struct {
	*instrument.IPInstrument
}

// NewHMF2550 connects to an HMF2550 at address, registers its
// parameters and reads the device identity.
func NewHMF2550(ctx context.Context, name, address string, opts Options) (*HMF2550, error) {
	ip, err := instrument.Connect(ctx, name, DriverHMF2550, address, opts.Transport)
	if err != nil {
		return nil, err
	}

	d := &HMF2550{IPInstrument: ip}
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

func (d *HMF2550) addParameters() error {
	return d.NewParameters(
		parameter.Config{
			Name:    "function",
			Label:   "Output function",
			GetCmd:  "FUNC?",
			SetCmd:  "FUNC {}",
			Mapping: hmfFunctions,
		},
		parameter.Config{
			Name:      "output",
			Label:     "Output enabled",
			GetCmd:    "OUTP?",
			SetCmd:    "OUTP {}",
			Parse:     parameter.ParseBool,
			Format:    parameter.FormatOnOff,
			Validator: validators.Bools(),
		},
		parameter.Config{
			Name:    "output_load",
			Label:   "Output load",
			GetCmd:  "OUTP:LOAD?",
			SetCmd:  "OUTP:LOAD {}",
			Mapping: hmfLoads,
		},
		parameter.Config{
			Name:    "output_polarity",
			Label:   "Output polarity",
			GetCmd:  "OUTP:POL?",
			SetCmd:  "OUTP:POL {}",
			Mapping: hmfPolarities,
		},
		parameter.Config{
			Name:      "frequency",
			Label:     "Frequency",
			Unit:      "Hz",
			GetCmd:    "FREQ?",
			SetCmd:    "FREQ {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(1e-5, 1e7),
		},
		parameter.Config{
			Name:      "period",
			Label:     "Period",
			Unit:      "s",
			GetCmd:    "PER?",
			SetCmd:    "PER {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(2e-8, 1e5),
		},
		parameter.Config{
			Name:    "voltage_unit",
			Label:   "Voltage unit",
			GetCmd:  "VOLT:UNIT?",
			SetCmd:  "VOLT:UNIT {}",
			Mapping: hmfVoltageUnits,
		},
		parameter.Config{
			Name:      "voltage",
			Label:     "Amplitude",
			Unit:      "V",
			GetCmd:    "VOLT?",
			SetCmd:    "VOLT {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(0.01, 20),
		},
		parameter.Config{
			Name:      "voltage_high",
			Label:     "High level",
			Unit:      "V",
			GetCmd:    "VOLT:HIGH?",
			SetCmd:    "VOLT:HIGH {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(-10, 10),
		},
		parameter.Config{
			Name:      "voltage_low",
			Label:     "Low level",
			Unit:      "V",
			GetCmd:    "VOLT:LOW?",
			SetCmd:    "VOLT:LOW {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(-10, 10),
		},
		parameter.Config{
			Name:      "voltage_offset",
			Label:     "Offset",
			Unit:      "V",
			GetCmd:    "VOLT:OFFS?",
			SetCmd:    "VOLT:OFFS {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(-10, 10),
		},
		parameter.Config{
			Name:      "square_duty_cycle",
			Label:     "Square duty cycle",
			Unit:      "%",
			GetCmd:    "FUNC:SQU:DCYC?",
			SetCmd:    "FUNC:SQU:DCYC {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(20, 80),
		},
		parameter.Config{
			Name:      "square_width_high",
			Label:     "Square high width",
			Unit:      "s",
			GetCmd:    "FUNC:SQU:WIDT:HIGH?",
			SetCmd:    "FUNC:SQU:WIDT:HIGH {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(1e-8, 8e4),
		},
		parameter.Config{
			Name:      "square_width_low",
			Label:     "Square low width",
			Unit:      "s",
			GetCmd:    "FUNC:SQU:WIDT:LOW?",
			SetCmd:    "FUNC:SQU:WIDT:LOW {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(1e-8, 8e4),
		},
		parameter.Config{
			Name:      "ramp_time_rise",
			Label:     "Ramp rise time",
			Unit:      "s",
			GetCmd:    "FUNC:RAMP:TIME:RISE?",
			SetCmd:    "FUNC:RAMP:TIME:RISE {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(8e-9, 1e5),
		},
		parameter.Config{
			Name:      "ramp_time_fall",
			Label:     "Ramp fall time",
			Unit:      "s",
			GetCmd:    "FUNC:RAMP:TIME:FALL?",
			SetCmd:    "FUNC:RAMP:TIME:FALL {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(8e-9, 1e5),
		},
		parameter.Config{
			Name:      "pulse_duty_cycle",
			Label:     "Pulse duty cycle",
			Unit:      "%",
			GetCmd:    "FUNC:PULS:DCYC?",
			SetCmd:    "FUNC:PULS:DCYC {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(0.1, 99.9),
		},
		parameter.Config{
			Name:      "pulse_width_high",
			Label:     "Pulse high width",
			Unit:      "s",
			GetCmd:    "FUNC:PULS:WIDT:HIGH?",
			SetCmd:    "FUNC:PULS:WIDT:HIGH {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(2e-8, 1e5),
		},
		parameter.Config{
			Name:      "pulse_width_low",
			Label:     "Pulse low width",
			Unit:      "s",
			GetCmd:    "FUNC:PULS:WIDT:LOW?",
			SetCmd:    "FUNC:PULS:WIDT:LOW {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(2e-8, 1e5),
		},
		parameter.Config{
			Name:      "pulse_edge_time",
			Label:     "Pulse edge time",
			Unit:      "s",
			GetCmd:    "FUNC:PULS:ETIM?",
			SetCmd:    "FUNC:PULS:ETIM {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(8e-9, 5e-7),
		},
		parameter.Config{
			Name:    "waveform",
			Label:   "Arbitrary waveform",
			GetCmd:  "FUNC:ARB?",
			SetCmd:  "FUNC:ARB {}",
			Mapping: hmfWaveforms,
		},
	)
}

// Reset restores the factory power-on state.
func (d *HMF2550) Reset(ctx context.Context) error {
	return d.Write(ctx, "*RST")
}
