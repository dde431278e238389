// Package keithley drives Keithley digital multimeters over their
// SCPI LAN interface.
package keithley

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/parameter"
	"github.com/benchtop-io/benchd/transport"
	"github.com/benchtop-io/benchd/validators"
)

// Driver6500 identifies the DMM6500 driver in station inventories.
const Driver6500 = "keithley_6500"

// ErrCommandSet reports a meter whose remote interface is configured
// for a command set other than SCPI.
var ErrCommandSet = errors.New("command set is not SCPI")

// Measurement modes, keyed by the names exposed to callers. The wire
// tokens double as the command prefix for mode-scoped settings.
var modes = parameter.NewValMapping(map[any]string{
	"ac current":    "CURR:AC",
	"dc current":    "CURR:DC",
	"ac voltage":    "VOLT:AC",
	"dc voltage":    "VOLT:DC",
	"2w resistance": "RES",
	"4w resistance": "FRES",
	"temperature":   "TEMP",
	"frequency":     "FREQ",
})

var backlights = parameter.NewValMapping(map[any]string{
	"On 100":   "ON100",
	"On 75":    "ON75",
	"On 50":    "ON50",
	"On 25":    "ON25",
	"Off":      "OFF",
	"Blackout": "BLACkout",
})

var triggerSources = parameter.NewValMapping(map[any]string{
	"immediate":   "NONE",
	"timer1":      "TIM1",
	"timer2":      "TIM2",
	"timer3":      "TIM3",
	"timer4":      "TIM4",
	"notify1":     "NOT1",
	"notify2":     "NOT2",
	"notify3":     "NOT3",
	"front-panel": "DISP",
	"bus":         "COMM",
	"external":    "EXT",
})

// Options configures the connection to a Keithley meter.
type Options struct {
	Transport transport.Options
	// Reset issues *RST during bring-up, dropping the meter to its
	// power-on defaults.
	Reset bool
}

// Model6500 drives a Keithley DMM6500 six-and-a-half digit
// multimeter. Settings like nplc, range and averaging are scoped to
// the active measurement mode: the driver resolves the mode on every
// access, so a parameter always acts on the function the meter is
// currently measuring.
type Model6500 struct {
	*instrument.IPInstrument
}

// NewModel6500 connects to a DMM6500 at address. The meter must have
// its remote command set configured as SCPI; anything else fails with
// ErrCommandSet.
func NewModel6500(ctx context.Context, name, address string, opts Options) (*Model6500, error) {
	ip, err := instrument.Connect(ctx, name, Driver6500, address, opts.Transport)
	if err != nil {
		return nil, err
	}
	d := &Model6500{IPInstrument: ip}

	lang, err := d.Ask(ctx, "*LANG?")
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("query command set: %w", err)
	}
	if cleanReply(lang) != "SCPI" {
		_ = d.Close()
		return nil, fmt.Errorf("%s reports command set %q, not SCPI; switch it on the front panel under MENU > Communication: %w", name, lang, ErrCommandSet)
	}

	if opts.Reset {
		if err := d.Write(ctx, "*RST"); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	if err := d.Write(ctx, "FORM:DATA ASCII"); err != nil {
		_ = d.Close()
		return nil, err
	}

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

func (d *Model6500) addParameters() error {
	cfgs := []parameter.Config{
		{
			Name:    "mode",
			Label:   "Measurement mode",
			Get:     d.getMode,
			SetCmd:  "SENS:FUNC '{}'",
			Mapping: modes,
		},
		{
			Name:      "nplc",
			Label:     "Integration time",
			Get:       d.modeGetter("NPLC", parameter.ParseFloat),
			Set:       d.modeSetter("NPLC", parameter.FormatFloat),
			Validator: validators.Numbers(0.01, 10),
		},
		// Range limits depend on the active mode, so the driver leaves
		// bounds checking to the meter.
		{
			Name:  "range",
			Label: "Measurement range",
			Get:   d.modeGetter("RANG", parameter.ParseFloat),
			Set:   d.modeSetter("RANG", parameter.FormatFloat),
		},
		{
			Name:      "auto_range_enabled",
			Label:     "Autorange",
			Get:       d.modeGetter("RANG:AUTO", parameter.ParseBool),
			Set:       d.modeSetter("RANG:AUTO", format01),
			Validator: validators.Bools(),
		},
		{
			Name:      "autozero_enabled",
			Label:     "Autozero",
			Get:       d.modeGetter("AZER", parameter.ParseBool),
			Set:       d.modeSetter("AZER", format01),
			Validator: validators.Bools(),
		},
		{
			Name:      "averaging_type",
			Label:     "Averaging filter type",
			Get:       d.modeGetter("AVER:TCON", parseAveraging),
			Set:       d.modeSetter("AVER:TCON", formatAveraging),
			Validator: validators.Enum("moving", "repeat"),
		},
		{
			Name:      "averaging_count",
			Label:     "Averaging count",
			Get:       d.modeGetter("AVER:COUN", parameter.ParseInt),
			Set:       d.modeSetter("AVER:COUN", formatInt),
			Validator: validators.Ints(1, 100),
		},
		{
			Name:      "averaging_enabled",
			Label:     "Averaging filter",
			Get:       d.modeGetter("AVER:STAT", parameter.ParseBool),
			Set:       d.modeSetter("AVER:STAT", format01),
			Validator: validators.Bools(),
		},
		{
			Name:      "digits",
			Label:     "Display digits",
			GetCmd:    "DISP:VOLT:DC:DIG?",
			SetCmd:    "DISP:VOLT:DC:DIG {}",
			Parse:     parameter.ParseInt,
			Validator: validators.Ints(4, 7),
		},
		{
			Name:    "display_backlight",
			Label:   "Display backlight",
			GetCmd:  "DISP:LIGH:STAT?",
			SetCmd:  "DISP:LIGH:STAT {}",
			Mapping: backlights,
		},
		{
			Name:   "trigger_count",
			Label:  "Scan count",
			GetCmd: "ROUT:SCAN:COUN:SCAN?",
			SetCmd: "ROUT:SCAN:COUN:SCAN {}",
			Parse:  parameter.ParseInt,
			Validator: validators.MultiType(
				validators.Ints(1, 9999),
				validators.Enum("inf", "default", "minimum", "maximum"),
			),
		},
		{
			Name:      "trigger_timer",
			Label:     "Scan interval",
			Unit:      "s",
			GetCmd:    "ROUT:SCAN:INT?",
			SetCmd:    "ROUT:SCAN:INT {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(0, 999999.999),
		},
		{
			Name:  "amplitude",
			Label: "Reading",
			Unit:  "a.u.",
			Get:   d.readAmplitude,
		},
	}

	for n := 1; n <= 4; n++ {
		cfgs = append(cfgs,
			parameter.Config{
				Name:      fmt.Sprintf("trigger%d_delay", n),
				Label:     fmt.Sprintf("Timer %d delay", n),
				Unit:      "s",
				GetCmd:    fmt.Sprintf("TRIG:TIM%d:DEL?", n),
				SetCmd:    fmt.Sprintf("TRIG:TIM%d:DEL {}", n),
				Parse:     parameter.ParseFloat,
				Format:    parameter.FormatFloat,
				Validator: validators.Numbers(0, 999999.999),
			},
			parameter.Config{
				Name:    fmt.Sprintf("trigger%d_source", n),
				Label:   fmt.Sprintf("Timer %d start stimulus", n),
				GetCmd:  fmt.Sprintf("TRIG:TIM%d:STAR:STIM?", n),
				SetCmd:  fmt.Sprintf("TRIG:TIM%d:STAR:STIM {}", n),
				Mapping: triggerSources,
			},
		)
	}

	return d.NewParameters(cfgs...)
}

func (d *Model6500) getMode(ctx context.Context) (any, error) {
	reply, err := d.Ask(ctx, "SENS:FUNC?")
	if err != nil {
		return nil, err
	}
	mode, ok := modes.Value(cleanReply(reply))
	if !ok {
		return nil, fmt.Errorf("meter reports unknown mode %q", reply)
	}
	return mode, nil
}

// modeWire returns the command prefix of the active measurement mode,
// e.g. "VOLT:DC".
func (d *Model6500) modeWire(ctx context.Context) (string, error) {
	reply, err := d.Ask(ctx, "SENS:FUNC?")
	if err != nil {
		return "", err
	}
	wire := cleanReply(reply)
	if _, ok := modes.Value(wire); !ok {
		return "", fmt.Errorf("meter reports unknown mode %q", reply)
	}
	return wire, nil
}

func (d *Model6500) modeGetter(suffix string, parse func(string) (any, error)) parameter.GetFunc {
	return func(ctx context.Context) (any, error) {
		wire, err := d.modeWire(ctx)
		if err != nil {
			return nil, err
		}
		reply, err := d.Ask(ctx, fmt.Sprintf("%s:%s?", wire, suffix))
		if err != nil {
			return nil, err
		}
		return parse(reply)
	}
}

func (d *Model6500) modeSetter(suffix string, format func(any) (string, error)) parameter.SetFunc {
	return func(ctx context.Context, v any) error {
		wire, err := d.modeWire(ctx)
		if err != nil {
			return err
		}
		token, err := format(v)
		if err != nil {
			return err
		}
		return d.Write(ctx, fmt.Sprintf("%s:%s %s", wire, suffix, token))
	}
}

func (d *Model6500) readAmplitude(ctx context.Context) (any, error) {
	reply, err := d.Ask(ctx, "READ?")
	if err != nil {
		return nil, err
	}
	return parameter.ParseFloat(reply)
}

// Reset restores the factory power-on state.
func (d *Model6500) Reset(ctx context.Context) error {
	return d.Write(ctx, "*RST")
}

// cleanReply strips the double quotes some firmware revisions wrap
// around string replies.
func cleanReply(reply string) string {
	s := strings.TrimSpace(reply)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return s
}

func format01(v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", fmt.Errorf("want bool, got %T", v)
	}
	if b {
		return "1", nil
	}
	return "0", nil
}

func formatInt(v any) (string, error) {
	n, ok := validators.AsInt(v)
	if !ok {
		return "", fmt.Errorf("want an integer, got %T", v)
	}
	return strconv.FormatInt(n, 10), nil
}

func parseAveraging(reply string) (any, error) {
	switch s := strings.ToUpper(cleanReply(reply)); {
	case strings.HasPrefix(s, "MOV"):
		return "moving", nil
	case strings.HasPrefix(s, "REP"):
		return "repeat", nil
	default:
		return nil, fmt.Errorf("unknown averaging type %q", reply)
	}
}

func formatAveraging(v any) (string, error) {
	switch v {
	case "moving":
		return "MOV", nil
	case "repeat":
		return "REP", nil
	}
	return "", fmt.Errorf("averaging type wants moving or repeat, got %v", v)
}
