package thorlabs

import (
	"context"
	"fmt"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/parameter"
	"github.com/benchtop-io/benchd/validators"
)

// Per-channel injection current limits in mA, from the MCLS1 data
// sheet. The controller accepts setpoints above the installed seed
// laser's maximum without complaint, so the driver refuses them first.
var mclsMaxCurrents = map[int64]float64{
	1: 38.3,
	2: 97.8,
	3: 51.5,
	4: 21.6,
}

func mclsCurrentCeiling() float64 {
	var top float64
	for _, limit := range mclsMaxCurrents {
		if limit > top {
			top = limit
		}
	}
	return top
}

// MCLS drives a Thorlabs MCLS1 four-channel fiber-coupled laser
// source. Channel-scoped parameters (target, current, enable) act on
// whichever channel was last selected via the channel parameter.
type MCLS struct {
	*instrument.IPInstrument
}

// NewMCLS connects to an MCLS1 at address, registers its parameters
// and reads the device identity.
func NewMCLS(ctx context.Context, name, address string, opts Options) (*MCLS, error) {
	ip, err := instrument.Connect(ctx, name, DriverMCLS, address, serialOptions(opts.Transport))
	if err != nil {
		return nil, err
	}

	d := &MCLS{IPInstrument: ip}
	if err := d.addParameters(); err != nil {
		_ = d.Close()
		return nil, err
	}

	id, err := d.Ask(ctx, "id?")
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("query identity: %w", err)
	}
	d.SetIDN(instrument.ParseIDN(id))
	d.LogConnected()
	return d, nil
}

func (d *MCLS) addParameters() error {
	return d.NewParameters(
		parameter.Config{
			Name:   "identity",
			Label:  "Identity",
			GetCmd: "id?",
		},
		parameter.Config{
			Name:      "channel",
			Label:     "Active channel",
			GetCmd:    "channel?",
			SetCmd:    "channel={}",
			Parse:     parameter.ParseInt,
			Validator: validators.Ints(1, 4),
		},
		parameter.Config{
			Name:      "target",
			Label:     "Target temperature",
			Unit:      "°C",
			GetCmd:    "target?",
			SetCmd:    "target={}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(20, 30),
		},
		parameter.Config{
			Name:   "temp",
			Label:  "Actual temperature",
			Unit:   "°C",
			GetCmd: "temp?",
			Parse:  parameter.ParseFloat,
		},
		parameter.Config{
			Name:   "power",
			Label:  "Output power",
			Unit:   "mW",
			GetCmd: "power?",
			Parse:  parameter.ParseFloat,
		},
		parameter.Config{
			Name:      "current",
			Label:     "Injection current",
			Unit:      "mA",
			GetCmd:    "current?",
			Set:       d.setCurrent,
			Parse:     parameter.ParseFloat,
			Validator: validators.Numbers(0, mclsCurrentCeiling()),
		},
		parameter.Config{
			Name:      "enable",
			Label:     "Channel enable",
			GetCmd:    "enable?",
			SetCmd:    "enable={}",
			Parse:     parameter.ParseInt,
			Validator: validators.Enum(0, 1),
		},
		parameter.Config{
			Name:      "system",
			Label:     "System enable",
			GetCmd:    "system?",
			SetCmd:    "system={}",
			Parse:     parameter.ParseInt,
			Validator: validators.Enum(0, 1),
		},
		parameter.Config{
			Name:      "step",
			Label:     "Current step",
			Unit:      "mA",
			GetCmd:    "step?",
			SetCmd:    "step={}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
		},
		parameter.Config{
			Name:   "specs",
			Label:  "Channel specifications",
			GetCmd: "specs?",
		},
		// The status word query carries no question mark. Firmware quirk.
		parameter.Config{
			Name:   "statword",
			Label:  "Status word",
			GetCmd: "statword",
			Parse:  parameter.ParseInt,
		},
	)
}

// setCurrent writes an injection current setpoint after checking it
// against the limit of the currently selected channel.
func (d *MCLS) setCurrent(ctx context.Context, v any) error {
	mA, ok := validators.AsFloat(v)
	if !ok {
		return fmt.Errorf("current wants a number, got %T", v)
	}

	reply, err := d.Ask(ctx, "channel?")
	if err != nil {
		return fmt.Errorf("read active channel: %w", err)
	}
	chv, err := parameter.ParseInt(reply)
	if err != nil {
		return fmt.Errorf("read active channel: %w", err)
	}
	ch := chv.(int64)

	limit, ok := mclsMaxCurrents[ch]
	if !ok {
		return fmt.Errorf("active channel %d out of range", ch)
	}
	if mA > limit {
		return fmt.Errorf("current %v mA exceeds the %v mA limit of channel %d", mA, limit, ch)
	}

	token, err := parameter.FormatFloat(mA)
	if err != nil {
		return err
	}
	return d.Write(ctx, "current="+token)
}

// Save persists the present settings to the controller's non-volatile
// memory.
func (d *MCLS) Save(ctx context.Context) error {
	return d.Write(ctx, "save")
}
