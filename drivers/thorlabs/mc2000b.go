package thorlabs

import (
	"context"
	"fmt"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/parameter"
	"github.com/benchtop-io/benchd/validators"
)

// Blade models the MC2000B controller knows, keyed by the model name
// printed on the blade itself.
var mc2000bBlades = parameter.NewValMapping(map[any]string{
	"MC1F2":    "1",
	"MC1F10":   "2",
	"MC1F30":   "3",
	"MC1F60":   "4",
	"MC1F100":  "5",
	"MC1F10HP": "6",
	"MC1F2P10": "7",
	"MC1F6P10": "8",
	"MC1F10A":  "9",
	"MC2F330":  "10",
	"MC2F47":   "11",
	"MC2F57F":  "12",
	"MC2F860":  "13",
	"MC2F5360": "14",
})

var mc2000bReferences = parameter.NewValMapping(map[any]string{
	"int-outer": "0",
	"int-inner": "1",
	"ext-outer": "2",
	"ext-inner": "3",
})

// MC2000B drives a Thorlabs MC2000B optical chopper.
type MC2000B struct {
	*instrument.IPInstrument
}

// NewMC2000B connects to an MC2000B at address, registers its
// parameters and reads the device identity.
func NewMC2000B(ctx context.Context, name, address string, opts Options) (*MC2000B, error) {
	ip, err := instrument.Connect(ctx, name, DriverMC2000B, address, serialOptions(opts.Transport))
	if err != nil {
		return nil, err
	}

	d := &MC2000B{IPInstrument: ip}
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

func (d *MC2000B) addParameters() error {
	return d.NewParameters(
		parameter.Config{
			Name:   "identity",
			Label:  "Identity",
			GetCmd: "id?",
		},
		parameter.Config{
			Name:   "commands",
			Label:  "Command listing",
			GetCmd: "?",
		},
		parameter.Config{
			Name:      "frequency",
			Label:     "Chopping frequency",
			Unit:      "Hz",
			GetCmd:    "freq?",
			SetCmd:    "freq={}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(20, 1000),
		},
		parameter.Config{
			Name:    "enable",
			Label:   "Chopper running",
			GetCmd:  "enable?",
			SetCmd:  "enable={}",
			Mapping: parameter.OnOff(),
		},
		parameter.Config{
			Name:    "blade",
			Label:   "Installed blade",
			GetCmd:  "blade?",
			SetCmd:  "blade={}",
			Mapping: mc2000bBlades,
		},
		parameter.Config{
			Name:      "phase",
			Label:     "Phase",
			Unit:      "°",
			GetCmd:    "phase?",
			SetCmd:    "phase={}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(0, 360),
		},
		parameter.Config{
			Name:    "reference",
			Label:   "Reference mode",
			GetCmd:  "ref?",
			SetCmd:  "ref={}",
			Mapping: mc2000bReferences,
		},
	)
}
