package rohdeschwarz

import (
	"context"
	"fmt"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/parameter"
	"github.com/benchtop-io/benchd/validators"
)

var hmcOutputs = parameter.NewValMapping(map[any]string{
	"out1": "OUT1",
	"out2": "OUT2",
	"out3": "OUT3",
})

// HMC8043 drives a Rohde & Schwarz HMC8043 three-channel power supply.
// Each output delivers up to 32.05 V and 3 A inside the instrument's
// shared 100 W envelope. Voltage, current and output parameters act on
// the output selected via select_output or select_channel.
type HMC8043 struct {
	*instrument.IPInstrument
}

// NewHMC8043 connects to an HMC8043 at address, registers its
// parameters and reads the device identity.
func NewHMC8043(ctx context.Context, name, address string, opts Options) (*HMC8043, error) {
	ip, err := instrument.Connect(ctx, name, DriverHMC8043, address, opts.Transport)
	if err != nil {
		return nil, err
	}

	d := &HMC8043{IPInstrument: ip}
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

func (d *HMC8043) addParameters() error {
	return d.NewParameters(
		// The instrument reports the selected output as a bare channel
		// number but wants the OUTn token on the way in.
		parameter.Config{
			Name:    "select_output",
			Label:   "Selected output",
			Get:     d.getSelectedOutput,
			SetCmd:  "INST:SEL {}",
			Mapping: hmcOutputs,
		},
		parameter.Config{
			Name:      "select_channel",
			Label:     "Selected channel number",
			GetCmd:    "INST:NSEL?",
			SetCmd:    "INST:NSEL {}",
			Parse:     parameter.ParseInt,
			Validator: validators.Enum(1, 2, 3),
		},
		parameter.Config{
			Name:      "voltage",
			Label:     "Voltage setpoint",
			Unit:      "V",
			GetCmd:    "VOLT?",
			SetCmd:    "VOLT {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(0, 32.05),
		},
		parameter.Config{
			Name:      "voltage_step",
			Label:     "Voltage step size",
			Unit:      "V",
			GetCmd:    "VOLT:STEP?",
			SetCmd:    "VOLT:STEP {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(1e-3, 32.05),
		},
		parameter.Config{
			Name:      "current",
			Label:     "Current setpoint",
			Unit:      "A",
			GetCmd:    "CURR?",
			SetCmd:    "CURR {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(5e-4, 3),
		},
		parameter.Config{
			Name:      "current_step",
			Label:     "Current step size",
			Unit:      "A",
			GetCmd:    "CURR:STEP?",
			SetCmd:    "CURR:STEP {}",
			Parse:     parameter.ParseFloat,
			Format:    parameter.FormatFloat,
			Validator: validators.Numbers(5e-4, 3),
		},
		// The supply reports output state as 0/1 but only accepts the
		// ON/OFF tokens.
		parameter.Config{
			Name:      "output",
			Label:     "Selected output enabled",
			GetCmd:    "OUTP?",
			SetCmd:    "OUTP {}",
			Parse:     parameter.ParseBool,
			Format:    parameter.FormatOnOff,
			Validator: validators.Bools(),
		},
		parameter.Config{
			Name:      "output_channel",
			Label:     "Channel output enabled",
			GetCmd:    "OUTP:CHAN?",
			SetCmd:    "OUTP:CHAN {}",
			Parse:     parameter.ParseBool,
			Format:    parameter.FormatOnOff,
			Validator: validators.Bools(),
		},
		parameter.Config{
			Name:      "output_master",
			Label:     "Master output enabled",
			GetCmd:    "OUTP:MAST?",
			SetCmd:    "OUTP:MAST {}",
			Parse:     parameter.ParseBool,
			Format:    parameter.FormatOnOff,
			Validator: validators.Bools(),
		},
	)
}

func (d *HMC8043) getSelectedOutput(ctx context.Context) (any, error) {
	reply, err := d.Ask(ctx, "INST:SEL?")
	if err != nil {
		return nil, err
	}
	n, err := parameter.ParseInt(reply)
	if err != nil {
		return nil, fmt.Errorf("selected output: %w", err)
	}
	ch := n.(int64)
	if ch < 1 || ch > 3 {
		return nil, fmt.Errorf("selected output %d out of range", ch)
	}
	return fmt.Sprintf("out%d", ch), nil
}

// Apply sets voltage and current of the selected output in one
// command.
func (d *HMC8043) Apply(ctx context.Context, voltage, current float64) error {
	if err := validators.Numbers(1e-3, 32.05).Validate(voltage); err != nil {
		return fmt.Errorf("apply voltage: %w", err)
	}
	if err := validators.Numbers(5e-4, 3).Validate(current); err != nil {
		return fmt.Errorf("apply current: %w", err)
	}
	vtok, err := parameter.FormatFloat(voltage)
	if err != nil {
		return err
	}
	ctok, err := parameter.FormatFloat(current)
	if err != nil {
		return err
	}
	return d.Write(ctx, fmt.Sprintf("APPL %s,%s", vtok, ctok))
}

// VoltageUp raises the voltage setpoint by one voltage_step.
func (d *HMC8043) VoltageUp(ctx context.Context) error {
	return d.Write(ctx, "VOLT UP")
}

// VoltageDown lowers the voltage setpoint by one voltage_step.
func (d *HMC8043) VoltageDown(ctx context.Context) error {
	return d.Write(ctx, "VOLT DOWN")
}

// CurrentUp raises the current setpoint by one current_step.
func (d *HMC8043) CurrentUp(ctx context.Context) error {
	return d.Write(ctx, "CURR UP")
}

// CurrentDown lowers the current setpoint by one current_step.
func (d *HMC8043) CurrentDown(ctx context.Context) error {
	return d.Write(ctx, "CURR DOWN")
}

// Reset restores the factory power-on state.
func (d *HMC8043) Reset(ctx context.Context) error {
	return d.Write(ctx, "*RST")
}
