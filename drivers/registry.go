// Package drivers wires every instrument driver into one registry the
// station layer builds instruments from. Registration is an explicit
// table rather than init side effects, so importing a driver package
// never mutates global state.
package drivers

import (
	"context"

	"github.com/benchtop-io/benchd/drivers/keithley"
	"github.com/benchtop-io/benchd/drivers/keysight"
	"github.com/benchtop-io/benchd/drivers/liquidinstruments"
	"github.com/benchtop-io/benchd/drivers/rohdeschwarz"
	"github.com/benchtop-io/benchd/drivers/thorlabs"
	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/transport"
)

// Config carries the per-instrument settings a station inventory
// hands to a driver factory.
type Config struct {
	Transport transport.Options
	// Settings holds driver-specific flags from the inventory entry,
	// e.g. reset: true for drivers that support a bring-up reset.
	Settings map[string]any
}

// Bool reads a driver-specific boolean setting. Missing keys and
// non-boolean values read as false.
func (c Config) Bool(key string) bool {
	b, ok := c.Settings[key].(bool)
	return ok && b
}

// Factory builds a connected instrument.
type Factory func(ctx context.Context, name, address string, cfg Config) (instrument.Instrument, error)

// Registry returns the driver id to factory table. Each call returns
// a fresh map, so callers may add site-specific drivers without
// touching the shared set.
func Registry() map[string]Factory {
	return map[string]Factory{
		thorlabs.DriverMCLS: func(ctx context.Context, name, address string, cfg Config) (instrument.Instrument, error) {
			return thorlabs.NewMCLS(ctx, name, address, thorlabs.Options{Transport: cfg.Transport})
		},
		thorlabs.DriverMC2000B: func(ctx context.Context, name, address string, cfg Config) (instrument.Instrument, error) {
			return thorlabs.NewMC2000B(ctx, name, address, thorlabs.Options{Transport: cfg.Transport})
		},
		rohdeschwarz.DriverHMC8043: func(ctx context.Context, name, address string, cfg Config) (instrument.Instrument, error) {
			return rohdeschwarz.NewHMC8043(ctx, name, address, rohdeschwarz.Options{Transport: cfg.Transport})
		},
		rohdeschwarz.DriverHMF2550: func(ctx context.Context, name, address string, cfg Config) (instrument.Instrument, error) {
			return rohdeschwarz.NewHMF2550(ctx, name, address, rohdeschwarz.Options{Transport: cfg.Transport})
		},
		keithley.Driver6500: func(ctx context.Context, name, address string, cfg Config) (instrument.Instrument, error) {
			return keithley.NewModel6500(ctx, name, address, keithley.Options{
				Transport: cfg.Transport,
				Reset:     cfg.Bool("reset"),
			})
		},
		keysight.DriverB2902B: func(ctx context.Context, name, address string, cfg Config) (instrument.Instrument, error) {
			return keysight.NewB2902B(ctx, name, address, keysight.Options{Transport: cfg.Transport})
		},
		liquidinstruments.DriverMokuGo: func(ctx context.Context, name, address string, cfg Config) (instrument.Instrument, error) {
			return liquidinstruments.NewMokuGo(ctx, name, address, liquidinstruments.Options{Transport: cfg.Transport})
		},
	}
}
