package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/metrics"
	"github.com/benchtop-io/benchd/parameter"
	"github.com/benchtop-io/benchd/transport"
)

// IPInstrument is a Base bound to a SCPI transport. Drivers embed it
// and register parameters against its connection.
type IPInstrument struct {
	*Base
	tr     transport.Transport
	addr   string
	logger zerolog.Logger

	connectedAt time.Time
}

// Connect dials an instrument and wraps the connection for a driver.
// opts.Name is overwritten with name so transport logs and metrics
// carry the inventory name.
func Connect(ctx context.Context, name, driver, addr string, opts transport.Options) (*IPInstrument, error) {
	opts.Name = name
	tc, err := transport.Dial(ctx, addr, opts)
	metrics.IncInstrumentConnect(driver, err == nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s (%s): %w", name, addr, err)
	}
	return &IPInstrument{
		Base: NewBase(name, driver),
		tr:   tc,
		addr: addr,
		logger: log.WithComponent("instrument").With().
			Str(log.FieldInstrument, name).
			Str(log.FieldDriver, driver).
			Str(log.FieldAddress, addr).
			Logger(),
		connectedAt: time.Now(),
	}, nil
}

// Wrap binds an already open transport, for tests and for drivers
// with bespoke dialing.
func Wrap(name, driver, addr string, tr transport.Transport) *IPInstrument {
	return &IPInstrument{
		Base: NewBase(name, driver),
		tr:   tr,
		addr: addr,
		logger: log.WithComponent("instrument").With().
			Str(log.FieldInstrument, name).
			Str(log.FieldDriver, driver).
			Str(log.FieldAddress, addr).
			Logger(),
		connectedAt: time.Now(),
	}
}

// Transport exposes the underlying connection for parameter wiring.
func (i *IPInstrument) Transport() transport.Transport { return i.tr }

// NewParameter builds a parameter on this connection and registers it.
func (i *IPInstrument) NewParameter(cfg parameter.Config) error {
	p, err := parameter.New(i.tr, i.Name(), cfg)
	if err != nil {
		return err
	}
	return i.AddParameter(p)
}

// NewParameters builds and registers several parameters, stopping at
// the first failure.
func (i *IPInstrument) NewParameters(cfgs ...parameter.Config) error {
	for _, cfg := range cfgs {
		if err := i.NewParameter(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Address returns the dialed address.
func (i *IPInstrument) Address() string { return i.addr }

// Ask sends a query and returns the trimmed reply.
func (i *IPInstrument) Ask(ctx context.Context, cmd string) (string, error) {
	return i.tr.Query(ctx, cmd)
}

// Write sends a command that expects no reply.
func (i *IPInstrument) Write(ctx context.Context, cmd string) error {
	return i.tr.Write(ctx, cmd)
}

// QueryIDN asks *IDN?, records the parsed identity, and logs the
// connect message. Drivers whose hardware speaks a different identity
// command parse it themselves and call SetIDN + LogConnected.
func (i *IPInstrument) QueryIDN(ctx context.Context) (IDN, error) {
	reply, err := i.Ask(ctx, "*IDN?")
	if err != nil {
		return IDN{}, fmt.Errorf("identify %s: %w", i.Name(), err)
	}
	idn := ParseIDN(reply)
	i.SetIDN(idn)
	i.LogConnected()
	return idn, nil
}

// LogConnected emits the one-line connect message with the recorded
// identity and how long the bring-up took.
func (i *IPInstrument) LogConnected() {
	idn := i.IDN()
	i.logger.Info().
		Str("vendor", idn.Vendor).
		Str("model", idn.Model).
		Str("serial", idn.Serial).
		Str("firmware", idn.Firmware).
		Dur("took", time.Since(i.connectedAt)).
		Msg("instrument connected")
}

// Snapshot collects cached parameter values plus connection details.
func (i *IPInstrument) Snapshot(ctx context.Context) (Snapshot, error) {
	snap, err := i.Base.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Address = i.addr
	return snap, nil
}

// Close shuts the connection down. Safe to call more than once.
func (i *IPInstrument) Close() error {
	if err := i.Base.Close(); err != nil {
		return err
	}
	if i.tr == nil {
		return nil
	}
	return i.tr.Close()
}
