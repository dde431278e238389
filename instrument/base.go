package instrument

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benchtop-io/benchd/parameter"
)

// Base is the parameter registry every driver embeds. It is safe for
// concurrent use; parameters keep their registration order so
// snapshots and listings are stable.
type Base struct {
	name   string
	driver string

	mu     sync.RWMutex
	order  []string
	params map[string]*parameter.Parameter
	idn    IDN
	closed bool
}

// NewBase names an instrument and its driver id.
func NewBase(name, driver string) *Base {
	return &Base{
		name:   name,
		driver: driver,
		params: make(map[string]*parameter.Parameter),
	}
}

// Name returns the instrument name from the station inventory.
func (b *Base) Name() string { return b.name }

// Driver returns the driver id the instrument was built from.
func (b *Base) Driver() string { return b.driver }

// IDN returns the identity recorded at connect time.
func (b *Base) IDN() IDN {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.idn
}

// SetIDN records the instrument identity for snapshots. Drivers that
// parse a nonstandard identity reply call this themselves.
func (b *Base) SetIDN(idn IDN) {
	b.mu.Lock()
	b.idn = idn
	b.mu.Unlock()
}

// AddParameter registers p. Names are unique per instrument.
func (b *Base) AddParameter(p *parameter.Parameter) error {
	if p == nil {
		return errors.New("nil parameter")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.params[p.Name()]; dup {
		return fmt.Errorf("duplicate parameter %q on %s", p.Name(), b.name)
	}
	b.params[p.Name()] = p
	b.order = append(b.order, p.Name())
	return nil
}

// AddParameters registers several parameters, stopping at the first
// failure.
func (b *Base) AddParameters(ps ...*parameter.Parameter) error {
	for _, p := range ps {
		if err := b.AddParameter(p); err != nil {
			return err
		}
	}
	return nil
}

// Parameter looks a parameter up by name.
func (b *Base) Parameter(name string) (*parameter.Parameter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.params[name]
	return p, ok
}

// Parameters lists the registered parameters in registration order.
func (b *Base) Parameters() []*parameter.Parameter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*parameter.Parameter, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.params[name])
	}
	return out
}

// Snapshot collects the cached parameter values. It does not touch the
// instrument; call Refresh first for live values.
func (b *Base) Snapshot(_ context.Context) (Snapshot, error) {
	params := b.Parameters()
	snap := Snapshot{
		Name:       b.name,
		Driver:     b.driver,
		IDN:        b.IDN(),
		Parameters: make([]parameter.Snapshot, 0, len(params)),
		TakenAt:    time.Now(),
	}
	for _, p := range params {
		snap.Parameters = append(snap.Parameters, p.Snapshot())
	}
	return snap, nil
}

// Refresh reads every gettable parameter, so the next Snapshot shows
// live values. Read failures are joined rather than aborting the
// sweep; a dead channel on one parameter should not blank the rest.
// Context cancellation stops the sweep early.
func (b *Base) Refresh(ctx context.Context) error {
	var errs []error
	for _, p := range b.Parameters() {
		if !p.Gettable() {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := p.Get(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close marks the instrument closed. Safe to call more than once.
func (b *Base) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (b *Base) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
