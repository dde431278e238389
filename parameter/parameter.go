// Package parameter models a single controllable quantity on an
// instrument: a named, typed value with get/set plumbing, validation,
// and translation between Go values and wire tokens.
package parameter

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benchtop-io/benchd/internal/metrics"
	"github.com/benchtop-io/benchd/transport"
	"github.com/benchtop-io/benchd/validators"
)

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidValue marks a value the validator rejected before anything
// reached the instrument. Callers use it to tell a bad request apart
// from a failing instrument.
var ErrInvalidValue = errors.New("invalid value")

// GetFunc produces a value in software, for parameters that are
// derived rather than queried from the instrument.
type GetFunc func(ctx context.Context) (any, error)

// SetFunc applies a value in software, for parameters whose write path
// is more than a single command.
type SetFunc func(ctx context.Context, v any) error

// Config describes one parameter. At most one of GetCmd/Get makes it
// gettable and at most one of SetCmd/Set makes it settable; a
// parameter may be either, both, or (rarely) neither.
type Config struct {
	// Name identifies the parameter on its instrument. Letters, digits
	// and underscores, not starting with a digit.
	Name string
	// Label is the human-readable name used in snapshots. Defaults to
	// Name.
	Label string
	// Unit is the physical unit, e.g. "V" or "Hz".
	Unit string

	// GetCmd is the query that reads the value, e.g. "FREQ?".
	GetCmd string
	// SetCmd is the command that writes the value. It must contain the
	// placeholder "{}", which is replaced by the encoded value.
	SetCmd string

	// Get reads the value in software instead of a wire query.
	Get GetFunc
	// Set writes the value in software instead of a wire command.
	Set SetFunc

	// Validator checks candidate values before Set touches the wire.
	// Defaults to Mapping.Validator() when a Mapping is configured.
	Validator validators.Validator
	// Mapping translates values to and from wire tokens. Exclusive
	// with Parse and Format.
	Mapping *ValMapping
	// Parse converts a raw query reply into a value. When nil and no
	// Mapping is set, Get returns the trimmed reply string.
	Parse func(reply string) (any, error)
	// Format renders a value for the wire. When nil and no Mapping is
	// set, Set uses fmt.Sprint.
	Format func(v any) (string, error)
}

// Parameter is one controllable quantity bound to an instrument's
// transport. Get and Set remember the last value for Snapshot, so a
// monitoring pass can report state without touching the hardware.
type Parameter struct {
	cfg   Config
	tr    transport.Transport
	owner string

	mu       sync.Mutex
	last     any
	lastTime time.Time
}

// New validates cfg and binds it to tr. owner is the instrument name,
// used in metrics and error context.
func New(tr transport.Transport, owner string, cfg Config) (*Parameter, error) {
	if !nameRe.MatchString(cfg.Name) {
		return nil, fmt.Errorf("parameter name %q is not a valid identifier", cfg.Name)
	}
	if cfg.GetCmd != "" && cfg.Get != nil {
		return nil, fmt.Errorf("parameter %s: GetCmd and Get are mutually exclusive", cfg.Name)
	}
	if cfg.SetCmd != "" && cfg.Set != nil {
		return nil, fmt.Errorf("parameter %s: SetCmd and Set are mutually exclusive", cfg.Name)
	}
	if cfg.SetCmd != "" && !strings.Contains(cfg.SetCmd, "{}") {
		return nil, fmt.Errorf("parameter %s: SetCmd %q has no {} placeholder", cfg.Name, cfg.SetCmd)
	}
	if cfg.Mapping != nil && (cfg.Parse != nil || cfg.Format != nil) {
		return nil, fmt.Errorf("parameter %s: Mapping is exclusive with Parse and Format", cfg.Name)
	}
	if (cfg.GetCmd != "" || cfg.SetCmd != "") && tr == nil {
		return nil, fmt.Errorf("parameter %s: wire commands need a transport", cfg.Name)
	}
	if cfg.Label == "" {
		cfg.Label = cfg.Name
	}
	if cfg.Validator == nil && cfg.Mapping != nil {
		cfg.Validator = cfg.Mapping.Validator()
	}
	return &Parameter{cfg: cfg, tr: tr, owner: owner}, nil
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.cfg.Name }

// Label returns the display label.
func (p *Parameter) Label() string { return p.cfg.Label }

// Unit returns the physical unit, or "" for dimensionless values.
func (p *Parameter) Unit() string { return p.cfg.Unit }

// Gettable reports whether Get can produce a value.
func (p *Parameter) Gettable() bool { return p.cfg.GetCmd != "" || p.cfg.Get != nil }

// Settable reports whether Set can apply a value.
func (p *Parameter) Settable() bool { return p.cfg.SetCmd != "" || p.cfg.Set != nil }

// Get reads the current value, querying the instrument when GetCmd is
// configured. The result is cached for Snapshot.
func (p *Parameter) Get(ctx context.Context) (any, error) {
	if !p.Gettable() {
		return nil, fmt.Errorf("%s is not gettable", p.qualified())
	}
	var (
		v   any
		err error
	)
	if p.cfg.Get != nil {
		v, err = p.cfg.Get(ctx)
	} else {
		var reply string
		reply, err = p.tr.Query(ctx, p.cfg.GetCmd)
		if err == nil {
			v, err = p.decode(reply)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p.qualified(), err)
	}
	metrics.IncParameterRead(p.owner)
	p.remember(v)
	return v, nil
}

// Set validates and applies v, writing to the instrument when SetCmd
// is configured. The value is cached for Snapshot.
func (p *Parameter) Set(ctx context.Context, v any) error {
	if !p.Settable() {
		return fmt.Errorf("%s is not settable", p.qualified())
	}
	if p.cfg.Validator != nil {
		if err := p.cfg.Validator.Validate(v); err != nil {
			return fmt.Errorf("set %s: %w: %v", p.qualified(), ErrInvalidValue, err)
		}
	}
	if p.cfg.Set != nil {
		if err := p.cfg.Set(ctx, v); err != nil {
			return fmt.Errorf("set %s: %w", p.qualified(), err)
		}
	} else {
		token, err := p.encode(v)
		if err != nil {
			return fmt.Errorf("set %s: %w", p.qualified(), err)
		}
		if err := p.tr.Write(ctx, strings.ReplaceAll(p.cfg.SetCmd, "{}", token)); err != nil {
			return fmt.Errorf("set %s: %w", p.qualified(), err)
		}
	}
	metrics.IncParameterWrite(p.owner)
	p.remember(v)
	return nil
}

// GetFloat reads the value and coerces it to float64.
func (p *Parameter) GetFloat(ctx context.Context) (float64, error) {
	v, err := p.Get(ctx)
	if err != nil {
		return 0, err
	}
	switch n := validators.Canonical(v).(type) {
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	}
	return 0, fmt.Errorf("get %s: value %v (%T) is not numeric", p.qualified(), v, v)
}

// GetInt reads the value and coerces it to int64. Whole floats are
// accepted, fractional values are not.
func (p *Parameter) GetInt(ctx context.Context) (int64, error) {
	v, err := p.Get(ctx)
	if err != nil {
		return 0, err
	}
	if n, ok := validators.Canonical(v).(int64); ok {
		return n, nil
	}
	return 0, fmt.Errorf("get %s: value %v (%T) is not an integer", p.qualified(), v, v)
}

// GetBool reads the value and asserts it to bool.
func (p *Parameter) GetBool(ctx context.Context) (bool, error) {
	v, err := p.Get(ctx)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("get %s: value %v (%T) is not a bool", p.qualified(), v, v)
	}
	return b, nil
}

// GetString reads the value and renders it as a string.
func (p *Parameter) GetString(ctx context.Context) (string, error) {
	v, err := p.Get(ctx)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// Snapshot is a point-in-time record of a parameter's cached state.
type Snapshot struct {
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Unit      string    `json:"unit,omitempty"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"ts"`
}

// Snapshot returns the cached value and when it was last observed. A
// zero Timestamp means the parameter has never been read or set.
func (p *Parameter) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Name:      p.cfg.Name,
		Label:     p.cfg.Label,
		Unit:      p.cfg.Unit,
		Value:     p.last,
		Timestamp: p.lastTime,
	}
}

func (p *Parameter) decode(reply string) (any, error) {
	reply = strings.TrimSpace(reply)
	if p.cfg.Mapping != nil {
		v, ok := p.cfg.Mapping.Value(reply)
		if !ok {
			return nil, fmt.Errorf("unexpected reply %q", reply)
		}
		return v, nil
	}
	if p.cfg.Parse != nil {
		return p.cfg.Parse(reply)
	}
	return reply, nil
}

func (p *Parameter) encode(v any) (string, error) {
	if p.cfg.Mapping != nil {
		token, ok := p.cfg.Mapping.Wire(v)
		if !ok {
			return "", fmt.Errorf("no wire token for value %v", v)
		}
		return token, nil
	}
	if p.cfg.Format != nil {
		return p.cfg.Format(v)
	}
	return fmt.Sprint(v), nil
}

func (p *Parameter) remember(v any) {
	p.mu.Lock()
	p.last = v
	p.lastTime = time.Now()
	p.mu.Unlock()
}

func (p *Parameter) qualified() string {
	if p.owner == "" {
		return p.cfg.Name
	}
	return p.owner + "." + p.cfg.Name
}
