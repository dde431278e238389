package parameter

import (
	"github.com/benchtop-io/benchd/validators"
)

// ValMapping translates between user-facing parameter values and the
// tokens an instrument speaks. A chopper blade named "MC1F60" may be
// "4" on the wire; booleans are usually "0"/"1" or "ON"/"OFF".
type ValMapping struct {
	toWire   map[any]string
	fromWire map[string]any
}

// NewValMapping builds a bidirectional mapping from value to wire token.
// Wire tokens must be unique; duplicates panic, since that is a driver
// authoring bug.
func NewValMapping(pairs map[any]string) *ValMapping {
	m := &ValMapping{
		toWire:   make(map[any]string, len(pairs)),
		fromWire: make(map[string]any, len(pairs)),
	}
	for v, wire := range pairs {
		key := validators.Canonical(v)
		if _, dup := m.toWire[key]; dup {
			panic("parameter: duplicate mapping value")
		}
		if _, dup := m.fromWire[wire]; dup {
			panic("parameter: duplicate wire token " + wire)
		}
		m.toWire[key] = wire
		m.fromWire[wire] = v
	}
	return m
}

// InverseOf builds a mapping from a wire-to-value table, for drivers
// whose manuals are organized by status code.
func InverseOf(pairs map[string]any) *ValMapping {
	inverted := make(map[any]string, len(pairs))
	for wire, v := range pairs {
		if _, dup := inverted[v]; dup {
			panic("parameter: duplicate mapping value")
		}
		inverted[v] = wire
	}
	return NewValMapping(inverted)
}

// OnOff is the common mapping for boolean switches speaking "1"/"0".
func OnOff() *ValMapping {
	return NewValMapping(map[any]string{true: "1", false: "0"})
}

// Wire returns the wire token for a user value.
func (m *ValMapping) Wire(v any) (string, bool) {
	wire, ok := m.toWire[validators.Canonical(v)]
	return wire, ok
}

// Value returns the user value for a wire token.
func (m *ValMapping) Value(wire string) (any, bool) {
	v, ok := m.fromWire[wire]
	return v, ok
}

// Values lists the accepted user values.
func (m *ValMapping) Values() []any {
	out := make([]any, 0, len(m.fromWire))
	for _, v := range m.fromWire {
		out = append(out, v)
	}
	return out
}

// Validator returns an Enum over the mapping's accepted values, so a
// mapped parameter rejects unknown values without extra wiring.
func (m *ValMapping) Validator() validators.Validator {
	return validators.Enum(m.Values()...)
}
