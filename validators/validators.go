// Package validators constrains the values instrument parameters accept.
//
// A driver attaches a Validator to each settable parameter; Set rejects
// out-of-range values before anything reaches the wire, so a typo cannot
// push 30 V into a diode rated for 3.
package validators

import (
	"fmt"
	"math"
	"strings"
)

// Validator checks a candidate parameter value.
type Validator interface {
	Validate(v any) error
}

// Numbers accepts any numeric value within [min, max].
func Numbers(min, max float64) Validator {
	return numbers{min: min, max: max}
}

type numbers struct {
	min, max float64
}

func (n numbers) Validate(v any) error {
	f, ok := AsFloat(v)
	if !ok {
		return fmt.Errorf("%v is not a number", v)
	}
	if math.IsNaN(f) {
		return fmt.Errorf("NaN is not a valid value")
	}
	if f < n.min || f > n.max {
		return fmt.Errorf("%v is out of range %v to %v", v, n.min, n.max)
	}
	return nil
}

func (n numbers) String() string {
	return fmt.Sprintf("Numbers[%v, %v]", n.min, n.max)
}

// Ints accepts integer values within [min, max]. Whole-valued floats
// count as integers, since decoded config and JSON deliver them that way.
func Ints(min, max int64) Validator {
	return ints{min: min, max: max}
}

type ints struct {
	min, max int64
}

func (n ints) Validate(v any) error {
	i, ok := AsInt(v)
	if !ok {
		return fmt.Errorf("%v is not an integer", v)
	}
	if i < n.min || i > n.max {
		return fmt.Errorf("%v is out of range %d to %d", v, n.min, n.max)
	}
	return nil
}

func (n ints) String() string {
	return fmt.Sprintf("Ints[%d, %d]", n.min, n.max)
}

// Enum accepts exactly the listed values.
func Enum(values ...any) Validator {
	allowed := make(map[any]struct{}, len(values))
	for _, v := range values {
		allowed[Canonical(v)] = struct{}{}
	}
	return enum{allowed: allowed, values: values}
}

type enum struct {
	allowed map[any]struct{}
	values  []any
}

func (e enum) Validate(v any) error {
	if _, ok := e.allowed[Canonical(v)]; !ok {
		return fmt.Errorf("%v is not in %v", v, e.values)
	}
	return nil
}

func (e enum) String() string {
	parts := make([]string, len(e.values))
	for i, v := range e.values {
		parts[i] = fmt.Sprint(v)
	}
	return "Enum[" + strings.Join(parts, ", ") + "]"
}

// Bools accepts true and false.
func Bools() Validator {
	return bools{}
}

type bools struct{}

func (bools) Validate(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("%v is not a bool", v)
	}
	return nil
}

func (bools) String() string { return "Bools" }

// Strings accepts strings with length in [minLen, maxLen]. A maxLen
// of 0 means unbounded.
func Strings(minLen, maxLen int) Validator {
	return stringsValidator{min: minLen, max: maxLen}
}

type stringsValidator struct {
	min, max int
}

func (s stringsValidator) Validate(v any) error {
	str, ok := v.(string)
	if !ok {
		return fmt.Errorf("%v is not a string", v)
	}
	if len(str) < s.min {
		return fmt.Errorf("%q is shorter than %d characters", str, s.min)
	}
	if s.max > 0 && len(str) > s.max {
		return fmt.Errorf("%q is longer than %d characters", str, s.max)
	}
	return nil
}

func (s stringsValidator) String() string {
	if s.max > 0 {
		return fmt.Sprintf("Strings[%d, %d]", s.min, s.max)
	}
	return fmt.Sprintf("Strings[%d, inf]", s.min)
}

// Anything accepts every value.
func Anything() Validator {
	return anything{}
}

type anything struct{}

func (anything) Validate(any) error { return nil }

func (anything) String() string { return "Anything" }

// MultiType accepts a value that passes at least one of the given
// validators. Useful for parameters that take a number or a keyword
// like "inf".
func MultiType(vs ...Validator) Validator {
	return multi{vs: vs}
}

type multi struct {
	vs []Validator
}

func (m multi) Validate(v any) error {
	if len(m.vs) == 0 {
		return fmt.Errorf("no validators configured")
	}
	var errs []string
	for _, val := range m.vs {
		err := val.Validate(v)
		if err == nil {
			return nil
		}
		errs = append(errs, err.Error())
	}
	return fmt.Errorf("%v did not pass any constraint: %s", v, strings.Join(errs, "; "))
}

func (m multi) String() string {
	parts := make([]string, len(m.vs))
	for i, v := range m.vs {
		parts[i] = fmt.Sprint(v)
	}
	return "MultiType[" + strings.Join(parts, ", ") + "]"
}

// AsFloat widens any numeric value to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// AsInt narrows a value to int64 when it is integral. Whole-valued floats
// convert; fractional ones do not.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int64(n), true
	case float32:
		f := float64(n)
		if f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// Canonical folds numeric types to one representation, so Enum(1)
// accepts int64(1) and 1.0, and map lookups keyed on values behave the
// same way.
func Canonical(v any) any {
	if i, ok := AsInt(v); ok {
		return i
	}
	if f, ok := AsFloat(v); ok {
		return f
	}
	return v
}
