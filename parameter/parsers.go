package parameter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseFloat interprets a query reply as a float64. Instruments reply
// in plain or exponent notation ("2.5", "5.000000E-01", "+1.00000E+01").
func ParseFloat(reply string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return nil, fmt.Errorf("parse float reply %q: %w", reply, err)
	}
	return f, nil
}

// ParseInt interprets a query reply as an int64. Some firmwares answer
// integer queries in float notation ("4.000000E+00"), so whole floats
// are accepted too.
func ParseInt(reply string) (any, error) {
	s := strings.TrimSpace(reply)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse int reply %q: %w", reply, err)
	}
	if math.Trunc(f) != f || math.IsInf(f, 0) {
		return nil, fmt.Errorf("parse int reply %q: not a whole number", reply)
	}
	return int64(f), nil
}

// ParseBool interprets a query reply as a bool, accepting the common
// SCPI spellings "0"/"1" and "OFF"/"ON".
func ParseBool(reply string) (any, error) {
	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	}
	return nil, fmt.Errorf("parse bool reply %q", reply)
}

// FormatOnOff renders a bool as the SCPI keyword form. Many devices
// report switches as "0"/"1" but only accept "ON"/"OFF" on writes;
// pair this with ParseBool for those.
func FormatOnOff(v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", fmt.Errorf("format on/off value %v (%T)", v, v)
	}
	if b {
		return "ON", nil
	}
	return "OFF", nil
}

// FormatFloat renders a float value for the wire in compact notation.
func FormatFloat(v any) (string, error) {
	switch f := v.(type) {
	case float64:
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(f), 'g', -1, 32), nil
	case int:
		return strconv.Itoa(f), nil
	case int64:
		return strconv.FormatInt(f, 10), nil
	}
	return "", fmt.Errorf("format float value %v (%T)", v, v)
}
