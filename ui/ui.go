// Package ui holds display helpers shared by the console and the
// dashboard: SI-prefixed value formatting, duration rounding, and
// bordered tables.
package ui

import (
	"math"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var siPrefixes = map[int]string{
	-24: "y", -21: "z", -18: "a", -15: "f", -12: "p", -9: "n",
	-6: "µ", -3: "m", 0: "", 3: "k", 6: "M", 9: "G", 12: "T",
	15: "P", 18: "E", 21: "Z", 24: "Y",
}

// FormatSI renders a value with an engineering SI prefix folded into
// the unit, e.g. FormatSI(1.2e-3, "V") == "1.2 mV". The mantissa
// keeps four significant digits. A zero, NaN or infinite value is
// rendered without a prefix.
func FormatSI(v float64, unit string) string {
	switch {
	case math.IsNaN(v):
		return withUnit("NaN", "", unit)
	case math.IsInf(v, 0):
		return withUnit(strconv.FormatFloat(v, 'g', -1, 64), "", unit)
	case v == 0:
		return withUnit("0", "", unit)
	}

	abs := math.Abs(v)
	eng := 0
	for abs >= 1000 && eng < 24 {
		abs /= 1000
		eng += 3
	}
	for abs < 1 && eng > -24 {
		abs *= 1000
		eng -= 3
	}
	mantissa := abs
	if v < 0 {
		mantissa = -abs
	}
	return withUnit(strconv.FormatFloat(mantissa, 'g', 4, 64), siPrefixes[eng], unit)
}

func withUnit(num, prefix, unit string) string {
	suffix := prefix + unit
	if suffix == "" {
		return num
	}
	return num + " " + suffix
}

// RoundDuration trims a duration to a display-friendly resolution,
// coarser for longer durations.
func RoundDuration(d time.Duration) time.Duration {
	abs := d
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= time.Minute:
		return d.Round(time.Second)
	case abs >= time.Second:
		return d.Round(10 * time.Millisecond)
	case abs >= time.Millisecond:
		return d.Round(10 * time.Microsecond)
	case abs >= time.Microsecond:
		return d.Round(10 * time.Nanosecond)
	default:
		return d
	}
}

// cellStyle pads every cell and applies no color, so the rendered
// table stays plain text for non-terminal writers.
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Table renders a left-aligned bordered text table. Rows shorter than
// the header render empty trailing cells; extra cells are dropped.
func Table(headers []string, rows [][]string) string {
	normalized := make([][]string, len(rows))
	for r, row := range rows {
		cells := make([]string, len(headers))
		for i := range headers {
			if i < len(row) {
				cells[i] = row[i]
			}
		}
		normalized[r] = cells
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle()).
		StyleFunc(func(int, int) lipgloss.Style { return cellStyle }).
		Headers(headers...).
		Rows(normalized...)
	return t.String() + "\n"
}
