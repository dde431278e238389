// Package qthelpers is the old import path of the display helpers,
// named for the toolkit they once wrapped.
//
// Deprecated: use github.com/benchtop-io/benchd/ui instead.
package qthelpers

import (
	"time"

	"github.com/benchtop-io/benchd/ui"
)

// Deprecated: use ui.FormatSI.
func FormatSI(v float64, unit string) string { return ui.FormatSI(v, unit) }

// Deprecated: use ui.RoundDuration.
func RoundDuration(d time.Duration) time.Duration { return ui.RoundDuration(d) }

// Deprecated: use ui.Table.
func Table(headers []string, rows [][]string) string { return ui.Table(headers, rows) }
