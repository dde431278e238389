// Package loops is the old import path of the legacy sweep engine.
//
// Deprecated: use github.com/benchtop-io/benchd/legacy/loops instead.
package loops

import (
	legacyactions "github.com/benchtop-io/benchd/legacy/actions"
	legacyloops "github.com/benchtop-io/benchd/legacy/loops"
	"github.com/benchtop-io/benchd/parameter"
)

// Deprecated: use legacy/loops.Loop.
type Loop = legacyloops.Loop

// Deprecated: use legacy/loops.Sweep.
type Sweep = legacyloops.Sweep

// Deprecated: use legacy/loops.Record.
func Record(params ...*parameter.Parameter) legacyactions.Action {
	return legacyloops.Record(params...)
}
