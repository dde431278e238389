// Package measure is the old import path of the one-shot reading
// helper.
//
// Deprecated: use github.com/benchtop-io/benchd/legacy/measure
// instead.
package measure

import (
	legacymeasure "github.com/benchtop-io/benchd/legacy/measure"
	"github.com/benchtop-io/benchd/parameter"
)

// Deprecated: use legacy/measure.OneShot.
type OneShot = legacymeasure.OneShot

// Deprecated: use legacy/measure.Measure.
func Measure(params ...*parameter.Parameter) *legacymeasure.OneShot {
	return legacymeasure.Measure(params...)
}
