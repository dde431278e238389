// Package plots is the old import path of the gnuplot data-file
// writer.
//
// Deprecated: use github.com/benchtop-io/benchd/legacy/plots instead.
package plots

import (
	legacydata "github.com/benchtop-io/benchd/legacy/data"
	legacyplots "github.com/benchtop-io/benchd/legacy/plots"
)

// Deprecated: use legacy/plots.Series.
type Series = legacyplots.Series

// Deprecated: use legacy/plots.XY.
func XY(ds *legacydata.DataSet, xID, yID string) (legacyplots.Series, error) {
	return legacyplots.XY(ds, xID, yID)
}

// Deprecated: use legacy/plots.WriteDat.
func WriteDat(path string, series ...legacyplots.Series) error {
	return legacyplots.WriteDat(path, series...)
}
