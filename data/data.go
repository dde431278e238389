// Package data is the old import path of the in-memory sweep data
// containers.
//
// Deprecated: use github.com/benchtop-io/benchd/legacy/data instead.
package data

import (
	legacydata "github.com/benchtop-io/benchd/legacy/data"
)

// Deprecated: use legacy/data.DataArray.
type DataArray = legacydata.DataArray

// Deprecated: use legacy/data.DataSet.
type DataSet = legacydata.DataSet

// Deprecated: use legacy/data.Formatter.
type Formatter = legacydata.Formatter

// Deprecated: use legacy/data.CSVFormatter.
type CSVFormatter = legacydata.CSVFormatter

// Deprecated: use legacy/data.NewDataSet.
func NewDataSet() *legacydata.DataSet { return legacydata.NewDataSet() }
