// Package dataset persists measurement runs in SQLite. Every run
// belongs to an experiment, carries a globally unique identifier and
// a station snapshot, and accumulates rows of parameter values. The
// Measurement type wraps the bookkeeping for the common
// begin/record/complete cycle.
package dataset

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound marks lookups for runs or experiments that do not exist.
var ErrNotFound = errors.New("dataset: not found")

// Run lifecycle states as stored in the runs table.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
)

// Roles a run parameter can take. Setpoints are swept, measured
// parameters are read back.
const (
	RoleSetpoint = "setpoint"
	RoleMeasured = "measured"
)

// Experiment groups runs taken on the same sample.
type Experiment struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	SampleName string    `json:"sample_name"`
	Started    time.Time `json:"started"`
}

// ParamSpec describes one column of a run.
type ParamSpec struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Unit  string `json:"unit,omitempty"`
	Role  string `json:"role"`
}

// Run is one recorded measurement.
type Run struct {
	ID           int64           `json:"id"`
	GUID         string          `json:"guid"`
	ExperimentID int64           `json:"experiment_id"`
	Name         string          `json:"name"`
	Snapshot     json.RawMessage `json:"snapshot,omitempty"`
	Started      time.Time       `json:"started"`
	Completed    *time.Time      `json:"completed,omitempty"`
	RowCount     int64           `json:"row_count"`
	Status       string          `json:"status"`
	Parameters   []ParamSpec     `json:"parameters"`
}

// ResultRow maps parameter names to the values of one row.
type ResultRow map[string]float64

// Columns returns the run's parameters with setpoints first, in
// registration order within each role. Exports and row rendering use
// this ordering.
func (r *Run) Columns() []ParamSpec {
	cols := make([]ParamSpec, 0, len(r.Parameters))
	for _, p := range r.Parameters {
		if p.Role == RoleSetpoint {
			cols = append(cols, p)
		}
	}
	for _, p := range r.Parameters {
		if p.Role == RoleMeasured {
			cols = append(cols, p)
		}
	}
	return cols
}
