// Package measure is the legacy one-shot surface: read a set of
// parameters once and get back a data set with a single row. New code
// uses dataset.Measurement; this remains for quick bench checks.
package measure

import (
	"context"
	"errors"
	"fmt"

	"github.com/benchtop-io/benchd/legacy/data"
	"github.com/benchtop-io/benchd/parameter"
)

// OneShot reads each of its parameters exactly once.
type OneShot struct {
	params []*parameter.Parameter
}

// Measure builds a one-shot reading over the given parameters.
func Measure(params ...*parameter.Parameter) *OneShot {
	return &OneShot{params: params}
}

// Run performs the reading. The result holds one single-value array
// per parameter, in the order they were passed to Measure.
func (o *OneShot) Run(ctx context.Context) (*data.DataSet, error) {
	if len(o.params) == 0 {
		return nil, errors.New("measure needs at least one parameter")
	}
	ds := data.NewDataSet()
	for _, p := range o.params {
		v, err := p.GetFloat(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p.Name(), err)
		}
		arr := &data.DataArray{Name: p.Name(), Unit: p.Unit(), Values: []float64{v}}
		if err := ds.AddArray(p.Name(), arr); err != nil {
			return nil, err
		}
	}
	return ds, nil
}
