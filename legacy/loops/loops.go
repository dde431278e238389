// Package loops is the legacy sweep surface: set a parameter over a
// list of values, run actions at every point, collect the readings
// into an in-memory data set. New code uses dataset.Measurement; the
// loop surface remains for quick bench scripts.
package loops

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/benchtop-io/benchd/legacy/actions"
	"github.com/benchtop-io/benchd/legacy/data"
	"github.com/benchtop-io/benchd/parameter"
)

// Loop sweeps one settable parameter over Values, pausing Delay after
// each set before the actions run.
type Loop struct {
	Parameter *parameter.Parameter
	Values    []float64
	Delay     time.Duration
}

// Each attaches the actions executed at every point of the loop.
func (l Loop) Each(acts ...actions.Action) *Sweep {
	return &Sweep{loop: l, body: acts}
}

// Over nests an inner sweep under this loop: the whole inner sweep
// runs at every point of l.
func (l Loop) Over(inner *Sweep) *Sweep {
	return &Sweep{loop: l, inner: inner}
}

// Sweep is a configured loop, possibly nested, ready to run.
type Sweep struct {
	loop  Loop
	body  []actions.Action
	inner *Sweep
}

type collectorKey struct{}

// Record returns an action that reads the given parameters and files
// their values into the running sweep's data set, one column per
// parameter. It only works inside Sweep.Run.
func Record(params ...*parameter.Parameter) actions.Action {
	return actions.Task(func(ctx context.Context) error {
		c, ok := ctx.Value(collectorKey{}).(*collector)
		if !ok {
			return errors.New("record used outside a running sweep")
		}
		for _, p := range params {
			v, err := p.GetFloat(ctx)
			if err != nil {
				return fmt.Errorf("read %s: %w", p.Name(), err)
			}
			if err := c.record(p.Name(), p.Unit(), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Run executes the sweep. Every innermost iteration yields one row:
// the current value of each loop level's setpoint plus whatever the
// body recorded. The data set collected so far is returned even when
// the sweep fails partway.
func (s *Sweep) Run(ctx context.Context) (*data.DataSet, error) {
	ds := data.NewDataSet()
	c := newCollector(ds)

	for lvl := s; lvl != nil; lvl = lvl.inner {
		if lvl.loop.Parameter == nil {
			return ds, errors.New("loop has no parameter")
		}
		if len(lvl.loop.Values) == 0 {
			return ds, fmt.Errorf("loop over %s has no values", lvl.loop.Parameter.Name())
		}
		if !lvl.loop.Parameter.Settable() {
			return ds, fmt.Errorf("loop parameter %s is not settable", lvl.loop.Parameter.Name())
		}
		if err := c.addLevel(lvl.loop.Parameter); err != nil {
			return ds, err
		}
	}

	ctx = context.WithValue(ctx, collectorKey{}, c)
	return ds, s.run(ctx, c, 0)
}

func (s *Sweep) run(ctx context.Context, c *collector, level int) error {
	p := s.loop.Parameter
	for _, v := range s.loop.Values {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Set(ctx, v); err != nil {
			return fmt.Errorf("set %s to %v: %w", p.Name(), v, err)
		}
		c.setCurrent(level, v)

		if err := actions.Wait(s.loop.Delay).Do(ctx); err != nil {
			return err
		}

		if s.inner != nil {
			if err := s.inner.run(ctx, c, level+1); err != nil {
				return err
			}
			continue
		}

		broke := false
		for _, a := range s.body {
			err := a.Do(ctx)
			if errors.Is(err, actions.ErrBreak) {
				broke = true
				break
			}
			if err != nil {
				return err
			}
		}
		c.commit()
		if broke {
			break
		}
	}
	return nil
}

// collector assembles the flattened result table. Setpoint arrays get
// one entry per innermost iteration; measured arrays fill with NaN
// for iterations that did not record them.
type collector struct {
	ds        *data.DataSet
	setpoints []*data.DataArray
	current   []float64
	measured  map[string]*data.DataArray
	pending   map[string]float64
	rows      int
}

func newCollector(ds *data.DataSet) *collector {
	return &collector{
		ds:       ds,
		measured: make(map[string]*data.DataArray),
		pending:  make(map[string]float64),
	}
}

func (c *collector) addLevel(p *parameter.Parameter) error {
	arr := &data.DataArray{Name: p.Name(), Unit: p.Unit()}
	if err := c.ds.AddArray(p.Name()+"_set", arr); err != nil {
		return fmt.Errorf("loop parameter %s used at two levels", p.Name())
	}
	c.setpoints = append(c.setpoints, arr)
	c.current = append(c.current, math.NaN())
	return nil
}

func (c *collector) setCurrent(level int, v float64) {
	c.current[level] = v
}

func (c *collector) record(name, unit string, v float64) error {
	arr, ok := c.measured[name]
	if !ok {
		arr = &data.DataArray{Name: name, Unit: unit}
		for i := 0; i < c.rows; i++ {
			arr.Append(math.NaN())
		}
		if err := c.ds.AddArray(name, arr); err != nil {
			return err
		}
		c.measured[name] = arr
	}
	c.pending[name] = v
	return nil
}

func (c *collector) commit() {
	for i, arr := range c.setpoints {
		arr.Append(c.current[i])
	}
	for name, arr := range c.measured {
		if v, ok := c.pending[name]; ok {
			arr.Append(v)
		} else {
			arr.Append(math.NaN())
		}
	}
	for name := range c.pending {
		delete(c.pending, name)
	}
	c.rows++
}
