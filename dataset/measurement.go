package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/telemetry"
)

// flushEvery bounds how many buffered rows a Recorder holds before
// writing them out in one transaction.
const flushEvery = 100

// Measurement wraps the begin/record/complete cycle of one run.
// Register the swept and measured parameters, then call Run with the
// acquisition function.
type Measurement struct {
	store      *Store
	experiment Experiment
	name       string
	snapshot   []byte
	params     []ParamSpec
}

// NewMeasurement prepares a measurement under the given experiment.
func NewMeasurement(store *Store, experiment Experiment, name string) *Measurement {
	return &Measurement{
		store:      store,
		experiment: experiment,
		name:       name,
	}
}

// RegisterSetpoint adds a swept parameter column.
func (m *Measurement) RegisterSetpoint(name, label, unit string) *Measurement {
	m.params = append(m.params, ParamSpec{Name: name, Label: label, Unit: unit, Role: RoleSetpoint})
	return m
}

// RegisterMeasured adds a measured parameter column.
func (m *Measurement) RegisterMeasured(name, label, unit string) *Measurement {
	m.params = append(m.params, ParamSpec{Name: name, Label: label, Unit: unit, Role: RoleMeasured})
	return m
}

// WithSnapshot attaches the station snapshot JSON recorded with the run.
func (m *Measurement) WithSnapshot(snapshot []byte) *Measurement {
	m.snapshot = snapshot
	return m
}

// Recorder collects rows during a measurement run. Rows are buffered
// and written in batches; the final batch lands before the run is
// marked completed.
type Recorder struct {
	store      *Store
	run        *Run
	registered map[string]bool
	buf        []ResultRow
	rows       int64
}

// Run returns the run being recorded.
func (r *Recorder) Run() *Run { return r.run }

// Add records one row. Every registered parameter must be present.
func (r *Recorder) Add(ctx context.Context, values ResultRow) error {
	if err := checkRowShape(values, r.registered); err != nil {
		return err
	}
	row := make(ResultRow, len(values))
	for name, v := range values {
		row[name] = v
	}
	r.buf = append(r.buf, row)
	if len(r.buf) >= flushEvery {
		return r.flush(ctx)
	}
	return nil
}

func (r *Recorder) flush(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.store.AddResults(ctx, r.run.ID, r.buf); err != nil {
		return err
	}
	r.rows += int64(len(r.buf))
	r.buf = r.buf[:0]
	return nil
}

// Run opens a run, hands a Recorder to fn and completes the run when
// fn returns nil. An error or panic from fn aborts the run instead;
// rows recorded up to that point are kept.
func (m *Measurement) Run(ctx context.Context, fn func(ctx context.Context, rec *Recorder) error) (*Run, error) {
	measured := 0
	for _, p := range m.params {
		if p.Role == RoleMeasured {
			measured++
		}
	}
	if measured == 0 {
		return nil, errors.New("measurement needs at least one measured parameter")
	}

	run, err := m.store.BeginRun(ctx, m.experiment.ID, m.name, m.params, m.snapshot)
	if err != nil {
		return nil, err
	}
	started := time.Now()

	ctx = log.ContextWithRunID(ctx, run.GUID)
	logger := log.WithComponent("dataset").With().
		Str(log.FieldGUID, run.GUID).
		Str(log.FieldExperiment, m.experiment.Name).
		Logger()

	ctx, span := telemetry.Tracer("benchd/dataset").Start(ctx, "measurement.run")
	defer span.End()

	registered := make(map[string]bool, len(m.params))
	for _, p := range m.params {
		registered[p.Name] = true
	}
	rec := &Recorder{store: m.store, run: run, registered: registered}

	// A panic inside fn must not leave the run dangling in the
	// running state.
	defer func() {
		if r := recover(); r != nil {
			m.finishAborted(rec, started, logger)
			panic(r)
		}
	}()

	logger.Info().Str(log.FieldStatus, StatusRunning).Msg("run started")

	if err := fn(ctx, rec); err != nil {
		m.finishAborted(rec, started, logger)
		span.SetStatus(codes.Error, "measurement failed")
		return nil, fmt.Errorf("measurement %q: %w", m.name, err)
	}

	if err := rec.flush(ctx); err != nil {
		m.finishAborted(rec, started, logger)
		span.SetStatus(codes.Error, "flush failed")
		return nil, fmt.Errorf("measurement %q: %w", m.name, err)
	}

	if err := m.store.CompleteRun(ctx, run.ID); err != nil {
		return nil, fmt.Errorf("complete run %d: %w", run.ID, err)
	}
	run.RowCount = rec.rows
	run.Status = StatusCompleted

	span.SetAttributes(telemetry.RunAttributes(run.GUID, m.experiment.Name, int(rec.rows))...)
	emitRunObs(ctx, m.experiment.Name, StatusCompleted, rec.rows, time.Since(started))
	logger.Info().
		Int64(log.FieldRows, rec.rows).
		Str(log.FieldStatus, StatusCompleted).
		Msg("run completed")
	return run, nil
}

// finishAborted lands any buffered rows and marks the run aborted. It
// runs on a fresh context: the measurement's own context may already
// be canceled, and rows taken before the failure must still be saved.
func (m *Measurement) finishAborted(rec *Recorder, started time.Time, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rec.flush(ctx); err != nil {
		logger.Warn().Err(err).Msg("flush of partial run failed")
	}
	if err := m.store.AbortRun(ctx, rec.run.ID); err != nil {
		logger.Warn().Err(err).Msg("abort failed")
		return
	}
	emitRunObs(ctx, m.experiment.Name, StatusAborted, rec.rows, time.Since(started))
	logger.Warn().
		Int64(log.FieldRows, rec.rows).
		Str(log.FieldStatus, StatusAborted).
		Msg("run aborted")
}
