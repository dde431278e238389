package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/benchtop-io/benchd/config"
	"github.com/benchtop-io/benchd/guid"
	"github.com/benchtop-io/benchd/internal/metrics"
)

// Store provides SQLite persistence for experiments and runs.
type Store struct {
	db      *sql.DB
	guidCfg config.GUIDComponents
}

// Open initializes the run store and applies the schema. WAL mode and
// a busy timeout keep concurrent readers from tripping over the
// acquisition writer. modernc.org/sqlite takes pragmas in the
// _pragma=name(value) DSN form; that form applies them to every
// connection in the pool.
func Open(dbPath string, guidCfg config.GUIDComponents) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db, guidCfg: guidCfg}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database still answers. Readiness probes call it.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		sample_name TEXT NOT NULL,
		started TEXT NOT NULL,
		UNIQUE(name, sample_name)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guid TEXT NOT NULL UNIQUE,
		experiment_id INTEGER NOT NULL REFERENCES experiments(id),
		name TEXT NOT NULL,
		snapshot TEXT,
		started TEXT NOT NULL,
		completed TEXT,
		row_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running', 'completed', 'aborted'))
	);

	CREATE TABLE IF NOT EXISTS run_parameters (
		run_id INTEGER NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL CHECK(role IN ('setpoint', 'measured')),
		PRIMARY KEY (run_id, name)
	);

	CREATE TABLE IF NOT EXISTS results (
		run_id INTEGER NOT NULL REFERENCES runs(id),
		row_index INTEGER NOT NULL,
		name TEXT NOT NULL,
		value REAL NOT NULL,
		PRIMARY KEY (run_id, row_index, name)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateExperiment returns the experiment with the given name and
// sample, creating it on first use.
func (s *Store) CreateExperiment(ctx context.Context, name, sampleName string) (Experiment, error) {
	if name == "" {
		return Experiment{}, errors.New("experiment name required")
	}

	insert := `
	INSERT INTO experiments (name, sample_name, started)
	VALUES (?, ?, ?)
	ON CONFLICT(name, sample_name) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, insert, name, sampleName, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return Experiment{}, fmt.Errorf("create experiment: %w", err)
	}

	query := `
	SELECT id, name, sample_name, started
	FROM experiments
	WHERE name = ? AND sample_name = ?
	`
	var exp Experiment
	var startedStr string
	if err := s.db.QueryRowContext(ctx, query, name, sampleName).Scan(&exp.ID, &exp.Name, &exp.SampleName, &startedStr); err != nil {
		return Experiment{}, fmt.Errorf("load experiment: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, startedStr); err == nil {
		exp.Started = t
	}
	return exp, nil
}

// BeginRun opens a new run under the given experiment with a freshly
// generated GUID and registers its parameters.
func (s *Store) BeginRun(ctx context.Context, experimentID int64, name string, params []ParamSpec, snapshot []byte) (*Run, error) {
	if len(params) == 0 {
		return nil, errors.New("run needs at least one parameter")
	}
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if p.Name == "" {
			return nil, errors.New("parameter name required")
		}
		if p.Role != RoleSetpoint && p.Role != RoleMeasured {
			return nil, fmt.Errorf("parameter %q: role %q is not %q or %q", p.Name, p.Role, RoleSetpoint, RoleMeasured)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("parameter %q registered twice", p.Name)
		}
		seen[p.Name] = true
	}

	id, err := guid.Generate(s.guidCfg)
	if err != nil {
		return nil, fmt.Errorf("generate run guid: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	started := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (guid, experiment_id, name, snapshot, started, row_count, status)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		id, experimentID, name, nullableText(snapshot), started.Format(time.RFC3339), StatusRunning,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}

	for i, p := range params {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_parameters (run_id, position, name, label, unit, role)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, p.Name, p.Label, p.Unit, p.Role,
		); err != nil {
			return nil, fmt.Errorf("register parameter %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit run: %w", err)
	}

	metrics.IncRunStarted()
	return &Run{
		ID:           runID,
		GUID:         id,
		ExperimentID: experimentID,
		Name:         name,
		Snapshot:     snapshot,
		Started:      started,
		Status:       StatusRunning,
		Parameters:   append([]ParamSpec(nil), params...),
	}, nil
}

// AddResults appends rows to a running run in one transaction. Every
// row must cover exactly the registered parameters.
func (s *Store) AddResults(ctx context.Context, runID int64, rows []ResultRow) error {
	if len(rows) == 0 {
		return nil
	}
	begin := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add results: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var rowCount int64
	err = tx.QueryRowContext(ctx, `SELECT status, row_count FROM runs WHERE id = ?`, runID).Scan(&status, &rowCount)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load run %d: %w", runID, err)
	}
	if status != StatusRunning {
		return fmt.Errorf("run %d is %s, not running", runID, status)
	}

	registered, err := runParameterNames(ctx, tx, runID)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, row_index, name, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range rows {
		if err := checkRowShape(row, registered); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		index := rowCount + int64(i)
		names := make([]string, 0, len(row))
		for name := range row {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := stmt.ExecContext(ctx, runID, index, name, row[name]); err != nil {
				return fmt.Errorf("insert row %d value %q: %w", index, name, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE runs SET row_count = row_count + ? WHERE id = ?`, len(rows), runID); err != nil {
		return fmt.Errorf("update row count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}

	metrics.ObserveInsert(len(rows), time.Since(begin))
	return nil
}

// CompleteRun marks a running run as completed.
func (s *Store) CompleteRun(ctx context.Context, runID int64) error {
	if err := s.finishRun(ctx, runID, StatusCompleted); err != nil {
		return err
	}
	metrics.IncRunCompleted(StatusCompleted)
	return nil
}

// AbortRun marks a running run as aborted. Rows recorded so far stay.
func (s *Store) AbortRun(ctx context.Context, runID int64) error {
	if err := s.finishRun(ctx, runID, StatusAborted); err != nil {
		return err
	}
	metrics.IncRunCompleted(StatusAborted)
	return nil
}

func (s *Store) finishRun(ctx context.Context, runID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed = ? WHERE id = ? AND status = ?`,
		status, time.Now().UTC().Format(time.RFC3339), runID, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	if n == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE id = ?`, runID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("run %d: %w", runID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("load run %d: %w", runID, err)
		}
		return fmt.Errorf("run %d is already %s", runID, current)
	}
	return nil
}

// GetRun loads a run and its registered parameters by id.
func (s *Store) GetRun(ctx context.Context, runID int64) (*Run, error) {
	return s.getRun(ctx, `WHERE id = ?`, runID)
}

// GetRunByGUID loads a run and its registered parameters by GUID.
func (s *Store) GetRunByGUID(ctx context.Context, id string) (*Run, error) {
	return s.getRun(ctx, `WHERE guid = ?`, id)
}

func (s *Store) getRun(ctx context.Context, where string, arg any) (*Run, error) {
	query := `
	SELECT id, guid, experiment_id, name, snapshot, started, completed, row_count, status
	FROM runs ` + where

	run, err := scanRun(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}

	params, err := s.loadParameters(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Parameters = params
	return run, nil
}

func (s *Store) loadParameters(ctx context.Context, runID int64) ([]ParamSpec, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, label, unit, role FROM run_parameters WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load run parameters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var params []ParamSpec
	for rows.Next() {
		var p ParamSpec
		if err := rows.Scan(&p.Name, &p.Label, &p.Unit, &p.Role); err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

// ListRuns returns runs newest first, plus the total count.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]Run, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
	SELECT id, guid, experiment_id, name, snapshot, started, completed, row_count, status
	FROM runs
	ORDER BY id DESC
	LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, *run)
	}
	return runs, total, rows.Err()
}

// RunRows returns the recorded rows of a run in acquisition order.
func (s *Store) RunRows(ctx context.Context, runID int64) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_index, name, value FROM results WHERE run_id = ? ORDER BY row_index, name`, runID)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ResultRow
	last := int64(-1)
	for rows.Next() {
		var index int64
		var name string
		var value float64
		if err := rows.Scan(&index, &name, &value); err != nil {
			return nil, err
		}
		if index != last {
			out = append(out, make(ResultRow))
			last = index
		}
		out[len(out)-1][name] = value
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*Run, error) {
	var run Run
	var snapshot, completed sql.NullString
	var startedStr string

	err := sc.Scan(&run.ID, &run.GUID, &run.ExperimentID, &run.Name, &snapshot, &startedStr, &completed, &run.RowCount, &run.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if snapshot.Valid && snapshot.String != "" {
		run.Snapshot = json.RawMessage(snapshot.String)
	}
	if t, err := time.Parse(time.RFC3339, startedStr); err == nil {
		run.Started = t
	}
	if completed.Valid {
		if t, err := time.Parse(time.RFC3339, completed.String); err == nil {
			run.Completed = &t
		}
	}
	return &run, nil
}

func runParameterNames(ctx context.Context, tx *sql.Tx, runID int64) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name FROM run_parameters WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("load run parameters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}

func checkRowShape(row ResultRow, registered map[string]bool) error {
	for name := range row {
		if !registered[name] {
			return fmt.Errorf("parameter %q is not registered", name)
		}
	}
	if len(row) != len(registered) {
		for name := range registered {
			if _, ok := row[name]; !ok {
				return fmt.Errorf("parameter %q missing", name)
			}
		}
	}
	return nil
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
