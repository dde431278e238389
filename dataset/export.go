package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/renameio/v2"

	"github.com/benchtop-io/benchd/internal/metrics"
)

// WriteCSV streams a run's rows to w as CSV. Columns are ordered
// setpoints first, then measured. The API export endpoint writes
// straight to the response; ExportCSV wraps it for files.
func WriteCSV(ctx context.Context, store *Store, runID int64, w io.Writer) (err error) {
	defer func() { metrics.IncExport("csv", err == nil) }()

	run, rows, err := loadForExport(ctx, store, runID)
	if err != nil {
		return err
	}

	cols := run.Columns()
	cw := csv.NewWriter(w)

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = columnHeader(c)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(cols))
	for _, row := range rows {
		for i, c := range cols {
			record[i] = strconv.FormatFloat(row[c.Name], 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ExportCSV writes a run's rows to path as CSV, replacing the file
// atomically.
func ExportCSV(ctx context.Context, store *Store, runID int64, path string) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending export file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := WriteCSV(ctx, store, runID, pending); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace export file: %w", err)
	}
	return nil
}

// exportDoc is the JSON export layout. Rows are arrays in column
// order so the file stays readable next to the CSV form.
type exportDoc struct {
	GUID      string      `json:"guid"`
	Name      string      `json:"name"`
	Status    string      `json:"status"`
	Started   string      `json:"started"`
	Completed string      `json:"completed,omitempty"`
	Columns   []ParamSpec `json:"columns"`
	Rows      [][]float64 `json:"rows"`
}

// WriteJSON streams a run's rows to w as an indented JSON document.
func WriteJSON(ctx context.Context, store *Store, runID int64, w io.Writer) (err error) {
	defer func() { metrics.IncExport("json", err == nil) }()

	run, rows, err := loadForExport(ctx, store, runID)
	if err != nil {
		return err
	}

	cols := run.Columns()
	doc := exportDoc{
		GUID:    run.GUID,
		Name:    run.Name,
		Status:  run.Status,
		Started: run.Started.Format(time.RFC3339),
		Columns: cols,
		Rows:    make([][]float64, 0, len(rows)),
	}
	if run.Completed != nil {
		doc.Completed = run.Completed.Format(time.RFC3339)
	}
	for _, row := range rows {
		values := make([]float64, len(cols))
		for i, c := range cols {
			values[i] = row[c.Name]
		}
		doc.Rows = append(doc.Rows, values)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}

// ExportJSON writes a run's rows to path as JSON, replacing the file
// atomically.
func ExportJSON(ctx context.Context, store *Store, runID int64, path string) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending export file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := WriteJSON(ctx, store, runID, pending); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace export file: %w", err)
	}
	return nil
}

func loadForExport(ctx context.Context, store *Store, runID int64) (*Run, []ResultRow, error) {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := store.RunRows(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, rows, nil
}

func columnHeader(p ParamSpec) string {
	if p.Unit != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.Unit)
	}
	return p.Name
}
