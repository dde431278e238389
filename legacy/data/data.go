// Package data is the in-memory result container of the legacy sweep
// surface. A DataSet holds named value arrays plus free-form metadata
// and can be written to disk through a Formatter. New code records
// into the SQLite-backed dataset package instead; this container
// remains for the loop and one-shot measure helpers built on it.
package data

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/google/renameio/v2"
)

// DataArray is one named column of values. Rows that never produced a
// value for this column hold NaN.
type DataArray struct {
	Name   string
	Unit   string
	Values []float64
}

// Append adds one value.
func (a *DataArray) Append(v float64) {
	a.Values = append(a.Values, v)
}

// Len returns the number of recorded values.
func (a *DataArray) Len() int { return len(a.Values) }

// DataSet is a collection of arrays recorded together, keyed by array
// id, in insertion order.
type DataSet struct {
	arrays   map[string]*DataArray
	order    []string
	metadata map[string]string
}

// NewDataSet returns an empty DataSet.
func NewDataSet() *DataSet {
	return &DataSet{
		arrays:   make(map[string]*DataArray),
		metadata: make(map[string]string),
	}
}

// AddArray registers an array under id. Ids are unique.
func (d *DataSet) AddArray(id string, arr *DataArray) error {
	if id == "" {
		return fmt.Errorf("array id required")
	}
	if _, exists := d.arrays[id]; exists {
		return fmt.Errorf("array %q already present", id)
	}
	d.arrays[id] = arr
	d.order = append(d.order, id)
	return nil
}

// Array looks an array up by id.
func (d *DataSet) Array(id string) (*DataArray, bool) {
	arr, ok := d.arrays[id]
	return arr, ok
}

// ArrayIDs returns the array ids in insertion order.
func (d *DataSet) ArrayIDs() []string {
	return append([]string(nil), d.order...)
}

// Rows returns the length of the longest array.
func (d *DataSet) Rows() int {
	n := 0
	for _, id := range d.order {
		if l := d.arrays[id].Len(); l > n {
			n = l
		}
	}
	return n
}

// SetMetadata stores one metadata entry.
func (d *DataSet) SetMetadata(key, value string) {
	d.metadata[key] = value
}

// Metadata returns a copy of the metadata entries.
func (d *DataSet) Metadata() map[string]string {
	out := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		out[k] = v
	}
	return out
}

// Formatter renders a DataSet to a writer.
type Formatter interface {
	Format(w io.Writer, d *DataSet) error
}

// Write renders the DataSet to path through f, replacing the file
// atomically.
func (d *DataSet) Write(path string, f Formatter) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending data file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := f.Format(pending, d); err != nil {
		return fmt.Errorf("format data set: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	return nil
}

// CSVFormatter renders arrays as comma-separated columns in insertion
// order, headers as "id (unit)". Shorter arrays pad with empty cells.
type CSVFormatter struct{}

// Format implements Formatter.
func (CSVFormatter) Format(w io.Writer, d *DataSet) error {
	ids := d.ArrayIDs()
	if len(ids) == 0 {
		return nil
	}

	if len(d.metadata) > 0 {
		keys := make([]string, 0, len(d.metadata))
		for k := range d.metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := fmt.Fprintf(w, "# %s: %s\n", k, d.metadata[k]); err != nil {
				return err
			}
		}
	}

	for i, id := range ids {
		if i > 0 {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		arr, _ := d.Array(id)
		header := id
		if arr.Unit != "" {
			header = fmt.Sprintf("%s (%s)", id, arr.Unit)
		}
		if _, err := io.WriteString(w, header); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}

	rows := d.Rows()
	for row := 0; row < rows; row++ {
		for i, id := range ids {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			arr, _ := d.Array(id)
			if row < arr.Len() && !math.IsNaN(arr.Values[row]) {
				if _, err := io.WriteString(w, strconv.FormatFloat(arr.Values[row], 'g', -1, 64)); err != nil {
					return err
				}
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
