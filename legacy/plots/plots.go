// Package plots turns legacy data sets into XY series and writes them
// as gnuplot-style .dat files. It is the plotting half of the legacy
// sweep surface; new code exports runs from the SQLite store instead.
package plots

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/renameio/v2"

	"github.com/benchtop-io/benchd/legacy/data"
)

// Series is one plottable trace extracted from a data set.
type Series struct {
	Label  string
	XLabel string
	YLabel string
	X      []float64
	Y      []float64
}

// XY extracts a trace from ds, using the array xID for the abscissa
// and yID for the ordinate. Ragged arrays are truncated to the
// shorter of the two.
func XY(ds *data.DataSet, xID, yID string) (Series, error) {
	x, ok := ds.Array(xID)
	if !ok {
		return Series{}, fmt.Errorf("array %q not in data set", xID)
	}
	y, ok := ds.Array(yID)
	if !ok {
		return Series{}, fmt.Errorf("array %q not in data set", yID)
	}
	n := len(x.Values)
	if len(y.Values) < n {
		n = len(y.Values)
	}
	s := Series{
		Label:  yID,
		XLabel: axisLabel(x),
		YLabel: axisLabel(y),
		X:      make([]float64, n),
		Y:      make([]float64, n),
	}
	copy(s.X, x.Values[:n])
	copy(s.Y, y.Values[:n])
	return s, nil
}

func axisLabel(arr *data.DataArray) string {
	if arr.Unit == "" {
		return arr.Name
	}
	return fmt.Sprintf("%s (%s)", arr.Name, arr.Unit)
}

// WriteDat writes the series to a gnuplot-readable .dat file, one
// two-column block per series separated by double blank lines so each
// trace is addressable with gnuplot's index directive. The file is
// replaced atomically.
func WriteDat(path string, series ...Series) error {
	if len(series) == 0 {
		return errors.New("no series to write")
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending plot file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	w := bufio.NewWriter(pending)
	for i, s := range series {
		if i > 0 {
			fmt.Fprint(w, "\n\n")
		}
		fmt.Fprintf(w, "# series: %s\n", s.Label)
		fmt.Fprintf(w, "# %s\t%s\n", s.XLabel, s.YLabel)
		for j := range s.X {
			fmt.Fprintf(w, "%s\t%s\n",
				strconv.FormatFloat(s.X[j], 'g', -1, 64),
				strconv.FormatFloat(s.Y[j], 'g', -1, 64))
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write plot file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace plot file: %w", err)
	}
	return nil
}
