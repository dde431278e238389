// Package magic is the old import path of the interactive bench
// console.
//
// Deprecated: use github.com/benchtop-io/benchd/console instead.
package magic

import (
	"io"

	"github.com/benchtop-io/benchd/console"
	"github.com/benchtop-io/benchd/station"
)

// Deprecated: use console.Console.
type Console = console.Console

// Deprecated: use console.New.
func New(st *station.Station, in io.Reader, out io.Writer) *console.Console {
	return console.New(st, in, out)
}
