// Command validate checks a benchd configuration file and the station
// inventory it references, without starting the daemon.
//
// Usage:
//
//	validate -f benchd.yaml
//	validate -f benchd.yaml -station station.yaml
//
// Exit codes:
//   - 0: everything is valid
//   - 1: configuration or inventory is invalid
//   - 2: usage error
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/benchtop-io/benchd/config"
	"github.com/benchtop-io/benchd/internal/version"
	"github.com/benchtop-io/benchd/station"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		file        string
		stationFile string
		showVersion bool
	)
	fs.StringVar(&file, "file", "", "path to benchd configuration file (YAML)")
	fs.StringVar(&file, "f", "", "path to benchd configuration file (shorthand)")
	fs.StringVar(&stationFile, "station", "", "station inventory to check (overrides the config's)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(stdout, version.Version)
		return 0
	}

	if file == "" && stationFile == "" {
		fmt.Fprintln(stderr, "Error: --file or --station is required")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Usage:")
		fmt.Fprintln(stderr, "  validate -f benchd.yaml")
		fmt.Fprintln(stderr, "  validate -f benchd.yaml -station station.yaml")
		return 2
	}

	// Both checks run even when the first fails, so one pass reports
	// everything there is to fix.
	failed := false

	var cfg config.Config
	if file != "" {
		loader := config.NewLoader(file, version.Version)
		loaded, err := loader.Load()
		if err != nil {
			fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", file, err)
			failed = true
		} else {
			cfg = loaded
			fmt.Fprintf(stdout, "✓ %s is valid\n", file)
		}
	}

	// An inventory named on the command line wins over the one the
	// config points at.
	invPath := stationFile
	if invPath == "" {
		invPath = cfg.StationFile
	}
	if invPath != "" {
		inv, err := station.Load(invPath)
		if err != nil {
			fmt.Fprintf(stderr, "Station inventory error in %s:\n  %v\n", invPath, err)
			failed = true
		} else {
			fmt.Fprintf(stdout, "✓ %s is valid (%d instruments)\n", invPath, len(inv.Instruments))
		}
	}

	if failed {
		return 1
	}
	return 0
}
