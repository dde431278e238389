package main

import (
	"fmt"
	"os"
	"sort"

	"golang.org/x/tools/go/packages"
)

// aliasPaths lists the deprecated forwarder packages and where each
// one moved. Only the forwarders themselves may sit at these paths;
// everything else must import the new homes.
var aliasPaths = map[string]string{
	"github.com/benchtop-io/benchd/data":             "github.com/benchtop-io/benchd/legacy/data",
	"github.com/benchtop-io/benchd/plots":            "github.com/benchtop-io/benchd/legacy/plots",
	"github.com/benchtop-io/benchd/actions":          "github.com/benchtop-io/benchd/legacy/actions",
	"github.com/benchtop-io/benchd/loops":            "github.com/benchtop-io/benchd/legacy/loops",
	"github.com/benchtop-io/benchd/measure":          "github.com/benchtop-io/benchd/legacy/measure",
	"github.com/benchtop-io/benchd/extensions/slack": "github.com/benchtop-io/benchd/notify/slack",
	"github.com/benchtop-io/benchd/utils/magic":      "github.com/benchtop-io/benchd/console",
	"github.com/benchtop-io/benchd/utils/qt_helpers": "github.com/benchtop-io/benchd/ui",
}

func main() {
	pattern := "./..."
	if len(os.Args) > 1 {
		pattern = os.Args[1]
	}

	violations, err := Analyze(pattern)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "deprecated import paths in use:")
		for _, v := range violations {
			fmt.Fprintln(os.Stderr, "  "+v)
		}
		os.Exit(1)
	}
}

// Analyze loads the package pattern and reports every non-forwarder
// package that imports one of the deprecated paths.
func Analyze(pattern string) ([]string, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedImports | packages.NeedFiles,
		Dir:  ".",
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		if _, isForwarder := aliasPaths[pkg.PkgPath]; isForwarder {
			continue
		}
		for imp := range pkg.Imports {
			if home, ok := aliasPaths[imp]; ok {
				violations = append(violations,
					fmt.Sprintf("%s imports %s (moved to %s)", pkg.PkgPath, imp, home))
			}
		}
	}
	sort.Strings(violations)
	return violations, nil
}
