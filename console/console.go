// Package console is a line-oriented bench console over a running
// station: read and write parameters, identify instruments, list what
// is connected. The daemon exposes it on stdin when started with the
// console flag; tests drive it through plain readers and writers.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/internal/audit"
	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/parameter"
	"github.com/benchtop-io/benchd/station"
	"github.com/benchtop-io/benchd/ui"
	"github.com/benchtop-io/benchd/validators"
)

const commandTimeout = 10 * time.Second

// Console reads commands line by line and executes them against a
// station.
type Console struct {
	station *station.Station
	in      io.Reader
	out     io.Writer
	timeout time.Duration
	logger  zerolog.Logger
	audit   *audit.Logger
}

// New builds a console over st, reading commands from in and writing
// replies to out.
func New(st *station.Station, in io.Reader, out io.Writer) *Console {
	return &Console{
		station: st,
		in:      in,
		out:     out,
		timeout: commandTimeout,
		logger:  log.WithComponent("console"),
		audit:   audit.NewLogger(),
	}
}

// Run processes commands until the input ends, a quit command is
// entered, or ctx is canceled. Command errors are printed and the
// loop continues.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintf(c.out, "benchd console on station %s (help for commands)\n", c.station.Name())

	sc := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, "benchd> ")
		if !sc.Scan() {
			return sc.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		c.dispatch(ctx, line)
	}
}

func (c *Console) dispatch(ctx context.Context, line string) {
	fields := strings.Fields(line)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var err error
	switch fields[0] {
	case "help":
		c.printHelp()
	case "list":
		err = c.list(ctx, fields[1:])
	case "idn":
		err = c.idn(fields[1:])
	case "get":
		err = c.get(ctx, fields[1:])
	case "set":
		err = c.set(ctx, fields[1:])
	default:
		err = fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	if err != nil {
		c.logger.Debug().Str("command", fields[0]).Err(err).Msg("console command failed")
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `commands:
  list                          connected instruments
  list <instrument>             parameters of one instrument
  idn <instrument>              identity string
  get <instrument>.<parameter>  read a value
  set <instrument>.<parameter> <value>
  quit
`)
}

func (c *Console) list(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return c.listParameters(args[0])
	}

	snap, err := c.station.Snapshot(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(snap.Instruments))
	for _, name := range c.station.Names() {
		is := snap.Instruments[name]
		rows = append(rows, []string{name, is.Driver, is.Address})
	}
	fmt.Fprint(c.out, ui.Table([]string{"instrument", "driver", "address"}, rows))
	return nil
}

func (c *Console) listParameters(name string) error {
	inst, ok := c.station.Instrument(name)
	if !ok {
		return fmt.Errorf("unknown instrument %q", name)
	}
	var rows [][]string
	for _, p := range inst.Parameters() {
		rows = append(rows, []string{p.Name(), p.Unit(), accessOf(p), p.Label()})
	}
	fmt.Fprint(c.out, ui.Table([]string{"parameter", "unit", "access", "label"}, rows))
	return nil
}

func accessOf(p *parameter.Parameter) string {
	switch {
	case p.Gettable() && p.Settable():
		return "get+set"
	case p.Gettable():
		return "get"
	case p.Settable():
		return "set"
	}
	return "none"
}

func (c *Console) idn(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: idn <instrument>")
	}
	inst, ok := c.station.Instrument(args[0])
	if !ok {
		return fmt.Errorf("unknown instrument %q", args[0])
	}
	identified, ok := inst.(interface{ IDN() instrument.IDN })
	if !ok {
		return fmt.Errorf("instrument %q has no identification", args[0])
	}
	fmt.Fprintln(c.out, identified.IDN().String())
	return nil
}

func (c *Console) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get <instrument>.<parameter>")
	}
	p, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	v, err := p.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s = %s\n", args[0], renderValue(v, p.Unit()))
	return nil
}

func (c *Console) set(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: set <instrument>.<parameter> <value>")
	}
	p, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	instName, _, _ := strings.Cut(args[0], ".")
	v := parseValue(strings.Join(args[1:], " "))
	if err := p.Set(ctx, v); err != nil {
		result := audit.ResultFailure
		if errors.Is(err, parameter.ErrInvalidValue) {
			result = audit.ResultDenied
		}
		c.audit.ParameterSet("console", instName, p.Name(), v, result, "")
		return err
	}
	c.audit.ParameterSet("console", instName, p.Name(), v, audit.ResultSuccess, "")
	fmt.Fprintf(c.out, "%s = %s\n", args[0], renderValue(v, p.Unit()))
	return nil
}

func (c *Console) resolve(ref string) (*parameter.Parameter, error) {
	instName, paramName, ok := strings.Cut(ref, ".")
	if !ok || instName == "" || paramName == "" {
		return nil, fmt.Errorf("expected <instrument>.<parameter>, got %q", ref)
	}
	inst, ok := c.station.Instrument(instName)
	if !ok {
		return nil, fmt.Errorf("unknown instrument %q", instName)
	}
	for _, p := range inst.Parameters() {
		if p.Name() == paramName {
			return p, nil
		}
	}
	return nil, fmt.Errorf("instrument %q has no parameter %q", instName, paramName)
}

// parseValue interprets a command-line token: numbers become float64,
// true/false become bool, anything else stays a string so mapped
// parameters can take their wire tokens.
func parseValue(token string) any {
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f
	}
	switch token {
	case "true", "false":
		return token == "true"
	}
	return token
}

func renderValue(v any, unit string) string {
	switch n := validators.Canonical(v).(type) {
	case int64:
		return ui.FormatSI(float64(n), unit)
	case float64:
		return ui.FormatSI(n, unit)
	}
	if unit != "" {
		return fmt.Sprintf("%v %s", v, unit)
	}
	return fmt.Sprint(v)
}
