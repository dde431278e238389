// Package station turns a YAML bench inventory into a set of open,
// ready-to-use instruments. The inventory is the single source of
// truth: opening, snapshotting, hot-reloading and closing all follow
// it.
package station

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/benchtop-io/benchd/drivers"
	"github.com/benchtop-io/benchd/instrument"
	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/metrics"
	"github.com/benchtop-io/benchd/internal/ratelimit"
	"github.com/benchtop-io/benchd/transport"
)

const defaultSnapshotTimeout = 5 * time.Second

// Inventory is the on-disk description of a bench: which instruments
// exist, how to reach them, and which driver speaks to each.
type Inventory struct {
	Name        string           `yaml:"name"`
	Instruments map[string]Entry `yaml:"instruments"`
}

// Entry describes one instrument in the inventory.
type Entry struct {
	Driver  string `yaml:"driver"`
	Address string `yaml:"address"`
	// Enabled defaults to true. Disabled entries stay in the file
	// without being opened.
	Enabled *bool `yaml:"enabled,omitempty"`
	// DialTimeout and ReadTimeout are duration strings, e.g. "5s".
	DialTimeout string `yaml:"dial_timeout,omitempty"`
	ReadTimeout string `yaml:"read_timeout,omitempty"`
	// Settings holds driver-specific flags, e.g. reset: true.
	Settings map[string]any `yaml:"settings,omitempty"`
}

func (e Entry) enabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// transportOptions resolves the entry's wire settings on top of the
// station-wide defaults.
func (e Entry) transportOptions(base transport.Options) (transport.Options, error) {
	opts := base
	if e.DialTimeout != "" {
		d, err := time.ParseDuration(e.DialTimeout)
		if err != nil {
			return opts, fmt.Errorf("dial_timeout: %w", err)
		}
		opts.DialTimeout = d
	}
	if e.ReadTimeout != "" {
		d, err := time.ParseDuration(e.ReadTimeout)
		if err != nil {
			return opts, fmt.Errorf("read_timeout: %w", err)
		}
		opts.ReadTimeout = d
	}
	return opts, nil
}

// Load reads and validates a station inventory. Parsing is strict:
// unknown fields, trailing documents and malformed entries are all
// rejected, so a typo cannot silently drop an instrument.
func Load(path string) (*Inventory, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported inventory format %q (only YAML)", ext)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}

	var inv Inventory
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("inventory %s is empty", path)
		}
		return nil, fmt.Errorf("parse inventory: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("inventory %s contains trailing content", path)
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Validate checks the inventory's structure. Driver ids are resolved
// later, against the registry the station is opened with.
func (inv *Inventory) Validate() error {
	if inv.Name == "" {
		return errors.New("inventory: station name missing")
	}
	for name, entry := range inv.Instruments {
		if name == "" {
			return errors.New("inventory: instrument with empty name")
		}
		if entry.Driver == "" {
			return fmt.Errorf("inventory: instrument %q has no driver", name)
		}
		if entry.Address == "" {
			return fmt.Errorf("inventory: instrument %q has no address", name)
		}
		if _, err := entry.transportOptions(transport.Options{}); err != nil {
			return fmt.Errorf("inventory: instrument %q: %w", name, err)
		}
	}
	return nil
}

// Options tunes how a station is opened.
type Options struct {
	// Registry maps driver ids to factories. Nil uses
	// drivers.Registry().
	Registry map[string]drivers.Factory
	// Pacing throttles commands across all station instruments. The
	// zero value uses ratelimit.DefaultConfig().
	Pacing ratelimit.Config
	// Transport supplies wire defaults for entries that do not set
	// their own, e.g. dial and read timeouts.
	Transport transport.Options
	// SnapshotTimeout bounds each instrument's part of a station
	// snapshot.
	SnapshotTimeout time.Duration
}

// Station is a set of open instruments built from an inventory.
type Station struct {
	name     string
	opts     Options
	registry map[string]drivers.Factory
	pacer    *ratelimit.Pacer
	logger   zerolog.Logger

	// reloadMu serializes apply so concurrent reloads cannot
	// interleave their open/close work.
	reloadMu sync.Mutex

	mu          sync.RWMutex
	instruments map[string]instrument.Instrument
	// entries records what each open instrument was opened with, so
	// a reload can tell unchanged from changed. An instrument that
	// failed to open has no entry and is retried on the next reload.
	entries map[string]Entry
}

// Open connects every enabled instrument in the inventory. Bring-up
// is strict: if any instrument fails to open, everything opened so
// far is closed again and the error is returned.
func Open(ctx context.Context, inv *Inventory, opts Options) (*Station, error) {
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		opts.Registry = drivers.Registry()
	}
	if opts.Pacing == (ratelimit.Config{}) {
		opts.Pacing = ratelimit.DefaultConfig()
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = defaultSnapshotTimeout
	}

	s := &Station{
		name:        inv.Name,
		opts:        opts,
		registry:    opts.Registry,
		pacer:       ratelimit.New(opts.Pacing),
		logger:      log.WithComponent("station"),
		instruments: make(map[string]instrument.Instrument),
		entries:     make(map[string]Entry),
	}
	if err := s.apply(ctx, inv, true); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Name returns the station name from the inventory.
func (s *Station) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Instrument looks up an open instrument by its inventory name.
func (s *Station) Instrument(name string) (instrument.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instruments[name]
	return inst, ok
}

// Names returns the names of all open instruments, sorted.
func (s *Station) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.instruments))
	for name := range s.instruments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot captures the state of every open instrument.
type Snapshot struct {
	Station     string                         `json:"station"`
	TakenAt     time.Time                      `json:"taken_at"`
	Instruments map[string]instrument.Snapshot `json:"instruments"`
}

// Snapshot reads every instrument concurrently, each under its own
// timeout, and fails as a whole if any read fails.
func (s *Station) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	insts := make(map[string]instrument.Instrument, len(s.instruments))
	for name, inst := range s.instruments {
		insts[name] = inst
	}
	station := s.name
	timeout := s.opts.SnapshotTimeout
	s.mu.RUnlock()

	snap := Snapshot{
		Station:     station,
		TakenAt:     time.Now().UTC(),
		Instruments: make(map[string]instrument.Snapshot, len(insts)),
	}

	var snapMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, inst := range insts {
		g.Go(func() error {
			ictx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			is, err := inst.Snapshot(ictx)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", name, err)
			}
			snapMu.Lock()
			snap.Instruments[name] = is
			snapMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Reload applies a new inventory: removed and changed instruments are
// closed, added and changed ones opened, untouched ones keep their
// connection. Reload is best-effort; instruments that fail to open
// are reported joined but do not undo the rest.
func (s *Station) Reload(ctx context.Context, inv *Inventory) error {
	return s.reload(ctx, inv, "manual")
}

func (s *Station) reload(ctx context.Context, inv *Inventory, trigger string) error {
	if err := inv.Validate(); err != nil {
		metrics.IncStationReload(trigger, false)
		return err
	}
	err := s.apply(ctx, inv, false)
	metrics.IncStationReload(trigger, err == nil)
	return err
}

// apply diffs the running set against next and converges on it. With
// failFast the first open failure rolls everything back; otherwise
// failures are joined and the rest proceeds.
func (s *Station) apply(ctx context.Context, next *Inventory, failFast bool) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	s.mu.RLock()
	running := make(map[string]Entry, len(s.entries))
	for name, entry := range s.entries {
		running[name] = entry
	}
	s.mu.RUnlock()

	var closeNames, openNames []string
	for name, entry := range next.Instruments {
		if !entry.enabled() {
			continue
		}
		prev, ok := running[name]
		switch {
		case !ok:
			openNames = append(openNames, name)
		case !reflect.DeepEqual(prev, entry):
			closeNames = append(closeNames, name)
			openNames = append(openNames, name)
		}
	}
	for name := range running {
		if entry, ok := next.Instruments[name]; !ok || !entry.enabled() {
			closeNames = append(closeNames, name)
		}
	}
	sort.Strings(closeNames)
	sort.Strings(openNames)

	// Close before open so a changed entry never holds two
	// connections to the same device.
	for _, name := range closeNames {
		s.closeInstrument(name)
	}

	var errs []error
	opened := make([]string, 0, len(openNames))
	for _, name := range openNames {
		entry := next.Instruments[name]
		inst, err := s.open(ctx, name, entry)
		if err != nil {
			if failFast {
				for _, prev := range opened {
					s.closeInstrument(prev)
				}
				return err
			}
			errs = append(errs, err)
			continue
		}
		s.mu.Lock()
		s.instruments[name] = inst
		s.entries[name] = entry
		s.mu.Unlock()
		opened = append(opened, name)
	}

	s.mu.Lock()
	s.name = next.Name
	total := len(s.instruments)
	s.mu.Unlock()

	s.logger.Info().
		Int("open", total).
		Int("added", len(opened)).
		Int("removed", len(closeNames)).
		Str("station", next.Name).
		Msg("station converged on inventory")
	return errors.Join(errs...)
}

func (s *Station) open(ctx context.Context, name string, entry Entry) (instrument.Instrument, error) {
	factory, ok := s.registry[entry.Driver]
	if !ok {
		return nil, fmt.Errorf("unknown driver %q for instrument %q", entry.Driver, name)
	}
	topts, err := entry.transportOptions(s.opts.Transport)
	if err != nil {
		return nil, fmt.Errorf("instrument %q: %w", name, err)
	}
	topts.Pacer = s.pacer

	inst, err := factory(ctx, name, entry.Address, drivers.Config{
		Transport: topts,
		Settings:  entry.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("open instrument %q: %w", name, err)
	}
	return inst, nil
}

func (s *Station) closeInstrument(name string) {
	s.mu.Lock()
	inst, ok := s.instruments[name]
	delete(s.instruments, name)
	delete(s.entries, name)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := inst.Close(); err != nil {
		s.logger.Warn().Err(err).Str(log.FieldInstrument, name).Msg("close failed")
	}
}

// Close shuts every instrument down and reports their errors joined.
func (s *Station) Close() error {
	s.mu.Lock()
	insts := s.instruments
	s.instruments = make(map[string]instrument.Instrument)
	s.entries = make(map[string]Entry)
	s.mu.Unlock()

	names := make([]string, 0, len(insts))
	for name := range insts {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := insts[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
