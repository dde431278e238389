// Package daemon assembles the benchd process: dataset store, station,
// snapshot cache, monitor job and the HTTP API, run under one context
// with ordered teardown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/benchtop-io/benchd/config"
	"github.com/benchtop-io/benchd/dataset"
	"github.com/benchtop-io/benchd/internal/api"
	"github.com/benchtop-io/benchd/internal/cache"
	"github.com/benchtop-io/benchd/internal/health"
	"github.com/benchtop-io/benchd/internal/jobs"
	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/ratelimit"
	"github.com/benchtop-io/benchd/internal/telemetry"
	"github.com/benchtop-io/benchd/notify/slack"
	"github.com/benchtop-io/benchd/station"
	"github.com/benchtop-io/benchd/transport"
)

// Server timeouts. Parameter reads go out to instruments inside a
// request, so the write timeout sits above the API request timeout.
const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 120 * time.Second
	maxHeaderBytes  = 1 << 20
	shutdownTimeout = 30 * time.Second
)

// ShutdownHook releases one resource during teardown. Hooks run in
// reverse registration order, so the store opened first closes last.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager owns every subsystem of a running daemon and its lifecycle.
type Manager struct {
	cfg    config.Config
	logger zerolog.Logger

	store     *dataset.Store
	station   *station.Station
	cache     cache.Cache
	monitor   *jobs.Monitor
	apiServer *http.Server

	mu       sync.Mutex
	started  bool
	listener net.Listener
	hooks    []namedHook
	ready    chan struct{}
}

// New builds an unstarted manager; Run opens the resources.
func New(cfg config.Config) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: log.WithComponent("daemon"),
		ready:  make(chan struct{}),
	}
}

// Ready is closed once the API listener is bound. It never closes
// when Run fails during bring-up.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Station returns the open station. Nil before Ready.
func (m *Manager) Station() *station.Station {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.station
}

// Addr returns the bound API address, or "" before Run has opened the
// listener. With a :0 listen port this is how tests find the server.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *Manager) registerHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}

// Run brings the daemon up and blocks until ctx is canceled or a
// subsystem fails. Teardown order: the jobs and the API server stop
// first, then the hooks run in reverse open order (telemetry, cache,
// station, store).
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("daemon already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("version", m.cfg.Version).
		Str("listen", m.cfg.APIListenAddr).
		Msg("starting benchd")

	if err := m.open(ctx); err != nil {
		return errors.Join(err, m.runHooks(ctx))
	}
	err := m.serve(ctx)
	if hookErr := m.runHooks(ctx); err != nil || hookErr != nil {
		return errors.Join(err, hookErr)
	}
	m.logger.Info().Msg("benchd stopped cleanly")
	return nil
}

// open stands up the stateful subsystems in dependency order,
// registering a close hook for each as it comes up.
func (m *Manager) open(ctx context.Context) error {
	cfg := m.cfg

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	store, err := dataset.Open(cfg.DBPath, cfg.GUID)
	if err != nil {
		return fmt.Errorf("open dataset store: %w", err)
	}
	m.store = store
	m.registerHook("dataset", func(context.Context) error { return store.Close() })

	st, err := m.openStation(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.station = st
	m.mu.Unlock()
	m.registerHook("station", func(context.Context) error { return st.Close() })

	c, err := cache.New(cfg.CacheBackend, cache.RedisConfig{
		Addr:     cfg.CacheAddr,
		Password: cfg.CachePassword,
		DB:       cfg.CacheDB,
	}, m.logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	m.cache = c
	if closer, ok := c.(io.Closer); ok {
		m.registerHook("cache", func(context.Context) error { return closer.Close() })
	}

	if cfg.TelemetryEnabled {
		provider, err := telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        true,
			ServiceName:    "benchd",
			ServiceVersion: cfg.Version,
			Environment:    "lab",
			ExporterType:   cfg.TelemetryExporter,
			Endpoint:       cfg.TelemetryEndpoint,
			SamplingRate:   cfg.SamplingRate,
		})
		if err != nil {
			m.logger.Warn().Err(err).Msg("telemetry init failed, continuing without tracing")
		} else {
			m.registerHook("telemetry", provider.Shutdown)
		}
	}

	if cfg.MonitorEnabled {
		var opts []jobs.Option
		if cfg.SlackWebhookURL != "" {
			notifier, err := slack.New(slack.Options{
				WebhookURL: cfg.SlackWebhookURL,
				Channel:    cfg.SlackChannel,
			})
			if err != nil {
				return fmt.Errorf("slack notifier: %w", err)
			}
			opts = append(opts, jobs.WithNotifier(notifier))
		}
		m.monitor = jobs.NewMonitor(st, c, cfg.MonitorInterval, cfg.CacheTTL, opts...)
	} else if cfg.SlackWebhookURL != "" {
		m.logger.Warn().Msg("slack webhook configured but the monitor is disabled, no alerts will fire")
	}
	return nil
}

// openStation builds the bench from the inventory file, or an empty
// one when no file is configured or autoload is off.
func (m *Manager) openStation(ctx context.Context) (*station.Station, error) {
	cfg := m.cfg

	inv := &station.Inventory{Name: "bench"}
	if cfg.StationFile != "" && cfg.StationAutoload {
		loaded, err := station.Load(cfg.StationFile)
		if err != nil {
			return nil, fmt.Errorf("load station inventory: %w", err)
		}
		inv = loaded
	}

	pacing := ratelimit.DefaultConfig()
	if cfg.CommandRate > 0 {
		pacing.PerInstrumentRate = rate.Limit(cfg.CommandRate)
	}
	if cfg.CommandBurst > 0 {
		pacing.PerInstrumentBurst = cfg.CommandBurst
	}

	st, err := station.Open(ctx, inv, station.Options{
		Pacing: pacing,
		Transport: transport.Options{
			DialTimeout: cfg.DialTimeout,
			ReadTimeout: cfg.ReadTimeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open station: %w", err)
	}
	return st, nil
}

// serve wires the API handler, binds the listener and runs the long
// lived goroutines until the first failure or cancellation.
func (m *Manager) serve(ctx context.Context) error {
	cfg := m.cfg

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewDatabaseChecker(m.store.Ping))
	hm.RegisterChecker(health.NewStationChecker(m.station.Names))
	hm.RegisterChecker(health.NewCacheChecker(m.cache))
	hm.RegisterChecker(health.NewInventoryChecker(cfg.StationFile))
	if m.monitor != nil {
		hm.RegisterChecker(health.NewSnapshotChecker(m.monitor.LastSnapshot, 3*cfg.MonitorInterval))
	}

	handler := api.New(cfg, api.Deps{
		Station: m.station,
		Store:   m.store,
		Cache:   m.cache,
		Health:  hm,
		Monitor: m.monitor,
	}).Handler()

	ln, err := net.Listen("tcp", cfg.APIListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.APIListenAddr, err)
	}
	m.mu.Lock()
	m.listener = ln
	m.mu.Unlock()
	close(m.ready)

	m.apiServer = &http.Server{
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout / 2,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	m.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := m.apiServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	if m.monitor != nil {
		g.Go(func() error { return m.monitor.Run(gctx) })
	}
	if cfg.StationReload && cfg.StationFile != "" {
		g.Go(func() error { return m.station.Watch(gctx, cfg.StationFile) })
	}
	g.Go(func() error {
		<-gctx.Done()
		// Detached but bounded, so draining can finish after the
		// parent context is already canceled.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := m.apiServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// runHooks releases resources in reverse registration order. Failures
// are joined, not short-circuited: a cache that will not close must
// not keep the store open.
func (m *Manager) runHooks(ctx context.Context) error {
	m.mu.Lock()
	hooks := m.hooks
	m.hooks = nil
	m.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}
	return errors.Join(errs...)
}
