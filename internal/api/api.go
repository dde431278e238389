// Package api serves the daemon's HTTP surface: health and metrics
// probes, instrument state, parameter access, and recorded runs.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benchtop-io/benchd/config"
	"github.com/benchtop-io/benchd/dataset"
	"github.com/benchtop-io/benchd/internal/audit"
	"github.com/benchtop-io/benchd/internal/cache"
	"github.com/benchtop-io/benchd/internal/health"
	"github.com/benchtop-io/benchd/internal/jobs"
	"github.com/benchtop-io/benchd/station"
)

// requestTimeout bounds one API request end to end. Parameter reads
// go out to instruments, so this sits well above the wire timeouts.
const requestTimeout = 30 * time.Second

// Deps carries the daemon subsystems the API serves.
type Deps struct {
	Station *station.Station
	Store   *dataset.Store
	Cache   cache.Cache
	Health  *health.Manager
	Monitor *jobs.Monitor
}

// Server exposes the HTTP API. The daemon owns the http.Server; this
// type only builds the handler tree.
type Server struct {
	cfg     config.Config
	station *station.Station
	store   *dataset.Store
	cache   cache.Cache
	health  *health.Manager
	monitor *jobs.Monitor
	audit   *audit.Logger
}

// New assembles the API from its dependencies.
func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		station: deps.Station,
		store:   deps.Store,
		cache:   deps.Cache,
		health:  deps.Health,
		monitor: deps.Monitor,
		audit:   audit.NewLogger(),
	}
}

// Handler returns the routed handler with the full middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(AccessLog)
	r.Use(Metrics)
	if s.cfg.TelemetryEnabled {
		r.Use(OTelHTTP("benchd-api"))
	}

	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		if s.cfg.RateLimitEnabled {
			r.Use(RateLimit(s.cfg.RateLimitPerIP, s.audit))
		}

		r.Get("/instruments", s.handleInstruments)
		r.Get("/instruments/{name}/parameters/{param}", s.handleParameterGet)
		r.Put("/instruments/{name}/parameters/{param}", s.handleParameterSet)

		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{guid}", s.handleRun)
		r.Get("/runs/{guid}/export", s.handleRunExport)

		r.Get("/monitor", s.handleMonitor)
		r.Get("/monitor/status", s.handleMonitorStatus)
	})

	return r
}
