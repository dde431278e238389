package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/benchtop-io/benchd/internal/validate"
)

// Validate checks the resolved configuration and returns an accumulated
// validation error describing every violated field at once.
func Validate(cfg Config) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("logLevel", "invalid log level (must be: debug, info, warn, error)", cfg.LogLevel)
	}

	v.Directory("dataDir", cfg.DataDir, false)

	validateGUIDComponents(v, cfg.GUID)

	v.HostPort("api.listenAddr", cfg.APIListenAddr, true)
	if cfg.RateLimitEnabled {
		v.Positive("api.rateLimit.perIp", cfg.RateLimitPerIP)
	}

	if cfg.MonitorEnabled && cfg.MonitorInterval <= 0 {
		v.AddError("monitor.interval", "interval must be positive when the monitor is enabled", cfg.MonitorInterval.String())
	}
	v.OneOf("monitor.cache.backend", cfg.CacheBackend, []string{"memory", "redis"})
	if cfg.CacheBackend == "redis" {
		v.HostPort("monitor.cache.addr", cfg.CacheAddr, false)
	}
	if cfg.CacheTTL <= 0 {
		v.AddError("monitor.cache.ttl", "ttl must be positive", cfg.CacheTTL.String())
	}

	if cfg.TelemetryEnabled {
		v.OneOf("telemetry.exporter", cfg.TelemetryExporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.TelemetryEndpoint)
		if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
			v.AddError("telemetry.samplingRate", fmt.Sprintf("sampling rate must be between 0 and 1, got %v", cfg.SamplingRate), cfg.SamplingRate)
		}
	}

	validateTransport(v, cfg)

	if cfg.StationFile != "" && cfg.StationAutoload {
		if _, err := os.Stat(cfg.StationFile); err != nil {
			v.AddError("station.file", fmt.Sprintf("station file not readable: %v", err), cfg.StationFile)
		}
	}

	if cfg.SlackWebhookURL != "" {
		v.URL("notify.slackWebhookUrl", cfg.SlackWebhookURL, []string{"https", "http"})
	}

	return v.Err()
}

// validateGUIDComponents enforces the GUID generation policy:
// guid_type must be one of the two known modes, and an explicit sample id
// may only be configured together with the explicit_sample mode.
func validateGUIDComponents(v *validate.Validator, g GUIDComponents) {
	v.OneOf("guid_components.guid_type", g.GUIDType, []string{GUIDTypeExplicitSample, GUIDTypeRandomSample})

	if g.Sample != 0 && g.GUIDType != GUIDTypeExplicitSample {
		v.AddError("guid_components.sample",
			fmt.Sprintf("sample id may only be set when guid_type is %q, got guid_type %q", GUIDTypeExplicitSample, g.GUIDType),
			g.Sample)
	}
	if g.Sample < 0 || g.Sample > math.MaxUint32 {
		v.AddError("guid_components.sample",
			fmt.Sprintf("sample id must fit in 32 bits (0..%d), got %d", int64(math.MaxUint32), g.Sample),
			g.Sample)
	}
	v.Range("guid_components.location", g.Location, 0, 255)
	v.Range("guid_components.work_station", g.WorkStation, 0, 0xFFFFFF)
}

func validateTransport(v *validate.Validator, cfg Config) {
	if cfg.DialTimeout <= 0 {
		v.AddError("transport.dialTimeout", "dial timeout must be positive", cfg.DialTimeout.String())
	}
	if cfg.ReadTimeout <= 0 {
		v.AddError("transport.readTimeout", "read timeout must be positive", cfg.ReadTimeout.String())
	}
	if cfg.DialTimeout > 5*time.Minute {
		v.AddError("transport.dialTimeout", "dial timeout above 5m is almost certainly a unit mistake", cfg.DialTimeout.String())
	}
	if cfg.CommandRate <= 0 {
		v.AddError("transport.commandRate", fmt.Sprintf("command rate must be positive, got %v", cfg.CommandRate), cfg.CommandRate)
	}
	v.Positive("transport.commandBurst", cfg.CommandBurst)
}
