// Command daemon runs benchd: it resolves the configuration, brings
// up the station and serves the HTTP API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/benchtop-io/benchd/config"
	"github.com/benchtop-io/benchd/console"
	"github.com/benchtop-io/benchd/internal/daemon"
	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	withConsole := flag.Bool("console", false, "serve an interactive bench console on stdin")
	flag.Parse()

	if *showVersion {
		fmt.Printf("benchd %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		return
	}

	// Explicit --config wins; otherwise pick up ${BENCHD_DATA}/benchd.yaml
	// when it exists.
	effectivePath := strings.TrimSpace(*configPath)
	if effectivePath == "" {
		dataDir := strings.TrimSpace(config.ParseString("BENCHD_DATA", "data"))
		auto := filepath.Join(dataDir, "benchd.yaml")
		if _, err := os.Stat(auto); err == nil {
			effectivePath = auto
		}
	}

	loader := config.NewLoader(effectivePath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		log.Configure(log.Config{Service: "benchd"})
		fatalLogger := log.WithComponent("main")
		fatalLogger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str(log.FieldPath, effectivePath).
			Msg("failed to load configuration")
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "benchd"})
	logger := log.WithComponent("main")

	if effectivePath != "" {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", effectivePath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(log.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Msg("starting benchd")

	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Runs DB: %s", cfg.DBPath)
	logger.Info().Msgf("→ API: %s", cfg.APIListenAddr)
	if cfg.StationFile != "" {
		logger.Info().Msgf("→ Station: %s (autoload: %v, reload: %v)",
			cfg.StationFile, cfg.StationAutoload, cfg.StationReload)
	} else {
		logger.Warn().Msg("→ Station: not configured, starting with an empty bench")
	}
	if cfg.MonitorEnabled {
		logger.Info().Msgf("→ Monitor: every %s (cache: %s)", cfg.MonitorInterval, cfg.CacheBackend)
	}
	if cfg.TelemetryEnabled {
		logger.Info().Msgf("→ Telemetry: %s via %s", cfg.TelemetryEndpoint, cfg.TelemetryExporter)
	}
	if cfg.SlackWebhookURL != "" {
		logger.Info().Msg("→ Notifications: Slack webhook configured")
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	m := daemon.New(cfg)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	if *withConsole {
		// The console shares the daemon's lifetime: quitting it
		// shuts benchd down.
		select {
		case <-m.Ready():
			c := console.New(m.Station(), os.Stdin, os.Stdout)
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn().Err(err).Msg("console stopped with error")
			}
			cancel()
		case <-ctx.Done():
		case err := <-done:
			done <- err
		}
	}

	if err := <-done; err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "daemon.failed").
			Msg("benchd exited with error")
	}
}
