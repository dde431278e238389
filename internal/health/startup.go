package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/benchtop-io/benchd/config"
	"github.com/benchtop-io/benchd/internal/log"
	"github.com/benchtop-io/benchd/internal/netutil"
)

// PerformStartupChecks validates the environment before the daemon
// brings up the station: a bad data directory or listen address
// should fail here, not minutes into an acquisition.
func PerformStartupChecks(_ context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkListenAddr(logger, cfg.APIListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if err := checkStationFile(logger, cfg.StationFile); err != nil {
		return fmt.Errorf("station inventory check failed: %w", err)
	}
	if err := checkCacheConfig(logger, cfg); err != nil {
		return fmt.Errorf("cache configuration check failed: %w", err)
	}
	if err := checkWebhook(logger, cfg.SlackWebhookURL); err != nil {
		return fmt.Errorf("notification check failed: %w", err)
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// Writability test: the run database and exports land here.
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str(log.FieldPath, path).Msg("✓ Data directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid API listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid API listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("✓ API listen address is valid")
	return nil
}

func checkStationFile(logger zerolog.Logger, path string) error {
	if path == "" {
		logger.Warn().Msg("no station inventory configured; starting with an empty bench")
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("station inventory %s must be a YAML file", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("station inventory does not exist: %s", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("station inventory is a directory: %s", path)
	}
	logger.Info().Str(log.FieldPath, path).Msg("✓ Station inventory is present")
	return nil
}

func checkCacheConfig(logger zerolog.Logger, cfg config.Config) error {
	switch cfg.CacheBackend {
	case "", "memory", "none":
		return nil
	case "redis":
		if cfg.CacheAddr == "" {
			return fmt.Errorf("cache backend %q requires an address", cfg.CacheBackend)
		}
		logger.Info().Str("addr", cfg.CacheAddr).Msg("✓ Cache backend configured")
		return nil
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func checkWebhook(logger zerolog.Logger, rawURL string) error {
	if rawURL == "" {
		return nil
	}
	if _, err := netutil.ValidateWebhookURL(rawURL); err != nil {
		return err
	}
	logger.Info().Str("url", netutil.SanitizeURL(rawURL)).Msg("✓ Notification webhook is valid")
	return nil
}
