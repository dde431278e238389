// Package config provides configuration management for benchd.
//
// Configuration is resolved with the precedence ENV > file > defaults.
// File parsing is strict: unknown keys are rejected so that typos fail
// at startup rather than silently running with defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GUID type selection for dataset run identifiers.
const (
	GUIDTypeExplicitSample = "explicit_sample"
	GUIDTypeRandomSample   = "random_sample"
)

// FileConfig represents the YAML configuration structure.
// Pointer fields distinguish "not set" from "explicitly zero/false".
type FileConfig struct {
	DataDir  string `yaml:"dataDir,omitempty"`
	LogLevel string `yaml:"logLevel,omitempty"`

	GUIDComponents GUIDComponentsConfig `yaml:"guid_components,omitempty"`
	Station        StationFileConfig    `yaml:"station,omitempty"`
	Database       DatabaseConfig       `yaml:"database,omitempty"`
	Monitor        MonitorConfig        `yaml:"monitor,omitempty"`
	API            APIConfig            `yaml:"api,omitempty"`
	Telemetry      TelemetryConfig      `yaml:"telemetry,omitempty"`
	Transport      TransportConfig      `yaml:"transport,omitempty"`
	Notify         NotifyConfig         `yaml:"notify,omitempty"`
}

// GUIDComponentsConfig controls how run GUIDs are generated.
type GUIDComponentsConfig struct {
	// GUIDType is "random_sample" (default) or "explicit_sample".
	GUIDType string `yaml:"guid_type,omitempty"`
	// Sample is the explicit sample id. Only valid with guid_type
	// "explicit_sample"; setting it otherwise is a configuration error.
	Sample      *int64 `yaml:"sample,omitempty"`
	Location    *int   `yaml:"location,omitempty"`
	WorkStation *int   `yaml:"work_station,omitempty"`
}

// StationFileConfig locates the station inventory file.
type StationFileConfig struct {
	File     string `yaml:"file,omitempty"`
	Autoload *bool  `yaml:"autoload,omitempty"`
	Reload   *bool  `yaml:"reload,omitempty"`
}

// DatabaseConfig holds dataset storage settings.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
}

// MonitorConfig holds the periodic parameter snapshot job settings.
type MonitorConfig struct {
	Enabled  *bool       `yaml:"enabled,omitempty"`
	Interval string      `yaml:"interval,omitempty"` // e.g. "5s"
	Cache    CacheConfig `yaml:"cache,omitempty"`
}

// CacheConfig selects the snapshot cache backend.
type CacheConfig struct {
	Backend  string `yaml:"backend,omitempty"` // "memory" or "redis"
	Addr     string `yaml:"addr,omitempty"`    // redis address
	Password string `yaml:"password,omitempty"`
	DB       *int   `yaml:"db,omitempty"`
	TTL      string `yaml:"ttl,omitempty"` // e.g. "30s"
}

// APIConfig holds API server configuration.
type APIConfig struct {
	ListenAddr string          `yaml:"listenAddr,omitempty"`
	RateLimit  RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// RateLimitConfig holds API rate limiting settings.
type RateLimitConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
	PerIP   *int  `yaml:"perIp,omitempty"` // requests per minute per client IP
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"` // "grpc" or "http"
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

// TransportConfig holds instrument transport defaults.
type TransportConfig struct {
	DialTimeout  string   `yaml:"dialTimeout,omitempty"`  // e.g. "5s"
	ReadTimeout  string   `yaml:"readTimeout,omitempty"`  // e.g. "2s"
	CommandRate  *float64 `yaml:"commandRate,omitempty"`  // commands/second per instrument
	CommandBurst *int     `yaml:"commandBurst,omitempty"` // burst size
}

// NotifyConfig holds run-completion notification settings.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slackWebhookUrl,omitempty"`
	SlackChannel    string `yaml:"slackChannel,omitempty"`
}

// GUIDComponents is the resolved GUID generation policy.
type GUIDComponents struct {
	GUIDType    string
	Sample      int64
	Location    int
	WorkStation int
}

// Config holds all resolved configuration for the application.
type Config struct {
	Version  string
	DataDir  string
	LogLevel string

	GUID GUIDComponents

	StationFile     string
	StationAutoload bool
	StationReload   bool

	DBPath string

	MonitorEnabled  bool
	MonitorInterval time.Duration
	CacheBackend    string
	CacheAddr       string
	CachePassword   string
	CacheDB         int
	CacheTTL        time.Duration

	APIListenAddr    string
	RateLimitEnabled bool
	RateLimitPerIP   int

	TelemetryEnabled  bool
	TelemetryExporter string
	TelemetryEndpoint string
	SamplingRate      float64

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	CommandRate  float64
	CommandBurst int

	SlackWebhookURL string
	SlackChannel    string
}

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order is strict: parse file (strict) -> apply env -> validate.
func (l *Loader) Load() (Config, error) {
	cfg := Config{}

	// 1. Set defaults
	l.setDefaults(&cfg)

	// 2. Load from file (if provided)
	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := l.mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	// 3. Override with environment variables (highest priority)
	l.mergeEnvConfig(&cfg)

	// SAFETY: Ensure DataDir is absolute to prevent path traversal/platform errors
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}

	// 4. Derive dependent paths after DataDir is final
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "experiments.db")
	}
	if cfg.StationFile == "" {
		candidate := filepath.Join(cfg.DataDir, "station.yaml")
		if _, err := os.Stat(candidate); err == nil {
			cfg.StationFile = candidate
		}
	}

	// 5. Version from binary
	cfg.Version = l.version

	// 6. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration.
func (l *Loader) setDefaults(cfg *Config) {
	cfg.DataDir = "data"
	cfg.LogLevel = "info"

	cfg.GUID.GUIDType = GUIDTypeRandomSample

	cfg.StationAutoload = true
	cfg.StationReload = false

	cfg.MonitorEnabled = false
	cfg.MonitorInterval = 10 * time.Second
	cfg.CacheBackend = "memory"
	cfg.CacheTTL = 30 * time.Second

	cfg.APIListenAddr = ":8088"
	cfg.RateLimitEnabled = true
	cfg.RateLimitPerIP = 300

	cfg.TelemetryEnabled = false
	cfg.TelemetryExporter = "grpc"
	cfg.SamplingRate = 0.1

	cfg.DialTimeout = 5 * time.Second
	cfg.ReadTimeout = 2 * time.Second
	cfg.CommandRate = 20
	cfg.CommandBurst = 5
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	// Check file extension
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	// Parse YAML with strict mode (unknown fields cause errors)
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

// mergeFileConfig merges file configuration into the resolved Config.
func (l *Loader) mergeFileConfig(dst *Config, src *FileConfig) error {
	if src.DataDir != "" {
		dst.DataDir = expandEnv(src.DataDir)
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}

	// GUID components
	if src.GUIDComponents.GUIDType != "" {
		dst.GUID.GUIDType = src.GUIDComponents.GUIDType
	}
	if src.GUIDComponents.Sample != nil {
		dst.GUID.Sample = *src.GUIDComponents.Sample
	}
	if src.GUIDComponents.Location != nil {
		dst.GUID.Location = *src.GUIDComponents.Location
	}
	if src.GUIDComponents.WorkStation != nil {
		dst.GUID.WorkStation = *src.GUIDComponents.WorkStation
	}

	// Station
	if src.Station.File != "" {
		dst.StationFile = expandEnv(src.Station.File)
	}
	if src.Station.Autoload != nil {
		dst.StationAutoload = *src.Station.Autoload
	}
	if src.Station.Reload != nil {
		dst.StationReload = *src.Station.Reload
	}

	// Database
	if src.Database.Path != "" {
		dst.DBPath = expandEnv(src.Database.Path)
	}

	// Monitor
	if src.Monitor.Enabled != nil {
		dst.MonitorEnabled = *src.Monitor.Enabled
	}
	if src.Monitor.Interval != "" {
		d, err := time.ParseDuration(src.Monitor.Interval)
		if err != nil {
			return fmt.Errorf("invalid monitor.interval: %w", err)
		}
		dst.MonitorInterval = d
	}
	if src.Monitor.Cache.Backend != "" {
		dst.CacheBackend = src.Monitor.Cache.Backend
	}
	if src.Monitor.Cache.Addr != "" {
		dst.CacheAddr = expandEnv(src.Monitor.Cache.Addr)
	}
	if src.Monitor.Cache.Password != "" {
		dst.CachePassword = expandEnv(src.Monitor.Cache.Password)
	}
	if src.Monitor.Cache.DB != nil {
		dst.CacheDB = *src.Monitor.Cache.DB
	}
	if src.Monitor.Cache.TTL != "" {
		d, err := time.ParseDuration(src.Monitor.Cache.TTL)
		if err != nil {
			return fmt.Errorf("invalid monitor.cache.ttl: %w", err)
		}
		dst.CacheTTL = d
	}

	// API
	if src.API.ListenAddr != "" {
		dst.APIListenAddr = expandEnv(src.API.ListenAddr)
	}
	if src.API.RateLimit.Enabled != nil {
		dst.RateLimitEnabled = *src.API.RateLimit.Enabled
	}
	if src.API.RateLimit.PerIP != nil {
		dst.RateLimitPerIP = *src.API.RateLimit.PerIP
	}

	// Telemetry
	if src.Telemetry.Enabled != nil {
		dst.TelemetryEnabled = *src.Telemetry.Enabled
	}
	if src.Telemetry.Exporter != "" {
		dst.TelemetryExporter = src.Telemetry.Exporter
	}
	if src.Telemetry.Endpoint != "" {
		dst.TelemetryEndpoint = expandEnv(src.Telemetry.Endpoint)
	}
	if src.Telemetry.SamplingRate != nil {
		dst.SamplingRate = *src.Telemetry.SamplingRate
	}

	// Transport
	if src.Transport.DialTimeout != "" {
		d, err := time.ParseDuration(src.Transport.DialTimeout)
		if err != nil {
			return fmt.Errorf("invalid transport.dialTimeout: %w", err)
		}
		dst.DialTimeout = d
	}
	if src.Transport.ReadTimeout != "" {
		d, err := time.ParseDuration(src.Transport.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid transport.readTimeout: %w", err)
		}
		dst.ReadTimeout = d
	}
	if src.Transport.CommandRate != nil {
		dst.CommandRate = *src.Transport.CommandRate
	}
	if src.Transport.CommandBurst != nil {
		dst.CommandBurst = *src.Transport.CommandBurst
	}

	// Notify
	if src.Notify.SlackWebhookURL != "" {
		dst.SlackWebhookURL = expandEnv(src.Notify.SlackWebhookURL)
	}
	if src.Notify.SlackChannel != "" {
		dst.SlackChannel = src.Notify.SlackChannel
	}

	return nil
}

// mergeEnvConfig merges environment variables into the resolved Config.
// ENV variables have the highest precedence.
func (l *Loader) mergeEnvConfig(cfg *Config) {
	cfg.DataDir = l.envString("BENCHD_DATA", cfg.DataDir)
	cfg.LogLevel = l.envString("BENCHD_LOG_LEVEL", cfg.LogLevel)

	// GUID components
	cfg.GUID.GUIDType = l.envString("BENCHD_GUID_TYPE", cfg.GUID.GUIDType)
	cfg.GUID.Sample = l.envInt64("BENCHD_GUID_SAMPLE", cfg.GUID.Sample)
	cfg.GUID.Location = l.envInt("BENCHD_GUID_LOCATION", cfg.GUID.Location)
	cfg.GUID.WorkStation = l.envInt("BENCHD_GUID_WORK_STATION", cfg.GUID.WorkStation)

	// Station
	cfg.StationFile = l.envString("BENCHD_STATION_FILE", cfg.StationFile)
	cfg.StationAutoload = l.envBool("BENCHD_STATION_AUTOLOAD", cfg.StationAutoload)
	cfg.StationReload = l.envBool("BENCHD_STATION_RELOAD", cfg.StationReload)

	// Database
	cfg.DBPath = l.envString("BENCHD_DB_PATH", cfg.DBPath)

	// Monitor
	cfg.MonitorEnabled = l.envBool("BENCHD_MONITOR_ENABLED", cfg.MonitorEnabled)
	cfg.MonitorInterval = l.envDuration("BENCHD_MONITOR_INTERVAL", cfg.MonitorInterval)
	cfg.CacheBackend = l.envString("BENCHD_CACHE_BACKEND", cfg.CacheBackend)
	cfg.CacheAddr = l.envString("BENCHD_REDIS_ADDR", cfg.CacheAddr)
	cfg.CachePassword = l.envString("BENCHD_REDIS_PASSWORD", cfg.CachePassword)
	cfg.CacheDB = l.envInt("BENCHD_REDIS_DB", cfg.CacheDB)
	cfg.CacheTTL = l.envDuration("BENCHD_CACHE_TTL", cfg.CacheTTL)

	// API
	cfg.APIListenAddr = l.envString("BENCHD_LISTEN", cfg.APIListenAddr)
	cfg.RateLimitEnabled = l.envBool("BENCHD_RATE_LIMIT_ENABLED", cfg.RateLimitEnabled)
	cfg.RateLimitPerIP = l.envInt("BENCHD_RATE_LIMIT_PER_IP", cfg.RateLimitPerIP)

	// Telemetry
	cfg.TelemetryEnabled = l.envBool("BENCHD_TELEMETRY_ENABLED", cfg.TelemetryEnabled)
	cfg.TelemetryExporter = l.envString("BENCHD_TELEMETRY_EXPORTER", cfg.TelemetryExporter)
	cfg.TelemetryEndpoint = l.envString("BENCHD_TELEMETRY_ENDPOINT", cfg.TelemetryEndpoint)
	cfg.SamplingRate = l.envFloat("BENCHD_TELEMETRY_SAMPLING", cfg.SamplingRate)

	// Transport
	cfg.DialTimeout = l.envDuration("BENCHD_DIAL_TIMEOUT", cfg.DialTimeout)
	cfg.ReadTimeout = l.envDuration("BENCHD_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.CommandRate = l.envFloat("BENCHD_COMMAND_RATE", cfg.CommandRate)
	cfg.CommandBurst = l.envInt("BENCHD_COMMAND_BURST", cfg.CommandBurst)

	// Notify
	cfg.SlackWebhookURL = l.envString("BENCHD_SLACK_WEBHOOK_URL", cfg.SlackWebhookURL)
	cfg.SlackChannel = l.envString("BENCHD_SLACK_CHANNEL", cfg.SlackChannel)
}

// expandEnv expands environment variables in the format ${VAR} or $VAR
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// String implements fmt.Stringer to provide a redacted representation of the
// config. Sensitive fields are masked so the struct can be logged safely.
func (c Config) String() string {
	masked := c
	if masked.CachePassword != "" {
		masked.CachePassword = "***"
	}
	if masked.SlackWebhookURL != "" {
		masked.SlackWebhookURL = maskURL(masked.SlackWebhookURL)
	}
	return fmt.Sprintf("%+v", struct {
		Version  string
		DataDir  string
		LogLevel string
		GUID     GUIDComponents
		Station  string
		DBPath   string
		Cache    string
		Listen   string
	}{
		Version:  masked.Version,
		DataDir:  masked.DataDir,
		LogLevel: masked.LogLevel,
		GUID:     masked.GUID,
		Station:  masked.StationFile,
		DBPath:   masked.DBPath,
		Cache:    masked.CacheBackend,
		Listen:   masked.APIListenAddr,
	})
}

// maskURL hides everything after the host so webhook secrets never hit logs.
func maskURL(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		rest := raw[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return raw[:i+3] + rest[:j] + "/***"
		}
	}
	return "***"
}
