// Package config provides configuration structs and utilities for the wikisync application.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
)

// Config represents the root configuration for the wikisync application.
type Config struct {
	Sync          SyncConfig          `yaml:"sync"`
	Cache         CacheConfig         `yaml:"cache"`
	Remote        RemoteConfig        `yaml:"remote"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SyncConfig holds configuration for the sync engine.
type SyncConfig struct {
	Interval           time.Duration     `yaml:"interval"`
	CallTimeout        time.Duration     `yaml:"call_timeout"`
	MaxRetries         int               `yaml:"max_retries"`
	DefaultStrategy    string            `yaml:"default_strategy"`
	Strategies         map[string]string `yaml:"strategies,omitempty"` // document id -> strategy
	MergeSkewTolerance time.Duration     `yaml:"merge_skew_tolerance"`
	RecentThreshold    time.Duration     `yaml:"recent_threshold"` // how old lastSync may be before `status` calls the cache stale
	Lock               string            `yaml:"lock"`             // cross-process lock file; empty disables
}

// CacheConfig holds configuration for the local document cache.
type CacheConfig struct {
	Driver string `yaml:"driver"` // sqlite, memory
	Path   string `yaml:"path"`
}

// RemoteConfig holds configuration for the authoritative remote store.
type RemoteConfig struct {
	Backend     string `yaml:"backend"` // memory, http, postgres
	BaseURL     string `yaml:"base_url,omitempty"`
	DatabaseURL string `yaml:"database_url,omitempty"`
	IndexPath   string `yaml:"index_path"`
	IndexFormat string `yaml:"index_format"` // summary, yaml
	TokenEnv    string `yaml:"token_env"`
	Keyring     bool   `yaml:"keyring"` // look the token up in the OS keychain first
}

// WorkspaceConfig holds configuration for the editable file mirror.
type WorkspaceConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Dir      string        `yaml:"dir"`
	Debounce time.Duration `yaml:"debounce"`
}

// ServerConfig holds configuration for `wikisync serve`.
type ServerConfig struct {
	Listen    string          `yaml:"listen"`
	JWTSecret string          `yaml:"jwt_secret,omitempty"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig configures per-subject request limiting.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"` // requests per second, 0 disables
	Burst int     `yaml:"burst"`
}

// LoggingConfig holds configuration for application logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, text
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ObservabilityConfig holds configuration for observability features.
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig holds configuration for distributed tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`       // Whether tracing is enabled
	ExporterType string  `yaml:"exporter_type"` // none, stdout, otlp
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // OTLP collector endpoint
	SampleRate   float64 `yaml:"sample_rate"`   // Sampling rate (0.0 to 1.0)
	ServiceName  string  `yaml:"service_name"`  // Service name for traces
}

// Default configuration values.
const (
	DefaultSyncInterval       = 15 * time.Minute
	DefaultCallTimeout        = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultMergeSkewTolerance = 2 * time.Second
	DefaultRecentThreshold    = time.Hour
	DefaultLockFile           = "~/.wikisync/sync.lock"

	DefaultCacheDriver = "sqlite"
	DefaultCachePath   = "~/.wikisync/cache.db"

	DefaultRemoteBackend = "http"
	DefaultRemoteBaseURL = "http://localhost:8787"
	DefaultIndexPath     = "SUMMARY.md"
	DefaultIndexFormat   = "summary"
	DefaultTokenEnv      = "WIKISYNC_TOKEN"

	DefaultWorkspaceDir      = "~/wiki"
	DefaultWorkspaceDebounce = 500 * time.Millisecond

	DefaultServerListen = "127.0.0.1:8787"
	DefaultServerRate   = 20.0
	DefaultServerBurst  = 40

	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28

	// Observability defaults
	DefaultTracingEnabled      = false
	DefaultTracingExporterType = "none"
	DefaultTracingSampleRate   = 1.0
	DefaultTracingServiceName  = "wikisync"
)

// Valid log levels.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid log formats.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Valid tracing exporter types.
var validTracingExporterTypes = map[string]bool{
	"none":   true,
	"stdout": true,
	"otlp":   true,
}

var validCacheDrivers = map[string]bool{
	"sqlite": true,
	"memory": true,
}

var validRemoteBackends = map[string]bool{
	"memory":   true,
	"http":     true,
	"postgres": true,
}

var validIndexFormats = map[string]bool{
	"summary": true,
	"yaml":    true,
}

// NewDefaultConfig creates a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			Interval:           DefaultSyncInterval,
			CallTimeout:        DefaultCallTimeout,
			MaxRetries:         DefaultMaxRetries,
			DefaultStrategy:    string(conflict.DefaultStrategy),
			Strategies:         map[string]string{},
			MergeSkewTolerance: DefaultMergeSkewTolerance,
			RecentThreshold:    DefaultRecentThreshold,
			Lock:               DefaultLockFile,
		},
		Cache: CacheConfig{
			Driver: DefaultCacheDriver,
			Path:   DefaultCachePath,
		},
		Remote: RemoteConfig{
			Backend:     DefaultRemoteBackend,
			BaseURL:     DefaultRemoteBaseURL,
			IndexPath:   DefaultIndexPath,
			IndexFormat: DefaultIndexFormat,
			TokenEnv:    DefaultTokenEnv,
			Keyring:     true,
		},
		Workspace: WorkspaceConfig{
			Enabled:  false,
			Dir:      DefaultWorkspaceDir,
			Debounce: DefaultWorkspaceDebounce,
		},
		Server: ServerConfig{
			Listen: DefaultServerListen,
			RateLimit: RateLimitConfig{
				Rate:  DefaultServerRate,
				Burst: DefaultServerBurst,
			},
		},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:      DefaultTracingEnabled,
				ExporterType: DefaultTracingExporterType,
				SampleRate:   DefaultTracingSampleRate,
				ServiceName:  DefaultTracingServiceName,
			},
		},
	}
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Sync.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}

	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}

	if err := c.Remote.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("remote: %w", err))
	}

	if err := c.Workspace.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("workspace: %w", err))
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("observability: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the SyncConfig is valid.
func (s *SyncConfig) Validate() error {
	var errs []error

	if s.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if s.CallTimeout <= 0 {
		errs = append(errs, errors.New("call_timeout must be positive"))
	}
	if s.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries must be non-negative"))
	}
	if s.MergeSkewTolerance < 0 {
		errs = append(errs, errors.New("merge_skew_tolerance must be non-negative"))
	}
	if s.RecentThreshold <= 0 {
		errs = append(errs, errors.New("recent_threshold must be positive"))
	}
	if !conflict.Strategy(s.DefaultStrategy).IsValid() {
		errs = append(errs, fmt.Errorf("invalid default_strategy %q", s.DefaultStrategy))
	}
	for id, name := range s.Strategies {
		if !conflict.Strategy(name).IsValid() {
			errs = append(errs, fmt.Errorf("strategies.%s: invalid strategy %q", id, name))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the CacheConfig is valid.
func (c *CacheConfig) Validate() error {
	var errs []error

	if !validCacheDrivers[c.Driver] {
		errs = append(errs, fmt.Errorf("invalid driver %q: must be one of sqlite, memory", c.Driver))
	}
	if c.Driver == "sqlite" && c.Path == "" {
		errs = append(errs, errors.New("path is required for the sqlite driver"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the RemoteConfig is valid.
func (r *RemoteConfig) Validate() error {
	var errs []error

	if !validRemoteBackends[r.Backend] {
		errs = append(errs, fmt.Errorf("invalid backend %q: must be one of memory, http, postgres", r.Backend))
	}

	switch r.Backend {
	case "http":
		if r.BaseURL == "" {
			errs = append(errs, errors.New("base_url is required for the http backend"))
		} else if parsedURL, err := url.Parse(r.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid base_url: %w", err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errs = append(errs, errors.New("base_url must use http or https scheme"))
		}
	case "postgres":
		if r.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for the postgres backend"))
		}
	}

	if r.IndexPath == "" {
		errs = append(errs, errors.New("index_path is required"))
	}
	if !validIndexFormats[r.IndexFormat] {
		errs = append(errs, fmt.Errorf("invalid index_format %q: must be one of summary, yaml", r.IndexFormat))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the WorkspaceConfig is valid.
func (w *WorkspaceConfig) Validate() error {
	var errs []error

	if w.Enabled && w.Dir == "" {
		errs = append(errs, errors.New("dir is required when enabled"))
	}
	if w.Debounce < 0 {
		errs = append(errs, errors.New("debounce must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the ServerConfig is valid.
func (s *ServerConfig) Validate() error {
	var errs []error

	if s.Listen == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if s.RateLimit.Rate < 0 {
		errs = append(errs, errors.New("rate_limit.rate must be non-negative"))
	}
	if s.RateLimit.Rate > 0 && s.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit.burst must be positive when rate limiting is enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the LoggingConfig is valid.
func (l *LoggingConfig) Validate() error {
	var errs []error

	if l.Level != "" && !validLogLevels[l.Level] {
		errs = append(errs, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be one of json, text", l.Format))
	}

	if l.File != "" && l.MaxSizeMB <= 0 {
		errs = append(errs, errors.New("max_size_mb must be positive when file is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Validate checks if the ObservabilityConfig is valid.
func (o *ObservabilityConfig) Validate() error {
	if err := o.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	return nil
}

// Validate checks if the TracingConfig is valid.
func (t *TracingConfig) Validate() error {
	var errs []error

	if t.Enabled {
		if t.ExporterType != "" && !validTracingExporterTypes[t.ExporterType] {
			errs = append(errs, fmt.Errorf("invalid exporter_type %q: must be one of none, stdout, otlp", t.ExporterType))
		}
		if t.ExporterType == "otlp" && t.OTLPEndpoint == "" {
			errs = append(errs, errors.New("otlp_endpoint is required when exporter_type is 'otlp'"))
		}
		if t.SampleRate < 0 || t.SampleRate > 1 {
			errs = append(errs, errors.New("sample_rate must be between 0.0 and 1.0"))
		}
		if t.ServiceName == "" {
			errs = append(errs, errors.New("service_name is required when tracing is enabled"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
