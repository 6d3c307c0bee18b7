package config

import (
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg == nil {
		t.Fatal("NewDefaultConfig returned nil")
	}

	if cfg.Sync.Interval != DefaultSyncInterval {
		t.Errorf("expected sync interval %v, got %v", DefaultSyncInterval, cfg.Sync.Interval)
	}
	if cfg.Sync.DefaultStrategy != "remote-wins" {
		t.Errorf("expected default strategy remote-wins, got %q", cfg.Sync.DefaultStrategy)
	}
	if cfg.Sync.MergeSkewTolerance != 2*time.Second {
		t.Errorf("expected skew tolerance 2s, got %v", cfg.Sync.MergeSkewTolerance)
	}
	if cfg.Sync.Strategies == nil {
		t.Error("expected an empty strategies map, got nil")
	}

	if cfg.Cache.Driver != DefaultCacheDriver {
		t.Errorf("expected cache driver %q, got %q", DefaultCacheDriver, cfg.Cache.Driver)
	}

	if cfg.Remote.Backend != DefaultRemoteBackend {
		t.Errorf("expected remote backend %q, got %q", DefaultRemoteBackend, cfg.Remote.Backend)
	}
	if cfg.Remote.IndexPath != DefaultIndexPath {
		t.Errorf("expected index path %q, got %q", DefaultIndexPath, cfg.Remote.IndexPath)
	}

	if cfg.Workspace.Enabled {
		t.Error("expected workspace to be disabled by default")
	}

	if cfg.Logging.Level != DefaultLogLevel {
		t.Errorf("expected log level %q, got %q", DefaultLogLevel, cfg.Logging.Level)
	}
	if cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("expected log format %q, got %q", DefaultLogFormat, cfg.Logging.Format)
	}

	if cfg.Observability.Tracing.Enabled {
		t.Error("expected tracing to be disabled by default")
	}
}

func TestConfig_Validate_DefaultIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid, got error: %v", err)
	}
}

func TestSyncConfig_Validate(t *testing.T) {
	valid := func() SyncConfig { return NewDefaultConfig().Sync }

	tests := []struct {
		name    string
		mutate  func(*SyncConfig)
		wantErr bool
	}{
		{
			name:    "defaults",
			mutate:  func(*SyncConfig) {},
			wantErr: false,
		},
		{
			name:    "zero interval",
			mutate:  func(s *SyncConfig) { s.Interval = 0 },
			wantErr: true,
		},
		{
			name:    "negative retries",
			mutate:  func(s *SyncConfig) { s.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "unknown default strategy",
			mutate:  func(s *SyncConfig) { s.DefaultStrategy = "newest" },
			wantErr: true,
		},
		{
			name:    "per-document strategy",
			mutate:  func(s *SyncConfig) { s.Strategies = map[string]string{"faq": "local-wins"} },
			wantErr: false,
		},
		{
			name:    "invalid per-document strategy",
			mutate:  func(s *SyncConfig) { s.Strategies = map[string]string{"faq": "coin-flip"} },
			wantErr: true,
		},
		{
			name:    "negative skew tolerance",
			mutate:  func(s *SyncConfig) { s.MergeSkewTolerance = -time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCacheConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  CacheConfig
		wantErr bool
	}{
		{"sqlite with path", CacheConfig{Driver: "sqlite", Path: "/tmp/cache.db"}, false},
		{"sqlite without path", CacheConfig{Driver: "sqlite"}, true},
		{"memory", CacheConfig{Driver: "memory"}, false},
		{"unknown driver", CacheConfig{Driver: "redis"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRemoteConfig_Validate(t *testing.T) {
	base := RemoteConfig{IndexPath: "SUMMARY.md", IndexFormat: "summary"}

	tests := []struct {
		name    string
		mutate  func(*RemoteConfig)
		wantErr bool
	}{
		{"memory", func(r *RemoteConfig) { r.Backend = "memory" }, false},
		{"http with url", func(r *RemoteConfig) { r.Backend = "http"; r.BaseURL = "https://wiki.example.com" }, false},
		{"http without url", func(r *RemoteConfig) { r.Backend = "http" }, true},
		{"http with bad scheme", func(r *RemoteConfig) { r.Backend = "http"; r.BaseURL = "ftp://wiki.example.com" }, true},
		{"postgres with dsn", func(r *RemoteConfig) { r.Backend = "postgres"; r.DatabaseURL = "postgres://localhost/wiki" }, false},
		{"postgres without dsn", func(r *RemoteConfig) { r.Backend = "postgres" }, true},
		{"unknown backend", func(r *RemoteConfig) { r.Backend = "s3" }, true},
		{"yaml index", func(r *RemoteConfig) { r.Backend = "memory"; r.IndexFormat = "yaml" }, false},
		{"unknown index format", func(r *RemoteConfig) { r.Backend = "memory"; r.IndexFormat = "toml" }, true},
		{"missing index path", func(r *RemoteConfig) { r.Backend = "memory"; r.IndexPath = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkspaceConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  WorkspaceConfig
		wantErr bool
	}{
		{"disabled without dir", WorkspaceConfig{}, false},
		{"enabled with dir", WorkspaceConfig{Enabled: true, Dir: "/tmp/wiki"}, false},
		{"enabled without dir", WorkspaceConfig{Enabled: true}, true},
		{"negative debounce", WorkspaceConfig{Debounce: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  ServerConfig
		wantErr bool
	}{
		{"defaults", NewDefaultConfig().Server, false},
		{"limiting disabled", ServerConfig{Listen: ":8787"}, false},
		{"missing listen", ServerConfig{}, true},
		{"rate without burst", ServerConfig{Listen: ":8787", RateLimit: RateLimitConfig{Rate: 5}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  LoggingConfig
		wantErr bool
	}{
		{
			name:    "valid debug level",
			config:  LoggingConfig{Level: "debug", Format: "json"},
			wantErr: false,
		},
		{
			name:    "valid error level",
			config:  LoggingConfig{Level: "error", Format: "text"},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			config:  LoggingConfig{Level: "invalid", Format: "json"},
			wantErr: true,
		},
		{
			name:    "invalid log format",
			config:  LoggingConfig{Level: "info", Format: "invalid"},
			wantErr: true,
		},
		{
			name:    "empty values are valid",
			config:  LoggingConfig{Level: "", Format: ""},
			wantErr: false,
		},
		{
			name:    "file without rotation size",
			config:  LoggingConfig{File: "/tmp/wikisync.log"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  TracingConfig
		wantErr bool
	}{
		{"disabled ignores fields", TracingConfig{ExporterType: "bogus"}, false},
		{"stdout", TracingConfig{Enabled: true, ExporterType: "stdout", SampleRate: 1, ServiceName: "wikisync"}, false},
		{"otlp without endpoint", TracingConfig{Enabled: true, ExporterType: "otlp", SampleRate: 1, ServiceName: "wikisync"}, true},
		{"sample rate out of range", TracingConfig{Enabled: true, ExporterType: "stdout", SampleRate: 2, ServiceName: "wikisync"}, true},
		{"missing service name", TracingConfig{Enabled: true, ExporterType: "none", SampleRate: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Sync.Interval = 0
	cfg.Cache.Driver = "redis"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	msg := err.Error()
	for _, section := range []string{"sync:", "cache:", "logging:"} {
		if !strings.Contains(msg, section) {
			t.Errorf("expected error to mention %q, got %q", section, msg)
		}
	}
}
