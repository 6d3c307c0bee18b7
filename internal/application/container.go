// Package application provides application-level services and dependency injection.
package application

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jbctechsolutions/wikisync/internal/adapters/index"
	"github.com/jbctechsolutions/wikisync/internal/adapters/localcache"
	"github.com/jbctechsolutions/wikisync/internal/adapters/localcache/sqlite"
	"github.com/jbctechsolutions/wikisync/internal/adapters/remote"
	"github.com/jbctechsolutions/wikisync/internal/adapters/workspace"
	"github.com/jbctechsolutions/wikisync/internal/application/localstore"
	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/application/syncengine"
	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/config"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/credentials"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/tracing"
)

// UserAgent identifies wikisync to HTTP remotes.
const UserAgent = "wikisync"

// Container holds all application dependencies and provides a central
// point for dependency injection. It manages the lifecycle of services
// and ensures proper initialization order.
type Container struct {
	// Configuration
	config  *config.Config
	verbose bool // Override log level to info when true

	// Local cache
	cache      ports.LocalCachePort
	codec      ports.IndexCodec
	localStore *localstore.Store

	// Remote
	registry    *remote.Registry
	transport   ports.Transport
	remoteStore *remote.DocumentStore
	credentials *credentials.Store

	// Sync engine
	strategies   *conflict.Registry
	orchestrator *syncengine.Orchestrator
	editor       *syncengine.Editor
	mirror       *workspace.Mirror

	// Observability
	logger *logging.Logger
	tracer *tracing.Tracer

	// Injected by options, owned by the caller.
	injectedTransport ports.Transport
	injectedCache     ports.LocalCachePort
}

// Option customizes container construction.
type Option func(*Container)

// WithTransport uses t instead of opening the configured backend.
func WithTransport(t ports.Transport) Option {
	return func(c *Container) {
		c.injectedTransport = t
	}
}

// WithCache uses cache instead of opening the configured driver.
func WithCache(cache ports.LocalCachePort) Option {
	return func(c *Container) {
		c.injectedCache = cache
	}
}

// WithLogger overrides the logger built from configuration.
func WithLogger(l *logging.Logger) Option {
	return func(c *Container) {
		c.logger = l
	}
}

// NewContainer creates a new dependency injection container with all services
// initialized based on the provided configuration.
func NewContainer(ctx context.Context, cfg *config.Config, verbose bool, opts ...Option) (*Container, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Container{
		config:  cfg,
		verbose: verbose,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.initObservability(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if err := c.initCache(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := c.initRemote(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize remote: %w", err)
	}

	if err := c.initServices(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return c, nil
}

// initObservability initializes logging and tracing.
func (c *Container) initObservability(ctx context.Context) error {
	if c.logger == nil {
		logLevel := logging.Level(c.config.Logging.Level)
		if c.verbose {
			logLevel = logging.LevelDebug
		}

		logFormat := logging.FormatText
		if c.config.Logging.Format == "json" {
			logFormat = logging.FormatJSON
		}

		logCfg := logging.DefaultConfig()
		logCfg.Level = logLevel
		logCfg.Format = logFormat
		if c.config.Logging.File != "" {
			path, err := config.ExpandPath(c.config.Logging.File)
			if err != nil {
				return err
			}
			logCfg.File = &logging.FileConfig{
				Path:       path,
				MaxSizeMB:  c.config.Logging.MaxSizeMB,
				MaxBackups: c.config.Logging.MaxBackups,
				MaxAgeDays: c.config.Logging.MaxAgeDays,
				Compress:   c.config.Logging.Compress,
			}
		}
		c.logger = logging.New(logCfg)
	}

	if c.config.Observability.Tracing.Enabled {
		tracingCfg := tracing.Config{
			Enabled:      true,
			ExporterType: tracing.ExporterType(c.config.Observability.Tracing.ExporterType),
			OTLPEndpoint: c.config.Observability.Tracing.OTLPEndpoint,
			ServiceName:  c.config.Observability.Tracing.ServiceName,
			Environment:  "production",
			SampleRate:   c.config.Observability.Tracing.SampleRate,
		}
		tracer, err := tracing.New(ctx, tracingCfg)
		if err != nil {
			return fmt.Errorf("failed to create tracer: %w", err)
		}
		c.tracer = tracer
	} else {
		// Create no-op tracer
		c.tracer = tracing.Default()
	}

	return nil
}

// initCache opens the local cache and the typed store over it.
func (c *Container) initCache() error {
	codec, err := index.ForFormat(c.config.Remote.IndexFormat)
	if err != nil {
		return err
	}
	c.codec = codec

	switch {
	case c.injectedCache != nil:
		c.cache = c.injectedCache
	case c.config.Cache.Driver == "memory":
		c.cache = localcache.NewMemoryStore()
	default:
		path, err := config.ExpandPath(c.config.Cache.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		c.cache = store
	}

	c.localStore = localstore.New(c.cache, c.codec)
	return nil
}

// initRemote opens the transport and wraps it in the document store.
func (c *Container) initRemote(ctx context.Context) error {
	c.registry = remote.DefaultRegistry()
	rc := c.config.Remote

	if c.injectedTransport != nil {
		c.transport = c.injectedTransport
	} else {
		var store *credentials.Store
		if rc.Keyring {
			store = credentials.NewStore(c.logger)
			c.credentials = store
		}
		source := credentials.NewSource(store, c.CredentialsEndpoint(), rc.TokenEnv, c.logger)

		transport, err := c.registry.Open(ctx, rc.Backend, remote.Settings{
			BaseURL:     rc.BaseURL,
			DatabaseURL: rc.DatabaseURL,
			Token:       source.Optional,
			UserAgent:   UserAgent,
		})
		if err != nil {
			return err
		}
		c.transport = transport
	}

	c.remoteStore = remote.NewDocumentStore(c.transport, c.codec,
		remote.WithIndexPath(rc.IndexPath),
		remote.WithCallTimeout(c.config.Sync.CallTimeout),
		remote.WithMaxRetries(c.config.Sync.MaxRetries),
		remote.WithLogger(c.logger),
		remote.WithTracer(c.tracer),
	)
	return nil
}

// initServices builds the strategy registry, the orchestrator and the
// editing surfaces on top of it.
func (c *Container) initServices(ctx context.Context) error {
	strategies, err := NewStrategyRegistry(c.config.Sync)
	if err != nil {
		return err
	}
	c.strategies = strategies

	opts := []syncengine.Option{
		syncengine.WithLogger(c.logger),
		syncengine.WithTracer(c.tracer),
		syncengine.WithInterval(c.config.Sync.Interval),
		syncengine.WithSkewTolerance(c.config.Sync.MergeSkewTolerance),
		syncengine.WithBackendName(c.transport.Name()),
	}
	if c.config.Sync.Lock != "" {
		lock, err := config.ExpandPath(c.config.Sync.Lock)
		if err != nil {
			return err
		}
		opts = append(opts, syncengine.WithLockPath(lock))
	}

	orch, err := syncengine.New(ctx, c.localStore, c.remoteStore, c.strategies, opts...)
	if err != nil {
		return err
	}
	c.orchestrator = orch
	c.editor = syncengine.NewEditor(orch)

	if c.config.Workspace.Enabled {
		dir, err := config.ExpandPath(c.config.Workspace.Dir)
		if err != nil {
			return err
		}
		c.mirror = workspace.NewMirror(dir, c.localStore, c.editor, c.logger)
	}
	return nil
}

// NewStrategyRegistry builds the conflict strategy registry from the sync
// section: the default strategy plus per-document entries.
func NewStrategyRegistry(cfg config.SyncConfig) (*conflict.Registry, error) {
	fallback := conflict.Strategy(cfg.DefaultStrategy)
	if cfg.DefaultStrategy == "" {
		fallback = conflict.DefaultStrategy
	}
	registry, err := conflict.NewRegistry(fallback)
	if err != nil {
		return nil, err
	}
	for id, name := range cfg.Strategies {
		s, err := conflict.ParseStrategy(name)
		if err != nil {
			return nil, fmt.Errorf("strategy for %q: %w", id, err)
		}
		if err := registry.Set(id, s); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// CredentialsEndpoint names the keychain account for the configured remote.
func (c *Container) CredentialsEndpoint() string {
	rc := c.config.Remote
	switch rc.Backend {
	case remote.BackendHTTP:
		return credentials.Account(rc.BaseURL)
	default:
		return strings.ToLower(rc.Backend)
	}
}

// NewWatcher creates a file watcher for the workspace mirror.
func (c *Container) NewWatcher() (*workspace.Watcher, error) {
	return workspace.NewWatcher(workspace.WatcherConfig{
		DebounceDuration: c.config.Workspace.Debounce,
	})
}

// Close releases all resources held by the container.
func (c *Container) Close() error {
	ctx := context.Background()

	if c.orchestrator != nil {
		c.orchestrator.Stop()
		c.orchestrator.Wait()
	}

	if c.tracer != nil {
		_ = c.tracer.Shutdown(ctx)
	}

	if c.transport != nil && c.injectedTransport == nil {
		if closer, ok := c.transport.(interface{ Close() }); ok {
			closer.Close()
		}
	}

	var err error
	if c.cache != nil && c.injectedCache == nil {
		err = c.cache.Close()
	}

	if c.logger != nil {
		_ = c.logger.Close()
	}
	return err
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the application logger.
func (c *Container) Logger() *logging.Logger {
	return c.logger
}

// Tracer returns the application tracer.
func (c *Container) Tracer() *tracing.Tracer {
	return c.tracer
}

// Cache returns the raw local cache.
func (c *Container) Cache() ports.LocalCachePort {
	return c.cache
}

// LocalStore returns the typed local store.
func (c *Container) LocalStore() *localstore.Store {
	return c.localStore
}

// Transport returns the opened remote transport.
func (c *Container) Transport() ports.Transport {
	return c.transport
}

// RemoteStore returns the remote document store.
func (c *Container) RemoteStore() *remote.DocumentStore {
	return c.remoteStore
}

// BackendRegistry returns the remote backend registry.
func (c *Container) BackendRegistry() *remote.Registry {
	return c.registry
}

// Credentials returns the keychain store, or nil when the keychain is disabled.
func (c *Container) Credentials() *credentials.Store {
	return c.credentials
}

// Strategies returns the conflict strategy registry.
func (c *Container) Strategies() *conflict.Registry {
	return c.strategies
}

// Orchestrator returns the sync engine.
func (c *Container) Orchestrator() *syncengine.Orchestrator {
	return c.orchestrator
}

// Editor returns the local page editor.
func (c *Container) Editor() *syncengine.Editor {
	return c.editor
}

// Mirror returns the workspace mirror, or nil when the workspace is disabled.
func (c *Container) Mirror() *workspace.Mirror {
	return c.mirror
}
