package remote

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/jbctechsolutions/wikisync/internal/adapters/remote/httpapi"
	"github.com/jbctechsolutions/wikisync/internal/adapters/remote/memory"
	"github.com/jbctechsolutions/wikisync/internal/adapters/remote/postgres"
	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Backend names understood by DefaultRegistry.
const (
	BackendMemory   = "memory"
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
)

// Settings carries what transport factories may need. Each backend reads
// only its own fields.
type Settings struct {
	BaseURL     string
	DatabaseURL string
	Token       httpapi.TokenSource
	HTTPClient  *http.Client
	UserAgent   string
}

// Factory builds a transport from settings.
type Factory func(ctx context.Context, s Settings) (ports.Transport, error)

// Registry manages the registration and lookup of transport factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string // maintains registration order
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		order:     make([]string, 0),
	}
}

// DefaultRegistry returns a registry with the memory, http and postgres backends.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(BackendMemory, func(context.Context, Settings) (ports.Transport, error) {
		return memory.New(), nil
	})
	_ = r.Register(BackendHTTP, func(_ context.Context, s Settings) (ports.Transport, error) {
		if s.BaseURL == "" {
			return nil, errors.NewError(errors.CodeConfiguration, "http backend requires remote.base_url", nil)
		}
		var opts []httpapi.ClientOption
		if s.Token != nil {
			opts = append(opts, httpapi.WithTokenSource(s.Token))
		}
		if s.HTTPClient != nil {
			opts = append(opts, httpapi.WithHTTPClient(s.HTTPClient))
		}
		if s.UserAgent != "" {
			opts = append(opts, httpapi.WithUserAgent(s.UserAgent))
		}
		return httpapi.NewClient(s.BaseURL, opts...), nil
	})
	_ = r.Register(BackendPostgres, func(ctx context.Context, s Settings) (ports.Transport, error) {
		if s.DatabaseURL == "" {
			return nil, errors.NewError(errors.CodeConfiguration, "postgres backend requires remote.database_url", nil)
		}
		return postgres.Open(ctx, s.DatabaseURL)
	})
	return r
}

// Register adds a factory. A factory with the same name is replaced.
func (r *Registry) Register(name string, f Factory) error {
	if f == nil {
		return fmt.Errorf("factory cannot be nil")
	}
	if name == "" {
		return fmt.Errorf("backend name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
	return nil
}

// Get returns the factory for name, or nil.
func (r *Registry) Get(name string) Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factories[name]
}

// List returns the registered backend names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Open builds the transport registered as name.
func (r *Registry) Open(ctx context.Context, name string, s Settings) (ports.Transport, error) {
	f := r.Get(name)
	if f == nil {
		return nil, errors.WithContext(
			errors.NewError(errors.CodeConfiguration, fmt.Sprintf("unknown remote backend %q", name), nil),
			"backend", name)
	}
	return f(ctx, s)
}
