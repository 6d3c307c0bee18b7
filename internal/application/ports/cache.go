// Package ports defines the application layer port interfaces following hexagonal architecture.
package ports

import (
	"context"
	"time"
)

// Namespace partitions the local cache.
type Namespace string

const (
	// NamespaceSummary holds the singleton serialized index and its sync markers.
	NamespaceSummary Namespace = "summary"

	// NamespacePages holds one entry per page, keyed by page id.
	NamespacePages Namespace = "pages"

	// NamespaceAssets holds binary files keyed by path.
	NamespaceAssets Namespace = "assets"

	// NamespaceSync holds the singleton sync state and pending-change queue.
	NamespaceSync Namespace = "sync"
)

// AllNamespaces returns every namespace of the local cache.
func AllNamespaces() []Namespace {
	return []Namespace{NamespaceSummary, NamespacePages, NamespaceAssets, NamespaceSync}
}

// IsValid reports whether n is a known namespace.
func (n Namespace) IsValid() bool {
	switch n {
	case NamespaceSummary, NamespacePages, NamespaceAssets, NamespaceSync:
		return true
	}
	return false
}

// CacheEntry is a stored value with the metadata the adapter maintains.
type CacheEntry struct {
	Namespace Namespace `json:"namespace"`
	Key       string    `json:"key"`
	Value     []byte    `json:"value"`
	Hash      string    `json:"hash"` // SHA-256 of Value, recomputed on every write
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateFunc computes the new value of a key from its current value.
// Returning a nil slice deletes the key. fn must not call back into the cache.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// LocalCachePort is namespaced durable key/value storage. Every operation is
// atomic per key; Update is the only read-modify-write primitive.
type LocalCachePort interface {
	// Get returns the entry, or an error matching errors.ErrNotFound.
	Get(ctx context.Context, ns Namespace, key string) (*CacheEntry, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, ns Namespace, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, ns Namespace, key string) error

	// List returns the keys of a namespace in ascending order.
	List(ctx context.Context, ns Namespace) ([]string, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, ns Namespace, key string) (bool, error)

	// Update atomically replaces the value of key with fn's result.
	Update(ctx context.Context, ns Namespace, key string, fn UpdateFunc) error

	// SizeOf returns the total stored bytes of a namespace.
	SizeOf(ctx context.Context, ns Namespace) (int64, error)

	// Close releases the underlying storage.
	Close() error
}
