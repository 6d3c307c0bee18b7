// Package localcache provides local cache adapters. The durable SQLite
// implementation lives in the sqlite subpackage.
package localcache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Ensure MemoryStore implements LocalCachePort.
var _ ports.LocalCachePort = (*MemoryStore)(nil)

// MemoryStore implements LocalCachePort with in-process maps. Nothing
// survives the process; it backs tests and --ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[ports.Namespace]map[string]ports.CacheEntry
	closed  bool
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[ports.Namespace]map[string]ports.CacheEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) checkOpen() error {
	if m.closed {
		return errors.Storage("memory cache", fmt.Errorf("store is closed"))
	}
	return nil
}

// Get returns a copy of the entry for key.
func (m *MemoryStore) Get(_ context.Context, ns ports.Namespace, key string) (*ports.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	e, ok := m.entries[ns][key]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("%s/%s", ns, key))
	}
	e.Value = append([]byte(nil), e.Value...)
	return &e, nil
}

// Put stores a copy of value.
func (m *MemoryStore) Put(_ context.Context, ns ports.Namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	m.putLocked(ns, key, value)
	return nil
}

func (m *MemoryStore) putLocked(ns ports.Namespace, key string, value []byte) {
	bucket, ok := m.entries[ns]
	if !ok {
		bucket = make(map[string]ports.CacheEntry)
		m.entries[ns] = bucket
	}
	stored := append([]byte{}, value...)
	bucket[key] = ports.CacheEntry{
		Namespace: ns,
		Key:       key,
		Value:     stored,
		Hash:      document.ContentHash(string(stored)),
		UpdatedAt: m.now().UTC(),
	}
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, ns ports.Namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}
	delete(m.entries[ns], key)
	return nil
}

// List returns the keys of ns in ascending order.
func (m *MemoryStore) List(_ context.Context, ns ports.Namespace) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.entries[ns]))
	for k := range m.entries[ns] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether key is present.
func (m *MemoryStore) Exists(_ context.Context, ns ports.Namespace, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkOpen(); err != nil {
		return false, err
	}
	_, ok := m.entries[ns][key]
	return ok, nil
}

// Update applies fn under the write lock.
func (m *MemoryStore) Update(_ context.Context, ns ports.Namespace, key string, fn ports.UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkOpen(); err != nil {
		return err
	}

	var current []byte
	e, found := m.entries[ns][key]
	if found {
		current = append([]byte(nil), e.Value...)
	}

	next, err := fn(current, found)
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.entries[ns], key)
		return nil
	}
	m.putLocked(ns, key, next)
	return nil
}

// SizeOf returns the stored bytes of ns.
func (m *MemoryStore) SizeOf(_ context.Context, ns ports.Namespace) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	var total int64
	for _, e := range m.entries[ns] {
		total += int64(len(e.Value))
	}
	return total, nil
}

// Close marks the store closed. Later calls fail with a storage error.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
