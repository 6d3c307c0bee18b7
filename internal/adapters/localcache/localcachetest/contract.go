// Package localcachetest holds the behavioural suite every LocalCachePort
// implementation must pass.
package localcachetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

// Run exercises a fresh store from newStore in each subtest.
func Run(t *testing.T, newStore func(t *testing.T) ports.LocalCachePort) {
	ctx := context.Background()

	t.Run("get missing key is not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, ports.NamespacePages, "missing")
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("put then get returns value and hash", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, ports.NamespacePages, "welcome", []byte("hello")))

		e, err := s.Get(ctx, ports.NamespacePages, "welcome")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), e.Value)
		assert.Equal(t, document.ContentHash("hello"), e.Hash)
		assert.False(t, e.UpdatedAt.IsZero())
	})

	t.Run("hash is recomputed on overwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, ports.NamespacePages, "k", []byte("one")))
		require.NoError(t, s.Put(ctx, ports.NamespacePages, "k", []byte("two")))

		e, err := s.Get(ctx, ports.NamespacePages, "k")
		require.NoError(t, err)
		assert.Equal(t, document.ContentHash("two"), e.Hash)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, ports.NamespacePages, "same", []byte("page")))
		require.NoError(t, s.Put(ctx, ports.NamespaceAssets, "same", []byte("asset")))

		keys, err := s.List(ctx, ports.NamespaceSummary)
		require.NoError(t, err)
		assert.Empty(t, keys)

		e, err := s.Get(ctx, ports.NamespaceAssets, "same")
		require.NoError(t, err)
		assert.Equal(t, "asset", string(e.Value))
	})

	t.Run("list is sorted and delete removes", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"c", "a", "b"} {
			require.NoError(t, s.Put(ctx, ports.NamespacePages, k, []byte(k)))
		}
		keys, err := s.List(ctx, ports.NamespacePages)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, keys)

		require.NoError(t, s.Delete(ctx, ports.NamespacePages, "b"))
		require.NoError(t, s.Delete(ctx, ports.NamespacePages, "never-there"))

		ok, err := s.Exists(ctx, ports.NamespacePages, "b")
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = s.Exists(ctx, ports.NamespacePages, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("size of counts stored bytes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, ports.NamespaceAssets, "a.png", make([]byte, 100)))
		require.NoError(t, s.Put(ctx, ports.NamespaceAssets, "b.png", make([]byte, 28)))

		size, err := s.SizeOf(ctx, ports.NamespaceAssets)
		require.NoError(t, err)
		assert.Equal(t, int64(128), size)

		size, err = s.SizeOf(ctx, ports.NamespacePages)
		require.NoError(t, err)
		assert.Zero(t, size)
	})

	t.Run("update creates modifies and deletes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Update(ctx, ports.NamespaceSync, "state", func(cur []byte, found bool) ([]byte, error) {
			assert.False(t, found)
			return []byte("1"), nil
		}))
		require.NoError(t, s.Update(ctx, ports.NamespaceSync, "state", func(cur []byte, found bool) ([]byte, error) {
			assert.True(t, found)
			return append(cur, '2'), nil
		}))

		e, err := s.Get(ctx, ports.NamespaceSync, "state")
		require.NoError(t, err)
		assert.Equal(t, "12", string(e.Value))

		require.NoError(t, s.Update(ctx, ports.NamespaceSync, "state", func([]byte, bool) ([]byte, error) {
			return nil, nil
		}))
		ok, err := s.Exists(ctx, ports.NamespaceSync, "state")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("update error leaves value untouched", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, ports.NamespaceSync, "state", []byte("keep")))

		boom := fmt.Errorf("boom")
		err := s.Update(ctx, ports.NamespaceSync, "state", func([]byte, bool) ([]byte, error) {
			return []byte("lost"), boom
		})
		assert.ErrorIs(t, err, boom)

		e, err := s.Get(ctx, ports.NamespaceSync, "state")
		require.NoError(t, err)
		assert.Equal(t, "keep", string(e.Value))
	})

	t.Run("concurrent updates do not lose writes", func(t *testing.T) {
		s := newStore(t)
		const workers = 20

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Update(ctx, ports.NamespaceSync, "counter", func(cur []byte, _ bool) ([]byte, error) {
					return append(cur, 'x'), nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		e, err := s.Get(ctx, ports.NamespaceSync, "counter")
		require.NoError(t, err)
		assert.Len(t, e.Value, workers)
	})
}
