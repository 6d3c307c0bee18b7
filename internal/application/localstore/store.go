// Package localstore is the typed view of the local cache: pages, the index
// summary, assets and the shared sync record, each in its own namespace.
package localstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
)

// Singleton keys of the summary and sync namespaces.
const (
	SummaryKey = "summary"
	StateKey   = "state"
)

// PageMetadata is stored next to the page body.
type PageMetadata struct {
	Title        string    `json:"title"`
	CategoryID   string    `json:"categoryId,omitempty"`
	Order        int       `json:"order"`
	LastModified time.Time `json:"lastModified"`
	Hash         string    `json:"hash"`
	Path         string    `json:"path"`
	Revision     string    `json:"revision,omitempty"`
	BaseHash     string    `json:"baseHash,omitempty"`
	SyncedAt     time.Time `json:"syncedAt,omitempty"`
}

type pageRecord struct {
	Content  string       `json:"content"`
	Metadata PageMetadata `json:"metadata"`
}

// Summary is the singleton record of the local index.
type Summary struct {
	Content  string    `json:"content"`            // serialized index
	LastSync time.Time `json:"lastSync,omitempty"` // last fully successful cycle
	Version  string    `json:"version,omitempty"`  // remote index revision the content is based on
	BaseHash string    `json:"baseHash,omitempty"` // index fingerprint at Version
}

type assetRecord struct {
	Blob         []byte    `json:"blob"`
	Type         string    `json:"type"`
	LastModified time.Time `json:"lastModified"`
}

// Store reads and writes typed records through a LocalCachePort. It holds no
// state of its own; the cache is the only synchronization point.
type Store struct {
	cache ports.LocalCachePort
	codec ports.IndexCodec
	now   func() time.Time
}

// New creates a store over cache, serializing the index with codec.
func New(cache ports.LocalCachePort, codec ports.IndexCodec) *Store {
	return &Store{cache: cache, codec: codec, now: time.Now}
}

// WithClock replaces the time source used by IsRecent.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Cache returns the underlying port.
func (s *Store) Cache() ports.LocalCachePort {
	return s.cache
}

// Codec returns the index codec.
func (s *Store) Codec() ports.IndexCodec {
	return s.codec
}

// GetPage loads the page with id.
func (s *Store) GetPage(ctx context.Context, id string) (document.Document, error) {
	e, err := s.cache.Get(ctx, ports.NamespacePages, id)
	if err != nil {
		return document.Document{}, err
	}
	return decodePage(id, e.Value)
}

func decodePage(id string, data []byte) (document.Document, error) {
	var rec pageRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return document.Document{}, errors.WithContext(errors.Storage("decode page", err), "id", id)
	}
	m := rec.Metadata
	d := document.Document{
		ID:           id,
		Path:         m.Path,
		Title:        m.Title,
		Content:      rec.Content,
		Order:        m.Order,
		CategoryID:   m.CategoryID,
		LastModified: m.LastModified,
		Hash:         m.Hash,
		Revision:     m.Revision,
		BaseHash:     m.BaseHash,
		SyncedAt:     m.SyncedAt,
	}
	if d.Path == "" {
		d.Path = document.PathForID(id)
	}
	return d, nil
}

// PutPage stores d, recomputing its hash.
func (s *Store) PutPage(ctx context.Context, d document.Document) error {
	d.Rehash()
	if d.Path == "" {
		d.Path = document.PathForID(d.ID)
	}
	data, err := json.Marshal(pageRecord{
		Content: d.Content,
		Metadata: PageMetadata{
			Title:        d.Title,
			CategoryID:   d.CategoryID,
			Order:        d.Order,
			LastModified: document.NormalizeTime(d.LastModified),
			Hash:         d.Hash,
			Path:         d.Path,
			Revision:     d.Revision,
			BaseHash:     d.BaseHash,
			SyncedAt:     document.NormalizeTime(d.SyncedAt),
		},
	})
	if err != nil {
		return errors.Storage("encode page", err)
	}
	return s.cache.Put(ctx, ports.NamespacePages, d.ID, data)
}

// DeletePage removes the page with id.
func (s *Store) DeletePage(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, ports.NamespacePages, id)
}

// PageExists reports whether a page is cached.
func (s *Store) PageExists(ctx context.Context, id string) (bool, error) {
	return s.cache.Exists(ctx, ports.NamespacePages, id)
}

// ListPages returns all cached page ids.
func (s *Store) ListPages(ctx context.Context) ([]string, error) {
	return s.cache.List(ctx, ports.NamespacePages)
}

// LoadAllPages returns every cached page keyed by id.
func (s *Store) LoadAllPages(ctx context.Context) (map[string]document.Document, error) {
	ids, err := s.ListPages(ctx)
	if err != nil {
		return nil, err
	}
	pages := make(map[string]document.Document, len(ids))
	for _, id := range ids {
		d, err := s.GetPage(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		pages[id] = d
	}
	return pages, nil
}

// LoadSummary returns the summary record, or a zero Summary when none exists.
func (s *Store) LoadSummary(ctx context.Context) (Summary, error) {
	var sum Summary
	e, err := s.cache.Get(ctx, ports.NamespaceSummary, SummaryKey)
	if errors.Is(err, errors.ErrNotFound) {
		return sum, nil
	}
	if err != nil {
		return sum, err
	}
	if err := json.Unmarshal(e.Value, &sum); err != nil {
		return sum, errors.Storage("decode summary", err)
	}
	return sum, nil
}

func (s *Store) updateSummary(ctx context.Context, fn func(*Summary) error) error {
	return s.cache.Update(ctx, ports.NamespaceSummary, SummaryKey, func(cur []byte, found bool) ([]byte, error) {
		var sum Summary
		if found {
			if err := json.Unmarshal(cur, &sum); err != nil {
				return nil, errors.Storage("decode summary", err)
			}
		}
		if err := fn(&sum); err != nil {
			return nil, err
		}
		data, err := json.Marshal(sum)
		if err != nil {
			return nil, errors.Storage("encode summary", err)
		}
		return data, nil
	})
}

// LoadIndex parses the local index. A missing summary yields an empty index.
func (s *Store) LoadIndex(ctx context.Context) (*document.TableOfContents, Summary, error) {
	sum, err := s.LoadSummary(ctx)
	if err != nil {
		return nil, sum, err
	}
	if sum.Content == "" {
		return &document.TableOfContents{Revision: sum.Version}, sum, nil
	}
	toc, err := s.codec.Parse([]byte(sum.Content))
	if err != nil {
		return nil, sum, errors.Storage("parse local index", err)
	}
	toc.Revision = sum.Version
	return toc, sum, nil
}

// Normalize passes toc through the codec so that its fingerprint matches
// what LoadIndex will later return.
func (s *Store) Normalize(toc *document.TableOfContents) (*document.TableOfContents, []byte, error) {
	data, err := s.codec.Serialize(toc)
	if err != nil {
		return nil, nil, err
	}
	normalized, err := s.codec.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	normalized.Revision = toc.Revision
	return normalized, data, nil
}

// SaveLocalIndex stores a locally edited index, keeping its sync base.
func (s *Store) SaveLocalIndex(ctx context.Context, toc *document.TableOfContents) error {
	_, data, err := s.Normalize(toc)
	if err != nil {
		return errors.Storage("serialize index", err)
	}
	return s.updateSummary(ctx, func(sum *Summary) error {
		sum.Content = string(data)
		return nil
	})
}

// MarkIndexSynced stores toc as identical to the remote index at revision.
func (s *Store) MarkIndexSynced(ctx context.Context, toc *document.TableOfContents, revision string) error {
	normalized, data, err := s.Normalize(toc)
	if err != nil {
		return errors.Storage("serialize index", err)
	}
	return s.updateSummary(ctx, func(sum *Summary) error {
		sum.Content = string(data)
		sum.Version = revision
		sum.BaseHash = normalized.Fingerprint()
		return nil
	})
}

// RebaseIndex moves the sync base of the local index to remote at revision
// and leaves the local content as it is. A local index that differs from
// remote afterwards is pushed by the next index write.
func (s *Store) RebaseIndex(ctx context.Context, remote *document.TableOfContents, revision string) error {
	normalized, _, err := s.Normalize(remote)
	if err != nil {
		return errors.Storage("serialize index", err)
	}
	return s.updateSummary(ctx, func(sum *Summary) error {
		sum.Version = revision
		sum.BaseHash = normalized.Fingerprint()
		return nil
	})
}

// TouchLastSync records a successful cycle.
func (s *Store) TouchLastSync(ctx context.Context, at time.Time) error {
	return s.updateSummary(ctx, func(sum *Summary) error {
		sum.LastSync = document.NormalizeTime(at)
		return nil
	})
}

// IsRecent reports whether the last successful sync is younger than threshold.
func (s *Store) IsRecent(ctx context.Context, threshold time.Duration) (bool, error) {
	sum, err := s.LoadSummary(ctx)
	if err != nil {
		return false, err
	}
	if sum.LastSync.IsZero() {
		return false, nil
	}
	return s.now().Sub(sum.LastSync) < threshold, nil
}

// GetAsset loads the asset stored at path.
func (s *Store) GetAsset(ctx context.Context, path string) (document.Asset, error) {
	e, err := s.cache.Get(ctx, ports.NamespaceAssets, path)
	if err != nil {
		return document.Asset{}, err
	}
	var rec assetRecord
	if err := json.Unmarshal(e.Value, &rec); err != nil {
		return document.Asset{}, errors.Storage("decode asset", err)
	}
	return document.Asset{Path: path, Blob: rec.Blob, Type: rec.Type, LastModified: rec.LastModified}, nil
}

// PutAsset stores an asset.
func (s *Store) PutAsset(ctx context.Context, a document.Asset) error {
	data, err := json.Marshal(assetRecord{Blob: a.Blob, Type: a.Type, LastModified: document.NormalizeTime(a.LastModified)})
	if err != nil {
		return errors.Storage("encode asset", err)
	}
	return s.cache.Put(ctx, ports.NamespaceAssets, a.Path, data)
}

// AssetExists reports whether an asset is cached.
func (s *Store) AssetExists(ctx context.Context, path string) (bool, error) {
	return s.cache.Exists(ctx, ports.NamespaceAssets, path)
}

// ListAssets returns all cached asset paths.
func (s *Store) ListAssets(ctx context.Context) ([]string, error) {
	return s.cache.List(ctx, ports.NamespaceAssets)
}

// SizeOf returns the stored bytes of ns.
func (s *Store) SizeOf(ctx context.Context, ns ports.Namespace) (int64, error) {
	return s.cache.SizeOf(ctx, ns)
}

// LoadState returns the sync record, or a fresh idle record when none exists.
func (s *Store) LoadState(ctx context.Context) (*syncstate.State, error) {
	state := &syncstate.State{Status: syncstate.StatusIdle}
	e, err := s.cache.Get(ctx, ports.NamespaceSync, StateKey)
	if errors.Is(err, errors.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(e.Value, state); err != nil {
		return nil, errors.Storage("decode sync state", err)
	}
	return state, nil
}

// UpdateState applies fn to the sync record atomically. Status, history and
// the pending-change queue all change through here.
func (s *Store) UpdateState(ctx context.Context, fn func(*syncstate.State) error) error {
	return s.cache.Update(ctx, ports.NamespaceSync, StateKey, func(cur []byte, found bool) ([]byte, error) {
		state := &syncstate.State{Status: syncstate.StatusIdle}
		if found {
			if err := json.Unmarshal(cur, state); err != nil {
				return nil, errors.Storage("decode sync state", err)
			}
		}
		if err := fn(state); err != nil {
			return nil, err
		}
		data, err := json.Marshal(state)
		if err != nil {
			return nil, errors.Storage("encode sync state", err)
		}
		return data, nil
	})
}
