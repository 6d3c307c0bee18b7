package syncengine

import (
	"context"

	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
)

func (o *Orchestrator) localSnapshot(ctx context.Context) (conflict.LocalSnapshot, error) {
	pages, err := o.store.LoadAllPages(ctx)
	if err != nil {
		return conflict.LocalSnapshot{}, err
	}
	toc, sum, err := o.store.LoadIndex(ctx)
	if err != nil {
		return conflict.LocalSnapshot{}, err
	}
	pending, deleted, err := o.queue.Targets(ctx)
	if err != nil {
		return conflict.LocalSnapshot{}, err
	}
	return conflict.LocalSnapshot{
		Documents:     pages,
		TOC:           toc,
		IndexRevision: sum.Version,
		IndexBaseHash: sum.BaseHash,
		Pending:       pending,
		Deleted:       deleted,
	}, nil
}

// remoteSnapshot loads every page the remote index references. Content is
// fetched only for pages whose revision moved since the last sync; the rest
// are described from the listing. A page that cannot be read is left out of
// both snapshots so this cycle neither pulls nor deletes it.
func (o *Orchestrator) remoteSnapshot(ctx context.Context, c *cycle, toc *document.TableOfContents) (conflict.RemoteSnapshot, error) {
	entries, err := o.remote.ListDocuments(ctx)
	if err != nil {
		return conflict.RemoteSnapshot{}, err
	}
	listed := make(map[string]ports.RemoteEntry, len(entries))
	for _, e := range entries {
		listed[e.Path] = e
	}

	snap := conflict.RemoteSnapshot{
		Documents: make(map[string]document.Document),
		TOC:       toc,
	}
	for _, p := range toc.Placements() {
		path := p.Path
		if path == "" {
			path = document.PathForID(p.ID)
		}
		entry, ok := listed[path]
		if !ok {
			continue
		}

		if local, ok := c.local.Documents[p.ID]; ok && unchangedSince(local, entry) {
			d := placed(p, path)
			d.Revision = entry.Revision
			d.Hash = local.BaseHash
			d.LastModified = document.NormalizeTime(entry.UpdatedAt)
			if local.Hash == local.BaseHash {
				d.Content = local.Content
			}
			snap.Documents[p.ID] = d
			continue
		}

		rd, err := o.remote.FetchDocument(ctx, path)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			continue
		case err != nil && abortsCycle(err):
			return conflict.RemoteSnapshot{}, err
		case err != nil:
			c.unknown[p.ID] = true
			o.documentFailed(ctx, c, "fetch", p.ID, err)
			continue
		}
		snap.Documents[p.ID] = remoteDocument(p, rd)
	}

	for id := range c.unknown {
		delete(c.local.Documents, id)
	}
	return snap, nil
}

// unchangedSince reports whether the listing shows the remote still at the
// revision and content local was last synced with.
func unchangedSince(local document.Document, entry ports.RemoteEntry) bool {
	if local.Revision == "" || local.Revision != entry.Revision {
		return false
	}
	return entry.Hash == "" || entry.Hash == local.BaseHash
}

func placed(p document.Placement, path string) document.Document {
	return document.Document{
		ID:         p.ID,
		Path:       path,
		Title:      p.Title,
		Order:      p.Order,
		CategoryID: p.CategoryID,
	}
}

func remoteDocument(p document.Placement, rd *ports.RemoteDocument) document.Document {
	d := placed(p, rd.Path)
	d.Content = string(rd.Content)
	d.Revision = rd.Revision
	d.LastModified = document.NormalizeTime(rd.UpdatedAt)
	d.Rehash()
	return d
}
