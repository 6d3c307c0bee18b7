package document

import "time"

// Side identifies which version a merge selected.
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

// MergeOptions controls the timestamp comparison of MergeDocument.
type MergeOptions struct {
	Now           time.Time     // re-stamp time
	SkewTolerance time.Duration // local must be newer by more than this to win
}

// MergeDocument selects the whole side with the later normalized modification
// time and re-stamps it with opts.Now. Content is never combined. Ties, and
// local leads within the skew tolerance, go to the remote side because its
// revision counter is authoritative.
func MergeDocument(local, remote Document, opts MergeOptions) (Document, Side) {
	lt := NormalizeTime(local.LastModified)
	rt := NormalizeTime(remote.LastModified)

	chosen, side := remote, SideRemote
	if lt.Sub(rt) > opts.SkewTolerance {
		chosen, side = local, SideLocal
	}

	merged := chosen
	merged.ID = local.ID
	if merged.Path == "" {
		merged.Path = remote.Path
	}
	merged.Revision = remote.Revision
	merged.LastModified = NormalizeTime(opts.Now)
	merged.Rehash()
	return merged, side
}

// MergeCategory unions the direct pages and child categories of two versions
// of the same category by id. Local entries keep their order; entries only
// the remote knows are appended after them. Children present on both sides
// are merged recursively, so no referenced child is ever dropped.
func MergeCategory(local, remote *Category, now time.Time) *Category {
	if local == nil {
		return stamp(remote.Clone(), now)
	}
	if remote == nil {
		return stamp(local.Clone(), now)
	}

	merged := &Category{
		ID:           local.ID,
		Title:        local.Title,
		Order:        local.Order,
		LastModified: NormalizeTime(now),
	}
	next := local.nextOrder()

	seenPages := make(map[string]struct{}, len(local.Pages))
	for _, p := range local.Pages {
		if _, dup := seenPages[p.ID]; dup {
			continue
		}
		seenPages[p.ID] = struct{}{}
		merged.Pages = append(merged.Pages, p)
	}
	for _, p := range remote.Pages {
		if _, dup := seenPages[p.ID]; dup {
			continue
		}
		seenPages[p.ID] = struct{}{}
		p.Order = next
		next++
		merged.Pages = append(merged.Pages, p)
	}

	remoteChildren := make(map[string]*Category, len(remote.Children))
	for _, c := range remote.Children {
		remoteChildren[c.ID] = c
	}
	seenChildren := make(map[string]struct{}, len(local.Children))
	for _, c := range local.Children {
		if _, dup := seenChildren[c.ID]; dup {
			continue
		}
		seenChildren[c.ID] = struct{}{}
		merged.Children = append(merged.Children, MergeCategory(c, remoteChildren[c.ID], now))
	}
	for _, c := range remote.Children {
		if _, dup := seenChildren[c.ID]; dup {
			continue
		}
		seenChildren[c.ID] = struct{}{}
		appended := stamp(c.Clone(), now)
		appended.Order = next
		next++
		merged.Children = append(merged.Children, appended)
	}

	return merged
}

// MergeTableOfContents merges two indexes category by category. After the
// union, a page placed in different categories on each side keeps its local
// placement only.
func MergeTableOfContents(local, remote *TableOfContents, now time.Time) *TableOfContents {
	if local == nil {
		return remote.Clone()
	}
	if remote == nil {
		return local.Clone()
	}

	root := MergeCategory(
		&Category{Pages: local.Pages, Children: local.Categories},
		&Category{Pages: remote.Pages, Children: remote.Categories},
		now,
	)
	merged := &TableOfContents{
		Pages:      root.Pages,
		Categories: root.Children,
		Revision:   remote.Revision,
	}

	localPlacement := make(map[string]string)
	for _, p := range local.Placements() {
		localPlacement[p.ID] = p.CategoryID
	}
	merged.PruneDuplicates(localPlacement)
	return merged
}

func stamp(c *Category, now time.Time) *Category {
	if c == nil {
		return nil
	}
	c.LastModified = NormalizeTime(now)
	for _, ch := range c.Children {
		stamp(ch, now)
	}
	return c
}
