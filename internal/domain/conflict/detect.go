package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/domain/document"
)

// LocalSnapshot is the full local document set at the start of a cycle.
type LocalSnapshot struct {
	Documents     map[string]document.Document
	TOC           *document.TableOfContents
	IndexRevision string          // remote index revision the local index is based on
	IndexBaseHash string          // index fingerprint at the last sync
	Pending       map[string]bool // ids with a queued create or update
	Deleted       map[string]bool // ids with a queued delete
}

// RemoteSnapshot is the full remote document set. Documents are keyed by id
// and hold only pages referenced by TOC.
type RemoteSnapshot struct {
	Documents map[string]document.Document
	TOC       *document.TableOfContents
}

// IndexAction is what a cycle does with the table of contents.
type IndexAction string

const (
	IndexUnchanged IndexAction = "unchanged"
	IndexPull      IndexAction = "pull"
	IndexPush      IndexAction = "push"
	IndexReconcile IndexAction = "reconcile" // both sides moved; see category conflicts
)

// Plan is the outcome of comparing a local and a remote snapshot. Every id
// appears in at most one list.
type Plan struct {
	Conflicts     []Item
	Pulls         []string // remote-only or remote-ahead pages
	Pushes        []string // local-ahead pages
	Creates       []string // local pages never seen by the remote
	Rebases       []string // same content, newer remote revision
	RemoteDeleted []string // synced pages gone remotely with a clean local copy
	Index         IndexAction
}

// PageConflicts returns the page conflicts of the plan.
func (p Plan) PageConflicts() []Item {
	return p.byKind(KindPage)
}

// CategoryConflicts returns the category conflicts of the plan.
func (p Plan) CategoryConflicts() []Item {
	return p.byKind(KindCategory)
}

func (p Plan) byKind(k Kind) []Item {
	var out []Item
	for _, it := range p.Conflicts {
		if it.Kind == k {
			out = append(out, it)
		}
	}
	return out
}

// Empty reports whether the plan requires no work.
func (p Plan) Empty() bool {
	return len(p.Conflicts) == 0 && len(p.Pulls) == 0 && len(p.Pushes) == 0 &&
		len(p.Creates) == 0 && len(p.Rebases) == 0 && len(p.RemoteDeleted) == 0 &&
		(p.Index == IndexUnchanged || p.Index == "")
}

// Detect compares the two snapshots in O(|L|+|R|).
//
// Each side's change is attributed against the last synced base: local pages
// carry the revision and content hash they were synced at, the local index
// carries the remote index revision and its own fingerprint. Work where only
// one side moved is planned as a pull or a push; an item is a conflict only
// when both sides moved, or when no base is known and the sides differ.
// Byte-identical content never conflicts, whatever the timestamps say.
func Detect(local LocalSnapshot, remote RemoteSnapshot, now time.Time) Plan {
	plan := Plan{Index: IndexUnchanged}
	at := document.NormalizeTime(now)

	for id, l := range local.Documents {
		r, ok := remote.Documents[id]
		if !ok {
			detectLocalOnly(&plan, l, local.Pending[id], at)
			continue
		}

		if l.SameContent(r) {
			if r.Revision != "" && r.Revision != l.Revision {
				plan.Rebases = append(plan.Rebases, id)
			}
			continue
		}

		baseKnown := l.Synced()
		localChanged := !baseKnown || l.Hash != l.BaseHash || local.Pending[id]
		remoteChanged := !baseKnown || remoteMoved(l, r)

		switch {
		case localChanged && remoteChanged:
			plan.Conflicts = append(plan.Conflicts, pageItem(l, &r, at))
		case localChanged:
			plan.Pushes = append(plan.Pushes, id)
		case remoteChanged:
			plan.Pulls = append(plan.Pulls, id)
		default:
			// Same revision, different bytes: the base record is inconsistent.
			plan.Conflicts = append(plan.Conflicts, pageItem(l, &r, at))
		}
	}

	for id := range remote.Documents {
		if _, ok := local.Documents[id]; ok {
			continue
		}
		if local.Deleted[id] {
			continue
		}
		plan.Pulls = append(plan.Pulls, id)
	}

	detectIndex(&plan, local, remote, at)
	plan.sort()
	return plan
}

// DetectConflicts returns only the conflicts between two snapshots.
func DetectConflicts(local LocalSnapshot, remote RemoteSnapshot, now time.Time) []Item {
	return Detect(local, remote, now).Conflicts
}

func detectLocalOnly(plan *Plan, l document.Document, pending bool, at time.Time) {
	if l.Revision == "" {
		plan.Creates = append(plan.Creates, l.ID)
		return
	}
	if l.LocallyModified() || pending {
		item := pageItem(l, nil, at)
		item.Diff = DiffSummary(l.Content, "")
		plan.Conflicts = append(plan.Conflicts, item)
		return
	}
	plan.RemoteDeleted = append(plan.RemoteDeleted, l.ID)
}

func remoteMoved(l, r document.Document) bool {
	if r.Revision != "" {
		return r.Revision != l.Revision
	}
	return document.NormalizeTime(r.LastModified).After(document.NormalizeTime(l.SyncedAt))
}

func pageItem(l document.Document, r *document.Document, at time.Time) Item {
	local := l
	item := Item{
		ID:         l.ID,
		Kind:       KindPage,
		Type:       TypeContent,
		Local:      Version{Document: &local},
		DetectedAt: at,
	}
	if r != nil {
		remote := *r
		item.Remote = Version{Document: &remote}
		item.Diff = DiffSummary(l.Content, r.Content)
	}
	return item
}

func detectIndex(plan *Plan, local LocalSnapshot, remote RemoteSnapshot, at time.Time) {
	localTOC, remoteTOC := local.TOC, remote.TOC
	if localTOC == nil {
		localTOC = &document.TableOfContents{}
	}
	if remoteTOC == nil {
		remoteTOC = &document.TableOfContents{}
	}

	if localTOC.Fingerprint() == remoteTOC.Fingerprint() {
		if remoteTOC.Revision != local.IndexRevision {
			plan.Index = IndexPull
		}
		return
	}

	var localChanged, remoteChanged bool
	if local.IndexBaseHash == "" {
		localChanged = !localTOC.Empty()
		remoteChanged = !remoteTOC.Empty()
	} else {
		localChanged = localTOC.Fingerprint() != local.IndexBaseHash
		remoteChanged = remoteTOC.Revision != local.IndexRevision
	}

	switch {
	case localChanged && !remoteChanged:
		plan.Index = IndexPush
		return
	case remoteChanged && !localChanged:
		plan.Index = IndexPull
		return
	}

	plan.Index = IndexReconcile
	plan.Conflicts = append(plan.Conflicts, categoryItems(localTOC, remoteTOC, at)...)
}

// categoryItems compares every category present on both sides, the implicit
// root included. Categories present on one side only show up as a
// membership difference of their parent.
func categoryItems(local, remote *document.TableOfContents, at time.Time) []Item {
	localCats := local.AllCategories()
	localCats[document.RootCategoryID] = local.Root()
	remoteCats := remote.AllCategories()
	remoteCats[document.RootCategoryID] = remote.Root()

	var items []Item
	for id, l := range localCats {
		r, ok := remoteCats[id]
		if !ok {
			continue
		}
		var typ Type
		switch {
		case !l.SameMembers(r):
			typ = TypeStructure
		case !l.SameLayout(r):
			typ = TypeMetadata
		default:
			continue
		}
		items = append(items, Item{
			ID:         id,
			Kind:       KindCategory,
			Type:       typ,
			Local:      Version{Category: l.Clone()},
			Remote:     Version{Category: r.Clone()},
			Diff:       memberDiff(l, r),
			DetectedAt: at,
		})
	}
	return items
}

func memberDiff(local, remote *document.Category) string {
	have := make(map[string]bool)
	for _, id := range remote.MemberIDs() {
		have[id] = true
	}
	added, removed := 0, 0
	for _, id := range local.MemberIDs() {
		if have[id] {
			delete(have, id)
			continue
		}
		added++
	}
	removed = len(have)
	return fmt.Sprintf("+%d -%d", added, removed)
}

func (p *Plan) sort() {
	for _, ids := range [][]string{p.Pulls, p.Pushes, p.Creates, p.Rebases, p.RemoteDeleted} {
		sort.Strings(ids)
	}
	sort.Slice(p.Conflicts, func(i, j int) bool {
		if p.Conflicts[i].Kind != p.Conflicts[j].Kind {
			return p.Conflicts[i].Kind == KindPage
		}
		return p.Conflicts[i].ID < p.Conflicts[j].ID
	})
}
