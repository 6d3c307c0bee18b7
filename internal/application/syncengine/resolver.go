package syncengine

import (
	"context"
	"fmt"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/localstore"
	"github.com/jbctechsolutions/wikisync/internal/application/ports"
	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/tracing"
)

// DefaultSkewTolerance is how much newer a local page must be to win a merge.
const DefaultSkewTolerance = 2 * time.Second

// Resolver applies a strategy to a conflict. Page resolutions write through
// to the remote store or the local cache; category resolutions rewrite the
// local index, which the next index push publishes.
type Resolver struct {
	store  *localstore.Store
	remote ports.RemoteDocumentStore
	queue  *Queue
	logger *logging.Logger
	tracer *tracing.Tracer
	skew   time.Duration
	now    func() time.Time
}

// NewResolver creates a resolver.
func NewResolver(store *localstore.Store, remote ports.RemoteDocumentStore, queue *Queue) *Resolver {
	return &Resolver{
		store:  store,
		remote: remote,
		queue:  queue,
		logger: logging.Discard(),
		tracer: tracing.Default(),
		skew:   DefaultSkewTolerance,
		now:    time.Now,
	}
}

// Resolve settles item with strategy and returns what it did. An item that
// already carries a resolution is returned unchanged, so resolving twice
// has the effect of resolving once. A page write rejected for a stale
// revision is re-fetched and retried once before the item is parked for
// manual resolution.
func (r *Resolver) Resolve(ctx context.Context, item *conflict.Item, strategy conflict.Strategy) (conflict.Outcome, error) {
	return r.resolve(ctx, item, strategy, true)
}

func (r *Resolver) resolve(ctx context.Context, item *conflict.Item, strategy conflict.Strategy, retry bool) (conflict.Outcome, error) {
	if item.Resolved() {
		return item.Resolution.Outcome, nil
	}
	if !strategy.IsValid() {
		_, err := conflict.ParseStrategy(string(strategy))
		return "", err
	}

	ctx = logging.WithDocumentID(ctx, item.ID)
	ctx, span := r.tracer.StartResolveSpan(ctx, item.ID, string(item.Kind), string(strategy))

	var (
		outcome conflict.Outcome
		err     error
	)
	switch item.Kind {
	case conflict.KindCategory:
		outcome, err = r.resolveCategory(ctx, item, strategy)
	default:
		outcome, err = r.resolvePage(ctx, item, strategy, retry)
	}
	if err != nil {
		span.EndWithError(err)
		return "", err
	}

	if err := item.Resolve(conflict.Resolution{
		Strategy:   strategy,
		Outcome:    outcome,
		ResolvedAt: document.NormalizeTime(r.now()),
	}); err != nil {
		span.EndWithError(err)
		return "", err
	}

	logging.LogConflictResolved(ctx, r.logger, item.ID, string(strategy), string(outcome))
	span.End(string(outcome))
	return outcome, nil
}

func (r *Resolver) resolvePage(ctx context.Context, item *conflict.Item, strategy conflict.Strategy, retry bool) (conflict.Outcome, error) {
	local := item.Local.Document
	remote := item.Remote.Document

	switch strategy {
	case conflict.StrategyLocalWins:
		if local == nil {
			return r.applyRemote(ctx, item, remote, conflict.OutcomeRemoteApplied)
		}
		return r.applyLocal(ctx, item, *local, retry, conflict.OutcomeLocalApplied)

	case conflict.StrategyRemoteWins:
		return r.applyRemote(ctx, item, remote, conflict.OutcomeRemoteApplied)

	case conflict.StrategyMerge:
		switch {
		case local == nil:
			return r.applyRemote(ctx, item, remote, conflict.OutcomeMerged)
		case remote == nil:
			return r.applyLocal(ctx, item, *local, retry, conflict.OutcomeMerged)
		}
		merged, side := document.MergeDocument(*local, *remote, document.MergeOptions{
			Now:           r.now(),
			SkewTolerance: r.skew,
		})
		if side == document.SideLocal {
			return r.applyLocal(ctx, item, merged, retry, conflict.OutcomeMerged)
		}
		return r.applyRemote(ctx, item, &merged, conflict.OutcomeMerged)

	default:
		return r.park(ctx, item, "manual strategy selected")
	}
}

// applyLocal writes doc to the remote over the revision seen at detection.
func (r *Resolver) applyLocal(ctx context.Context, item *conflict.Item, doc document.Document, retry bool, outcome conflict.Outcome) (conflict.Outcome, error) {
	doc.Rehash()
	if doc.Path == "" {
		doc.Path = document.PathForID(doc.ID)
	}
	expected := doc.Revision
	if item.Local.Document != nil {
		expected = item.Local.Document.Revision
	}
	if item.Remote.Document != nil {
		expected = item.Remote.Document.Revision
	}

	attempts := 1
	if retry {
		attempts = 2
	}
	message := fmt.Sprintf("Resolve conflict on %s", item.ID)
	for attempt := 1; ; attempt++ {
		rev, err := r.remote.WriteDocument(ctx, doc.Path, doc.Content, message, expected)
		if err == nil {
			return outcome, r.settleLocal(ctx, doc, rev)
		}
		if !errors.Is(err, errors.ErrRevisionConflict) {
			return "", err
		}
		if attempt >= attempts {
			return r.park(ctx, item, "remote changed again while resolving")
		}

		current, ferr := r.remote.FetchDocument(ctx, doc.Path)
		switch {
		case errors.Is(ferr, errors.ErrNotFound):
			expected = ""
		case ferr != nil:
			return "", ferr
		case document.ContentHash(string(current.Content)) == doc.Hash:
			return outcome, r.settleLocal(ctx, doc, current.Revision)
		default:
			expected = current.Revision
		}
	}
}

// settleLocal records that doc is now the remote content at revision.
func (r *Resolver) settleLocal(ctx context.Context, doc document.Document, revision string) error {
	doc.MarkSynced(revision, r.now())
	if err := r.store.PutPage(ctx, doc); err != nil {
		return err
	}
	_, err := r.queue.DropTarget(ctx, doc.ID)
	return err
}

// applyRemote replaces the local copy with remote, or deletes it when the
// remote side is gone.
func (r *Resolver) applyRemote(ctx context.Context, item *conflict.Item, remote *document.Document, outcome conflict.Outcome) (conflict.Outcome, error) {
	if remote == nil {
		if err := r.store.DeletePage(ctx, item.ID); err != nil {
			return "", err
		}
		toc, _, err := r.store.LoadIndex(ctx)
		if err != nil {
			return "", err
		}
		if toc.RemovePage(item.ID) {
			if err := r.store.SaveLocalIndex(ctx, toc); err != nil {
				return "", err
			}
		}
		if _, err := r.queue.DropTarget(ctx, item.ID); err != nil {
			return "", err
		}
		return outcome, nil
	}

	doc := *remote
	doc.ID = item.ID
	if doc.Path == "" {
		doc.Path = document.PathForID(doc.ID)
	}
	lastModified := doc.LastModified
	doc.MarkSynced(doc.Revision, r.now())
	doc.LastModified = lastModified
	if err := r.store.PutPage(ctx, doc); err != nil {
		return "", err
	}
	if _, err := r.queue.DropTarget(ctx, item.ID); err != nil {
		return "", err
	}
	return outcome, nil
}

func (r *Resolver) resolveCategory(ctx context.Context, item *conflict.Item, strategy conflict.Strategy) (conflict.Outcome, error) {
	local, remote := item.Local.Category, item.Remote.Category

	var (
		replacement *document.Category
		outcome     conflict.Outcome
	)
	switch strategy {
	case conflict.StrategyLocalWins:
		return conflict.OutcomeLocalApplied, nil
	case conflict.StrategyRemoteWins:
		replacement, outcome = remote.Clone(), conflict.OutcomeRemoteApplied
	case conflict.StrategyMerge:
		replacement, outcome = document.MergeCategory(local, remote, r.now()), conflict.OutcomeMerged
	default:
		return r.park(ctx, item, "manual strategy selected")
	}
	if replacement == nil {
		return outcome, nil
	}

	toc, _, err := r.store.LoadIndex(ctx)
	if err != nil {
		return "", err
	}
	before := make(map[string]string)
	for _, p := range toc.Placements() {
		before[p.ID] = p.CategoryID
	}
	if !toc.ReplaceCategory(replacement) {
		return outcome, nil
	}
	toc.PruneDuplicates(before)
	if err := r.store.SaveLocalIndex(ctx, toc); err != nil {
		return "", err
	}
	return outcome, nil
}

// park moves item to the manual-resolution set and records a warning.
func (r *Resolver) park(ctx context.Context, item *conflict.Item, note string) (conflict.Outcome, error) {
	parked := *item
	parked.Resolution = nil
	event := syncstate.NewEvent(logging.CycleID(ctx), syncstate.EventWarning, r.now(),
		fmt.Sprintf("%s %s requires manual resolution", item.Kind, item.ID),
		map[string]string{"id": item.ID, "type": string(item.Type), "note": note})

	err := r.store.UpdateState(ctx, func(s *syncstate.State) error {
		s.Park(parked)
		s.Record(event)
		return nil
	})
	if err != nil {
		return "", err
	}
	r.logger.WarnContext(ctx, "conflict parked for manual resolution", "id", item.ID, "note", note)
	return conflict.OutcomeManual, nil
}
