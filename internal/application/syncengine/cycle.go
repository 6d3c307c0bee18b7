package syncengine

import (
	"context"
	"sort"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/tracing"
)

// cycle is the working set of one run.
type cycle struct {
	report    *Report
	local     conflict.LocalSnapshot
	remote    conflict.RemoteSnapshot
	plan      conflict.Plan
	parked    map[string]bool
	overrides map[string]conflict.Strategy
	keep      map[string]bool // pages that must stay listed in the index
	unknown   map[string]bool // pages whose remote state could not be read
	indexHeld bool            // a category awaits an operator; leave the index alone
	// indexMoved reports whether the remote index changed since the last
	// sync. A page missing from an unmoved remote index was never published,
	// not deleted.
	indexMoved bool
}

// abortsCycle reports whether err ends the whole cycle rather than one document.
func abortsCycle(err error) bool {
	return errors.IsAuth(err) ||
		errors.CodeOf(err) == errors.CodeStructural ||
		errors.Is(err, errors.ErrRemoteUnavailable)
}

// execute runs detect, resolve, pull and push in that order.
func (o *Orchestrator) execute(ctx context.Context, report *Report, span *tracing.CycleSpan) error {
	ok, err := o.remote.CheckAccess(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewError(errors.CodeUnauthenticated, "remote store denied access", errors.ErrRemoteUnavailable)
	}

	remoteTOC, err := o.remote.FetchTableOfContents(ctx)
	if err != nil {
		return err
	}

	state, err := o.store.LoadState(ctx)
	if err != nil {
		return err
	}
	c := &cycle{
		report:    report,
		parked:    make(map[string]bool),
		overrides: make(map[string]conflict.Strategy),
		keep:      make(map[string]bool),
		unknown:   make(map[string]bool),
	}
	for id := range state.Manual {
		c.parked[id] = true
	}
	for id, s := range state.Overrides {
		c.overrides[id] = s
	}

	if c.local, err = o.localSnapshot(ctx); err != nil {
		return err
	}
	if c.remote, err = o.remoteSnapshot(ctx, c, remoteTOC); err != nil {
		return err
	}
	c.indexMoved = remoteTOC.Revision != c.local.IndexRevision

	c.plan = conflict.Detect(c.local, c.remote, o.now())
	report.Conflicts = len(c.plan.Conflicts)
	span.SetPlan(len(c.plan.Pulls), len(c.plan.Pushes)+len(c.plan.Creates), len(c.plan.Conflicts))
	o.logger.DebugContext(ctx, "sync plan",
		"pulls", len(c.plan.Pulls),
		"pushes", len(c.plan.Pushes),
		"creates", len(c.plan.Creates),
		"conflicts", len(c.plan.Conflicts),
		"index", string(c.plan.Index),
	)

	if err := o.trackUnqueued(ctx, c); err != nil {
		return err
	}
	if err := o.resolveConflicts(ctx, c); err != nil {
		return err
	}
	if err := o.pull(ctx, c); err != nil {
		return err
	}
	if err := o.settleIndex(ctx, c); err != nil {
		return err
	}
	return o.push(ctx, c)
}

// trackUnqueued queues local-ahead pages that have no pending change, such
// as pages edited while the process was down.
func (o *Orchestrator) trackUnqueued(ctx context.Context, c *cycle) error {
	queue := func(ids []string, t syncstate.ChangeType) error {
		for _, id := range ids {
			if c.local.Pending[id] || c.parked[id] {
				continue
			}
			d := c.local.Documents[id]
			if _, err := o.queue.Enqueue(ctx, t, id, pagePayload(d)); err != nil {
				return err
			}
			c.local.Pending[id] = true
		}
		return nil
	}
	if err := queue(c.plan.Creates, syncstate.ChangeCreate); err != nil {
		return err
	}
	return queue(c.plan.Pushes, syncstate.ChangeUpdate)
}

func pagePayload(d document.Document) ChangePayload {
	return ChangePayload{
		Content:    d.Content,
		Title:      d.Title,
		CategoryID: d.CategoryID,
		Path:       d.Path,
	}
}

// strategyFor returns the operator's one-shot decision for id if there is
// one, otherwise the registry entry.
func (o *Orchestrator) strategyFor(ctx context.Context, c *cycle, id string, kind conflict.Kind) conflict.Strategy {
	if s, ok := c.overrides[id]; ok {
		delete(c.overrides, id)
		err := o.store.UpdateState(ctx, func(st *syncstate.State) error {
			st.TakeOverride(id)
			return nil
		})
		if err != nil {
			o.logger.WarnContext(ctx, "failed to clear operator override", "id", id, "error", err)
		}
		return s
	}
	return o.registry.Lookup(id, kind)
}

func (o *Orchestrator) resolveConflicts(ctx context.Context, c *cycle) error {
	for i := range c.plan.Conflicts {
		item := &c.plan.Conflicts[i]
		if c.parked[item.ID] {
			if item.Kind == conflict.KindCategory {
				c.indexHeld = true
			}
			continue
		}
		if item.Kind == conflict.KindPage && item.RemoteDeleted() && !c.indexMoved {
			c.keep[item.ID] = true
			continue
		}

		strategy := o.strategyFor(ctx, c, item.ID, item.Kind)
		outcome, err := o.resolver.resolve(ctx, item, strategy, true)
		if err != nil {
			if abortsCycle(err) {
				return err
			}
			if item.Kind == conflict.KindCategory {
				c.indexHeld = true
			}
			o.documentFailed(ctx, c, "resolve", item.ID, err)
			continue
		}
		o.recordOutcome(ctx, c, item, outcome)
	}
	return nil
}

func (o *Orchestrator) recordOutcome(ctx context.Context, c *cycle, item *conflict.Item, outcome conflict.Outcome) {
	if outcome == conflict.OutcomeManual {
		c.parked[item.ID] = true
		c.report.Parked = append(c.report.Parked, item.ID)
		if item.Kind == conflict.KindCategory {
			c.indexHeld = true
		}
		return
	}
	c.report.Resolved = append(c.report.Resolved, item.ID)
	if item.Kind == conflict.KindPage {
		if exists, err := o.store.PageExists(ctx, item.ID); err == nil && exists {
			c.keep[item.ID] = true
		}
	}
}

// documentFailed records a per-document failure; the cycle goes on.
func (o *Orchestrator) documentFailed(ctx context.Context, c *cycle, step, id string, err error) {
	logging.LogDocumentFailed(ctx, o.logger, step, id, err)
	c.report.Failed = append(c.report.Failed, id)
	event := syncstate.NewEvent(c.report.CycleID, syncstate.EventWarning, o.now(),
		step+" failed for "+id, map[string]string{
			"id":    id,
			"step":  step,
			"error": err.Error(),
			"code":  string(errors.CodeOf(err)),
		})
	if uerr := o.store.UpdateState(ctx, func(s *syncstate.State) error {
		s.Record(event)
		return nil
	}); uerr != nil {
		o.logger.WarnContext(ctx, "failed to record document failure", "error", uerr)
	}
}

func (o *Orchestrator) pull(ctx context.Context, c *cycle) error {
	now := o.now()

	for _, id := range c.plan.Pulls {
		if c.parked[id] {
			continue
		}
		if err := o.pullPage(ctx, c, c.remote.Documents[id]); err != nil {
			if abortsCycle(err) {
				return err
			}
			o.documentFailed(ctx, c, "pull", id, err)
		}
	}

	for _, id := range c.plan.Rebases {
		page, err := o.store.GetPage(ctx, id)
		if err != nil {
			if !errors.Is(err, errors.ErrNotFound) {
				o.documentFailed(ctx, c, "rebase", id, err)
			}
			continue
		}
		remote := c.remote.Documents[id]
		if page.Hash != remote.Hash {
			continue
		}
		page.MarkSynced(remote.Revision, now)
		if err := o.store.PutPage(ctx, page); err != nil {
			o.documentFailed(ctx, c, "rebase", id, err)
		}
	}

	for _, id := range c.plan.RemoteDeleted {
		if c.parked[id] {
			continue
		}
		if !c.indexMoved {
			c.keep[id] = true
			continue
		}
		if err := o.store.DeletePage(ctx, id); err != nil {
			o.documentFailed(ctx, c, "delete", id, err)
			continue
		}
		if _, err := o.queue.DropTarget(ctx, id); err != nil {
			o.documentFailed(ctx, c, "delete", id, err)
		}
	}
	return nil
}

func (o *Orchestrator) pullPage(ctx context.Context, c *cycle, remote document.Document) error {
	current, err := o.store.GetPage(ctx, remote.ID)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		if _, known := c.local.Documents[remote.ID]; known {
			// Deleted locally while the cycle ran.
			return nil
		}
	case err != nil:
		return err
	default:
		before, known := c.local.Documents[remote.ID]
		if !known || current.Hash != before.Hash {
			o.logger.DebugContext(ctx, "page edited during cycle, pull skipped", "id", remote.ID)
			return nil
		}
	}

	doc := remote
	doc.MarkSynced(remote.Revision, o.now())
	if err := o.store.PutPage(ctx, doc); err != nil {
		return err
	}
	c.report.Pulled++
	o.prefetchAssets(ctx, doc)
	return nil
}

// settleIndex brings the local index up to date with the remote one and
// makes sure every page with unpublished local work is still listed.
func (o *Orchestrator) settleIndex(ctx context.Context, c *cycle) error {
	if !c.indexHeld {
		var err error
		switch c.plan.Index {
		case conflict.IndexPull:
			err = o.store.MarkIndexSynced(ctx, c.remote.TOC, c.remote.TOC.Revision)
		case conflict.IndexReconcile:
			err = o.store.RebaseIndex(ctx, c.remote.TOC, c.remote.TOC.Revision)
		}
		if err != nil {
			return err
		}
	}

	toc, _, err := o.store.LoadIndex(ctx)
	if err != nil {
		return err
	}

	changed := false
	for id := range c.local.Deleted {
		if toc.RemovePage(id) {
			changed = true
		}
	}

	listed := make(map[string]bool)
	for id := range c.keep {
		listed[id] = true
	}
	for id := range c.local.Pending {
		listed[id] = true
	}
	ids := make([]string, 0, len(listed))
	for id := range listed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if _, ok := toc.Locate(id); ok {
			continue
		}
		page, err := o.store.GetPage(ctx, id)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		category := page.CategoryID
		if category != "" && toc.FindCategory(category) == nil {
			category = ""
		}
		title := page.Title
		if title == "" {
			title = id
		}
		if err := toc.AddPage(category, document.PageRef{ID: id, Title: title, Path: page.Path}); err != nil {
			return err
		}
		changed = true
	}
	if changed {
		if err := o.store.SaveLocalIndex(ctx, toc); err != nil {
			return err
		}
	}

	return o.applyPlacements(ctx, c, toc)
}

// applyPlacements copies title, order and category from the index onto the
// cached pages.
func (o *Orchestrator) applyPlacements(ctx context.Context, c *cycle, toc *document.TableOfContents) error {
	for _, p := range toc.Placements() {
		page, err := o.store.GetPage(ctx, p.ID)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if page.Title == p.Title && page.Order == p.Order && page.CategoryID == p.CategoryID {
			continue
		}
		page.Title, page.Order, page.CategoryID = p.Title, p.Order, p.CategoryID
		if err := o.store.PutPage(ctx, page); err != nil {
			o.documentFailed(ctx, c, "placement", p.ID, err)
		}
	}
	return nil
}
