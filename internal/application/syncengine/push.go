package syncengine

import (
	"context"
	"fmt"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/document"
	"github.com/jbctechsolutions/wikisync/internal/domain/errors"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
	"github.com/jbctechsolutions/wikisync/internal/infrastructure/logging"
)

const indexMessage = "Update table of contents"

// push delivers queued changes in order, then the index. A change that
// fails holds back every later change for the same page; other pages go
// on. Deletes are confirmed by the index write that unlists them.
func (o *Orchestrator) push(ctx context.Context, c *cycle) error {
	changes, err := o.queue.DrainAll(ctx)
	if err != nil {
		return err
	}

	held := make(map[string]bool)
	var (
		confirmed []string
		deletes   []syncstate.PendingChange
		abortErr  error
	)
	for _, ch := range changes {
		if c.parked[ch.TargetID] || held[ch.TargetID] {
			held[ch.TargetID] = true
			continue
		}
		if ch.Type == syncstate.ChangeDelete {
			deletes = append(deletes, ch)
			continue
		}

		done, err := o.pushChange(ctx, c, ch)
		if err != nil {
			held[ch.TargetID] = true
			if abortsCycle(err) {
				abortErr = err
				break
			}
			o.documentFailed(ctx, c, "push", ch.TargetID, err)
			continue
		}
		if !done {
			held[ch.TargetID] = true
			continue
		}
		confirmed = append(confirmed, ch.ID)
	}

	if abortErr == nil {
		if err := o.pushIndex(ctx, c); err != nil {
			if abortsCycle(err) {
				abortErr = err
			} else {
				o.documentFailed(ctx, c, "push", "index", err)
			}
		} else {
			for _, d := range deletes {
				if held[d.TargetID] {
					continue
				}
				confirmed = append(confirmed, d.ID)
				c.report.Pushed++
				logging.LogChangePushed(ctx, o.logger, string(d.Type), d.TargetID, "")
			}
		}
	}

	if len(changes) > 0 && len(confirmed) == len(changes) {
		err = o.queue.Ack(ctx, changes[len(changes)-1].Seq)
	} else {
		err = o.queue.Remove(ctx, confirmed...)
	}
	if abortErr != nil {
		return abortErr
	}
	return err
}

// pushChange writes one queued page change. It returns false when the
// change was not confirmed and later changes for the page must wait.
func (o *Orchestrator) pushChange(ctx context.Context, c *cycle, ch syncstate.PendingChange) (bool, error) {
	var payload ChangePayload
	if err := ch.DecodePayload(&payload); err != nil {
		return false, errors.Storage("decode pending change", err)
	}

	page, err := o.store.GetPage(ctx, ch.TargetID)
	if errors.Is(err, errors.ErrNotFound) {
		// Deleted locally since; the queued delete carries the intent.
		return true, nil
	}
	if err != nil {
		return false, err
	}

	hash := document.ContentHash(payload.Content)
	if page.Revision != "" && hash == page.BaseHash {
		// Already applied by an earlier, interrupted push.
		return true, nil
	}

	ctx = logging.WithDocumentID(ctx, page.ID)
	message := fmt.Sprintf("%s %s", changeVerb(ch.Type), page.ID)
	rev, err := o.remote.WriteDocument(ctx, page.Path, payload.Content, message, page.Revision)
	if errors.Is(err, errors.ErrRevisionConflict) {
		return false, o.recoverPush(ctx, c, page)
	}
	if err != nil {
		return false, err
	}

	if page.Hash == hash {
		page.MarkSynced(rev, o.now())
	} else {
		// A newer local edit is still queued behind this one.
		page.Revision = rev
		page.BaseHash = hash
		page.SyncedAt = document.NormalizeTime(o.now())
	}
	if err := o.store.PutPage(ctx, page); err != nil {
		return false, err
	}
	c.report.Pushed++
	logging.LogChangePushed(ctx, o.logger, string(ch.Type), ch.TargetID, rev)
	return true, nil
}

// recoverPush handles a write rejected for a stale revision: re-fetch,
// re-detect, and settle the page with its configured strategy without a
// further retry. The resolver drops the page's queued changes when it
// settles it; a parked page keeps them.
func (o *Orchestrator) recoverPush(ctx context.Context, c *cycle, page document.Document) error {
	rd, err := o.remote.FetchDocument(ctx, page.Path)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	var remote *document.Document
	if rd != nil {
		p, ok := c.remote.TOC.Locate(page.ID)
		if !ok {
			p = document.Placement{
				PageRef:    document.PageRef{ID: page.ID, Title: page.Title, Path: page.Path, Order: page.Order},
				CategoryID: page.CategoryID,
			}
		}
		d := remoteDocument(p, rd)
		if d.Hash == page.Hash {
			page.MarkSynced(d.Revision, o.now())
			if err := o.store.PutPage(ctx, page); err != nil {
				return err
			}
			_, err := o.queue.DropTarget(ctx, page.ID)
			return err
		}
		remote = &d
	}

	item := conflict.Item{
		ID:         page.ID,
		Kind:       conflict.KindPage,
		Type:       conflict.TypeContent,
		Local:      conflict.Version{Document: &page},
		Remote:     conflict.Version{Document: remote},
		DetectedAt: document.NormalizeTime(o.now()),
	}
	if remote != nil {
		item.Diff = conflict.DiffSummary(page.Content, remote.Content)
	}
	c.report.Conflicts++

	strategy := o.strategyFor(ctx, c, page.ID, conflict.KindPage)
	outcome, err := o.resolver.resolve(ctx, &item, strategy, false)
	if err != nil {
		return err
	}
	o.recordOutcome(ctx, c, &item, outcome)
	return nil
}

// pushIndex publishes the local index when it moved away from its sync
// base. A concurrent remote change is merged in and written once more.
func (o *Orchestrator) pushIndex(ctx context.Context, c *cycle) error {
	if c.indexHeld {
		return nil
	}
	toc, sum, err := o.store.LoadIndex(ctx)
	if err != nil {
		return err
	}
	if sum.BaseHash == "" && toc.Empty() {
		return nil
	}
	if toc.Fingerprint() == sum.BaseHash {
		return nil
	}

	rev, err := o.remote.WriteTableOfContents(ctx, toc, indexMessage, sum.Version)
	if errors.Is(err, errors.ErrRevisionConflict) {
		latest, ferr := o.remote.FetchTableOfContents(ctx)
		if ferr != nil {
			return ferr
		}
		merged := document.MergeTableOfContents(toc, latest, o.now())
		for id := range c.local.Deleted {
			merged.RemovePage(id)
		}
		rev, err = o.remote.WriteTableOfContents(ctx, merged, indexMessage, latest.Revision)
		toc = merged
	}
	if err != nil {
		return err
	}

	if err := o.store.MarkIndexSynced(ctx, toc, rev); err != nil {
		return err
	}
	c.report.IndexPushed = true
	return nil
}

func changeVerb(t syncstate.ChangeType) string {
	switch t {
	case syncstate.ChangeCreate:
		return "Create"
	case syncstate.ChangeDelete:
		return "Delete"
	default:
		return "Update"
	}
}
