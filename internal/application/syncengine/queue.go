// Package syncengine reconciles the local document cache with the remote
// store: it queues local edits, detects and resolves conflicts, and runs
// the scheduled detect, resolve, pull and push cycle.
package syncengine

import (
	"bytes"
	"context"
	"time"

	"github.com/jbctechsolutions/wikisync/internal/application/localstore"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
)

// ChangePayload is the body of a queued page change.
type ChangePayload struct {
	Content    string `json:"content,omitempty"`
	Title      string `json:"title,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
	Path       string `json:"path,omitempty"`
	Revision   string `json:"revision,omitempty"` // last synced revision, for deletes
}

// Queue is the FIFO of local changes awaiting push. It lives inside the
// persisted sync record, so it survives restarts and every mutation is
// written together with the sync status.
type Queue struct {
	store *localstore.Store
	now   func() time.Time
}

// NewQueue creates a queue over store.
func NewQueue(store *localstore.Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// Enqueue appends a change and returns it with its sequence number. When the
// most recent queued change for the same target is identical (same type and
// payload) nothing is added and that entry is returned instead. Older entries
// are never matched: an edit that reverts to an earlier state must still be
// delivered after the edits it reverts.
func (q *Queue) Enqueue(ctx context.Context, t syncstate.ChangeType, targetID string, payload any) (syncstate.PendingChange, error) {
	change, err := syncstate.NewPendingChange(t, targetID, payload, q.now())
	if err != nil {
		return syncstate.PendingChange{}, err
	}

	err = q.store.UpdateState(ctx, func(s *syncstate.State) error {
		for i := len(s.PendingChanges) - 1; i >= 0; i-- {
			existing := s.PendingChanges[i]
			if existing.TargetID != change.TargetID {
				continue
			}
			if existing.Type == change.Type && bytes.Equal(existing.Payload, change.Payload) {
				change = existing
				return nil
			}
			break
		}
		s.NextSeq++
		change.Seq = s.NextSeq
		s.PendingChanges = append(s.PendingChanges, change)
		return nil
	})
	return change, err
}

// DrainAll returns every queued change in order without removing any.
func (q *Queue) DrainAll(ctx context.Context) ([]syncstate.PendingChange, error) {
	state, err := q.store.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	return append([]syncstate.PendingChange(nil), state.PendingChanges...), nil
}

// Len returns the number of queued changes.
func (q *Queue) Len(ctx context.Context) (int, error) {
	state, err := q.store.LoadState(ctx)
	if err != nil {
		return 0, err
	}
	return len(state.PendingChanges), nil
}

// Ack removes the confirmed prefix of the queue: every entry whose sequence
// number is at most upTo. Sequence numbers stay valid even when DropTarget
// removed entries between DrainAll and Ack.
func (q *Queue) Ack(ctx context.Context, upTo uint64) error {
	return q.store.UpdateState(ctx, func(s *syncstate.State) error {
		kept := s.PendingChanges[:0]
		for _, c := range s.PendingChanges {
			if c.Seq > upTo {
				kept = append(kept, c)
			}
		}
		s.PendingChanges = kept
		return nil
	})
}

// Remove deletes the entries with the given ids, keeping the order of the rest.
func (q *Queue) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	return q.store.UpdateState(ctx, func(s *syncstate.State) error {
		kept := s.PendingChanges[:0]
		for _, c := range s.PendingChanges {
			if !drop[c.ID] {
				kept = append(kept, c)
			}
		}
		s.PendingChanges = kept
		return nil
	})
}

// DropTarget removes every queued change for targetID and returns how many
// were dropped.
func (q *Queue) DropTarget(ctx context.Context, targetID string) (int, error) {
	dropped := 0
	err := q.store.UpdateState(ctx, func(s *syncstate.State) error {
		dropped = 0
		kept := s.PendingChanges[:0]
		for _, c := range s.PendingChanges {
			if c.TargetID == targetID {
				dropped++
				continue
			}
			kept = append(kept, c)
		}
		s.PendingChanges = kept
		return nil
	})
	return dropped, err
}

// Targets splits the queued target ids into pages with a pending create or
// update and pages with a pending delete. A target whose last change is a
// delete counts as deleted only.
func (q *Queue) Targets(ctx context.Context) (pending, deleted map[string]bool, err error) {
	changes, err := q.DrainAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	pending = make(map[string]bool)
	deleted = make(map[string]bool)
	for _, c := range changes {
		if c.Type == syncstate.ChangeDelete {
			deleted[c.TargetID] = true
			delete(pending, c.TargetID)
			continue
		}
		pending[c.TargetID] = true
		delete(deleted, c.TargetID)
	}
	return pending, deleted, nil
}
