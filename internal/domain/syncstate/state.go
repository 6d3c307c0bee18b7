// Package syncstate holds the persisted synchronization record: the cycle
// status machine, the bounded event history, the pending-change queue and
// the items parked for manual resolution.
package syncstate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
)

// HistoryLimit is the number of most recent events kept.
const HistoryLimit = 50

// Status is the orchestrator state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// CanTransitionTo reports whether the state machine allows s -> to.
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusIdle, "":
		return to == StatusSyncing
	case StatusSyncing:
		return to == StatusIdle || to == StatusError
	case StatusError:
		return to == StatusIdle
	}
	return false
}

// EventType classifies a history entry.
type EventType string

const (
	EventSuccess  EventType = "success"
	EventError    EventType = "error"
	EventConflict EventType = "conflict"
	EventWarning  EventType = "warning"
)

// Event is one entry of the sync history.
type Event struct {
	ID        string            `json:"id"`
	CycleID   string            `json:"cycleId,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}

// NewEvent builds an event with a fresh id.
func NewEvent(cycleID string, t EventType, at time.Time, message string, details map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		CycleID:   cycleID,
		Timestamp: at.UTC(),
		Type:      t,
		Message:   message,
		Details:   details,
	}
}

// State is the single persisted sync record. The queue lives inside it so
// that status and queue mutations are written together.
type State struct {
	Status          Status                       `json:"syncStatus"`
	LastSync        time.Time                    `json:"lastSync"`
	NextSync        time.Time                    `json:"nextSync"`
	LastSyncAttempt time.Time                    `json:"lastSyncAttempt"`
	Interval        time.Duration                `json:"interval"`
	ErrorCount      int                          `json:"errorCount"`
	LastError       string                       `json:"lastError,omitempty"`
	History         []Event                      `json:"history,omitempty"`
	PendingChanges  []PendingChange              `json:"pendingChanges,omitempty"`
	NextSeq         uint64                       `json:"nextSeq"`
	Manual          map[string]conflict.Item     `json:"manual,omitempty"`
	Overrides       map[string]conflict.Strategy `json:"overrides,omitempty"`
}

// IsRunning reports whether a cycle is marked in progress.
func (s *State) IsRunning() bool {
	return s.Status == StatusSyncing
}

// Transition moves the status machine to the next state.
func (s *State) Transition(to Status) error {
	if !s.Status.CanTransitionTo(to) {
		return fmt.Errorf("invalid sync status transition %s -> %s", s.Status, to)
	}
	s.Status = to
	return nil
}

// Recover normalizes a record left in the syncing state by a process that
// died mid-cycle. It reports whether anything changed.
func (s *State) Recover() bool {
	if s.Status != StatusSyncing {
		if s.Status == "" {
			s.Status = StatusIdle
		}
		return false
	}
	s.Status = StatusIdle
	s.LastError = "previous cycle interrupted"
	return true
}

// Record appends e to the history, dropping the oldest entries past HistoryLimit.
func (s *State) Record(e Event) {
	s.History = append(s.History, e)
	if over := len(s.History) - HistoryLimit; over > 0 {
		s.History = append([]Event(nil), s.History[over:]...)
	}
}

// RecentEvents returns up to n events, newest first.
func (s *State) RecentEvents(n int) []Event {
	if n <= 0 || n > len(s.History) {
		n = len(s.History)
	}
	out := make([]Event, 0, n)
	for i := len(s.History) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.History[i])
	}
	return out
}

// Park adds an item to the manual-resolution set.
func (s *State) Park(item conflict.Item) {
	if s.Manual == nil {
		s.Manual = make(map[string]conflict.Item)
	}
	s.Manual[item.ID] = item
}

// IsParked reports whether id awaits an operator decision.
func (s *State) IsParked(id string) bool {
	_, ok := s.Manual[id]
	return ok
}

// Release removes id from the manual set and records the operator's
// decision, applied once on the next cycle.
func (s *State) Release(id string, strategy conflict.Strategy) bool {
	if _, ok := s.Manual[id]; !ok {
		return false
	}
	delete(s.Manual, id)
	if s.Overrides == nil {
		s.Overrides = make(map[string]conflict.Strategy)
	}
	s.Overrides[id] = strategy
	return true
}

// TakeOverride returns and clears the one-shot operator decision for id.
func (s *State) TakeOverride(id string) (conflict.Strategy, bool) {
	strategy, ok := s.Overrides[id]
	if ok {
		delete(s.Overrides, id)
	}
	return strategy, ok
}
