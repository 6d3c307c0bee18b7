package syncstate

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChangeType is the kind of local mutation awaiting push.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// IsValid reports whether t is a known change type.
func (t ChangeType) IsValid() bool {
	switch t {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// PendingChange is a queued local mutation. It is never modified after
// enqueue and leaves the queue only once the remote confirmed it.
type PendingChange struct {
	ID        string          `json:"id"`
	Seq       uint64          `json:"seq"`
	Type      ChangeType      `json:"type"`
	TargetID  string          `json:"targetId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewPendingChange builds a change with a fresh id. Seq is assigned by the queue.
func NewPendingChange(t ChangeType, targetID string, payload any, at time.Time) (PendingChange, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return PendingChange{}, err
		}
		raw = data
	}
	return PendingChange{
		ID:        uuid.NewString(),
		Type:      t,
		TargetID:  targetID,
		Payload:   raw,
		Timestamp: at.UTC(),
	}, nil
}

// DecodePayload unmarshals the change payload into v.
func (c PendingChange) DecodePayload(v any) error {
	if len(c.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(c.Payload, v)
}
