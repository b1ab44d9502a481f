package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/maintenance-dispatch/internal/docstore"
)

// ChangeEvent describes a create or update of one document. Before is nil
// for creates. Delivery is at-least-once and unordered: handlers must treat
// After as possibly stale and re-validate preconditions before writing.
type ChangeEvent struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	DocID      string         `json:"doc_id"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after"`
	Version    int64          `json:"version"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// FromSnapshots builds a ChangeEvent out of store trigger snapshots.
func FromSnapshots(before, after *docstore.Document, id string) ChangeEvent {
	event := ChangeEvent{
		ID:         uuid.NewString(),
		DocID:      id,
		OccurredAt: time.Now().UTC(),
	}
	if before != nil {
		event.Before = before.Fields
	}
	if after != nil {
		event.Collection = after.Collection
		event.After = after.Fields
		event.Version = after.Version
	}
	return event
}
