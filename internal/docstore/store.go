package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is the versioned envelope around raw document fields. Version is
// bumped on every update; updates are atomic per document (last-write-wins),
// no cross-document transactions.
type Document struct {
	Collection string
	ID         string
	Version    int64
	Fields     map[string]any
	UpdatedAt  time.Time
}

// Clone deep-copies the envelope one level down so trigger handlers can hold
// snapshots without observing later writes.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	fields := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	return &Document{
		Collection: d.Collection,
		ID:         d.ID,
		Version:    d.Version,
		Fields:     fields,
		UpdatedAt:  d.UpdatedAt,
	}
}

// Query describes the three supported predicate forms: field equality, doc
// id set membership, and array-contains on a field.
type Query struct {
	FieldEquals   map[string]any
	IDIn          []string
	ArrayContains map[string]any
}

// TriggerFunc is invoked with before/after snapshots whenever a document in
// a watched collection is created or updated. before is nil for creates.
type TriggerFunc func(ctx context.Context, before, after *Document, id string) error

// Store is the document store adapter: typed read/write/update operations
// against versioned documents.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	// Create writes a new document. An empty id requests a store-assigned id.
	Create(ctx context.Context, collection, id string, fields map[string]any) (*Document, error)
	// Update merges partial fields into an existing document. A nil value
	// clears the field.
	Update(ctx context.Context, collection, id string, partial map[string]any) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
}

// TriggerRegistry is implemented by stores that can watch collections for
// changes.
type TriggerRegistry interface {
	RegisterTrigger(collection string, fn TriggerFunc)
}

func matches(doc *Document, q Query) bool {
	if len(q.IDIn) > 0 {
		found := false
		for _, id := range q.IDIn {
			if doc.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for field, want := range q.FieldEquals {
		if doc.Fields[field] != want {
			return false
		}
	}
	for field, want := range q.ArrayContains {
		if !arrayContains(doc.Fields[field], want) {
			return false
		}
	}
	return true
}

func arrayContains(raw, want any) bool {
	switch arr := raw.(type) {
	case []string:
		for _, item := range arr {
			if item == want {
				return true
			}
		}
	case []any:
		for _, item := range arr {
			if item == want {
				return true
			}
		}
	}
	return false
}
