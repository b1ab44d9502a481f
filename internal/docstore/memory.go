package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemoryStore is a mutex-guarded in-process store used in local mode and
// tests. Triggers fire synchronously after each create/update.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Document

	triggerMu sync.RWMutex
	triggers  map[string][]TriggerFunc

	logger *zap.Logger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		collections: make(map[string]map[string]*Document),
		triggers:    make(map[string][]TriggerFunc),
		logger:      logger,
	}
}

// RegisterTrigger watches a collection for creates and updates.
func (s *MemoryStore) RegisterTrigger(collection string, fn TriggerFunc) {
	s.triggerMu.Lock()
	defer s.triggerMu.Unlock()
	s.triggers[collection] = append(s.triggers[collection], fn)
}

// Get returns a snapshot of the document or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// Query returns snapshots of all documents matching the predicate.
func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Document
	for _, doc := range s.collections[collection] {
		if matches(doc, q) {
			result = append(result, *doc.Clone())
		}
	}
	return result, nil
}

// Create writes a new document and fires collection triggers with a nil
// before snapshot.
func (s *MemoryStore) Create(ctx context.Context, collection, id string, fields map[string]any) (*Document, error) {
	if id == "" {
		id = uuid.NewString()
	}
	doc := &Document{
		Collection: collection,
		ID:         id,
		Version:    1,
		Fields:     copyFields(fields),
		UpdatedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]*Document)
	}
	s.collections[collection][id] = doc
	after := doc.Clone()
	s.mu.Unlock()

	s.fireTriggers(ctx, collection, nil, after, id)
	return after, nil
}

// Update merges partial fields into the document, bumps its version, and
// fires collection triggers with before/after snapshots.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, partial map[string]any) (*Document, error) {
	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	before := doc.Clone()
	for k, v := range partial {
		if v == nil {
			delete(doc.Fields, k)
			continue
		}
		doc.Fields[k] = v
	}
	doc.Version++
	doc.UpdatedAt = time.Now().UTC()
	after := doc.Clone()
	s.mu.Unlock()

	s.fireTriggers(ctx, collection, before, after, id)
	return after, nil
}

// Delete removes a document. Deleting an absent document is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) fireTriggers(ctx context.Context, collection string, before, after *Document, id string) {
	s.triggerMu.RLock()
	handlers := append([]TriggerFunc{}, s.triggers[collection]...)
	s.triggerMu.RUnlock()

	for _, fn := range handlers {
		if err := fn(ctx, before, after, id); err != nil {
			s.logger.Warn("trigger handler failed",
				zap.String("collection", collection),
				zap.String("doc_id", id),
				zap.Error(err))
		}
	}
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}
