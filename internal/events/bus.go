package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Handler handles a delivered change event.
type Handler func(ctx context.Context, event ChangeEvent) error

// Bus allows change-event publication/subscription.
type Bus interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Subscribe(collection string, handler Handler)
}

// inMemoryBus is a simple synchronous bus keyed by collection.
type inMemoryBus struct {
	mu        sync.RWMutex
	listeners map[string][]Handler
	logger    *zap.Logger
}

// NewInMemoryBus creates a bus instance.
func NewInMemoryBus(logger *zap.Logger) Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryBus{
		listeners: make(map[string][]Handler),
		logger:    logger,
	}
}

// Publish synchronously invokes handlers for the event's collection.
// Handler errors are logged and do not stop the remaining handlers; there is
// no redelivery on this transport.
func (b *inMemoryBus) Publish(ctx context.Context, event ChangeEvent) error {
	b.mu.RLock()
	handlers := append([]Handler{}, b.listeners[event.Collection]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Error("change event handler failed",
				zap.String("collection", event.Collection),
				zap.String("doc_id", event.DocID),
				zap.Error(err))
		}
	}
	return nil
}

// Subscribe registers a handler for a collection's change events.
func (b *inMemoryBus) Subscribe(collection string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[collection] = append(b.listeners[collection], handler)
}
