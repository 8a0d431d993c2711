package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/amirasaad/ledger/pkg/eventbus"
)

// MemoryEventBus delivers envelopes synchronously to in-process handlers.
type MemoryEventBus struct {
	handlers  map[string][]eventbus.HandlerFunc
	mu        sync.RWMutex
	logger    *slog.Logger
	published []eventbus.Envelope
}

// NewWithMemory creates a new in-memory event bus.
func NewWithMemory(logger *slog.Logger) *MemoryEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryEventBus{
		handlers:  make(map[string][]eventbus.HandlerFunc),
		logger:    logger.With("bus", "memory"),
		published: make([]eventbus.Envelope, 0),
	}
}

// Register registers a handler for a specific event type.
func (b *MemoryEventBus) Register(eventType string, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit dispatches the envelope to every handler registered for its type.
// Handler errors are joined and returned so the caller can redeliver.
func (b *MemoryEventBus) Emit(ctx context.Context, env eventbus.Envelope) error {
	b.mu.Lock()
	b.published = append(b.published, env)
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[env.Type]...)
	b.mu.Unlock()

	var errs []error
	for _, handler := range handlers {
		if err := b.invoke(ctx, handler, env); err != nil {
			b.logger.Error("handler failed", "type", env.Type, "event_id", env.ID, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *MemoryEventBus) invoke(ctx context.Context, handler eventbus.HandlerFunc, env eventbus.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic recovered in event handler", "type", env.Type, "panic", r)
			err = errors.New("event handler panicked")
		}
	}()
	return handler(ctx, env)
}

// Published returns a copy of every envelope emitted so far.
func (b *MemoryEventBus) Published() []eventbus.Envelope {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]eventbus.Envelope(nil), b.published...)
}

// ClearPublished clears the list of published envelopes.
func (b *MemoryEventBus) ClearPublished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = make([]eventbus.Envelope, 0)
}

var _ eventbus.Bus = (*MemoryEventBus)(nil)
