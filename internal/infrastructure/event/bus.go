package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// anyType is the subscription key of handlers that receive every event
const anyType = "*"

// InMemoryEventBus calls subscribed handlers synchronously inside Publish.
// Handler errors are returned so the outbox entry is retried.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	logger   *zap.Logger
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		handlers: make(map[string][]shared.EventHandler),
		logger:   logger.Named("eventbus"),
	}
}

// Subscribe adds handler for eventTypes, or for the handler's own EventTypes
// when none are given. A handler with no types at all receives every event.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	keys := eventTypes
	if len(keys) == 0 {
		keys = []string{anyType}
	}

	b.mu.Lock()
	for _, k := range keys {
		b.handlers[k] = append(b.handlers[k], handler)
	}
	b.mu.Unlock()
	b.logger.Debug("Handler subscribed", zap.Strings("event_types", keys))
}

// handlersFor returns the typed handlers of eventType followed by the
// catch-all handlers
func (b *InMemoryEventBus) handlersFor(eventType string) []shared.EventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	typed, all := b.handlers[eventType], b.handlers[anyType]
	out := make([]shared.EventHandler, 0, len(typed)+len(all))
	return append(append(out, typed...), all...)
}

// Publish runs every handler of every event. All handlers run even when one
// fails; the failures are joined.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs []error
	for _, evt := range events {
		for _, h := range b.handlersFor(evt.EventType()) {
			if err := invoke(ctx, h, evt); err != nil {
				b.logger.Error("Event handler failed",
					zap.String("event_type", evt.EventType()),
					zap.String("event_id", evt.EventID().String()),
					zap.Error(err))
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) Start(context.Context) error {
	b.logger.Info("Event bus started")
	return nil
}

func (b *InMemoryEventBus) Stop(context.Context) error {
	b.logger.Info("Event bus stopped")
	return nil
}

func invoke(ctx context.Context, h shared.EventHandler, evt shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %s panicked: %v", evt.EventType(), r)
		}
	}()
	return h.Handle(ctx, evt)
}
