package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/storefront/backend/internal/domain/shared"
)

// EventSerializer encodes domain events as JSON for the outbox and rebuilds
// them from stored payloads. Only registered event types are accepted in
// either direction.
type EventSerializer struct {
	mu    sync.RWMutex
	types map[string]func() shared.DomainEvent
}

func NewEventSerializer() *EventSerializer {
	return &EventSerializer{types: make(map[string]func() shared.DomainEvent)}
}

// Register binds eventType to a constructor of an empty event value
func (s *EventSerializer) Register(eventType string, newEvent func() shared.DomainEvent) {
	s.mu.Lock()
	s.types[eventType] = newEvent
	s.mu.Unlock()
}

func (s *EventSerializer) lookup(eventType string) (func() shared.DomainEvent, error) {
	s.mu.RLock()
	newEvent, ok := s.types[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("event type %q is not registered", eventType)
	}
	return newEvent, nil
}

func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	if _, err := s.lookup(event.EventType()); err != nil {
		return nil, err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.EventType(), err)
	}
	return data, nil
}

func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	newEvent, err := s.lookup(eventType)
	if err != nil {
		return nil, err
	}
	event := newEvent()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return event, nil
}

// Types lists the registered event types in sorted order
func (s *EventSerializer) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.types))
	for t := range s.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
