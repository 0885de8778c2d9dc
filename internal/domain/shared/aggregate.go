package shared

import (
	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// EventRecorder collects domain events raised by an aggregate until they are persisted
type EventRecorder struct {
	domainEvents []DomainEvent
}

// AddDomainEvent adds a domain event to be published
func (r *EventRecorder) AddDomainEvent(event DomainEvent) {
	r.domainEvents = append(r.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (r *EventRecorder) GetDomainEvents() []DomainEvent {
	return r.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (r *EventRecorder) ClearDomainEvents() {
	r.domainEvents = nil
}

// Versioned carries the optimistic lock counter
type Versioned struct {
	Version int
}

// GetVersion returns the aggregate version for optimistic locking
func (v *Versioned) GetVersion() int {
	return v.Version
}

// IncrementVersion increments the version number
func (v *Versioned) IncrementVersion() {
	v.Version++
}

// BaseAggregateRoot provides common fields for uuid-keyed aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	Versioned
	EventRecorder
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Versioned:  Versioned{Version: 1},
	}
}

// StoreAggregateRoot extends BaseAggregateRoot with store (tenant) ownership
type StoreAggregateRoot struct {
	BaseAggregateRoot
	StoreID uuid.UUID
}

// NewStoreAggregateRoot creates a new store-scoped aggregate root
func NewStoreAggregateRoot(storeID uuid.UUID) StoreAggregateRoot {
	return StoreAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		StoreID:           storeID,
	}
}
