package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// OutboxEvent is a row of outbox_events
type OutboxEvent struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	StoreID       uuid.UUID           `gorm:"type:uuid;not null;index:idx_outbox_store_status,priority:1"`
	EventID       uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_outbox_events_event_id"`
	EventType     string              `gorm:"type:varchar(255);not null"`
	AggregateID   string              `gorm:"type:varchar(255);not null"`
	AggregateType string              `gorm:"type:varchar(255);not null"`
	Payload       []byte              `gorm:"type:jsonb;not null"`
	Status        shared.OutboxStatus `gorm:"type:varchar(20);not null;default:PENDING;index:idx_outbox_store_status,priority:2;index:idx_outbox_status_created,priority:1"`
	RetryCount    int                 `gorm:"not null;default:0"`
	MaxRetries    int                 `gorm:"not null;default:5"`
	LastError     string              `gorm:"type:text"`
	NextRetryAt   *time.Time          `gorm:"index:idx_outbox_next_retry"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// NewOutboxEvent copies a domain entry into a row. The field lists of the
// two types must stay identical.
func NewOutboxEvent(e *shared.OutboxEntry) *OutboxEvent {
	m := OutboxEvent(*e)
	return &m
}

// Entry converts the row back to a domain entry
func (m *OutboxEvent) Entry() *shared.OutboxEntry {
	e := shared.OutboxEntry(*m)
	return &e
}
