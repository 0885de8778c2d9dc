package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/webhook"
)

// WebhookReceiptModel is the persistence model for acknowledged webhook deliveries
type WebhookReceiptModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Source     string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_webhook_receipts_source_event,priority:1"`
	EventID    string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_webhook_receipts_source_event,priority:2"`
	EventType  string          `gorm:"type:varchar(128);not null"`
	Outcome    webhook.Outcome `gorm:"type:varchar(32);not null"`
	PaymentID  string          `gorm:"type:varchar(255)"`
	OrderID    *uuid.UUID      `gorm:"type:uuid;index"`
	Detail     string          `gorm:"type:text"`
	ReceivedAt time.Time       `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (WebhookReceiptModel) TableName() string {
	return "webhook_receipts"
}

// ToDomain converts the persistence model to a domain Receipt
func (m *WebhookReceiptModel) ToDomain() *webhook.Receipt {
	r := &webhook.Receipt{
		ID:         m.ID,
		Source:     m.Source,
		EventID:    m.EventID,
		EventType:  m.EventType,
		Outcome:    m.Outcome,
		PaymentID:  m.PaymentID,
		Detail:     m.Detail,
		ReceivedAt: m.ReceivedAt,
	}
	if m.OrderID != nil {
		r.OrderID = *m.OrderID
	}
	return r
}

// WebhookReceiptModelFromDomain creates a new persistence model from a domain Receipt
func WebhookReceiptModelFromDomain(r *webhook.Receipt) *WebhookReceiptModel {
	m := &WebhookReceiptModel{
		ID:         r.ID,
		Source:     r.Source,
		EventID:    r.EventID,
		EventType:  r.EventType,
		Outcome:    r.Outcome,
		PaymentID:  r.PaymentID,
		Detail:     r.Detail,
		ReceivedAt: r.ReceivedAt,
	}
	if r.OrderID != uuid.Nil {
		id := r.OrderID
		m.OrderID = &id
	}
	return m
}
