package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
)

// PaymentModel is the persistence model for a payment attempt. The primary key
// is the gateway's intent identifier.
type PaymentModel struct {
	ID              string            `gorm:"type:varchar(255);primaryKey"`
	OrderID         uuid.UUID         `gorm:"type:uuid;not null;index"`
	StoreID         uuid.UUID         `gorm:"type:uuid;not null;index"`
	Amount          int64             `gorm:"not null"`
	Currency        string            `gorm:"type:varchar(3);not null"`
	Status          payment.Status    `gorm:"type:varchar(32);not null;index"`
	RefundedAmount  int64             `gorm:"not null;default:0"`
	ClientSecret    string            `gorm:"type:varchar(255)"`
	GatewayMetadata map[string]string `gorm:"type:text;serializer:json"`
	FailureCode     string            `gorm:"type:varchar(100)"`
	FailureMessage  string            `gorm:"type:text"`
	Shadow          bool              `gorm:"not null;default:false"`
	Version         int               `gorm:"not null;default:1"`
	CreatedAt       time.Time         `gorm:"not null"`
	UpdatedAt       time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *payment.Payment {
	md := m.GatewayMetadata
	if md == nil {
		md = map[string]string{}
	}
	return &payment.Payment{
		Versioned:       shared.Versioned{Version: m.Version},
		ID:              m.ID,
		OrderID:         m.OrderID,
		StoreID:         m.StoreID,
		Amount:          m.Amount,
		Currency:        m.Currency,
		Status:          m.Status,
		RefundedAmount:  m.RefundedAmount,
		ClientSecret:    m.ClientSecret,
		GatewayMetadata: md,
		FailureCode:     m.FailureCode,
		FailureMessage:  m.FailureMessage,
		Shadow:          m.Shadow,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *payment.Payment) {
	m.ID = p.ID
	m.OrderID = p.OrderID
	m.StoreID = p.StoreID
	m.Amount = p.Amount
	m.Currency = p.Currency
	m.Status = p.Status
	m.RefundedAmount = p.RefundedAmount
	m.ClientSecret = p.ClientSecret
	m.GatewayMetadata = p.GatewayMetadata
	m.FailureCode = p.FailureCode
	m.FailureMessage = p.FailureMessage
	m.Shadow = p.Shadow
	m.Version = p.Version
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *payment.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// RefundModel is the persistence model for a refund against a payment
type RefundModel struct {
	BaseModel
	PaymentID       string               `gorm:"type:varchar(255);not null;index"`
	OrderID         uuid.UUID            `gorm:"type:uuid;not null;index"`
	StoreID         uuid.UUID            `gorm:"type:uuid;not null"`
	Amount          int64                `gorm:"not null"`
	Currency        string               `gorm:"type:varchar(3);not null"`
	Reason          string               `gorm:"type:varchar(500)"`
	Status          payment.RefundStatus `gorm:"type:varchar(32);not null"`
	GatewayRefundID *string              `gorm:"type:varchar(255);uniqueIndex"`
	FailureReason   string               `gorm:"type:text"`
	CompletedAt     *time.Time
}

// TableName returns the table name for GORM
func (RefundModel) TableName() string {
	return "refunds"
}

// ToDomain converts the persistence model to a domain Refund
func (m *RefundModel) ToDomain() *payment.Refund {
	r := &payment.Refund{
		BaseEntity:    m.BaseModel.ToDomain(),
		PaymentID:     m.PaymentID,
		OrderID:       m.OrderID,
		StoreID:       m.StoreID,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Reason:        m.Reason,
		Status:        m.Status,
		FailureReason: m.FailureReason,
		CompletedAt:   m.CompletedAt,
	}
	if m.GatewayRefundID != nil {
		r.GatewayRefundID = *m.GatewayRefundID
	}
	return r
}

// FromDomain populates the persistence model from a domain Refund. An empty
// gateway refund ID is stored as NULL so the unique index ignores it.
func (m *RefundModel) FromDomain(r *payment.Refund) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.PaymentID = r.PaymentID
	m.OrderID = r.OrderID
	m.StoreID = r.StoreID
	m.Amount = r.Amount
	m.Currency = r.Currency
	m.Reason = r.Reason
	m.Status = r.Status
	m.GatewayRefundID = nil
	if r.GatewayRefundID != "" {
		id := r.GatewayRefundID
		m.GatewayRefundID = &id
	}
	m.FailureReason = r.FailureReason
	m.CompletedAt = r.CompletedAt
}

// RefundModelFromDomain creates a new persistence model from a domain Refund
func RefundModelFromDomain(r *payment.Refund) *RefundModel {
	m := &RefundModel{}
	m.FromDomain(r)
	return m
}
