package payment

import (
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// Event type constants for the payment aggregate
const (
	EventTypePaymentStatusChanged = "PaymentStatusChanged"
	EventTypeRefundRequested      = "RefundRequested"
	EventTypeRefundCompleted      = "RefundCompleted"
)

// PaymentStatusChangedEvent is raised whenever a payment moves between statuses
type PaymentStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID        uuid.UUID `json:"order_id"`
	FromStatus     Status    `json:"from_status"`
	ToStatus       Status    `json:"to_status"`
	Amount         int64     `json:"amount"`
	RefundedAmount int64     `json:"refunded_amount"`
	Currency       string    `json:"currency"`
	FailureCode    string    `json:"failure_code,omitempty"`
}

// NewPaymentStatusChangedEvent creates a new PaymentStatusChangedEvent
func NewPaymentStatusChangedEvent(p *Payment, from Status) *PaymentStatusChangedEvent {
	return &PaymentStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentStatusChanged, AggregateTypePayment, p.ID, p.StoreID),
		OrderID:         p.OrderID,
		FromStatus:      from,
		ToStatus:        p.Status,
		Amount:          p.Amount,
		RefundedAmount:  p.RefundedAmount,
		Currency:        p.Currency,
		FailureCode:     p.FailureCode,
	}
}

// RefundRequestedEvent is raised when a refund is reserved against a payment
type RefundRequestedEvent struct {
	shared.BaseDomainEvent
	RefundID uuid.UUID `json:"refund_id"`
	OrderID  uuid.UUID `json:"order_id"`
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency"`
	Reason   string    `json:"reason,omitempty"`
}

// NewRefundRequestedEvent creates a new RefundRequestedEvent
func NewRefundRequestedEvent(r *Refund) *RefundRequestedEvent {
	return &RefundRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRefundRequested, AggregateTypePayment, r.PaymentID, r.StoreID),
		RefundID:        r.ID,
		OrderID:         r.OrderID,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Reason:          r.Reason,
	}
}

// RefundCompletedEvent is raised when a refund reaches a terminal status
type RefundCompletedEvent struct {
	shared.BaseDomainEvent
	RefundID        uuid.UUID    `json:"refund_id"`
	OrderID         uuid.UUID    `json:"order_id"`
	GatewayRefundID string       `json:"gateway_refund_id,omitempty"`
	Amount          int64        `json:"amount"`
	Currency        string       `json:"currency"`
	Status          RefundStatus `json:"status"`
}

// NewRefundCompletedEvent creates a new RefundCompletedEvent
func NewRefundCompletedEvent(r *Refund) *RefundCompletedEvent {
	return &RefundCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRefundCompleted, AggregateTypePayment, r.PaymentID, r.StoreID),
		RefundID:        r.ID,
		OrderID:         r.OrderID,
		GatewayRefundID: r.GatewayRefundID,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Status:          r.Status,
	}
}
