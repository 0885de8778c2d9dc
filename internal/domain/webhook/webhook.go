package webhook

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
)

// SourceKind identifies the family of a webhook source
type SourceKind string

const (
	SourceKindPaymentProvider SourceKind = "payment_provider"
	SourceKindShippingCarrier SourceKind = "shipping_carrier"
	SourceKindEmailProvider   SourceKind = "email_provider"
	SourceKindCustom          SourceKind = "custom"
)

// Event is a verified inbound webhook delivery
type Event struct {
	ID        string
	Source    string
	Type      string
	CreatedAt time.Time
	// Data is the source-specific object payload
	Data []byte
}

// IdempotencyKey returns the key used to claim the event
func (e *Event) IdempotencyKey() string {
	return e.Source + ":" + e.ID
}

// Kind classifies what a domain event asks the engine to do
type Kind string

const (
	// KindPaymentStatus reports a new status for a payment intent
	KindPaymentStatus Kind = "payment_status"
	// KindRefund reports the cumulative refunds of a payment
	KindRefund Kind = "refund"
	// KindOrderStatus asks for a fulfillment transition on an order
	KindOrderStatus Kind = "order_status"
	// KindOrderNote appends a timeline note to an order
	KindOrderNote Kind = "order_note"
	// KindIgnored is acknowledged without any state change
	KindIgnored Kind = "ignored"
)

// RefundReport is one refund as reported by the payment processor
type RefundReport struct {
	GatewayRefundID string
	// LocalRefundID is set when the refund was requested through this system
	LocalRefundID uuid.UUID
	Amount        int64
	Status        payment.RefundStatus
	FailureReason string
}

// DomainEvent is a source-neutral instruction produced from a verified event
type DomainEvent struct {
	Kind Kind

	PaymentID      string
	PaymentStatus  payment.Status
	Amount         int64
	Currency       string
	AmountRefunded int64
	FailureCode    string
	FailureMessage string
	Metadata       map[string]string
	Refunds        []RefundReport

	OrderID     uuid.UUID
	OrderStatus order.Status
	Actor       string
	Note        string
}

// Source verifies and translates deliveries from one external system
type Source interface {
	Name() string
	Kind() SourceKind
	// Verify authenticates the raw payload against the signature header value
	// and returns the parsed event
	Verify(payload []byte, signature string) (*Event, error)
	// SignatureHeader is the HTTP header carrying the signature
	SignatureHeader() string
	ToDomainEvent(evt *Event) (*DomainEvent, error)
}
