package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrRejected marks a gateway error where the processor answered and refused
// the request. Any other gateway failure leaves the outcome unknown.
var ErrRejected = errors.New("rejected by payment processor")

// CreateIntentRequest describes a new payment intent for an order
type CreateIntentRequest struct {
	OrderID        uuid.UUID
	StoreID        uuid.UUID
	OrderNumber    string
	Amount         int64
	Currency       string
	CustomerEmail  string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the gateway's view of a payment intent
type Intent struct {
	ID             string
	Status         Status
	Amount         int64
	AmountReceived int64
	Currency       string
	ClientSecret   string
	Metadata       map[string]string
	FailureCode    string
	FailureMessage string
}

// OrderID returns the order referenced by the intent metadata, if any
func (i *Intent) OrderID() (uuid.UUID, bool) {
	return MetadataUUID(i.Metadata, MetadataOrderID)
}

// StoreID returns the store referenced by the intent metadata, if any
func (i *Intent) StoreID() (uuid.UUID, bool) {
	return MetadataUUID(i.Metadata, MetadataStoreID)
}

// RefundRequest describes a refund of a payment intent
type RefundRequest struct {
	PaymentID      string
	RefundID       uuid.UUID
	Amount         int64
	Reason         string
	IdempotencyKey string
}

// GatewayRefund is the gateway's view of a refund
type GatewayRefund struct {
	ID            string
	PaymentID     string
	Amount        int64
	Currency      string
	Status        RefundStatus
	FailureReason string
}

// Metadata keys written on every intent and refund
const (
	MetadataOrderID     = "order_id"
	MetadataStoreID     = "store_id"
	MetadataOrderNumber = "order_number"
	MetadataRefundID    = "refund_id"
)

// Gateway is the port to the external payment processor.
// Implementations must honour ctx deadlines; a call that times out has an
// unknown outcome and is reported as context.DeadlineExceeded.
type Gateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*Intent, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodRef string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	Refund(ctx context.Context, req RefundRequest) (*GatewayRefund, error)
}

// MetadataUUID parses a UUID stored under key in gateway metadata
func MetadataUUID(md map[string]string, key string) (uuid.UUID, bool) {
	raw, ok := md[key]
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

