package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence operations for payments
type Repository interface {
	// FindByID returns the payment for a gateway intent ID
	FindByID(ctx context.Context, id string) (*Payment, error)
	// FindByOrder returns all payment attempts for an order, oldest first
	FindByOrder(ctx context.Context, storeID, orderID uuid.UUID) ([]*Payment, error)
	// CountByOrder returns the number of payment attempts made for an order
	CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	// CreateIfAbsent inserts p unless a row with the same ID exists, and returns
	// the stored row either way
	CreateIfAbsent(ctx context.Context, p *Payment) (*Payment, bool, error)
	// Save persists p with an optimistic version check
	Save(ctx context.Context, p *Payment) error
}

// RefundRepository defines persistence operations for refunds
type RefundRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Refund, error)
	FindByGatewayID(ctx context.Context, gatewayRefundID string) (*Refund, error)
	FindByPayment(ctx context.Context, paymentID string) ([]*Refund, error)
	FindByOrder(ctx context.Context, storeID, orderID uuid.UUID) ([]*Refund, error)
	Save(ctx context.Context, r *Refund) error
}
