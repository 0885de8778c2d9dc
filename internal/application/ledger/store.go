package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
)

// EventSaver writes domain events to the outbox inside the current transaction
type EventSaver interface {
	Save(ctx context.Context, events ...shared.DomainEvent) error
}

// Repositories provides access to the ledger repositories. Inside Execute or a
// lock callback all of them share one database transaction.
type Repositories interface {
	Orders() order.Repository
	Payments() payment.Repository
	Refunds() payment.RefundRepository
	Receipts() webhook.ReceiptRepository
	Catalog() catalog.Catalog
	Outbox() EventSaver
}

// Store is the unit of work over orders, payments and refunds.
//
// Lock ordering: when a callback needs both rows it must run under
// WithinOrderLock and lock the payment through Payments().FindByID afterwards;
// WithinPaymentLock is only for payment-only changes.
type Store interface {
	// Repositories returns non-transactional repositories for reads
	Repositories() Repositories
	// Execute runs fn within a database transaction. If fn returns an error the
	// transaction is rolled back.
	Execute(ctx context.Context, fn func(repos Repositories) error) error
	// WithinOrderLock loads the order holding its row lock and runs fn in the
	// same transaction
	WithinOrderLock(ctx context.Context, orderID uuid.UUID, fn func(repos Repositories, o *order.Order) error) error
	// WithinPaymentLock loads the payment holding its row lock and runs fn in
	// the same transaction
	WithinPaymentLock(ctx context.Context, paymentID string, fn func(repos Repositories, p *payment.Payment) error) error
}

// Aggregate is anything that records domain events
type Aggregate interface {
	GetDomainEvents() []shared.DomainEvent
	ClearDomainEvents()
}

// FlushEvents moves the aggregates' recorded events into the outbox
func FlushEvents(ctx context.Context, repos Repositories, aggregates ...Aggregate) error {
	for _, agg := range aggregates {
		events := agg.GetDomainEvents()
		if len(events) == 0 {
			continue
		}
		if err := repos.Outbox().Save(ctx, events...); err != nil {
			return err
		}
		agg.ClearDomainEvents()
	}
	return nil
}
