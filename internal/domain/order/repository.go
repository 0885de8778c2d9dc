package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// Filter narrows order listings within a store
type Filter struct {
	shared.Filter
	Status     Status
	CustomerID uuid.UUID
	From       *time.Time
	To         *time.Time
}

// Repository defines persistence operations for orders
type Repository interface {
	// FindByID returns an order with its items, regardless of store
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// FindByIDForStore returns an order only if it belongs to storeID
	FindByIDForStore(ctx context.Context, storeID, id uuid.UUID) (*Order, error)
	FindByOrderNumber(ctx context.Context, storeID uuid.UUID, orderNumber string) (*Order, error)
	List(ctx context.Context, storeID uuid.UUID, filter Filter) ([]*Order, int64, error)
	// Create inserts a new order with its items and initial notes
	Create(ctx context.Context, o *Order) error
	// Save updates the order with an optimistic version check and appends its
	// pending notes
	Save(ctx context.Context, o *Order) error
	FindNotes(ctx context.Context, orderID uuid.UUID) ([]*StatusNote, error)
}
