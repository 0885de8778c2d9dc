// Package catalog defines the read/reserve port the order service uses to
// price and stock line items. Store and customer management live outside this
// system; only the fields orders depend on are modelled.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoreProfile is the slice of store configuration that affects order totals
type StoreProfile struct {
	ID       uuid.UUID
	Name     string
	Currency string
	// FlatShipping is charged per order unless the subtotal reaches
	// FreeShippingThreshold (0 disables the threshold)
	FlatShipping          int64
	FreeShippingThreshold int64
	Active                bool
}

// ShippingFor returns the shipping charge for a given subtotal
func (s *StoreProfile) ShippingFor(subtotal int64) int64 {
	if s.FreeShippingThreshold > 0 && subtotal >= s.FreeShippingThreshold {
		return 0
	}
	return s.FlatShipping
}

// Customer is the directory entry an order references
type Customer struct {
	ID      uuid.UUID
	StoreID uuid.UUID
	Email   string
	Name    string
}

// VariantSnapshot is the catalog view of a sellable variant at order time
type VariantSnapshot struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	StoreID   uuid.UUID
	SKU       string
	Name      string
	Price     int64
	TaxRate   decimal.Decimal
	// Discount is a per-unit markdown in minor units
	Discount int64
	Stock    int
	Active   bool
}

// Reservation is a quantity of a variant held for an order
type Reservation struct {
	VariantID uuid.UUID
	Quantity  int
}

// Catalog is the port to store, customer and inventory data
type Catalog interface {
	GetStore(ctx context.Context, storeID uuid.UUID) (*StoreProfile, error)
	GetCustomer(ctx context.Context, storeID, customerID uuid.UUID) (*Customer, error)
	// GetVariants returns snapshots for the requested IDs within storeID.
	// Missing IDs are simply absent from the result.
	GetVariants(ctx context.Context, storeID uuid.UUID, variantIDs []uuid.UUID) (map[uuid.UUID]*VariantSnapshot, error)
	// Reserve decrements stock for every reservation or none of them
	Reserve(ctx context.Context, storeID uuid.UUID, items []Reservation) error
	// Release returns reserved stock
	Release(ctx context.Context, storeID uuid.UUID, items []Reservation) error
}
