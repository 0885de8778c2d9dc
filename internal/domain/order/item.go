package order

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
)

// Item is an immutable order line priced from the catalog at placement time
type Item struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	VariantID uuid.UUID
	SKU       string
	Name      string
	Quantity  int
	UnitPrice int64
	Tax       int64
	Discount  int64
}

// NewItem creates an order line. Tax is taxRate applied to the discounted line amount.
func NewItem(productID, variantID uuid.UUID, sku, name string, quantity int, unitPrice int64, taxRate decimal.Decimal, discount int64) (*Item, error) {
	if variantID == uuid.Nil {
		return nil, shared.NewValidationError("variant ID cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewValidationError("item name cannot be empty")
	}
	if quantity <= 0 {
		return nil, shared.NewValidationError("quantity must be positive")
	}
	if unitPrice < 0 {
		return nil, shared.NewValidationError("unit price cannot be negative")
	}
	if taxRate.IsNegative() {
		return nil, shared.NewValidationError("tax rate cannot be negative")
	}
	gross := unitPrice * int64(quantity)
	if discount < 0 || discount > gross {
		return nil, shared.NewValidationError("discount must be between 0 and the line amount")
	}

	return &Item{
		ID:        uuid.New(),
		ProductID: productID,
		VariantID: variantID,
		SKU:       sku,
		Name:      name,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Tax:       valueobject.TaxOn(gross-discount, taxRate),
		Discount:  discount,
	}, nil
}

// Subtotal returns quantity * unit price
func (i *Item) Subtotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Total returns the line amount including tax and discount
func (i *Item) Total() int64 {
	return i.Subtotal() + i.Tax - i.Discount
}
