package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
)

// CreateOrderRequest represents a request to place an order. Prices are taken
// from the catalog, never from the client.
type CreateOrderRequest struct {
	CustomerID      uuid.UUID                    `json:"customer_id" binding:"required"`
	Items           []CreateOrderItemInput       `json:"items" binding:"required,min=1,max=100,dive"`
	ShippingAddress *valueobject.ShippingAddress `json:"shipping_address"`
	Metadata        map[string]string            `json:"metadata" binding:"omitempty,max=50"`
}

// CreateOrderItemInput represents one requested line
type CreateOrderItemInput struct {
	VariantID uuid.UUID `json:"variant_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1,max=10000"`
}

// TransitionStatusRequest represents an operator-driven status change
type TransitionStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note" binding:"max=2000"`
}

// CancelOrderRequest represents a request to cancel an order
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500"`
}

// UpdateOrderCommand is the whitelisted admin update. Fields that are nil are
// left unchanged.
type UpdateOrderCommand struct {
	Metadata        map[string]string            `json:"metadata" validate:"omitempty,max=50,dive,keys,min=1,max=64,endkeys,max=500"`
	ShippingAddress *valueobject.ShippingAddress `json:"shipping_address"`
	InternalNote    *string                      `json:"internal_note" validate:"omitempty,min=1,max=2000"`
}

// ListOrdersFilter represents query parameters for listing orders
type ListOrdersFilter struct {
	Page       int       `form:"page" binding:"omitempty,min=1"`
	PageSize   int       `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status     string    `form:"status"`
	CustomerID uuid.UUID `form:"customer_id"`
	OrderBy    string    `form:"order_by" binding:"omitempty,oneof=created_at grand_total order_number"`
	OrderDir   string    `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// OrderItemResponse represents an order line in API responses
type OrderItemResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	Tax       int64     `json:"tax"`
	Discount  int64     `json:"discount"`
	Total     int64     `json:"total"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID              uuid.UUID                   `json:"id"`
	StoreID         uuid.UUID                   `json:"store_id"`
	CustomerID      uuid.UUID                   `json:"customer_id"`
	OrderNumber     string                      `json:"order_number"`
	Status          string                      `json:"status"`
	PaymentStatus   string                      `json:"payment_status"`
	PaymentFailed   bool                        `json:"payment_failed"`
	Currency        string                      `json:"currency"`
	Subtotal        int64                       `json:"subtotal"`
	TaxTotal        int64                       `json:"tax_total"`
	ShippingTotal   int64                       `json:"shipping_total"`
	DiscountTotal   int64                       `json:"discount_total"`
	GrandTotal      int64                       `json:"grand_total"`
	RefundedTotal   int64                       `json:"refunded_total"`
	ShippingAddress valueobject.ShippingAddress `json:"shipping_address"`
	CancelReason    string                      `json:"cancel_reason,omitempty"`
	Metadata        map[string]string           `json:"metadata,omitempty"`
	Items           []OrderItemResponse         `json:"items"`
	ConfirmedAt     *time.Time                  `json:"confirmed_at,omitempty"`
	ShippedAt       *time.Time                  `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time                  `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time                  `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
	Version         int                         `json:"version"`
}

// ToOrderResponse converts the domain order to its response DTO
func ToOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Tax:       item.Tax,
			Discount:  item.Discount,
			Total:     item.Total(),
		}
	}
	return OrderResponse{
		ID:              o.ID,
		StoreID:         o.StoreID,
		CustomerID:      o.CustomerID,
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		PaymentFailed:   o.PaymentFailed,
		Currency:        o.Currency,
		Subtotal:        o.Subtotal,
		TaxTotal:        o.TaxTotal,
		ShippingTotal:   o.ShippingTotal,
		DiscountTotal:   o.DiscountTotal,
		GrandTotal:      o.GrandTotal,
		RefundedTotal:   o.RefundedTotal,
		ShippingAddress: o.ShippingAddress,
		CancelReason:    o.CancelReason,
		Metadata:        o.Metadata,
		Items:           items,
		ConfirmedAt:     o.ConfirmedAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Version:         o.Version,
	}
}
