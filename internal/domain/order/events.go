package order

import (
	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// Event type constants for the order aggregate
const (
	EventTypeOrderCreated        = "OrderCreated"
	EventTypeOrderStatusChanged  = "OrderStatusChanged"
	EventTypeOrderPaymentSettled = "OrderPaymentSettled"
	EventTypeOrderCancelled      = "OrderCancelled"
	EventTypeOrderRefunded       = "OrderRefunded"
)

// EventItem is the line snapshot carried by order events
type EventItem struct {
	VariantID uuid.UUID `json:"variant_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
}

func eventItems(o *Order) []EventItem {
	items := make([]EventItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = EventItem{
			VariantID: item.VariantID,
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
	}
	return items
}

// OrderCreatedEvent is raised when an order is placed
type OrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderNumber string      `json:"order_number"`
	CustomerID  uuid.UUID   `json:"customer_id"`
	GrandTotal  int64       `json:"grand_total"`
	Currency    string      `json:"currency"`
	Items       []EventItem `json:"items"`
}

// NewOrderCreatedEvent creates a new OrderCreatedEvent
func NewOrderCreatedEvent(o *Order) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderCreated, AggregateTypeOrder, o.ID.String(), o.StoreID),
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		GrandTotal:      o.GrandTotal,
		Currency:        o.Currency,
		Items:           eventItems(o),
	}
}

// OrderStatusChangedEvent is raised on every status transition
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderNumber string `json:"order_number"`
	FromStatus  Status `json:"from_status"`
	ToStatus    Status `json:"to_status"`
	Actor       string `json:"actor"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent
func NewOrderStatusChangedEvent(o *Order, from Status, actor string) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderStatusChanged, AggregateTypeOrder, o.ID.String(), o.StoreID),
		OrderNumber:     o.OrderNumber,
		FromStatus:      from,
		ToStatus:        o.Status,
		Actor:           actor,
	}
}

// OrderPaymentSettledEvent is raised when a pending order is confirmed by payment
type OrderPaymentSettledEvent struct {
	shared.BaseDomainEvent
	OrderNumber string    `json:"order_number"`
	CustomerID  uuid.UUID `json:"customer_id"`
	GrandTotal  int64     `json:"grand_total"`
	Currency    string    `json:"currency"`
}

// NewOrderPaymentSettledEvent creates a new OrderPaymentSettledEvent
func NewOrderPaymentSettledEvent(o *Order) *OrderPaymentSettledEvent {
	return &OrderPaymentSettledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderPaymentSettled, AggregateTypeOrder, o.ID.String(), o.StoreID),
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		GrandTotal:      o.GrandTotal,
		Currency:        o.Currency,
	}
}

// OrderCancelledEvent is raised when an order is cancelled. Items are carried
// so stock can be released.
type OrderCancelledEvent struct {
	shared.BaseDomainEvent
	OrderNumber string      `json:"order_number"`
	CustomerID  uuid.UUID   `json:"customer_id"`
	Reason      string      `json:"reason"`
	Items       []EventItem `json:"items"`
}

// NewOrderCancelledEvent creates a new OrderCancelledEvent
func NewOrderCancelledEvent(o *Order) *OrderCancelledEvent {
	return &OrderCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderCancelled, AggregateTypeOrder, o.ID.String(), o.StoreID),
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		Reason:          o.CancelReason,
		Items:           eventItems(o),
	}
}

// OrderRefundedEvent is raised when refunded_total increases
type OrderRefundedEvent struct {
	shared.BaseDomainEvent
	OrderNumber   string    `json:"order_number"`
	CustomerID    uuid.UUID `json:"customer_id"`
	Amount        int64     `json:"amount"`
	RefundedTotal int64     `json:"refunded_total"`
	GrandTotal    int64     `json:"grand_total"`
	Currency      string    `json:"currency"`
	Status        Status    `json:"status"`
}

// NewOrderRefundedEvent creates a new OrderRefundedEvent
func NewOrderRefundedEvent(o *Order, amount int64) *OrderRefundedEvent {
	return &OrderRefundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderRefunded, AggregateTypeOrder, o.ID.String(), o.StoreID),
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		Amount:          amount,
		RefundedTotal:   o.RefundedTotal,
		GrandTotal:      o.GrandTotal,
		Currency:        o.Currency,
		Status:          o.Status,
	}
}
