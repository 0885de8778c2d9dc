package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
)

// OrderModel is the persistence model for the Order aggregate root
type OrderModel struct {
	StoreAggregateModel
	CustomerID      uuid.UUID                   `gorm:"type:uuid;not null;index"`
	OrderNumber     string                      `gorm:"type:varchar(40);not null;uniqueIndex"`
	Items           []OrderItemModel            `gorm:"foreignKey:OrderID;references:ID"`
	Subtotal        int64                       `gorm:"not null;default:0"`
	TaxTotal        int64                       `gorm:"not null;default:0"`
	ShippingTotal   int64                       `gorm:"not null;default:0"`
	DiscountTotal   int64                       `gorm:"not null;default:0"`
	GrandTotal      int64                       `gorm:"not null;default:0"`
	RefundedTotal   int64                       `gorm:"not null;default:0"`
	Currency        string                      `gorm:"type:varchar(3);not null"`
	Status          order.Status                `gorm:"type:varchar(32);not null;index"`
	PaymentStatus   payment.Status              `gorm:"type:varchar(32);not null"`
	PaymentFailed   bool                        `gorm:"not null;default:false"`
	ShippingAddress valueobject.ShippingAddress `gorm:"type:text;serializer:json"`
	CancelReason    string                      `gorm:"type:varchar(500)"`
	Metadata        map[string]string           `gorm:"type:text;serializer:json"`
	ConfirmedAt     *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *order.Order {
	o := &order.Order{
		StoreAggregateRoot: m.ToDomainStoreAggregateRoot(),
		CustomerID:         m.CustomerID,
		OrderNumber:        m.OrderNumber,
		Subtotal:           m.Subtotal,
		TaxTotal:           m.TaxTotal,
		ShippingTotal:      m.ShippingTotal,
		DiscountTotal:      m.DiscountTotal,
		GrandTotal:         m.GrandTotal,
		RefundedTotal:      m.RefundedTotal,
		Currency:           m.Currency,
		Status:             m.Status,
		PaymentStatus:      m.PaymentStatus,
		PaymentFailed:      m.PaymentFailed,
		ShippingAddress:    m.ShippingAddress,
		CancelReason:       m.CancelReason,
		Metadata:           m.Metadata,
		ConfirmedAt:        m.ConfirmedAt,
		ShippedAt:          m.ShippedAt,
		DeliveredAt:        m.DeliveredAt,
		CancelledAt:        m.CancelledAt,
		Items:              make([]*order.Item, len(m.Items)),
	}
	if o.Metadata == nil {
		o.Metadata = map[string]string{}
	}
	for i := range m.Items {
		o.Items[i] = m.Items[i].ToDomain()
	}
	return o
}

// FromDomain populates the persistence model from a domain Order
func (m *OrderModel) FromDomain(o *order.Order) {
	m.FromDomainStoreAggregateRoot(o.StoreAggregateRoot)
	m.CustomerID = o.CustomerID
	m.OrderNumber = o.OrderNumber
	m.Subtotal = o.Subtotal
	m.TaxTotal = o.TaxTotal
	m.ShippingTotal = o.ShippingTotal
	m.DiscountTotal = o.DiscountTotal
	m.GrandTotal = o.GrandTotal
	m.RefundedTotal = o.RefundedTotal
	m.Currency = o.Currency
	m.Status = o.Status
	m.PaymentStatus = o.PaymentStatus
	m.PaymentFailed = o.PaymentFailed
	m.ShippingAddress = o.ShippingAddress
	m.CancelReason = o.CancelReason
	m.Metadata = o.Metadata
	m.ConfirmedAt = o.ConfirmedAt
	m.ShippedAt = o.ShippedAt
	m.DeliveredAt = o.DeliveredAt
	m.CancelledAt = o.CancelledAt
	m.Items = make([]OrderItemModel, len(o.Items))
	for i, item := range o.Items {
		m.Items[i].FromDomain(o.ID, item)
		m.Items[i].Position = i
	}
}

// OrderModelFromDomain creates a new persistence model from a domain Order
func OrderModelFromDomain(o *order.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// OrderItemModel is the persistence model for an order line
type OrderItemModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Position  int       `gorm:"not null;default:0"`
	ProductID uuid.UUID `gorm:"type:uuid;not null"`
	VariantID uuid.UUID `gorm:"type:uuid;not null"`
	SKU       string    `gorm:"type:varchar(64)"`
	Name      string    `gorm:"type:varchar(200);not null"`
	Quantity  int       `gorm:"not null"`
	UnitPrice int64     `gorm:"not null"`
	Tax       int64     `gorm:"not null;default:0"`
	Discount  int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain Item
func (m *OrderItemModel) ToDomain() *order.Item {
	return &order.Item{
		ID:        m.ID,
		OrderID:   m.OrderID,
		ProductID: m.ProductID,
		VariantID: m.VariantID,
		SKU:       m.SKU,
		Name:      m.Name,
		Quantity:  m.Quantity,
		UnitPrice: m.UnitPrice,
		Tax:       m.Tax,
		Discount:  m.Discount,
	}
}

// FromDomain populates the persistence model from a domain Item
func (m *OrderItemModel) FromDomain(orderID uuid.UUID, item *order.Item) {
	m.ID = item.ID
	m.OrderID = orderID
	m.ProductID = item.ProductID
	m.VariantID = item.VariantID
	m.SKU = item.SKU
	m.Name = item.Name
	m.Quantity = item.Quantity
	m.UnitPrice = item.UnitPrice
	m.Tax = item.Tax
	m.Discount = item.Discount
}

// StatusNoteModel is the persistence model for the append-only order timeline
type StatusNoteModel struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey"`
	OrderID    uuid.UUID    `gorm:"type:uuid;not null;index:idx_status_notes_order,priority:1"`
	FromStatus order.Status `gorm:"type:varchar(32)"`
	ToStatus   order.Status `gorm:"type:varchar(32);not null"`
	Actor      string       `gorm:"type:varchar(120);not null"`
	Note       string       `gorm:"type:text"`
	CreatedAt  time.Time    `gorm:"not null;index:idx_status_notes_order,priority:2"`
}

// TableName returns the table name for GORM
func (StatusNoteModel) TableName() string {
	return "order_status_notes"
}

// ToDomain converts the persistence model to a domain StatusNote
func (m *StatusNoteModel) ToDomain() *order.StatusNote {
	return &order.StatusNote{
		ID:         m.ID,
		OrderID:    m.OrderID,
		FromStatus: m.FromStatus,
		ToStatus:   m.ToStatus,
		Actor:      m.Actor,
		Note:       m.Note,
		CreatedAt:  m.CreatedAt,
	}
}

// StatusNoteModelFromDomain creates a new persistence model from a domain StatusNote
func StatusNoteModelFromDomain(n *order.StatusNote) *StatusNoteModel {
	return &StatusNoteModel{
		ID:         n.ID,
		OrderID:    n.OrderID,
		FromStatus: n.FromStatus,
		ToStatus:   n.ToStatus,
		Actor:      n.Actor,
		Note:       n.Note,
		CreatedAt:  n.CreatedAt,
	}
}
