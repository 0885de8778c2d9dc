package event

import (
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
)

// RegisterAllEvents registers every event the ledger writes to the outbox
func RegisterAllEvents(s *EventSerializer) {
	for eventType, newEvent := range map[string]func() shared.DomainEvent{
		order.EventTypeOrderCreated:          func() shared.DomainEvent { return &order.OrderCreatedEvent{} },
		order.EventTypeOrderStatusChanged:    func() shared.DomainEvent { return &order.OrderStatusChangedEvent{} },
		order.EventTypeOrderPaymentSettled:   func() shared.DomainEvent { return &order.OrderPaymentSettledEvent{} },
		order.EventTypeOrderCancelled:        func() shared.DomainEvent { return &order.OrderCancelledEvent{} },
		order.EventTypeOrderRefunded:         func() shared.DomainEvent { return &order.OrderRefundedEvent{} },
		payment.EventTypePaymentStatusChanged: func() shared.DomainEvent { return &payment.PaymentStatusChangedEvent{} },
		payment.EventTypeRefundRequested:      func() shared.DomainEvent { return &payment.RefundRequestedEvent{} },
		payment.EventTypeRefundCompleted:      func() shared.DomainEvent { return &payment.RefundCompletedEvent{} },
	} {
		s.Register(eventType, newEvent)
	}
}
