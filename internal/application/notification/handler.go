package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// Message kinds sent to customers
const (
	KindOrderConfirmation = "order_confirmation"
	KindOrderCancelled    = "order_cancelled"
	KindRefundNotice      = "refund_notice"
	KindRefundFailed      = "refund_failed"
)

// Message is a customer notification
type Message struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	StoreID     uuid.UUID `json:"store_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number,omitempty"`
	CustomerID  uuid.UUID `json:"customer_id,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Subject     string    `json:"subject"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Dispatcher delivers customer notifications
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Handler turns order and refund events into notifications. Dispatch is
// fire-and-forget: failures are logged and never fail the event.
type Handler struct {
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(dispatcher Dispatcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{dispatcher: dispatcher, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *Handler) EventTypes() []string {
	return []string{
		order.EventTypeOrderPaymentSettled,
		order.EventTypeOrderCancelled,
		order.EventTypeOrderRefunded,
		payment.EventTypeRefundCompleted,
	}
}

// Handle builds and dispatches the notification for event
func (h *Handler) Handle(ctx context.Context, event shared.DomainEvent) error {
	msg, ok := h.messageFor(event)
	if !ok {
		return nil
	}
	if err := h.dispatcher.Dispatch(ctx, msg); err != nil {
		h.logger.Warn("Failed to dispatch notification",
			zap.String("kind", msg.Kind),
			zap.String("order_id", msg.OrderID),
			zap.Error(err))
		return nil
	}
	h.logger.Debug("Notification dispatched",
		zap.String("kind", msg.Kind),
		zap.String("order_id", msg.OrderID))
	return nil
}

func (h *Handler) messageFor(event shared.DomainEvent) (Message, bool) {
	msg := Message{
		ID:         event.EventID(),
		StoreID:    event.StoreID(),
		OrderID:    event.AggregateID(),
		OccurredAt: event.OccurredAt(),
	}

	switch e := event.(type) {
	case *order.OrderPaymentSettledEvent:
		msg.Kind = KindOrderConfirmation
		msg.OrderNumber = e.OrderNumber
		msg.CustomerID = e.CustomerID
		msg.Amount = e.GrandTotal
		msg.Currency = e.Currency
		msg.Subject = fmt.Sprintf("Order %s confirmed", e.OrderNumber)
	case *order.OrderCancelledEvent:
		msg.Kind = KindOrderCancelled
		msg.OrderNumber = e.OrderNumber
		msg.CustomerID = e.CustomerID
		msg.Subject = fmt.Sprintf("Order %s cancelled", e.OrderNumber)
	case *order.OrderRefundedEvent:
		msg.Kind = KindRefundNotice
		msg.OrderNumber = e.OrderNumber
		msg.CustomerID = e.CustomerID
		msg.Amount = e.Amount
		msg.Currency = e.Currency
		msg.Subject = fmt.Sprintf("Refund of %s for order %s", valueobject.FormatMinor(e.Amount, e.Currency), e.OrderNumber)
	case *payment.RefundCompletedEvent:
		// Successful refunds are announced through OrderRefunded
		if e.Status != payment.RefundStatusFailed {
			return Message{}, false
		}
		msg.Kind = KindRefundFailed
		msg.OrderID = e.OrderID.String()
		msg.Amount = e.Amount
		msg.Currency = e.Currency
		msg.Subject = fmt.Sprintf("Refund of %s could not be completed", valueobject.FormatMinor(e.Amount, e.Currency))
	default:
		h.logger.Warn("Unexpected event type for notification handler",
			zap.String("event_type", event.EventType()))
		return Message{}, false
	}
	return msg, true
}
