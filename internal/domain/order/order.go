package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/storefront/backend/internal/domain/payment"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
)

// AggregateTypeOrder is the aggregate type recorded on order events
const AggregateTypeOrder = "Order"

// Status represents the fulfillment status of an order
type Status string

const (
	StatusPending           Status = "pending"
	StatusConfirmed         Status = "confirmed"
	StatusProcessing        Status = "processing"
	StatusShipped           Status = "shipped"
	StatusDelivered         Status = "delivered"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// AllStatuses lists every order status in lifecycle order
var AllStatuses = []Status{
	StatusPending, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered,
	StatusCancelled, StatusPartiallyRefunded, StatusRefunded,
}

var transitions = map[Status][]Status{
	StatusPending:           {StatusConfirmed, StatusCancelled},
	StatusConfirmed:         {StatusProcessing, StatusCancelled, StatusRefunded, StatusPartiallyRefunded},
	StatusProcessing:        {StatusShipped, StatusCancelled, StatusRefunded, StatusPartiallyRefunded},
	StatusShipped:           {StatusDelivered, StatusRefunded, StatusPartiallyRefunded},
	StatusDelivered:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusPartiallyRefunded, StatusRefunded},
}

// IsValid checks if the status is a known order status
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok || s == StatusCancelled || s == StatusRefunded
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for statuses that end the order's lifecycle.
// Delivered orders can still be refunded.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

// IsPostPayment returns true once the order has been paid for
func (s Status) IsPostPayment() bool {
	switch s {
	case StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered, StatusPartiallyRefunded:
		return true
	}
	return false
}

// IsCancellable returns true while the order can still be cancelled
func (s Status) IsCancellable() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusProcessing
}

// IsRefund returns true for the payment-driven refund statuses
func (s Status) IsRefund() bool {
	return s == StatusRefunded || s == StatusPartiallyRefunded
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Order is the aggregate root for a customer order
type Order struct {
	shared.StoreAggregateRoot

	CustomerID      uuid.UUID
	OrderNumber     string
	Items           []*Item
	Subtotal        int64
	TaxTotal        int64
	ShippingTotal   int64
	DiscountTotal   int64
	GrandTotal      int64
	RefundedTotal   int64
	Currency        string
	Status          Status
	PaymentStatus   payment.Status
	PaymentFailed   bool
	ShippingAddress valueobject.ShippingAddress
	CancelReason    string
	Metadata        map[string]string
	ConfirmedAt     *time.Time
	ShippedAt       *time.Time
	DeliveredAt     *time.Time
	CancelledAt     *time.Time

	pendingNotes []*StatusNote
}

// NewOrderNumber generates a human readable order number, e.g. ORD-20260115-01HQ7Z3K5M
func NewOrderNumber(now time.Time) string {
	id := ulid.Make().String()
	return "ORD-" + now.UTC().Format("20060102") + "-" + id[len(id)-10:]
}

// NewOrder creates a pending order. Totals are computed here once and never
// recomputed afterwards.
func NewOrder(storeID, customerID uuid.UUID, orderNumber, currency string, items []*Item, shippingTotal int64, address valueobject.ShippingAddress, metadata map[string]string) (*Order, error) {
	if storeID == uuid.Nil {
		return nil, shared.NewValidationError("store ID cannot be empty")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("customer ID cannot be empty")
	}
	if strings.TrimSpace(orderNumber) == "" {
		return nil, shared.NewValidationError("order number cannot be empty")
	}
	if len(items) == 0 {
		return nil, shared.NewValidationError("order must contain at least one item")
	}
	if shippingTotal < 0 {
		return nil, shared.NewValidationError("shipping total cannot be negative")
	}
	cur, err := valueobject.NormalizeCurrency(currency)
	if err != nil {
		return nil, shared.NewValidationError("%v", err)
	}

	o := &Order{
		StoreAggregateRoot: shared.NewStoreAggregateRoot(storeID),
		CustomerID:         customerID,
		OrderNumber:        orderNumber,
		Currency:           cur,
		Status:             StatusPending,
		PaymentStatus:      payment.StatusPending,
		ShippingAddress:    address,
		ShippingTotal:      shippingTotal,
		Metadata:           make(map[string]string),
	}
	seen := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		if seen[item.VariantID] {
			return nil, shared.NewValidationError("variant %s appears more than once", item.VariantID)
		}
		seen[item.VariantID] = true
		item.OrderID = o.ID
		o.Subtotal += item.Subtotal()
		o.TaxTotal += item.Tax
		o.DiscountTotal += item.Discount
	}
	o.Items = items
	o.GrandTotal = o.Subtotal + o.TaxTotal + o.ShippingTotal - o.DiscountTotal
	if o.GrandTotal <= 0 {
		return nil, shared.NewValidationError("order total must be positive")
	}
	for k, v := range metadata {
		o.Metadata[k] = v
	}

	o.appendNote("", StatusPending, "system", "order placed")
	o.AddDomainEvent(NewOrderCreatedEvent(o))
	return o, nil
}

// CheckTotals verifies grand_total = subtotal + tax + shipping - discount and
// that the line items add up
func (o *Order) CheckTotals() error {
	var subtotal, tax, discount int64
	for _, item := range o.Items {
		subtotal += item.Subtotal()
		tax += item.Tax
		discount += item.Discount
	}
	if subtotal != o.Subtotal || tax != o.TaxTotal || discount != o.DiscountTotal {
		return shared.NewConflictError("order %s line items do not match totals", o.OrderNumber)
	}
	if o.GrandTotal != o.Subtotal+o.TaxTotal+o.ShippingTotal-o.DiscountTotal {
		return shared.NewConflictError("order %s grand total is inconsistent", o.OrderNumber)
	}
	if o.RefundedTotal < 0 || o.RefundedTotal > o.GrandTotal {
		return shared.NewConflictError("order %s refunded total out of range", o.OrderNumber)
	}
	return nil
}

// TransitionTo moves the order along a fulfillment edge and records a timeline note.
// Refund statuses are payment-driven and go through ApplyPaymentResult.
func (o *Order) TransitionTo(target Status, actor, note string) error {
	if !target.IsValid() {
		return shared.NewValidationError("invalid order status %q", target)
	}
	if o.Status.IsTerminal() && o.Status != target {
		return shared.NewInvalidTransitionError("order", o.Status, target)
	}
	if target.IsRefund() {
		return shared.NewValidationError("refund statuses are set by payment reconciliation")
	}
	if target == StatusCancelled {
		return o.Cancel(note, actor)
	}
	if !o.Status.CanTransitionTo(target) {
		return shared.NewInvalidTransitionError("order", o.Status, target)
	}
	if target == StatusConfirmed && o.PaymentStatus != payment.StatusSucceeded {
		return shared.NewConflictError("order %s has no settled payment", o.OrderNumber)
	}
	o.moveTo(target, actor, note)
	return nil
}

// Cancel cancels the order. Orders with a settled payment must be refunded instead.
func (o *Order) Cancel(reason, actor string) error {
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return shared.NewInvalidTransitionError("order", o.Status, StatusCancelled)
	}
	if o.PaymentStatus.IsSettled() {
		return shared.NewConflictError("order %s has a settled payment and must be refunded", o.OrderNumber)
	}
	o.CancelReason = strings.TrimSpace(reason)
	if o.PaymentStatus.IsOpen() {
		o.PaymentStatus = payment.StatusCancelled
	}
	o.moveTo(StatusCancelled, actor, reason)
	o.AddDomainEvent(NewOrderCancelledEvent(o))
	return nil
}

// ApplyPaymentResult folds a payment status change into the order. It reports
// whether the order changed. refundedTotal is the cumulative refunded amount and
// is only read for refund statuses.
func (o *Order) ApplyPaymentResult(status payment.Status, refundedTotal int64, actor string) (bool, error) {
	switch status {
	case payment.StatusSucceeded:
		if o.Status == StatusCancelled {
			return false, shared.NewConflictError("order %s is cancelled and cannot accept payment", o.OrderNumber)
		}
		if o.Status != StatusPending {
			return false, nil
		}
		o.PaymentStatus = payment.StatusSucceeded
		o.PaymentFailed = false
		o.moveTo(StatusConfirmed, actor, "payment succeeded")
		o.AddDomainEvent(NewOrderPaymentSettledEvent(o))
		return true, nil

	case payment.StatusFailed:
		if o.Status != StatusPending || o.PaymentStatus == payment.StatusFailed {
			return false, nil
		}
		o.PaymentStatus = payment.StatusFailed
		o.PaymentFailed = true
		o.appendNote(o.Status, o.Status, actor, "payment failed")
		o.Touch()
		return true, nil

	case payment.StatusProcessing, payment.StatusPending:
		if o.Status != StatusPending || o.PaymentStatus == status {
			return false, nil
		}
		o.PaymentStatus = status
		o.Touch()
		return true, nil

	case payment.StatusCancelled:
		if o.Status != StatusPending || !o.PaymentStatus.IsOpen() {
			return false, nil
		}
		o.PaymentStatus = payment.StatusCancelled
		o.Touch()
		return true, nil

	case payment.StatusRefunded, payment.StatusPartiallyRefunded:
		return o.applyRefund(status, refundedTotal, actor)
	}
	return false, shared.NewValidationError("invalid payment status %q", status)
}

func (o *Order) applyRefund(status payment.Status, refundedTotal int64, actor string) (bool, error) {
	if refundedTotal <= o.RefundedTotal {
		return false, nil
	}
	if refundedTotal > o.GrandTotal {
		return false, shared.NewValidationError("refunded total %d exceeds order total %d", refundedTotal, o.GrandTotal)
	}
	target := StatusPartiallyRefunded
	if status == payment.StatusRefunded {
		target = StatusRefunded
	}
	if !o.Status.CanTransitionTo(target) {
		return false, shared.NewInvalidTransitionError("order", o.Status, target)
	}
	previous := o.RefundedTotal
	o.RefundedTotal = refundedTotal
	o.PaymentStatus = status
	o.moveTo(target, actor, "refunded "+valueobject.FormatMinor(refundedTotal-previous, o.Currency))
	o.AddDomainEvent(NewOrderRefundedEvent(o, refundedTotal-previous))
	return true, nil
}

// AddNote appends a free-form timeline note without changing status
func (o *Order) AddNote(actor, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return shared.NewValidationError("note cannot be empty")
	}
	if len(note) > 2000 {
		return shared.NewValidationError("note cannot exceed 2000 characters")
	}
	o.appendNote(o.Status, o.Status, actor, note)
	o.Touch()
	return nil
}

// ChangeShippingAddress replaces the address while the order is still pending
func (o *Order) ChangeShippingAddress(address valueobject.ShippingAddress) error {
	if o.Status != StatusPending {
		return shared.NewConflictError("shipping address can only change while the order is pending")
	}
	o.ShippingAddress = address
	o.Touch()
	return nil
}

// MergeMetadata sets metadata keys; empty values delete the key
func (o *Order) MergeMetadata(md map[string]string) {
	if o.Metadata == nil {
		o.Metadata = make(map[string]string, len(md))
	}
	for k, v := range md {
		if v == "" {
			delete(o.Metadata, k)
			continue
		}
		o.Metadata[k] = v
	}
	o.Touch()
}

// PendingNotes returns timeline notes not yet persisted
func (o *Order) PendingNotes() []*StatusNote {
	return o.pendingNotes
}

// ClearPendingNotes is called by the repository after persisting notes
func (o *Order) ClearPendingNotes() {
	o.pendingNotes = nil
}

func (o *Order) moveTo(target Status, actor, note string) {
	from := o.Status
	now := time.Now()
	o.Status = target
	o.UpdatedAt = now
	switch target {
	case StatusConfirmed:
		o.ConfirmedAt = &now
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	}
	o.appendNote(from, target, actor, note)
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, from, actor))
}

func (o *Order) appendNote(from, to Status, actor, note string) {
	if actor == "" {
		actor = "system"
	}
	o.pendingNotes = append(o.pendingNotes, &StatusNote{
		ID:         uuid.New(),
		OrderID:    o.ID,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       strings.TrimSpace(note),
		CreatedAt:  time.Now(),
	})
}
