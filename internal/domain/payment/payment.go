package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
)

// AggregateTypePayment is the aggregate type recorded on payment events
const AggregateTypePayment = "Payment"

// Status represents the lifecycle of a payment attempt
type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusSucceeded         Status = "succeeded"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// IsValid checks if the status is a known payment status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSucceeded, StatusFailed,
		StatusCancelled, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsSettled returns true once money has been captured, including after refunds
func (s Status) IsSettled() bool {
	return s == StatusSucceeded || s == StatusPartiallyRefunded || s == StatusRefunded
}

// IsOpen returns true while the intent can still be paid or cancelled
func (s Status) IsOpen() bool {
	return s == StatusPending || s == StatusProcessing || s == StatusFailed
}

// IsTerminal returns true if no further transition is possible
func (s Status) IsTerminal() bool {
	return s == StatusRefunded || s == StatusCancelled
}

// rank orders statuses along the lifecycle. An event reporting a lower rank than
// the stored status arrived out of order and is stale.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing, StatusFailed:
		return 1
	case StatusSucceeded, StatusCancelled:
		return 2
	case StatusPartiallyRefunded:
		return 3
	case StatusRefunded:
		return 4
	}
	return -1
}

var transitions = map[Status][]Status{
	StatusPending:           {StatusProcessing, StatusSucceeded, StatusFailed, StatusCancelled},
	StatusProcessing:        {StatusSucceeded, StatusFailed, StatusCancelled},
	StatusFailed:            {StatusProcessing, StatusSucceeded, StatusCancelled},
	StatusSucceeded:         {StatusPartiallyRefunded, StatusRefunded},
	StatusPartiallyRefunded: {StatusRefunded},
}

// CanTransitionTo reports whether target is a legal next status
func (s Status) CanTransitionTo(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Outcome describes what applying a reported status did to the payment
type Outcome string

const (
	// OutcomeApplied means the payment changed
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyApplied means the payment was already in the reported state
	OutcomeAlreadyApplied Outcome = "already_applied"
	// OutcomeStale means the report is older than the stored state
	OutcomeStale Outcome = "stale"
)

// Changed returns true if the outcome mutated state
func (o Outcome) Changed() bool {
	return o == OutcomeApplied
}

// Payment is a single payment attempt for an order. Its identity is the
// gateway's payment-intent ID, which makes creation an idempotent upsert.
type Payment struct {
	shared.Versioned
	shared.EventRecorder

	ID              string
	OrderID         uuid.UUID
	StoreID         uuid.UUID
	Amount          int64
	Currency        string
	Status          Status
	RefundedAmount  int64
	ClientSecret    string
	GatewayMetadata map[string]string
	FailureCode     string
	FailureMessage  string
	// Shadow is set when a webhook created the row before the synchronous
	// create call recorded it
	Shadow    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewPayment records a payment intent returned by the gateway
func NewPayment(intentID string, orderID, storeID uuid.UUID, amount int64, currency string, status Status) (*Payment, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, shared.NewValidationError("payment intent ID cannot be empty")
	}
	if amount <= 0 {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	cur, err := valueobject.NormalizeCurrency(currency)
	if err != nil {
		return nil, shared.NewValidationError("%v", err)
	}
	if status == "" {
		status = StatusPending
	}
	if !status.IsValid() {
		return nil, shared.NewValidationError("invalid payment status %q", status)
	}

	now := time.Now()
	return &Payment{
		Versioned:       shared.Versioned{Version: 1},
		ID:              intentID,
		OrderID:         orderID,
		StoreID:         storeID,
		Amount:          amount,
		Currency:        cur,
		Status:          status,
		GatewayMetadata: make(map[string]string),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NewShadowPayment creates a pending placeholder for an intent first seen in a webhook
func NewShadowPayment(intentID string, orderID, storeID uuid.UUID, amount int64, currency string) (*Payment, error) {
	p, err := NewPayment(intentID, orderID, storeID, amount, currency, StatusPending)
	if err != nil {
		return nil, err
	}
	p.Shadow = true
	return p, nil
}

// Adopt reconciles a stored row (possibly a shadow) with the synchronous create
// result for the same intent. The amount must agree because it is immutable.
func (p *Payment) Adopt(orderID, storeID uuid.UUID, amount int64, clientSecret string) error {
	if p.Amount != amount {
		return shared.NewConflictError("payment %s amount %d does not match intent amount %d", p.ID, p.Amount, amount)
	}
	if p.OrderID != uuid.Nil && p.OrderID != orderID {
		return shared.NewConflictError("payment %s belongs to order %s", p.ID, p.OrderID)
	}
	p.OrderID = orderID
	p.StoreID = storeID
	if clientSecret != "" {
		p.ClientSecret = clientSecret
	}
	p.Shadow = false
	p.UpdatedAt = time.Now()
	return nil
}

// Transition applies a status reported by the gateway. Duplicate and stale
// reports are reported through Outcome without error.
func (p *Payment) Transition(target Status) (Outcome, error) {
	if !target.IsValid() {
		return "", shared.NewValidationError("invalid payment status %q", target)
	}
	if target == StatusRefunded || target == StatusPartiallyRefunded {
		return "", shared.NewValidationError("refund statuses are applied through ApplyRefundTotal")
	}
	if p.Status == target {
		return OutcomeAlreadyApplied, nil
	}
	if p.Status.CanTransitionTo(target) {
		from := p.Status
		p.Status = target
		if target != StatusFailed {
			p.FailureCode = ""
			p.FailureMessage = ""
		}
		p.UpdatedAt = time.Now()
		p.AddDomainEvent(NewPaymentStatusChangedEvent(p, from))
		return OutcomeApplied, nil
	}
	if target.rank() < p.Status.rank() {
		return OutcomeStale, nil
	}
	return "", shared.NewInvalidTransitionError("payment", p.Status, target)
}

// MarkFailed records a failed attempt with the processor's reason
func (p *Payment) MarkFailed(code, message string) (Outcome, error) {
	outcome, err := p.Transition(StatusFailed)
	if err != nil {
		return outcome, err
	}
	if outcome.Changed() {
		p.FailureCode = code
		p.FailureMessage = message
	}
	return outcome, nil
}

// ApplyRefundTotal applies the processor's cumulative refunded amount
func (p *Payment) ApplyRefundTotal(cumulative int64) (Outcome, error) {
	if cumulative <= 0 {
		return "", shared.NewValidationError("refunded amount must be positive")
	}
	if cumulative > p.Amount {
		return "", shared.NewValidationError("refunded amount %d exceeds payment amount %d", cumulative, p.Amount)
	}
	if !p.Status.IsSettled() {
		return "", shared.NewInvalidTransitionError("payment", p.Status, StatusRefunded)
	}
	if cumulative == p.RefundedAmount {
		return OutcomeAlreadyApplied, nil
	}
	if cumulative < p.RefundedAmount {
		return OutcomeStale, nil
	}

	from := p.Status
	p.RefundedAmount = cumulative
	if cumulative == p.Amount {
		p.Status = StatusRefunded
	} else {
		p.Status = StatusPartiallyRefunded
	}
	p.UpdatedAt = time.Now()
	p.AddDomainEvent(NewPaymentStatusChangedEvent(p, from))
	return OutcomeApplied, nil
}

// MergeMetadata copies gateway metadata onto the payment
func (p *Payment) MergeMetadata(md map[string]string) {
	if len(md) == 0 {
		return
	}
	if p.GatewayMetadata == nil {
		p.GatewayMetadata = make(map[string]string, len(md))
	}
	for k, v := range md {
		p.GatewayMetadata[k] = v
	}
}
