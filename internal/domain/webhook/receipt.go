package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome records how an accepted delivery was handled
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeAlreadyApplied Outcome = "already_applied"
	OutcomeStale          Outcome = "stale"
	OutcomeIgnored        Outcome = "ignored"
	OutcomeRejected       Outcome = "rejected"
)

// Receipt is the audit row written for every acknowledged delivery
type Receipt struct {
	ID         uuid.UUID
	Source     string
	EventID    string
	EventType  string
	Outcome    Outcome
	PaymentID  string
	OrderID    uuid.UUID
	Detail     string
	ReceivedAt time.Time
}

// NewReceipt creates a receipt for evt
func NewReceipt(evt *Event, outcome Outcome) *Receipt {
	return &Receipt{
		ID:         uuid.New(),
		Source:     evt.Source,
		EventID:    evt.ID,
		EventType:  evt.Type,
		Outcome:    outcome,
		ReceivedAt: time.Now(),
	}
}

// ReceiptRepository persists webhook receipts
type ReceiptRepository interface {
	// Record inserts r; a receipt for the same source and event ID is kept as is
	Record(ctx context.Context, r *Receipt) error
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*Receipt, error)
	ListRecent(ctx context.Context, source string, limit int) ([]*Receipt, error)
}
