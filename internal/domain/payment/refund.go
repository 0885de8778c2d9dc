package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/shared"
)

// RefundStatus represents the status of a refund
type RefundStatus string

const (
	// RefundStatusPending means the refund was requested and awaits confirmation
	RefundStatusPending RefundStatus = "pending"
	// RefundStatusSucceeded means the processor confirmed the refund
	RefundStatusSucceeded RefundStatus = "succeeded"
	// RefundStatusFailed means the processor rejected the refund
	RefundStatusFailed RefundStatus = "failed"
	// RefundStatusCancelled means the refund was withdrawn before completion
	RefundStatusCancelled RefundStatus = "cancelled"
)

// IsValid checks if the status is a known refund status
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusPending, RefundStatusSucceeded, RefundStatusFailed, RefundStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if the refund is in a terminal state
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusSucceeded || s == RefundStatusFailed || s == RefundStatusCancelled
}

// CountsTowardTotal returns true if the refund still claims part of the payment amount
func (s RefundStatus) CountsTowardTotal() bool {
	return s == RefundStatusPending || s == RefundStatusSucceeded
}

// Refund is a full or partial return of a settled payment
type Refund struct {
	shared.BaseEntity

	PaymentID       string
	OrderID         uuid.UUID
	StoreID         uuid.UUID
	Amount          int64
	Currency        string
	Reason          string
	Status          RefundStatus
	GatewayRefundID string
	FailureReason   string
	CompletedAt     *time.Time
}

// RemainingRefundable returns how much of the payment is not yet claimed by
// pending or succeeded refunds
func RemainingRefundable(p *Payment, refunds []*Refund) int64 {
	claimed := int64(0)
	for _, r := range refunds {
		if r.PaymentID == p.ID && r.Status.CountsTowardTotal() {
			claimed += r.Amount
		}
	}
	if p.RefundedAmount > claimed {
		claimed = p.RefundedAmount
	}
	remaining := p.Amount - claimed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NewRefund reserves amount of a settled payment. An amount of zero refunds
// everything that remains.
func NewRefund(p *Payment, existing []*Refund, amount int64, reason string) (*Refund, error) {
	if !p.Status.IsSettled() || p.Status == StatusRefunded {
		return nil, shared.NewConflictError("payment %s is %s and cannot be refunded", p.ID, p.Status)
	}
	remaining := RemainingRefundable(p, existing)
	if amount == 0 {
		amount = remaining
	}
	if amount <= 0 {
		return nil, shared.NewValidationError("refund amount must be positive")
	}
	if amount > remaining {
		return nil, shared.NewValidationError("refund amount %d exceeds remaining refundable %d", amount, remaining)
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return nil, shared.NewValidationError("refund reason cannot exceed 500 characters")
	}

	return &Refund{
		BaseEntity: shared.NewBaseEntity(),
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		StoreID:    p.StoreID,
		Amount:     amount,
		Currency:   p.Currency,
		Reason:     reason,
		Status:     RefundStatusPending,
	}, nil
}

// NewExternalRefund records a refund first seen in a processor event, e.g. one
// issued from the processor's dashboard
func NewExternalRefund(p *Payment, gatewayRefundID string, amount int64, status RefundStatus) (*Refund, error) {
	if gatewayRefundID == "" {
		return nil, shared.NewValidationError("gateway refund ID cannot be empty")
	}
	if amount <= 0 {
		return nil, shared.NewValidationError("refund amount must be positive")
	}
	r := &Refund{
		BaseEntity:      shared.NewBaseEntity(),
		PaymentID:       p.ID,
		OrderID:         p.OrderID,
		StoreID:         p.StoreID,
		Amount:          amount,
		Currency:        p.Currency,
		Reason:          "external",
		Status:          RefundStatusPending,
		GatewayRefundID: gatewayRefundID,
	}
	if err := r.ApplyStatus(status, ""); err != nil {
		return nil, err
	}
	return r, nil
}

// AttachGatewayID stores the processor's refund identifier
func (r *Refund) AttachGatewayID(id string) {
	if id != "" {
		r.GatewayRefundID = id
		r.Touch()
	}
}

// ApplyStatus moves the refund to status. Terminal refunds ignore further
// reports, except that a reported success overrides a locally recorded failure.
func (r *Refund) ApplyStatus(status RefundStatus, failureReason string) error {
	if !status.IsValid() {
		return shared.NewValidationError("invalid refund status %q", status)
	}
	if r.Status == status {
		return nil
	}
	if r.Status.IsTerminal() && !(r.Status == RefundStatusFailed && status == RefundStatusSucceeded) {
		return nil
	}
	r.Status = status
	now := time.Now()
	r.UpdatedAt = now
	switch status {
	case RefundStatusSucceeded:
		r.CompletedAt = &now
		r.FailureReason = ""
	case RefundStatusFailed, RefundStatusCancelled:
		r.CompletedAt = &now
		r.FailureReason = failureReason
	}
	return nil
}
