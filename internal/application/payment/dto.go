package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/payment"
)

// CreateIntentRequest represents a request to start paying for an order
type CreateIntentRequest struct {
	CustomerRef string `json:"customer_ref" binding:"max=200"`
}

// ConfirmIntentRequest represents a request to confirm an intent with a payment method
type ConfirmIntentRequest struct {
	PaymentMethod string `json:"payment_method" binding:"required,max=200"`
}

// RefundRequest represents a request to refund a payment. A nil amount refunds
// the remaining refundable balance.
type RefundRequest struct {
	Amount *int64 `json:"amount" binding:"omitempty,min=1"`
	Reason string `json:"reason" binding:"max=500"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID             string    `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	StoreID        uuid.UUID `json:"store_id"`
	Amount         int64     `json:"amount"`
	RefundedAmount int64     `json:"refunded_amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	ClientSecret   string    `json:"client_secret,omitempty"`
	FailureCode    string    `json:"failure_code,omitempty"`
	FailureMessage string    `json:"failure_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RefundResponse represents a refund in API responses
type RefundResponse struct {
	ID              uuid.UUID  `json:"id"`
	PaymentID       string     `json:"payment_id"`
	OrderID         uuid.UUID  `json:"order_id"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	Reason          string     `json:"reason,omitempty"`
	Status          string     `json:"status"`
	GatewayRefundID string     `json:"gateway_refund_id,omitempty"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ToPaymentResponse converts a payment to its response DTO. The client secret
// is only included when withSecret is set.
func ToPaymentResponse(p *payment.Payment, withSecret bool) PaymentResponse {
	resp := PaymentResponse{
		ID:             p.ID,
		OrderID:        p.OrderID,
		StoreID:        p.StoreID,
		Amount:         p.Amount,
		RefundedAmount: p.RefundedAmount,
		Currency:       p.Currency,
		Status:         string(p.Status),
		FailureCode:    p.FailureCode,
		FailureMessage: p.FailureMessage,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	if withSecret {
		resp.ClientSecret = p.ClientSecret
	}
	return resp
}

// ToRefundResponse converts a refund to its response DTO
func ToRefundResponse(r *payment.Refund) RefundResponse {
	return RefundResponse{
		ID:              r.ID,
		PaymentID:       r.PaymentID,
		OrderID:         r.OrderID,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Reason:          r.Reason,
		Status:          string(r.Status),
		GatewayRefundID: r.GatewayRefundID,
		FailureReason:   r.FailureReason,
		CompletedAt:     r.CompletedAt,
		CreatedAt:       r.CreatedAt,
	}
}
