package handler

import (
	"github.com/gin-gonic/gin"
	apppayment "github.com/storefront/backend/internal/application/payment"
)

// PaymentHandler serves payment intent and refund endpoints
type PaymentHandler struct {
	BaseHandler
	payments *apppayment.Service
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *apppayment.Service) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreateIntent starts payment of an order. Repeating the call while the
// intent is still open returns the same intent.
// POST /orders/:id/payment-intents
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	storeID, orderID, ok := h.scopedUUID(c, "id")
	if !ok {
		return
	}
	var req apppayment.CreateIntentRequest
	if c.Request.ContentLength != 0 && !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.payments.CreateIntent(c.Request.Context(), storeID, orderID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ListForOrder lists every payment attempt of an order
// GET /orders/:id/payments
func (h *PaymentHandler) ListForOrder(c *gin.Context) {
	storeID, orderID, ok := h.scopedUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.payments.ListPaymentsForOrder(c.Request.Context(), storeID, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Confirm confirms an intent with a payment method
// POST /payments/:id/confirm
func (h *PaymentHandler) Confirm(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var req apppayment.ConfirmIntentRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.payments.ConfirmIntent(c.Request.Context(), storeID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Get returns one payment
// GET /payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	resp, err := h.payments.GetPayment(c.Request.Context(), storeID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RequestRefund refunds part or all of a settled payment
// POST /payments/:id/refunds
func (h *PaymentHandler) RequestRefund(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var req apppayment.RefundRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.payments.RequestRefund(c.Request.Context(), storeID, c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ListRefunds lists the refunds of a payment
// GET /payments/:id/refunds
func (h *PaymentHandler) ListRefunds(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	resp, err := h.payments.ListRefunds(c.Request.Context(), storeID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
