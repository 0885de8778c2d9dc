package handler

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/application/reconciliation"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// WebhookHandler receives signed deliveries from payment gateways, carriers
// and other integrations
type WebhookHandler struct {
	BaseHandler
	engine *reconciliation.Engine
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(engine *reconciliation.Engine) *WebhookHandler {
	return &WebhookHandler{engine: engine}
}

// Receive verifies and reconciles one delivery. The body is read raw because
// signatures cover the exact bytes sent. A 200 acknowledges the delivery,
// including ones that were ignored or rejected as permanently invalid; 409
// and 503 ask the sender to redeliver later.
// POST /webhooks/:source
func (h *WebhookHandler) Receive(c *gin.Context) {
	name := c.Param("source")
	src, ok := h.engine.Source(name)
	if !ok {
		h.HandleError(c, shared.NewNotFoundError("webhook source", name))
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeRequestTooLarge, "Failed to read webhook body")
		return
	}

	result, err := h.engine.Process(c.Request.Context(), name, payload, c.GetHeader(src.SignatureHeader()))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
