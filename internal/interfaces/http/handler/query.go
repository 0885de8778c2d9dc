package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/application/query"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// QueryHandler serves read-only order projections
type QueryHandler struct {
	BaseHandler
	queries *query.Service
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(queries *query.Service) *QueryHandler {
	return &QueryHandler{queries: queries}
}

// exportQuery filters an export. Dates are inclusive calendar days in UTC.
type exportQuery struct {
	Status string    `form:"status"`
	From   time.Time `form:"from" time_format:"2006-01-02"`
	To     time.Time `form:"to" time_format:"2006-01-02"`
}

// Timeline returns the merged status, payment and refund history of an order
// GET /orders/:id/timeline
func (h *QueryHandler) Timeline(c *gin.Context) {
	storeID, orderID, ok := h.scopedUUID(c, "id")
	if !ok {
		return
	}
	entries, err := h.queries.Timeline(c.Request.Context(), storeID, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}

// Analytics summarises orders and revenue. The to date is inclusive.
// GET /orders/analytics?from=2026-01-01&to=2026-01-31
func (h *QueryHandler) Analytics(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var req query.AnalyticsRequest
	if !h.bindQuery(c, &req) {
		return
	}
	to := req.To
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	resp, err := h.queries.Analytics(c.Request.Context(), storeID, req.From, to)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Export streams matching orders as CSV
// GET /orders/export?status=paid&from=2026-01-01&to=2026-01-31
func (h *QueryHandler) Export(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var req exportQuery
	if !h.bindQuery(c, &req) {
		return
	}
	filter := query.ExportFilter{Status: order.Status(req.Status)}
	if !req.From.IsZero() {
		from := req.From
		filter.From = &from
	}
	if !req.To.IsZero() {
		to := req.To.AddDate(0, 0, 1)
		filter.To = &to
	}

	filename := fmt.Sprintf("orders-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	rows, err := h.queries.ExportCSV(c.Request.Context(), storeID, filter, c.Writer)
	if err != nil {
		if !c.Writer.Written() {
			c.Writer.Header().Del("Content-Disposition")
			h.HandleError(c, err)
			return
		}
		// Headers are gone; the truncated body is all the client gets.
		logger.GetGinLogger(c).Error("Export aborted mid-stream",
			zap.Int("rows", rows), zap.Error(err))
		return
	}
	if !c.Writer.Written() {
		c.Status(http.StatusOK)
	}
}
