package handler

import (
	"github.com/gin-gonic/gin"
	apporder "github.com/storefront/backend/internal/application/order"
	"github.com/storefront/backend/internal/domain/order"
)

// OrderHandler serves the order lifecycle endpoints
type OrderHandler struct {
	BaseHandler
	orders *apporder.Service
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orders *apporder.Service) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Create places an order priced from the catalog
// POST /orders
func (h *OrderHandler) Create(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var req apporder.CreateOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.orders.CreateOrder(c.Request.Context(), storeID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// List returns a page of the store's orders
// GET /orders
func (h *OrderHandler) List(c *gin.Context) {
	storeID, ok := h.storeID(c)
	if !ok {
		return
	}
	var filter apporder.ListOrdersFilter
	if !h.bindQuery(c, &filter) {
		return
	}
	orders, total, err := h.orders.ListOrders(c.Request.Context(), storeID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := filter.Page, filter.PageSize
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = 20
	}
	h.SuccessWithMeta(c, orders, total, page, pageSize)
}

// Get returns one order
// GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	storeID, orderID, ok := h.scopedUUID(c, "id")
	if !ok {
		return
	}
	resp, err := h.orders.GetOrder(c.Request.Context(), storeID, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Update applies a whitelisted admin update. Unknown fields are rejected.
// PATCH /orders/:id
func (h *OrderHandler) Update(c *gin.Context) {
	storeID, orderID, ok := h.scopedUUID(c, "id")
	if !ok {
		return
	}
	cmd, err := apporder.DecodeUpdateOrderCommand(c.Request.Body)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp, err := h.orders.UpdateOrder(c.Request.Context(), storeID, orderID, cmd, actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// TransitionStatus moves the order along a fulfillment edge
// POST /orders/:id/status
func (h *OrderHandler) TransitionStatus(c *gin.Context) {
	storeID, orderID, ok := h.scopedUUID(c, "id")
	if !ok {
		return
	}
	var req apporder.TransitionStatusRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.orders.TransitionStatus(c.Request.Context(), storeID, orderID,
		order.Status(req.Status), actor(c), req.Note)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Cancel cancels the order, refunding or voiding its payment
// POST /orders/:id/cancel
func (h *OrderHandler) Cancel(c *gin.Context) {
	storeID, orderID, ok := h.scopedUUID(c, "id")
	if !ok {
		return
	}
	var req apporder.CancelOrderRequest
	if !h.bindJSON(c, &req) {
		return
	}
	resp, err := h.orders.CancelOrder(c.Request.Context(), storeID, orderID, req.Reason, actor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
