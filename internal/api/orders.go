package api

import (
	"net/http"

	"storefront-api/internal/models"
	"storefront-api/internal/service"

	"github.com/gin-gonic/gin"
)

// placeOrder handles order placement
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	order, err := h.orders.PlaceOrder(c.Request.Context(), principalFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, "Order created successfully", gin.H{"order": order})
}

func (h *Handler) listMyOrders(c *gin.Context) {
	var params pageParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "Invalid pagination parameters")
		return
	}

	list, err := h.lifecycle.ListMyOrders(c.Request.Context(), principalFrom(c), params.page())
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", list)
}

// orderListParams are the admin order list filters.
type orderListParams struct {
	pageParams
	UserID        string `form:"user_id"`
	OrderStatus   string `form:"order_status"`
	PaymentStatus string `form:"payment_status"`
	SortBy        string `form:"sort_by"`
	SortOrder     string `form:"sort_order"`
}

func (h *Handler) listOrders(c *gin.Context) {
	var params orderListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		badRequest(c, "Invalid query parameters")
		return
	}

	q := models.OrderQuery{
		Page:          params.page(),
		UserID:        params.UserID,
		OrderStatus:   models.OrderStatus(params.OrderStatus),
		PaymentStatus: models.PaymentStatus(params.PaymentStatus),
		SortBy:        models.OrderSort(params.SortBy),
		SortOrder:     models.SortDirection(params.SortOrder),
	}

	list, err := h.lifecycle.ListOrders(c.Request.Context(), principalFrom(c), q)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", list)
}

func (h *Handler) orderStats(c *gin.Context) {
	stats, err := h.lifecycle.Stats(c.Request.Context(), principalFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"stats": stats})
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.lifecycle.GetOrder(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"order": order})
}

func (h *Handler) orderHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	events, err := h.lifecycle.History(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", gin.H{"events": events})
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var update service.StatusUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	order, err := h.lifecycle.UpdateStatus(c.Request.Context(), principalFrom(c), id, update)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Order status updated successfully", gin.H{"order": order})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.lifecycle.CancelOrder(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "Order cancelled successfully", gin.H{"order": order})
}
