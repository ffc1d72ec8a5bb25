package controllers

import (
	"net/http"
	"strconv"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

type OrderController struct {
	Orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{Orders: orders}
}

func parseOrderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		utils.RespondFailure(c, http.StatusBadRequest, "invalid order id", string(services.CodeInvalidInput), nil)
		return 0, false
	}
	return uint(id), true
}

// GetOrder -> one order with items and deliveries
func (oc *OrderController) GetOrder(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	order, err := oc.Orders.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

// ListOrders -> ?phone= or ?channel=&external_chat_id=, newest first
func (oc *OrderController) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	ctx := c.Request.Context()

	var (
		orders []models.Order
		err    error
	)
	switch {
	case c.Query("phone") != "":
		orders, err = oc.Orders.ListByCustomerPhone(ctx, c.Query("phone"), limit)
	case c.Query("channel") != "" && c.Query("external_chat_id") != "":
		orders, err = oc.Orders.ListByChat(ctx, c.Query("channel"), c.Query("external_chat_id"), limit)
	default:
		utils.RespondFailure(c, http.StatusBadRequest, "phone or channel with external_chat_id is required",
			string(services.CodeInvalidInput), nil)
		return
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

// AdvanceOrder -> operator moves a paid order along processing, delivering, completed
func (oc *OrderController) AdvanceOrder(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error(), string(services.CodeInvalidInput), nil)
		return
	}
	target, err := models.ParseOrderStatus(body.Status)
	if err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error(), string(services.CodeInvalidInput), nil)
		return
	}

	order, err := oc.Orders.Advance(c.Request.Context(), id, target)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order status updated", order)
}

// CancelOrder -> cancel and release stock; paid orders get a refund request
func (oc *OrderController) CancelOrder(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	order, err := oc.Orders.Cancel(c.Request.Context(), id, body.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order cancelled", order)
}

// MarkPaid -> manual confirmation for payments settled outside the gateways
func (oc *OrderController) MarkPaid(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	var body struct {
		ExternalRef string `json:"external_ref" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error(), string(services.CodeInvalidInput), nil)
		return
	}

	order, err := oc.Orders.MarkPaid(c.Request.Context(), id, body.ExternalRef)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order marked as paid", order)
}
