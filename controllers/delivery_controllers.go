package controllers

import (
	"net/http"

	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

type DeliveryController struct {
	Deliveries *services.DeliveryService
}

func NewDeliveryController(deliveries *services.DeliveryService) *DeliveryController {
	return &DeliveryController{Deliveries: deliveries}
}

// RecordUpdate -> courier or delivery integration reports a tracking status
func (dc *DeliveryController) RecordUpdate(c *gin.Context) {
	var body services.DeliveryUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error(), string(services.CodeInvalidInput), nil)
		return
	}
	delivery, err := dc.Deliveries.RecordDeliveryUpdate(c.Request.Context(), body)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Delivery updated", delivery)
}

// ListForOrder -> deliveries of one order
func (dc *DeliveryController) ListForOrder(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	deliveries, err := dc.Deliveries.ListForOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Deliveries", deliveries)
}
