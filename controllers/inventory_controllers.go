package controllers

import (
	"net/http"
	"time"

	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

type InventoryController struct {
	Inventory *services.InventoryService
}

func NewInventoryController(inventory *services.InventoryService) *InventoryController {
	return &InventoryController{Inventory: inventory}
}

// GetStock -> every product with stock, reserved and sellable packs
func (ic *InventoryController) GetStock(c *gin.Context) {
	levels, err := ic.Inventory.Snapshot(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	out := make([]gin.H, 0, len(levels))
	for _, l := range levels {
		out = append(out, gin.H{
			"sku":            l.SKU,
			"name":           l.Name,
			"stock_packs":    l.StockPacks,
			"reserved_packs": l.ReservedPacks,
			"sellable":       l.Sellable(),
		})
	}
	utils.RespondJSON(c, http.StatusOK, "Inventory snapshot", out)
}

// Restock -> POST /inventory/:sku/restock {packs}
func (ic *InventoryController) Restock(c *gin.Context) {
	var body struct {
		Packs int `json:"packs" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error(), string(services.CodeInvalidInput), nil)
		return
	}
	level, err := ic.Inventory.Restock(c.Request.Context(), c.Param("sku"), body.Packs)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Stock updated", level)
}

// StaleReservations -> reservations past their expiry that still hold stock
func (ic *InventoryController) StaleReservations(c *gin.Context) {
	stale, err := ic.Inventory.StaleReservations(c.Request.Context(), time.Now())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Stale reservations", stale)
}

// ReleaseReservation -> manual release of one reservation
func (ic *InventoryController) ReleaseReservation(c *gin.Context) {
	if err := ic.Inventory.Release(c.Request.Context(), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation released", gin.H{"id": c.Param("id")})
}
