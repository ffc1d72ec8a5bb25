package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

type PaymentController struct {
	Payments *services.PaymentService
	Monitor  *services.PaymentMonitor
}

func NewPaymentController(payments *services.PaymentService, monitor *services.PaymentMonitor) *PaymentController {
	return &PaymentController{Payments: payments, Monitor: monitor}
}

// RobokassaResult -> ResultURL callback, form encoded. Robokassa expects "OK<InvId>".
func (pc *PaymentController) RobokassaResult(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "bad request")
		return
	}
	fields := make(map[string]string, len(c.Request.Form))
	for key := range c.Request.Form {
		fields[key] = c.Request.Form.Get(key)
	}

	if _, _, err := pc.Payments.HandlePaymentCallback(c.Request.Context(), "robokassa", fields); err != nil {
		if de, ok := services.AsDomainError(err); ok {
			c.String(statusFor(de.Code), string(de.Code))
			return
		}
		utils.ErrorLogger.Errorf("robokassa callback: %v", err)
		c.String(http.StatusInternalServerError, "internal")
		return
	}
	c.String(http.StatusOK, "OK"+fields["InvId"])
}

// MidtransNotification -> HTTP notification in JSON
func (pc *PaymentController) MidtransNotification(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, "Failed to parse request body", string(services.CodeInvalidInput), nil)
		return
	}
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			fields[key] = v
		case float64:
			fields[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case nil:
		default:
			fields[key] = fmt.Sprint(v)
		}
	}

	order, outcome, err := pc.Payments.HandlePaymentCallback(c.Request.Context(), "midtrans", fields)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification processed", gin.H{
		"order_id":       order.ID,
		"outcome":        outcome,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
	})
}

// Metrics -> counters of the background status poller
func (pc *PaymentController) Metrics(c *gin.Context) {
	if pc.Monitor == nil {
		utils.RespondJSON(c, http.StatusOK, "Payment monitor disabled", nil)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment monitor metrics", pc.Monitor.GetMetrics())
}
