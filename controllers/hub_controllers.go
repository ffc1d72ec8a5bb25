package controllers

import (
	"net/http"
	"strings"

	"github.com/aquadoks/sales-backend/hub"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type HubController struct {
	Hub *hub.Hub
}

func NewHubController(h *hub.Hub) *HubController {
	return &HubController{Hub: h}
}

// EventsHandler -> /ws/events?token=...&events=order.paid,order.cancelled
func (hc *HubController) EventsHandler(c *gin.Context) {
	roleValue, exists := c.Get("role")
	if !exists {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	role, _ := roleValue.(string)
	if role != utils.RoleAdmin && role != utils.RoleDelivery {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	var events []string
	if raw := c.Query("events"); raw != "" {
		for _, e := range strings.Split(raw, ",") {
			events = append(events, strings.TrimSpace(e))
		}
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Errorf("websocket upgrade: %v", err)
		return
	}
	hc.Hub.RegisterClient(ws, role, events)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
	hc.Hub.UnregisterClient(ws)
}
