package controllers

import (
	"net/http"
	"strconv"

	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	Notifications *services.NotificationService
}

func NewNotificationController(notifications *services.NotificationService) *NotificationController {
	return &NotificationController{Notifications: notifications}
}

// GetAllNotifications -> ?unread=true&limit=
func (nc *NotificationController) GetAllNotifications(c *gin.Context) {
	unread := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.Query("limit"))
	notifs, err := nc.Notifications.List(c.Request.Context(), unread, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All notifications", notifs)
}

// MarkRead -> operator acknowledged the notification
func (nc *NotificationController) MarkRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("notif_id"), 10, 64)
	if err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, "invalid notification id", string(services.CodeInvalidInput), nil)
		return
	}
	if err := nc.Notifications.MarkRead(c.Request.Context(), uint(id)); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Notification read", gin.H{"id": id})
}
