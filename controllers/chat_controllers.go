package controllers

import (
	"net/http"
	"strconv"

	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

type ChatController struct {
	Chats *services.ChatSessionService
}

func NewChatController(chats *services.ChatSessionService) *ChatController {
	return &ChatController{Chats: chats}
}

// CloseChat -> the messenger integration ends a conversation
func (cc *ChatController) CloseChat(c *gin.Context) {
	var body struct {
		Channel        string `json:"channel" binding:"required"`
		ExternalChatID string `json:"external_chat_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error(), string(services.CodeInvalidInput), nil)
		return
	}
	closed, err := cc.Chats.CloseChat(c.Request.Context(), body.Channel, body.ExternalChatID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Chat closed", gin.H{"closed": closed})
}

// Messages -> tool call log of one session
func (cc *ChatController) Messages(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, "invalid session id", string(services.CodeInvalidInput), nil)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	messages, err := cc.Chats.Messages(c.Request.Context(), uint(id), limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Chat messages", messages)
}
