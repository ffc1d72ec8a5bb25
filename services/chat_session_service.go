package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChatSessionService keeps the conversation log the agent writes tool calls into.
type ChatSessionService struct {
	db *gorm.DB
}

func NewChatSessionService(db *gorm.DB) *ChatSessionService {
	return &ChatSessionService{db: db}
}

// Open returns the active session of a chat, starting one if there is none.
func (s *ChatSessionService) Open(ctx context.Context, channel, externalChatID string, customerID *uint) (*models.ChatSession, error) {
	if channel == "" || externalChatID == "" {
		return nil, invalidInput("channel and chat id are required")
	}

	var session models.ChatSession
	err := s.db.WithContext(ctx).
		Where("channel = ? AND external_chat_id = ? AND ended_at IS NULL", channel, externalChatID).
		Order("started_at desc").
		First(&session).Error
	if err == nil {
		if session.CustomerID == nil && customerID != nil {
			if err := s.db.WithContext(ctx).Model(&session).Update("customer_id", *customerID).Error; err != nil {
				return nil, fmt.Errorf("failed to attach customer to session %d: %w", session.ID, err)
			}
			session.CustomerID = customerID
		}
		return &session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}

	session = models.ChatSession{
		CustomerID:     customerID,
		Channel:        channel,
		ExternalChatID: externalChatID,
		StartedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("failed to start chat session: %w", err)
	}
	return &session, nil
}

// CloseChat ends the active session of a chat, if any.
func (s *ChatSessionService) CloseChat(ctx context.Context, channel, externalChatID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("channel = ? AND external_chat_id = ? AND ended_at IS NULL", channel, externalChatID).
		Update("ended_at", time.Now())
	if res.Error != nil {
		return false, fmt.Errorf("failed to close chat %s/%s: %w", channel, externalChatID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// LogToolCall records a tool invocation as an assistant message.
func (s *ChatSessionService) LogToolCall(ctx context.Context, sessionID uint, tool string, args map[string]interface{}) error {
	name := tool
	msg := models.ChatMessage{
		SessionID: sessionID,
		Role:      "tool",
		Content:   fmt.Sprintf("call %s", tool),
		ToolName:  &name,
		ToolArgs:  datatypes.JSONMap(args),
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return fmt.Errorf("failed to log tool call %s: %w", tool, err)
	}
	return nil
}

func (s *ChatSessionService) Messages(ctx context.Context, sessionID uint, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load messages of session %d: %w", sessionID, err)
	}
	return messages, nil
}
