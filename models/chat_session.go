package models

import (
	"time"

	"gorm.io/datatypes"
)

type ChatSession struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CustomerID     *uint      `gorm:"index" json:"customer_id,omitempty"`
	Customer       *Customer  `gorm:"foreignKey:CustomerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	Channel        string     `gorm:"type:varchar(50);not null;index:idx_chat_channel_external,priority:1" json:"channel"`
	ExternalChatID string     `gorm:"type:varchar(100);not null;index:idx_chat_channel_external,priority:2" json:"external_chat_id"`
	StartedAt      time.Time  `gorm:"not null" json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

type ChatMessage struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	SessionID uint              `gorm:"not null;index" json:"session_id"`
	Session   ChatSession       `gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Role      string            `gorm:"type:varchar(20);not null" json:"role"`
	Content   string            `gorm:"type:text;not null" json:"content"`
	ToolName  *string           `gorm:"type:varchar(64)" json:"tool_name,omitempty"`
	ToolArgs  datatypes.JSONMap `json:"tool_args,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index" json:"created_at"`
}
