package models

import (
	"time"

	"gorm.io/datatypes"
)

// KnowledgeChunk is append-only; re-embedding inserts a new row.
type KnowledgeChunk struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Content   string            `gorm:"type:text;not null" json:"content"`
	Metadata  datatypes.JSONMap `json:"metadata"`
	Embedding datatypes.JSON    `gorm:"not null" json:"-"`
	Dimension int               `gorm:"not null" json:"dimension"`
	CreatedAt time.Time         `gorm:"not null;index" json:"created_at"`
}
