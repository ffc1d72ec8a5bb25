package models

import (
	"time"
)

// Notification is an operator inbox entry for events that need a human,
// such as a refund request on a cancelled paid order.
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	OrderID   *uint      `gorm:"index" json:"order_id,omitempty"`
	Order     *Order     `gorm:"foreignKey:OrderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
	EventID   uint       `gorm:"uniqueIndex;not null" json:"event_id"`
	EventType string     `gorm:"type:varchar(50);not null" json:"event_type"`
	Title     *string    `gorm:"type:varchar(100)" json:"title,omitempty"`
	Message   string     `gorm:"type:text;not null" json:"message"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;index" json:"created_at"`
}
