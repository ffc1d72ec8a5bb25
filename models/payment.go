package models

import (
	"time"
)

const (
	LinkStatusPending = "pending"
	LinkStatusPaid    = "paid"
	LinkStatusFailed  = "failed"
)

// PaymentLink is one issued checkout link. IdempotencyKey is derived from the
// order reference and amount, so an unchanged order maps to the same row.
type PaymentLink struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	OrderID        uint      `json:"order_id" gorm:"not null;index"`
	Order          Order     `json:"-" gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Provider       string    `json:"provider" gorm:"type:varchar(30);not null"`
	Amount         int64     `json:"amount" gorm:"not null"`
	URL            string    `json:"url" gorm:"type:text;not null"`
	ExternalRef    string    `json:"external_ref" gorm:"type:varchar(100);not null;index"`
	IdempotencyKey string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Status         string    `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	Attempt        int       `json:"attempt" gorm:"not null;default:1"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
