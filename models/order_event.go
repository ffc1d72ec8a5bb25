package models

import (
	"time"

	"gorm.io/datatypes"
)

// Event types written to the outbox.
const (
	EventOrderCreated           = "order.created"
	EventOrderPaid              = "order.paid"
	EventOrderStatusChanged     = "order.status_changed"
	EventOrderCancelled         = "order.cancelled"
	EventPaymentFailed          = "payment.failed"
	EventPaymentRefundRequested = "payment.refund_requested"
	EventDeliveryUpdated        = "delivery.updated"
)

// OrderEvent is an outbox row written in the same transaction as the change it
// describes; services.EventRelay publishes and marks it processed.
type OrderEvent struct {
	ID        uint              `gorm:"primaryKey"`
	EventType string            `gorm:"type:varchar(50);not null;index"`
	OrderID   uint              `gorm:"not null;index"`
	Payload   datatypes.JSONMap `gorm:"not null"`
	Processed bool              `gorm:"default:false;index:idx_processed"`
	CreatedAt time.Time         `gorm:"not null"`
}
