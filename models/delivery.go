package models

import "time"

type Delivery struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrderID        uint      `gorm:"not null;uniqueIndex:ux_delivery_tracking,priority:1" json:"order_id"`
	Order          Order     `gorm:"foreignKey:OrderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Provider       string    `gorm:"type:varchar(50);not null;uniqueIndex:ux_delivery_tracking,priority:2" json:"provider"`
	TrackingNumber string    `gorm:"type:varchar(100);not null;uniqueIndex:ux_delivery_tracking,priority:3" json:"tracking_number"`
	Status         string    `gorm:"type:varchar(50);not null;default:'pending'" json:"status"`
	DeliveryCost   int64     `gorm:"not null;default:0" json:"delivery_cost"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}
