package models

import "time"

// Product is a catalog entry. Prices are whole rubles per pack.
type Product struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SKU          string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"sku"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Volume       string    `gorm:"type:varchar(50);not null" json:"volume"`
	PackSize     int       `gorm:"not null" json:"pack_size"`
	PricePerPack int64     `gorm:"not null" json:"price_per_pack"`
	Description  string    `gorm:"type:text" json:"description"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}
