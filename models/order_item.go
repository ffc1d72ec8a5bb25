package models

// OrderItem is a price snapshot of one line; it is never updated after creation.
type OrderItem struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	OrderID      uint    `gorm:"not null;index" json:"order_id"`
	Order        Order   `gorm:"foreignKey:OrderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	ProductID    uint    `gorm:"not null" json:"product_id"`
	Product      Product `gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	SKU          string  `gorm:"type:varchar(20);not null" json:"sku"`
	QtyPacks     int     `gorm:"not null" json:"qty_packs"`
	PricePerPack int64   `gorm:"not null" json:"price_per_pack"`
	Subtotal     int64   `gorm:"not null" json:"subtotal"`
}
