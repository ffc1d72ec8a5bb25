package models

import "time"

// InventoryRecord holds the stock counters of one product.
// Only services.InventoryService writes StockPacks and ReservedPacks.
type InventoryRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ProductID     uint      `gorm:"uniqueIndex;not null" json:"product_id"`
	Product       Product   `gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	StockPacks    int       `gorm:"not null;default:0" json:"stock_packs"`
	ReservedPacks int       `gorm:"not null;default:0" json:"reserved_packs"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

func (InventoryRecord) TableName() string { return "inventory" }

// Sellable returns stock that is not held by any reservation.
func (r InventoryRecord) Sellable() int {
	return r.StockPacks - r.ReservedPacks
}

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationReleased  ReservationStatus = "released"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReturned  ReservationStatus = "returned"
)

// Reservation is a temporary hold on sellable stock for one order line.
type Reservation struct {
	ID         string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderRef   string            `gorm:"type:varchar(36);not null;index" json:"order_ref"`
	ProductID  uint              `gorm:"not null;index" json:"product_id"`
	SKU        string            `gorm:"type:varchar(20);not null" json:"sku"`
	QtyPacks   int               `gorm:"not null" json:"qty_packs"`
	Status     ReservationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ReservedAt time.Time         `gorm:"not null;index" json:"reserved_at"`
	ExpiresAt  time.Time         `gorm:"not null" json:"expires_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

func (Reservation) TableName() string { return "inventory_reservations" }
