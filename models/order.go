package models

import (
	"fmt"
	"time"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderTransitions is the full transition graph: the linear path plus cancellation.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusDelivering, OrderStatusCancelled},
	OrderStatusDelivering: {OrderStatusCompleted},
}

// ParseOrderStatus rejects anything outside the closed set of states.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusDelivering, OrderStatusCompleted, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// CanTransitionTo reports whether the graph has an edge s -> target.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Next returns the successor on the linear path, if any.
func (s OrderStatus) Next() (OrderStatus, bool) {
	for _, next := range orderTransitions[s] {
		if next != OrderStatusCancelled {
			return next, true
		}
	}
	return "", false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type PaymentStatus string

const (
	PaymentStatusPending         PaymentStatus = "pending"
	PaymentStatusPaid            PaymentStatus = "paid"
	PaymentStatusFailed          PaymentStatus = "failed"
	PaymentStatusRefundRequested PaymentStatus = "refund_requested"
)

type FulfillmentMode string

const (
	FulfillmentDirect      FulfillmentMode = "DIRECT"
	FulfillmentMarketplace FulfillmentMode = "MARKETPLACE"
)

type Order struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	Reference          string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"reference"`
	CustomerID         *uint           `gorm:"index" json:"customer_id"`
	Customer           *Customer       `gorm:"foreignKey:CustomerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"customer,omitempty"`
	ChatSessionID      *uint           `gorm:"index" json:"chat_session_id,omitempty"`
	Channel            string          `gorm:"type:varchar(50);not null" json:"channel"`
	Status             OrderStatus     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	City               string          `gorm:"type:varchar(100)" json:"city"`
	Address            string          `gorm:"type:text" json:"address"`
	FulfillmentMode    FulfillmentMode `gorm:"type:varchar(20);not null;default:'DIRECT'" json:"fulfillment_mode"`
	TotalAmount        int64           `gorm:"not null" json:"total_amount"`
	DiscountAmount     int64           `gorm:"not null;default:0" json:"discount_amount"`
	FinalAmount        int64           `gorm:"not null" json:"final_amount"`
	PaymentStatus      PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	PaymentLink        *string         `gorm:"type:text" json:"payment_link,omitempty"`
	ExternalPaymentRef *string         `gorm:"type:varchar(100);index" json:"external_payment_ref,omitempty"`
	CancelReason       string          `gorm:"type:varchar(255)" json:"cancel_reason,omitempty"`
	OrderItems         []OrderItem     `gorm:"foreignKey:OrderID" json:"order_items"`
	Deliveries         []Delivery      `gorm:"foreignKey:OrderID" json:"deliveries,omitempty"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
}

// PaymentDescription is shown on the provider checkout page.
func (o *Order) PaymentDescription() string {
	return fmt.Sprintf("AQUADOKS order #%d", o.ID)
}
