package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeliveryUpdate struct {
	OrderID        uint   `json:"order_id" binding:"required"`
	Provider       string `json:"provider" binding:"required"`
	TrackingNumber string `json:"tracking_number" binding:"required"`
	Status         string `json:"status" binding:"required"`
	Cost           *int64 `json:"cost"`
}

// DeliveryService records provider tracking updates. It never changes the
// order status; an operator advances the order explicitly.
type DeliveryService struct {
	db *gorm.DB
}

func NewDeliveryService(db *gorm.DB) *DeliveryService {
	return &DeliveryService{db: db}
}

// RecordDeliveryUpdate upserts the delivery row keyed by
// (order, provider, tracking number) and returns the stored row.
func (s *DeliveryService) RecordDeliveryUpdate(ctx context.Context, in DeliveryUpdate) (*models.Delivery, error) {
	provider := strings.TrimSpace(in.Provider)
	tracking := strings.TrimSpace(in.TrackingNumber)
	status := strings.ToLower(strings.TrimSpace(in.Status))
	if provider == "" || tracking == "" || status == "" {
		return nil, invalidInput("provider, tracking number and status are required")
	}
	if in.Cost != nil && *in.Cost < 0 {
		return nil, invalidInput("delivery cost must not be negative")
	}

	var delivery models.Delivery
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := tx.Select("id", "reference", "status", "payment_status", "final_amount", "channel", "fulfillment_mode").
			First(&order, in.OrderID).Error; err != nil {
			return notFoundOr(err, "order", in.OrderID)
		}
		if order.FulfillmentMode != models.FulfillmentDirect {
			return &DomainError{
				Code:    CodeRoutingViolation,
				Message: fmt.Sprintf("order %d is not delivered directly", order.ID),
			}
		}

		now := time.Now()
		delivery = models.Delivery{
			OrderID:        in.OrderID,
			Provider:       provider,
			TrackingNumber: tracking,
			Status:         status,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		assign := []string{"status", "updated_at"}
		if in.Cost != nil {
			delivery.DeliveryCost = *in.Cost
			assign = append(assign, "delivery_cost")
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "provider"}, {Name: "tracking_number"}},
			DoUpdates: clause.AssignmentColumns(assign),
		}).Create(&delivery).Error
		if err != nil {
			return fmt.Errorf("failed to record delivery update: %w", err)
		}

		if err := tx.Where("order_id = ? AND provider = ? AND tracking_number = ?", in.OrderID, provider, tracking).
			First(&delivery).Error; err != nil {
			return notFoundOr(err, "delivery", tracking)
		}
		return recordEvent(tx, models.EventDeliveryUpdated, &order, map[string]interface{}{
			"provider":        provider,
			"tracking_number": tracking,
			"delivery_status": status,
		})
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id": in.OrderID,
		"provider": provider,
		"tracking": tracking,
		"status":   status,
	}).Info("delivery updated")
	return &delivery, nil
}

func (s *DeliveryService) ListForOrder(ctx context.Context, orderID uint) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at asc").Find(&deliveries).Error; err != nil {
		return nil, fmt.Errorf("failed to list deliveries of order %d: %w", orderID, err)
	}
	return deliveries, nil
}
