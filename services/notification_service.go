package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotificationService keeps the operator inbox. As an EventSink it turns the
// outbox events that need manual follow-up into notifications.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) Name() string { return "notifications" }

func (s *NotificationService) Publish(ctx context.Context, event models.OrderEvent) error {
	title, message, ok := describeEvent(event)
	if !ok {
		return nil
	}
	orderID := event.OrderID
	n := models.Notification{
		OrderID:   &orderID,
		EventID:   event.ID,
		EventType: event.EventType,
		Title:     &title,
		Message:   message,
		CreatedAt: time.Now(),
	}
	// a redelivered event keeps its first notification
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&n).Error
	if err != nil {
		return fmt.Errorf("failed to store notification for event %d: %w", event.ID, err)
	}
	return nil
}

func describeEvent(event models.OrderEvent) (string, string, bool) {
	ref, _ := event.Payload["reference"].(string)
	switch event.EventType {
	case models.EventPaymentRefundRequested:
		return "Refund requested",
			fmt.Sprintf("Order %d (%s) was cancelled after payment; refund %v RUB at the provider.",
				event.OrderID, ref, event.Payload["final_amount"]), true
	case models.EventPaymentFailed:
		return "Payment failed",
			fmt.Sprintf("Payment for order %d (%s) failed.", event.OrderID, ref), true
	default:
		return "", "", false
	}
}

// List returns notifications newest first; unreadOnly hides acknowledged ones.
func (s *NotificationService) List(ctx context.Context, unreadOnly bool, limit int) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Order("created_at desc, id desc").Limit(clampLimit(limit))
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var out []models.Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Count(&count)
		if count == 0 {
			return notFound("notification", id)
		}
	}
	return nil
}
