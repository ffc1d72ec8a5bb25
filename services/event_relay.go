package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventSink receives outbox events.
type EventSink interface {
	Name() string
	Publish(ctx context.Context, event models.OrderEvent) error
}

// EventRelay drains the order_events outbox. An event is marked processed
// once every sink accepted it, so delivery is at-least-once.
type EventRelay struct {
	DB        *gorm.DB
	Sinks     []EventSink
	Interval  time.Duration
	BatchSize int
	stopChan  chan struct{}
	stopOnce  sync.Once
}

func NewEventRelay(db *gorm.DB, sinks ...EventSink) *EventRelay {
	return &EventRelay{
		DB:        db,
		Sinks:     sinks,
		Interval:  1 * time.Second,
		BatchSize: 100,
		stopChan:  make(chan struct{}),
	}
}

func (r *EventRelay) Start() {
	go func() {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := r.Flush(context.Background()); err != nil {
					utils.ErrorLogger.Errorf("event relay: %v", err)
				}
			case <-r.stopChan:
				return
			}
		}
	}()
}

func (r *EventRelay) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Flush publishes one batch in creation order and reports how many events
// were marked processed. It stops at the first event a sink rejects so
// per-order ordering is kept.
func (r *EventRelay) Flush(ctx context.Context) (int, error) {
	var events []models.OrderEvent
	if err := r.DB.WithContext(ctx).
		Where("processed = ?", false).
		Order("id asc").
		Limit(r.BatchSize).
		Find(&events).Error; err != nil {
		return 0, fmt.Errorf("error fetching events: %w", err)
	}

	done := 0
	for _, event := range events {
		for _, sink := range r.Sinks {
			if err := sink.Publish(ctx, event); err != nil {
				utils.ErrorLogger.WithFields(logrus.Fields{
					"event_id": event.ID,
					"event":    event.EventType,
					"sink":     sink.Name(),
				}).Errorf("publish failed: %v", err)
				return done, nil
			}
		}
		if err := r.DB.WithContext(ctx).Model(&models.OrderEvent{}).
			Where("id = ?", event.ID).
			Update("processed", true).Error; err != nil {
			return done, fmt.Errorf("error marking event %d processed: %w", event.ID, err)
		}
		done++
	}

	if done > 0 {
		utils.InfoLogger.Debugf("event relay published %d events", done)
	}
	return done, nil
}
