package services

import (
	"context"
	"sync"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/sirupsen/logrus"
)

// PaymentMetrics counts what the monitor observed at the providers.
type PaymentMetrics struct {
	Checked        int64
	Paid           int64
	Failed         int64
	StillPending   int64
	ProviderErrors int64
}

// PaymentMonitor polls the provider for links whose callback never arrived
// and keeps a retry queue for links whose status check failed.
type PaymentMonitor struct {
	payments     *PaymentService
	metrics      PaymentMetrics
	retryQueue   []uint
	interval     time.Duration
	pendingAfter time.Duration
	batchSize    int
	mutex        sync.Mutex
	stopChan     chan struct{}
	stopOnce     sync.Once
}

func NewPaymentMonitor(payments *PaymentService, interval, pendingAfter time.Duration) *PaymentMonitor {
	return &PaymentMonitor{
		payments:     payments,
		retryQueue:   make([]uint, 0),
		interval:     interval,
		pendingAfter: pendingAfter,
		batchSize:    50,
		stopChan:     make(chan struct{}),
	}
}

func (pm *PaymentMonitor) Start() {
	go func() {
		ticker := time.NewTicker(pm.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pm.Poll(context.Background())
			case <-pm.stopChan:
				return
			}
		}
	}()
	utils.InfoLogger.Info("payment monitor started")
}

func (pm *PaymentMonitor) Stop() {
	pm.stopOnce.Do(func() { close(pm.stopChan) })
}

// AddToRetryQueue queues a payment link id once.
func (pm *PaymentMonitor) AddToRetryQueue(linkID uint) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	for _, id := range pm.retryQueue {
		if id == linkID {
			return
		}
	}
	pm.retryQueue = append(pm.retryQueue, linkID)
}

func (pm *PaymentMonitor) drainRetryQueue() []uint {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	queue := pm.retryQueue
	pm.retryQueue = make([]uint, 0)
	return queue
}

// Poll checks stale pending links plus everything queued for retry.
func (pm *PaymentMonitor) Poll(ctx context.Context) {
	links, err := pm.payments.PendingLinks(ctx, time.Now().Add(-pm.pendingAfter), pm.batchSize)
	if err != nil {
		utils.ErrorLogger.Errorf("payment monitor: %v", err)
		return
	}

	seen := make(map[uint]bool, len(links))
	for _, link := range links {
		seen[link.ID] = true
		pm.check(ctx, link)
	}
	for _, id := range pm.drainRetryQueue() {
		if seen[id] {
			continue
		}
		var link models.PaymentLink
		if err := pm.payments.db.WithContext(ctx).First(&link, id).Error; err != nil {
			utils.ErrorLogger.Errorf("payment monitor: link %d: %v", id, err)
			continue
		}
		if link.Status == models.LinkStatusPending {
			pm.check(ctx, link)
		}
	}
}

func (pm *PaymentMonitor) check(ctx context.Context, link models.PaymentLink) {
	fields := logrus.Fields{"link_id": link.ID, "order_id": link.OrderID, "provider": link.Provider}

	provider, ok := pm.payments.Provider(link.Provider)
	if !ok {
		utils.ErrorLogger.WithFields(fields).Error("payment monitor: provider is not configured")
		return
	}
	outcome, err := provider.CheckStatus(ctx, link.ExternalRef)
	if err != nil {
		utils.ErrorLogger.WithFields(fields).Errorf("payment monitor: status check failed: %v", err)
		pm.record(func(m *PaymentMetrics) { m.ProviderErrors++ })
		pm.AddToRetryQueue(link.ID)
		return
	}

	pm.record(func(m *PaymentMetrics) {
		m.Checked++
		switch outcome {
		case OutcomePaid:
			m.Paid++
		case OutcomeFailed:
			m.Failed++
		default:
			m.StillPending++
		}
	})
	if outcome == OutcomePending {
		return
	}
	if _, err := pm.payments.ApplyOutcome(ctx, link.Provider, link.ExternalRef, "", outcome); err != nil {
		utils.ErrorLogger.WithFields(fields).Errorf("payment monitor: apply %s: %v", outcome, err)
		return
	}
	utils.InfoLogger.WithFields(fields).Infof("payment monitor applied %s", outcome)
}

func (pm *PaymentMonitor) record(fn func(*PaymentMetrics)) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	fn(&pm.metrics)
}

// GetMetrics returns a snapshot of the counters.
func (pm *PaymentMonitor) GetMetrics() PaymentMetrics {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return pm.metrics
}
