package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	name   string
	events []string
	fail   bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, event models.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broker down")
	}
	s.events = append(s.events, event.EventType)
	return nil
}

func (s *recordingSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func unprocessed(t *testing.T, ts *testStack) int64 {
	t.Helper()
	var n int64
	require.NoError(t, ts.db.Model(&models.OrderEvent{}).Where("processed = ?", false).Count(&n).Error)
	return n
}

func TestEventRelay_FlushPublishesInOrder(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	order := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 1})
	_, err := ts.orders.MarkPaid(ctx, order.ID, "ext-1")
	require.NoError(t, err)

	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	relay := NewEventRelay(ts.db, a, b)

	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{models.EventOrderCreated, models.EventOrderPaid}, a.received())
	assert.Equal(t, a.received(), b.received())
	assert.Zero(t, unprocessed(t, ts))

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventRelay_FailingSinkKeepsEventsQueued(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 1})
	ts.createOrder(t, LineRequest{SKU: "1L", QtyPacks: 1})

	ok := &recordingSink{name: "ok"}
	broken := &recordingSink{name: "broken", fail: true}
	relay := NewEventRelay(ts.db, ok, broken)

	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(2), unprocessed(t, ts))

	broken.mu.Lock()
	broken.fail = false
	broken.mu.Unlock()

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	// the first sink saw the first event twice
	assert.Len(t, ok.received(), 3)
	assert.Len(t, broken.received(), 2)
}

func TestEventRelay_StartStop(t *testing.T) {
	ts := newTestStack(t)
	ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 1})

	sink := &recordingSink{name: "sink"}
	relay := NewEventRelay(ts.db, sink)
	relay.Interval = 10 * time.Millisecond
	relay.Start()
	defer relay.Stop()

	assert.Eventually(t, func() bool { return len(sink.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	relay.Stop()
}

func TestNotificationService_InboxFromEvents(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	notifications := NewNotificationService(ts.db)

	order := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 1})
	_, err := ts.orders.MarkPaid(ctx, order.ID, "ext-1")
	require.NoError(t, err)
	_, err = ts.orders.Cancel(ctx, order.ID, "customer left")
	require.NoError(t, err)

	var events []models.OrderEvent
	require.NoError(t, ts.db.Order("id asc").Find(&events).Error)
	for _, e := range events {
		require.NoError(t, notifications.Publish(ctx, e))
	}
	// redelivery after a relay crash
	for _, e := range events {
		require.NoError(t, notifications.Publish(ctx, e))
	}

	list, err := notifications.List(ctx, true, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.EventPaymentRefundRequested, list[0].EventType)
	require.NotNil(t, list[0].OrderID)
	assert.Equal(t, order.ID, *list[0].OrderID)
	assert.Contains(t, list[0].Message, order.Reference)

	require.NoError(t, notifications.MarkRead(ctx, list[0].ID))
	require.NoError(t, notifications.MarkRead(ctx, list[0].ID), "marking twice is fine")

	unread, err := notifications.List(ctx, true, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)
	all, err := notifications.List(ctx, false, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, notifications.MarkRead(ctx, 9999), ErrNotFound)
}
