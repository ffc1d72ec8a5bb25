package services

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayments(t *testing.T) (*testStack, *PaymentService, *fakeProvider) {
	t.Helper()
	ts := newTestStack(t)
	provider := newFakeProvider("fake")
	return ts, NewPaymentService(ts.db, ts.orders, 30*time.Minute, provider), provider
}

func paidCallback(link *models.PaymentLink, outcome PaymentOutcome) map[string]string {
	return map[string]string{
		"sig":     "ok",
		"ref":     link.ExternalRef,
		"amount":  strconv.FormatInt(link.Amount, 10) + ".00",
		"outcome": string(outcome),
	}
}

func TestPayment_LinkIsReusedForSameOrder(t *testing.T) {
	ts, payments, provider := newTestPayments(t)
	ctx := context.Background()
	order := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 2})

	link, reused, err := payments.IssuePaymentLink(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, order.Reference, link.ExternalRef)
	assert.Equal(t, order.FinalAmount, link.Amount)
	assert.Equal(t, 1, link.Attempt)

	again, reused, err := payments.IssuePaymentLink(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, link.ID, again.ID)
	assert.Equal(t, link.URL, again.URL)
	assert.Equal(t, 1, provider.created)

	stored, err := ts.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentLink)
	assert.Equal(t, link.URL, *stored.PaymentLink)
}

func TestPayment_FailedLinkIsReissued(t *testing.T) {
	ts, payments, provider := newTestPayments(t)
	ctx := context.Background()
	order := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 2})

	link, _, err := payments.IssuePaymentLink(ctx, order.ID)
	require.NoError(t, err)

	updated, outcome, err := payments.HandlePaymentCallback(ctx, "fake", paidCallback(link, OutcomeFailed))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, models.OrderStatusPending, updated.Status)
	assert.Equal(t, models.PaymentStatusFailed, updated.PaymentStatus)
	assert.Equal(t, 2, ts.stock(t, "19L").ReservedPacks, "stock stays held after a failed payment")

	second, reused, err := payments.IssuePaymentLink(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, link.ID, second.ID, "the failed link is replaced in place")
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, order.Reference+"-2", second.ExternalRef)
	assert.Equal(t, 2, provider.created)

	stored, err := ts.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
}

func TestPayment_CallbackMarksOrderPaid(t *testing.T) {
	ts, payments, _ := newTestPayments(t)
	ctx := context.Background()
	order := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 2})
	link, _, err := payments.IssuePaymentLink(ctx, order.ID)
	require.NoError(t, err)

	paid, outcome, err := payments.HandlePaymentCallback(ctx, "fake", paidCallback(link, OutcomePaid))
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)
	assert.Equal(t, models.OrderStatusPaid, paid.Status)

	// providers retry notifications
	_, _, err = payments.HandlePaymentCallback(ctx, "fake", paidCallback(link, OutcomePaid))
	require.NoError(t, err)

	var paidEvents int64
	ts.db.Model(&models.OrderEvent{}).Where("order_id = ? AND event_type = ?", order.ID, models.EventOrderPaid).Count(&paidEvents)
	assert.Equal(t, int64(1), paidEvents)

	var stored models.PaymentLink
	require.NoError(t, ts.db.First(&stored, link.ID).Error)
	assert.Equal(t, models.LinkStatusPaid, stored.Status)

	_, _, err = payments.IssuePaymentLink(ctx, order.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "paid orders get no new link")
}

func TestPayment_CallbackRejects(t *testing.T) {
	ts, payments, _ := newTestPayments(t)
	ctx := context.Background()
	order := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 2})
	link, _, err := payments.IssuePaymentLink(ctx, order.ID)
	require.NoError(t, err)

	fields := paidCallback(link, OutcomePaid)
	fields["sig"] = "forged"
	_, _, err = payments.HandlePaymentCallback(ctx, "fake", fields)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	fields = paidCallback(link, OutcomePaid)
	fields["amount"] = "1.00"
	_, _, err = payments.HandlePaymentCallback(ctx, "fake", fields)
	assert.ErrorIs(t, err, ErrInvalidInput)

	fields = paidCallback(link, OutcomePaid)
	fields["ref"] = "unknown"
	_, _, err = payments.HandlePaymentCallback(ctx, "fake", fields)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = payments.HandlePaymentCallback(ctx, "other", paidCallback(link, OutcomePaid))
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := ts.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
}

func TestPayment_IssueRejects(t *testing.T) {
	ts, payments, provider := newTestPayments(t)
	ctx := context.Background()

	_, _, err := payments.IssuePaymentLink(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	order := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 1})
	require.NoError(t, ts.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("fulfillment_mode", models.FulfillmentMarketplace).Error)
	_, _, err = payments.IssuePaymentLink(ctx, order.ID)
	assert.ErrorIs(t, err, ErrRoutingViolation)

	other := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 1})
	provider.failNext = errors.New("connection refused")
	_, _, err = payments.IssuePaymentLink(ctx, other.ID)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	_, err = ts.orders.Cancel(ctx, other.ID, "changed mind")
	require.NoError(t, err)
	_, _, err = payments.IssuePaymentLink(ctx, other.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	none := NewPaymentService(ts.db, ts.orders, time.Minute)
	_, _, err = none.IssuePaymentLink(ctx, order.ID)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestPaymentMonitor_PollAppliesProviderStatus(t *testing.T) {
	ts, payments, provider := newTestPayments(t)
	ctx := context.Background()

	paidOrder := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 1})
	paidLink, _, err := payments.IssuePaymentLink(ctx, paidOrder.ID)
	require.NoError(t, err)
	waitingOrder := ts.createOrder(t, LineRequest{SKU: "1L", QtyPacks: 1})
	_, _, err = payments.IssuePaymentLink(ctx, waitingOrder.ID)
	require.NoError(t, err)

	provider.status[paidLink.ExternalRef] = OutcomePaid
	monitor := NewPaymentMonitor(payments, time.Minute, -time.Second)
	monitor.Poll(ctx)

	metrics := monitor.GetMetrics()
	assert.Equal(t, int64(2), metrics.Checked)
	assert.Equal(t, int64(1), metrics.Paid)
	assert.Equal(t, int64(1), metrics.StillPending)

	stored, err := ts.orders.Get(ctx, paidOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)

	waiting, err := ts.orders.Get(ctx, waitingOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, waiting.Status)

	monitor.Poll(ctx)
	assert.Equal(t, int64(3), monitor.GetMetrics().Checked, "only the still pending link is checked again")
}
