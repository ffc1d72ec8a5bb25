package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"+7 (999) 123-45-67": "+79991234567",
		"8 999 123 45 67":    "+79991234567",
		"79991234567":        "+79991234567",
		"+1 415 555 0100":    "+14155550100",
		"abc":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizePhone(in), in)
	}
}

func TestCustomer_GetOrCreate(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()

	c, created, err := ts.customers.GetOrCreate(ctx, CustomerInput{Phone: "8 (999) 111-22-33"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "+79991112233", c.Phone)
	assert.Equal(t, "Клиент", c.Name)

	email := "anna@example.com"
	again, created, err := ts.customers.GetOrCreate(ctx, CustomerInput{Name: "Анна", Phone: "+79991112233", Email: &email})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)

	stored, err := ts.customers.GetByPhone(ctx, "+79991112233")
	require.NoError(t, err)
	assert.Equal(t, "Анна", stored.Name, "placeholder name is replaced")
	require.NotNil(t, stored.Email)
	assert.Equal(t, email, *stored.Email)

	_, _, err = ts.customers.GetOrCreate(ctx, CustomerInput{Phone: "12"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestChatSession_OpenLogClose(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()

	s1, err := ts.chats.Open(ctx, "telegram", "42", nil)
	require.NoError(t, err)
	s2, err := ts.chats.Open(ctx, "telegram", "42", nil)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID, "active session is reused")

	require.NoError(t, ts.chats.LogToolCall(ctx, s1.ID, "check_stock_price", map[string]interface{}{"sku": "1L"}))
	msgs, err := ts.chats.Messages(ctx, s1.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].ToolName)
	assert.Equal(t, "check_stock_price", *msgs[0].ToolName)
	assert.Equal(t, "1L", msgs[0].ToolArgs["sku"])

	closed, err := ts.chats.CloseChat(ctx, "telegram", "42")
	require.NoError(t, err)
	assert.True(t, closed)
	closed, err = ts.chats.CloseChat(ctx, "telegram", "42")
	require.NoError(t, err)
	assert.False(t, closed)

	s3, err := ts.chats.Open(ctx, "telegram", "42", nil)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s3.ID, "a closed chat starts a new session")

	_, err = ts.chats.Open(ctx, "", "42", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDelivery_RecordUpdateUpserts(t *testing.T) {
	ts := newTestStack(t)
	ctx := context.Background()
	deliveries := NewDeliveryService(ts.db)
	order := ts.createOrder(t, LineRequest{SKU: "19L", QtyPacks: 2})
	cost := int64(400)

	d, err := deliveries.RecordDeliveryUpdate(ctx, DeliveryUpdate{
		OrderID: order.ID, Provider: "yandex", TrackingNumber: "TRK-1", Status: "Created", Cost: &cost,
	})
	require.NoError(t, err)
	assert.Equal(t, "created", d.Status)
	assert.Equal(t, int64(400), d.DeliveryCost)

	d2, err := deliveries.RecordDeliveryUpdate(ctx, DeliveryUpdate{
		OrderID: order.ID, Provider: "yandex", TrackingNumber: "TRK-1", Status: "in_transit",
	})
	require.NoError(t, err)
	assert.Equal(t, d.ID, d2.ID)
	assert.Equal(t, "in_transit", d2.Status)
	assert.Equal(t, int64(400), d2.DeliveryCost, "cost is kept when not reported")

	list, err := deliveries.ListForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	stored, err := ts.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Status, stored.Status, "delivery updates never move the order")

	_, err = deliveries.RecordDeliveryUpdate(ctx, DeliveryUpdate{OrderID: 9999, Provider: "yandex", TrackingNumber: "X", Status: "created"})
	assert.ErrorIs(t, err, ErrNotFound)

	negative := int64(-1)
	_, err = deliveries.RecordDeliveryUpdate(ctx, DeliveryUpdate{OrderID: order.ID, Provider: "yandex", TrackingNumber: "X", Status: "created", Cost: &negative})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
