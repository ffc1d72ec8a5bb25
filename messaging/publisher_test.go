package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/bwmarrin/snowflake"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	calls []publishCall
	err   error
}

func (c *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.calls = append(c.calls, publishCall{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestPublisher_Publish(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ch := &fakeChannel{}
	p := NewChannelPublisher("aquadoks.events", ch, node)

	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	event := models.OrderEvent{
		ID:        11,
		EventType: models.EventPaymentRefundRequested,
		OrderID:   3,
		Payload:   map[string]interface{}{"reference": "ref-3"},
		CreatedAt: created,
	}
	require.NoError(t, p.Publish(context.Background(), event))
	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, ch.calls, 2)

	call := ch.calls[0]
	assert.Equal(t, "aquadoks.events", call.exchange)
	assert.Equal(t, "order.payment.refund_requested", call.key)
	assert.Equal(t, amqp.Persistent, call.msg.DeliveryMode)
	assert.Equal(t, "11", call.msg.Headers["outbox_id"])
	assert.Equal(t, "3", call.msg.Headers["order_id"])
	assert.NotEqual(t, call.msg.MessageId, ch.calls[1].msg.MessageId, "every publish gets its own id")

	var env Envelope
	require.NoError(t, json.Unmarshal(call.msg.Body, &env))
	assert.Equal(t, call.msg.MessageId, env.ID)
	assert.Equal(t, uint(3), env.OrderID)
	assert.Equal(t, "ref-3", env.Payload["reference"])
	assert.True(t, created.Equal(env.CreatedAt))
}

func TestPublisher_Errors(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	p := NewChannelPublisher("x", &fakeChannel{err: errors.New("channel closed")}, node)
	assert.Error(t, p.Publish(context.Background(), models.OrderEvent{EventType: models.EventOrderPaid}))

	disconnected := NewPublisher(NewRabbitMQClient(RabbitMQConfig{Exchange: "x"}), node)
	assert.Error(t, disconnected.Publish(context.Background(), models.OrderEvent{EventType: models.EventOrderPaid}))
}
