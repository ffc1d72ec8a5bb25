package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/bwmarrin/snowflake"
	"github.com/streadway/amqp"
)

// Channel is the slice of *amqp.Channel the publisher needs.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Envelope is the JSON body published for each order event.
type Envelope struct {
	ID        string                 `json:"id"`
	EventType string                 `json:"event_type"`
	OrderID   uint                   `json:"order_id"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// Publisher sends order events to a topic exchange with routing key
// "order.<event type>", e.g. order.payment.refund_requested.
type Publisher struct {
	exchange string
	channel  func() Channel
	ids      *snowflake.Node
}

func NewPublisher(client *RabbitMQClient, node *snowflake.Node) *Publisher {
	return &Publisher{
		exchange: client.Exchange(),
		channel: func() Channel {
			if !client.IsConnected() {
				return nil
			}
			if ch := client.Channel(); ch != nil {
				return ch
			}
			return nil
		},
		ids: node,
	}
}

// NewChannelPublisher publishes through a fixed channel.
func NewChannelPublisher(exchange string, ch Channel, node *snowflake.Node) *Publisher {
	return &Publisher{exchange: exchange, channel: func() Channel { return ch }, ids: node}
}

func (p *Publisher) Name() string { return "amqp" }

func RoutingKey(eventType string) string {
	return "order." + eventType
}

func (p *Publisher) Publish(_ context.Context, event models.OrderEvent) error {
	ch := p.channel()
	if ch == nil {
		return fmt.Errorf("there is no connection to rabbitmq")
	}

	msgID := p.ids.Generate().String()
	body, err := json.Marshal(Envelope{
		ID:        msgID,
		EventType: event.EventType,
		OrderID:   event.OrderID,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("event serialization error: %w", err)
	}

	err = ch.Publish(
		p.exchange,
		RoutingKey(event.EventType),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID,
			Timestamp:    event.CreatedAt,
			Headers: amqp.Table{
				"order_id":   strconv.FormatUint(uint64(event.OrderID), 10),
				"event_type": event.EventType,
				"outbox_id":  strconv.FormatUint(uint64(event.ID), 10),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("event publish error: %w", err)
	}
	return nil
}
