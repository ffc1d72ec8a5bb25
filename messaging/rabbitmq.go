package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/aquadoks/sales-backend/utils"
	"github.com/streadway/amqp"
)

type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RetryCount int
	RetryDelay time.Duration
}

// RabbitMQClient owns one connection and channel to the broker and redials
// when the broker drops the connection.
type RabbitMQClient struct {
	config     RabbitMQConfig
	connection *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	isClosing  bool
}

func NewRabbitMQClient(config RabbitMQConfig) *RabbitMQClient {
	if config.RetryCount <= 0 {
		config.RetryCount = 5
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	return &RabbitMQClient{config: config}
}

func (r *RabbitMQClient) Exchange() string { return r.config.Exchange }

func (r *RabbitMQClient) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for i := 0; i < r.config.RetryCount; i++ {
		r.connection, err = amqp.Dial(r.config.URL)
		if err != nil {
			utils.ErrorLogger.Errorf("rabbitmq connection error (attempt %d/%d): %v", i+1, r.config.RetryCount, err)
			if i < r.config.RetryCount-1 {
				time.Sleep(r.config.RetryDelay)
			}
			continue
		}

		r.channel, err = r.connection.Channel()
		if err != nil {
			r.connection.Close()
			return fmt.Errorf("failed to open rabbitmq channel: %w", err)
		}

		err = r.channel.ExchangeDeclare(
			r.config.Exchange, // name
			"topic",           // type
			true,              // durable
			false,             // auto-deleted
			false,             // internal
			false,             // no-wait
			nil,               // arguments
		)
		if err != nil {
			r.channel.Close()
			r.connection.Close()
			return fmt.Errorf("failed to declare exchange %s: %w", r.config.Exchange, err)
		}

		utils.InfoLogger.Infof("connected to rabbitmq, exchange %s", r.config.Exchange)
		go r.handleReconnection(r.connection)
		return nil
	}
	return fmt.Errorf("failed to connect to rabbitmq: %w", err)
}

func (r *RabbitMQClient) handleReconnection(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
	err, ok := <-notifyClose
	if !ok {
		return
	}

	r.mu.RLock()
	closing := r.isClosing
	r.mu.RUnlock()
	if closing {
		return
	}

	utils.ErrorLogger.Errorf("rabbitmq connection lost: %v, reconnecting", err)
	time.Sleep(r.config.RetryDelay)
	if reconnectErr := r.Connect(); reconnectErr != nil {
		utils.ErrorLogger.Errorf("rabbitmq reconnect failed: %v", reconnectErr)
	}
}

func (r *RabbitMQClient) Channel() *amqp.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channel
}

func (r *RabbitMQClient) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connection != nil && !r.connection.IsClosed()
}

func (r *RabbitMQClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isClosing {
		return nil
	}
	r.isClosing = true

	var closeErr error
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			closeErr = fmt.Errorf("channel close error: %w", err)
		}
	}
	if r.connection != nil {
		if err := r.connection.Close(); err != nil && closeErr == nil {
			closeErr = fmt.Errorf("connection close error: %w", err)
		}
	}
	return closeErr
}
