package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gorilla/websocket"
)

// Message is what operators receive on /ws/events.
type Message struct {
	Event   string      `json:"event"`
	OrderID uint        `json:"order_id"`
	Data    interface{} `json:"data"`
}

type client struct {
	role   string
	filter map[string]bool // empty means every event
	mu     sync.Mutex      // one writer per connection
}

// Hub keeps connected operator dashboards.
type Hub struct {
	clients map[*websocket.Conn]*client
	mutex   sync.RWMutex
}

func New() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

var defaultHub = New()

// Default is the process-wide hub used by the event relay and the ws handler.
func Default() *Hub { return defaultHub }

// RegisterClient adds a connection. events limits delivery to those event types.
func (h *Hub) RegisterClient(conn *websocket.Conn, role string, events []string) {
	c := &client{role: role, filter: make(map[string]bool, len(events))}
	for _, e := range events {
		if e != "" {
			c.filter[e] = true
		}
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = c
}

// UnregisterClient removes and closes a connection.
func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mutex.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mutex.Unlock()
	if ok {
		conn.Close()
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every subscribed client and drops connections that
// fail to accept it.
func (h *Hub) Broadcast(msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.Errorf("hub: marshal %s: %v", msg.Event, err)
		return 0
	}

	h.mutex.RLock()
	targets := make(map[*websocket.Conn]*client, len(h.clients))
	for conn, c := range h.clients {
		if len(c.filter) == 0 || c.filter[msg.Event] {
			targets[conn] = c
		}
	}
	h.mutex.RUnlock()

	sent := 0
	for conn, c := range targets {
		c.mu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			utils.ErrorLogger.Errorf("hub: send to %s client: %v", c.role, err)
			h.UnregisterClient(conn)
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) Name() string { return "websocket" }

// Publish forwards an outbox event to connected dashboards. Delivery is best
// effort, so it never fails the relay.
func (h *Hub) Publish(_ context.Context, event models.OrderEvent) error {
	h.Broadcast(Message{Event: event.EventType, OrderID: event.OrderID, Data: event.Payload})
	return nil
}
