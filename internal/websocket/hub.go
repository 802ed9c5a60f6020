// Package websocket pushes deal events to connected dashboard tabs.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"crm-dashboard/internal/domain"
	"crm-dashboard/internal/observability"
)

// DealsTopic carries every deal mutation made through the dashboard
const DealsTopic = "deals"

type broadcastMessage struct {
	topic   string
	kind    string
	payload []byte
}

// Hub fans messages out to the clients subscribed to a topic
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}

	broadcast  chan broadcastMessage
	register   chan *Client
	unregister chan *Client

	done     chan struct{}
	doneOnce sync.Once
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		broadcast:  make(chan broadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns client membership until ctx is cancelled
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.topic] == nil {
				h.clients[client.topic] = make(map[*Client]struct{})
			}
			h.clients[client.topic][client] = struct{}{}
			h.mu.Unlock()

			observability.WebSocketConnectionsActive.WithLabelValues(client.topic).Inc()
			slog.Info("client subscribed",
				slog.String("user_id", client.userID),
				slog.String("topic", client.topic))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg broadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[msg.topic] {
		select {
		case client.send <- msg.payload:
			observability.WebSocketMessagesSent.WithLabelValues(msg.topic, msg.kind).Inc()
		default:
			// slow consumer: drop it rather than stall every other tab
			slog.Warn("dropping slow client",
				slog.String("user_id", client.userID),
				slog.String("topic", msg.topic))
			h.removeLocked(client)
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.removeLocked(client) {
		slog.Info("client unsubscribed",
			slog.String("user_id", client.userID),
			slog.String("topic", client.topic))
	}
}

func (h *Hub) removeLocked(client *Client) bool {
	clients, ok := h.clients[client.topic]
	if !ok {
		return false
	}
	if _, ok := clients[client]; !ok {
		return false
	}

	delete(clients, client)
	close(client.send)
	observability.WebSocketConnectionsActive.WithLabelValues(client.topic).Dec()
	if len(clients) == 0 {
		delete(h.clients, client.topic)
	}
	return true
}

func (h *Hub) shutdown() {
	h.doneOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, clients := range h.clients {
		for client := range clients {
			close(client.send)
			observability.WebSocketConnectionsActive.WithLabelValues(topic).Dec()
		}
		delete(h.clients, topic)
	}

	slog.Info("hub shutdown complete")
}

// Broadcast queues raw payload for every subscriber of topic. It never
// blocks once the hub has stopped.
func (h *Hub) Broadcast(topic, kind string, payload []byte) {
	select {
	case h.broadcast <- broadcastMessage{topic: topic, kind: kind, payload: payload}:
	case <-h.done:
	}
}

// PublishDealEvent sends ev to the deals topic
func (h *Hub) PublishDealEvent(ev domain.DealEvent) error {
	data, err := json.Marshal(ServerMessage{Type: string(ev.Type), Topic: DealsTopic, Event: &ev})
	if err != nil {
		return fmt.Errorf("marshal deal event: %w", err)
	}
	h.Broadcast(DealsTopic, string(ev.Type), data)
	return nil
}

// Register subscribes client to its topic
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes client; a no-op after shutdown
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns how many clients are subscribed to topic
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
