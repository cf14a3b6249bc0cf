package device

import (
	"sync"

	"github.com/omochice/wsbridge/internal/relay"
)

// Client represents a connected bridge. The device reads and writes the
// same frame-level connection the bridge uses upstream.
type Client struct {
	Conn     relay.Conn
	Outgoing chan []byte
}

// Hub tracks connected clients and fans notifications out to them.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues data for every client. Clients whose queue is full
// miss the message. It returns how many clients it reached.
func (h *Hub) Broadcast(data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.clients {
		select {
		case client.Outgoing <- data:
			sent++
		default:
		}
	}
	return sent
}
