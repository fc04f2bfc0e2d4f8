package server

import (
	"sync"

	"github.com/amoylab/tokengate/internal/gateway"
)

// Hub tracks the admitted connections of this process and delivers frames
// to them by connection id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

var _ gateway.Deliverer = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	h.mu.Unlock()
}

// Deliver queues frame for connID
func (h *Hub) Deliver(connID string, frame gateway.Frame) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}

	data, err := gateway.Encode(frame)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// Len returns the number of tracked connections
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll asks every connection to close
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.close()
	}
}
