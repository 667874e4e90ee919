package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks the connected stream clients
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
	stopped bool

	logger *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		logger:  logger,
	}
}

// register adds a client. It reports false once the hub is stopped.
func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[c] = true
	h.logger.Debug("client registered",
		zap.String("client", string(c.id)),
		zap.Int("total_clients", len(h.clients)))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.logger.Debug("client unregistered",
		zap.String("client", string(c.id)),
		zap.Int("total_clients", len(h.clients)))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every client connection and refuses new ones
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.logger.Info("hub stopped", zap.Int("closed_clients", len(clients)))
}
