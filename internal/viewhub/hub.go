// Package viewhub fans host events out to remote views over websockets and
// feeds view-originated frames into the host event queue. It is the network
// counterpart of an embedded view bridge: same frames, different transport.
package viewhub

import (
	"sync"

	"borealis/pkg/types"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID()] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()

	if ok {
		client.Close()
	}
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit fans one event out to every connected view. A client whose send
// buffer is full is unregistered rather than allowed to block the emitter.
func (h *Hub) Emit(event string, args []any, fields map[string]any) {
	frame := types.ViewFrame{Event: event, Args: args, Fields: fields}
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.Queue(frame) {
			continue
		}
		h.Unregister(client.ID())
	}
}
