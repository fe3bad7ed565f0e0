// Package realtime fans quote updates out to connected websocket clients.
package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type Hub struct {
	log     zerolog.Logger
	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", n).Msg("websocket client connected")
}

func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	_ = conn.Close()
	h.log.Debug().Int("clients", n).Msg("websocket client disconnected")
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJSON sends v to every connected client, dropping clients whose
// writes fail.
func (h *Hub) BroadcastJSON(v any) {
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
	}
	h.mu.RUnlock()

	for _, conn := range clients {
		if err := conn.WriteJSON(v); err != nil {
			h.log.Warn().Err(err).Msg("dropping websocket client after failed write")
			h.RemoveClient(conn)
		}
	}
}
