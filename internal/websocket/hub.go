package websocket

import (
	"sync"

	"surgical-review-be/internal/pkg/logger"
)

// Hub fans session events out to the browser tabs watching a session.
// Single-process only: the session itself lives and dies with this process,
// so there is no cross-instance fan-out.
type Hub struct {
	// Registered clients map: SessionID -> list of clients (multi-tab)
	clients map[string][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Dedicated logger (isolated file, keeps the main log clean)
	logger logger.ILogger
}

func NewHub(log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		logger:     log,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.SessionID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.SessionID]) == 0 {
					delete(h.clients, client.SessionID)
					h.logger.Info("Hub", "Session fully disconnected", map[string]interface{}{"session_id": client.SessionID})
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast delivers an already-serialized event to every tab of one session.
// Slow clients are skipped rather than blocking the relay.
func (h *Hub) Broadcast(sessionId string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients[sessionId] {
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn("Hub", "Dropping event for slow client", map[string]interface{}{"session_id": sessionId})
		}
	}
}
