package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// FeedMessage is pushed to dashboard clients over the history feed.
type FeedMessage struct {
	Type      string    `json:"type"` // "prediction" or "batch"
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Hub fans newly persisted predictions out to dashboard websocket clients.
// Slow clients drop messages rather than block the request path.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]chan []byte
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Broadcast sends one message to every connected client.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(FeedMessage{Type: msgType, Timestamp: time.Now(), Data: data})
	if err != nil {
		zap.S().Errorw("failed to encode feed message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, send := range h.clients {
		select {
		case send <- payload:
		default:
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) chan []byte {
	send := make(chan []byte, 16)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()
	return send
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		close(send)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	conn.Close()
}

// handleHistoryFeed upgrades the connection and streams new predictions to
// the dashboard until the client disconnects.
func (a *API) handleHistoryFeed(w http.ResponseWriter, r *http.Request) {
	if a.Hub == nil {
		respondError(w, http.StatusServiceUnavailable, "live feed not enabled")
		return
	}

	conn, err := a.Hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "error", err)
		return
	}
	send := a.Hub.register(conn)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case payload, ok := <-send:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reads are discarded; the loop exists to notice the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			a.Hub.unregister(conn)
			return
		}
	}
}
