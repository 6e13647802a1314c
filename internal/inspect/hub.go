package inspect

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kayz/promptforge/internal/audit"
	"github.com/kayz/promptforge/internal/logger"
)

// hub fans audit records out to websocket trace subscribers.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	upgrader websocket.Upgrader
}

func newHub() *hub {
	return &hub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			// The trace feed is a local debugging surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *hub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("trace subscriber upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	logger.Debug("trace subscriber connected from %s", r.RemoteAddr)

	// Drain reads so close frames are processed; drop on first error.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *hub) broadcast(rec audit.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	delete(h.clients, conn)
}
