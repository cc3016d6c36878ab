package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/core/ports"
)

var _ ports.EventPublisher = (*Manager)(nil)

// Manager owns the set of live websocket connections and fans payment events
// out to them. Writes are serialized per connection; gorilla/websocket does
// not allow concurrent writers.
type Manager struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]*sync.Mutex
}

func NewWebSocketManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
}

func (m *Manager) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return m.upgrader.Upgrade(w, r, nil)
}

func (m *Manager) Register(conn *websocket.Conn) {
	m.mu.Lock()
	m.clients[conn] = &sync.Mutex{}
	m.mu.Unlock()
}

func (m *Manager) Unregister(conn *websocket.Conn) {
	m.mu.Lock()
	delete(m.clients, conn)
	m.mu.Unlock()
	conn.Close()
}

// Publish broadcasts the event to every connected client. Dead connections
// are dropped on write failure; delivery is best effort.
func (m *Manager) Publish(event ports.PaymentEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("Error encoding payment event", "error", err)
		return
	}

	m.mu.RLock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(m.clients))
	for conn, lock := range m.clients {
		conns[conn] = lock
	}
	m.mu.RUnlock()

	for conn, lock := range conns {
		lock.Lock()
		err = conn.WriteMessage(websocket.TextMessage, payload)
		lock.Unlock()

		if err != nil {
			m.logger.Error("Error writing to websocket client, dropping", "error", err)
			m.Unregister(conn)
		}
	}
}
