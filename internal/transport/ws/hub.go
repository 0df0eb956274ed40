package ws

import (
	"log/slog"
	"sync"

	gorillaws "github.com/gorilla/websocket"

	"github.com/sneh-joshi/remindd/internal/metrics"
	"github.com/sneh-joshi/remindd/internal/types"
)

// conn wraps a WebSocket connection with a write lock. Replies from the read
// loop and broadcasts from the sink worker can target the same connection
// concurrently, and gorilla connections permit only one writer at a time.
type conn struct {
	ws *gorillaws.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// Hub tracks all connected gateway clients and fans fired-reminder events out
// to them. It is the service's NotificationSink.
//
// Delivery is fire-and-forget: a client that fails a write is dropped, and
// nothing is retried or buffered for disconnected subscribers.
type Hub struct {
	metrics *metrics.Registry // may be nil

	mu      sync.RWMutex
	clients map[*conn]struct{}
}

// NewHub creates an empty Hub. reg may be nil.
func NewHub(reg *metrics.Registry) *Hub {
	return &Hub{
		metrics: reg,
		clients: make(map[*conn]struct{}),
	}
}

// ReminderFired broadcasts the fired event to every connected client.
func (h *Hub) ReminderFired(ev types.FiredEvent) {
	h.broadcast(mustFrame(TypeReminderFired, ReminderFiredPayload{
		ID:      ev.ID,
		Name:    ev.Name,
		At:      isoMs(ev.At),
		FiredAt: isoMs(ev.FiredAt),
	}))
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*conn]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.ws.Close()
	}
	if h.metrics != nil {
		h.metrics.WSClients.Store(0)
	}
}

func (h *Hub) add(c *conn) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Add(1)
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if present && h.metrics != nil {
		h.metrics.WSClients.Add(-1)
	}
}

func (h *Hub) broadcast(f Frame) {
	h.mu.RLock()
	clients := make([]*conn, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.writeJSON(f); err != nil {
			slog.Warn("ws broadcast failed, dropping client", "err", err)
			h.remove(c)
			_ = c.ws.Close()
		}
	}
}
