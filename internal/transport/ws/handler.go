// Package ws provides the WebSocket gateway for remindd.
//
// Clients open a WebSocket connection to:
//
//	GET /ws
//
// Connected clients receive every fired-reminder broadcast and may create
// reminders over the same connection.
//
// Client → server frame:
//
//	{"type":"C2S_ADD_REMINDER","payload":{"name":"demo","at":"2030-01-01T12:01:00Z"}}
//
// Server → client frames:
//
//	{"type":"S2C_REMINDER_ADDED","payload":{"id":"<ULID>","name":"demo","at":"...","created":true}}
//	{"type":"S2C_REMINDER_FIRED","payload":{"id":"<ULID>","name":"demo","at":"...","fired_at":"..."}}
//	{"type":"ERROR","payload":{"code":"VALIDATION_ERROR","message":"..."}}
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	gorillaws "github.com/gorilla/websocket"

	"github.com/sneh-joshi/remindd/internal/service"
)

var upgrader = gorillaws.Upgrader{
	// CheckOrigin rejects cross-origin WebSocket upgrade requests.
	// A request is considered same-origin when its Origin header matches the
	// Host header (scheme-agnostic). Requests without an Origin header
	// (e.g. from native clients/curl) are always allowed.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client, allow
		}
		parsed, err := parseHost(origin)
		if err != nil {
			return false
		}
		return parsed == r.Host
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// parseHost returns the host:port (or just host) portion of a URL string.
func parseHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid origin %q", rawURL)
	}
	return u.Host, nil
}

// Handler serves the gateway endpoint.
type Handler struct {
	Svc *service.Service
	Hub *Hub
}

// ServeHTTP upgrades the connection, registers it with the hub, and serves
// requests until the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &conn{ws: raw}
	h.Hub.add(c)
	defer func() {
		h.Hub.remove(c)
		_ = raw.Close()
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return // client disconnected
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.sendError(c, CodeBadPayload, "frame is not valid JSON")
			continue
		}

		switch f.Type {
		case TypeAddReminder:
			h.handleAdd(c, f.Payload)
		default:
			h.sendError(c, CodeUnknownType, fmt.Sprintf("unsupported message type %q", f.Type))
		}
	}
}

func (h *Handler) handleAdd(c *conn, payload json.RawMessage) {
	var req AddReminderPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(c, CodeBadPayload, "payload must be {name, at}")
		return
	}

	res, err := h.Svc.AddReminder(req.Name, req.At)
	switch {
	case errors.Is(err, service.ErrValidation):
		h.sendError(c, CodeValidation, err.Error())
		return
	case err != nil:
		slog.Error("ws add reminder failed", "name", req.Name, "err", err)
		h.sendError(c, CodeServer, "internal error")
		return
	}

	ack := mustFrame(TypeReminderAdded, ReminderAddedPayload{
		ID:      res.Reminder.ID,
		Name:    res.Reminder.Name,
		At:      isoMs(res.Reminder.At),
		Created: res.Created,
	})
	if err := c.writeJSON(ack); err != nil {
		slog.Warn("ws ack write failed", "err", err)
	}
}

func (h *Handler) sendError(c *conn, code, msg string) {
	f := mustFrame(TypeError, ErrorPayload{Code: code, Message: msg})
	if err := c.writeJSON(f); err != nil {
		slog.Warn("ws error write failed", "err", err)
	}
}
