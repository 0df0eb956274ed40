package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/sneh-joshi/remindd/internal/journal"
	"github.com/sneh-joshi/remindd/internal/service"
	"github.com/sneh-joshi/remindd/internal/store"
	"github.com/sneh-joshi/remindd/internal/types"
)

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// errorResponse is the uniform error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
}

// Handler carries the dependencies shared by all REST endpoints.
// Journal may be nil; the /journal route is only mounted when it is set.
type Handler struct {
	Svc     *service.Service
	Store   store.Store
	Journal *journal.Journal
	NodeID  string
	started time.Time
}

// NewHandler builds the REST handler set.
func NewHandler(svc *service.Service, st store.Store, jnl *journal.Journal, nodeID string) *Handler {
	return &Handler{Svc: svc, Store: st, Journal: jnl, NodeID: nodeID, started: time.Now()}
}

// health responds to GET /health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"node_id":        h.NodeID,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// createRequest is the body of POST /reminders.
type createRequest struct {
	Name string `json:"name"`
	At   string `json:"at"`
}

// createResponse is returned by POST /reminders. Created reports whether a new
// reminder was inserted (201) or an existing PENDING one was returned (200).
type createResponse struct {
	Reminder *types.Reminder `json:"reminder"`
	Created  bool            `json:"created"`
}

// createReminder handles POST /reminders.
func (h *Handler) createReminder(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	res, err := h.Svc.AddReminder(req.Name, req.At)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		slog.Error("create reminder failed", "name", req.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, createResponse{Reminder: res.Reminder, Created: res.Created})
}

// listReminders handles GET /reminders?status=PENDING|FIRED (default PENDING).
func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	status := types.StatusPending
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, err := types.ParseStatus(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown status: " + s})
			return
		}
		status = parsed
	}

	rems, err := h.Store.List(status)
	if err != nil {
		slog.Error("list reminders failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if rems == nil {
		rems = []*types.Reminder{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reminders": rems,
		"count":     len(rems),
	})
}

// journalEntry is one row of the GET /journal response.
type journalEntry struct {
	Seq     uint64 `json:"seq"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	At      string `json:"at"`
	FiredAt string `json:"fired_at"`
}

// listJournal handles GET /journal?limit=N. Entries are returned newest first.
func (h *Handler) listJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Journal.Entries()
	if err != nil {
		slog.Error("read journal failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	out := make([]journalEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := entries[i]
		out = append(out, journalEntry{
			Seq:     e.Seq,
			ID:      e.Event.ID,
			Name:    e.Event.Name,
			At:      time.UnixMilli(e.Event.At).UTC().Format(time.RFC3339),
			FiredAt: time.UnixMilli(e.Event.FiredAt).UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}
