// Package http implements the remindd REST API and hosts the WebSocket
// gateway endpoint. Routes:
//
//	GET  /health     — liveness probe with node identity
//	POST /reminders  — create a reminder (idempotent by name)
//	GET  /reminders  — list reminders by status
//	GET  /journal    — fired-reminder audit log (newest first)
//	GET  /ws         — WebSocket gateway (add + fired-event stream)
//	GET  /metrics    — Prometheus exposition (when enabled)
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/sneh-joshi/remindd/internal/config"
	"github.com/sneh-joshi/remindd/internal/journal"
	"github.com/sneh-joshi/remindd/internal/metrics"
	"github.com/sneh-joshi/remindd/internal/service"
	"github.com/sneh-joshi/remindd/internal/store"
	"github.com/sneh-joshi/remindd/internal/transport/ws"
)

// Server wraps the stdlib http.Server with remindd's route table and
// middleware chain.
type Server struct {
	inner *http.Server
}

// New assembles the full HTTP surface. wsHandler, jnl, and reg may each be
// nil: the gateway, /journal, and /metrics routes are only mounted when their
// dependency is present.
func New(svc *service.Service, st store.Store, wsHandler *ws.Handler, jnl *journal.Journal, nodeID string, cfg *config.Config, reg *metrics.Registry) *Server {
	h := NewHandler(svc, st, jnl, nodeID)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /reminders", h.createReminder)
	mux.HandleFunc("GET /reminders", h.listReminders)
	if jnl != nil {
		mux.HandleFunc("GET /journal", h.listJournal)
	}
	if wsHandler != nil {
		mux.Handle("GET /ws", wsHandler)
	}
	if reg != nil && cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", reg.Handler())
	}

	handler := chain(mux,
		CORSMiddleware,
		MaxBodyMiddleware,
		LoggingMiddleware(reg),
		AuthMiddleware(cfg.Auth.APIKey, cfg.Auth.Enabled),
		RateLimitMiddleware(cfg.Limits.MaxRate, cfg.Limits.Burst),
	)

	return &Server{
		inner: &http.Server{
			Handler: handler,
			// /ws hijacks the connection during upgrade, so these timeouts
			// only bound the REST handlers.
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler exposes the fully wrapped root handler, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.inner.Handler }

// ListenAndServe blocks serving on addr until Shutdown or a fatal error.
func (s *Server) ListenAndServe(addr string) error {
	s.inner.Addr = addr
	return s.inner.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
