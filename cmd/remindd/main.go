// Command remindd is the reminder scheduling server process.
// It loads configuration, initialises node identity, recovers persisted
// reminders, and serves the REST API and WebSocket gateway.
//
// Usage:
//
//	remindd [--config path/to/config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sneh-joshi/remindd/internal/clock"
	"github.com/sneh-joshi/remindd/internal/config"
	"github.com/sneh-joshi/remindd/internal/journal"
	"github.com/sneh-joshi/remindd/internal/metrics"
	"github.com/sneh-joshi/remindd/internal/node"
	"github.com/sneh-joshi/remindd/internal/scheduler"
	"github.com/sneh-joshi/remindd/internal/service"
	"github.com/sneh-joshi/remindd/internal/store/bolt"
	transphttp "github.com/sneh-joshi/remindd/internal/transport/http"
	"github.com/sneh-joshi/remindd/internal/transport/ws"
	"github.com/sneh-joshi/remindd/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "remindd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// ── 1. Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── 2. Set up structured logger ──────────────────────────────────────────
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// ── 3. Initialise node identity ──────────────────────────────────────────
	n, err := node.New(cfg.Node.DataDir, cfg.Node.ID)
	if err != nil {
		return fmt.Errorf("init node: %w", err)
	}

	slog.Info("remindd starting",
		"node_id", n.ID(),
		"host", cfg.Node.Host,
		"port", cfg.Node.Port,
		"data_dir", n.DataDir(),
		"scheduler_backend", cfg.Scheduler.Backend,
	)

	// ── 4. Initialise store and scheduler ────────────────────────────────────
	clk := clock.System{}

	st, err := bolt.Open(filepath.Join(cfg.Node.DataDir, "reminders.db"), clk)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var q scheduler.Queue
	switch cfg.Scheduler.Backend {
	case config.BackendDurable:
		q, err = scheduler.OpenDurable(filepath.Join(cfg.Node.DataDir, "schedule.db"), clk)
		if err != nil {
			return fmt.Errorf("open durable scheduler: %w", err)
		}
	default:
		q = scheduler.NewMemory(clk)
	}

	// ── 5. Initialise metrics registry ───────────────────────────────────────
	metricsReg := &metrics.Registry{}

	// ── 6. Wire the reminder service, journal, and notification sinks ────────
	jnl, err := journal.Open(filepath.Join(cfg.Node.DataDir, "journal.dat"))
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	hub := ws.NewHub(metricsReg)

	// Journal first so every fired event is durably recorded before broadcast.
	sinks := service.MultiSink{jnl, hub}
	var hooks *webhook.Notifier
	if len(cfg.Webhooks) > 0 {
		hooks = webhook.New(cfg.Webhooks)
		sinks = append(sinks, hooks)
	}

	svc := service.New(q, st, sinks, clk,
		service.WithMetrics(metricsReg),
		service.WithCatchUp(cfg.Scheduler.CatchUp),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	// Re-arm the timer wheel from the PENDING set persisted in the store.
	if err := svc.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	// ── 7. Start HTTP / WebSocket transport ──────────────────────────────────
	wsHandler := &ws.Handler{Svc: svc, Hub: hub}
	srv := transphttp.New(svc, st, wsHandler, jnl, string(n.ID()), cfg, metricsReg)
	addr := fmt.Sprintf("%s:%d", cfg.Node.Host, cfg.Node.Port)

	// Serve in a background goroutine so we can handle signals.
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("remindd ready", "node_id", n.ID(), "addr", addr)
		if err := srv.ListenAndServe(addr); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		} else {
			serveErr <- nil
		}
	}()

	// ── 8. Start dedicated Prometheus metrics listener ───────────────────────
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		go func() {
			slog.Info("metrics server listening", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, metricsReg.Handler()); err != nil {
				slog.Warn("metrics server error", "err", err)
			}
		}()
	}

	// ── 9. Graceful shutdown on SIGINT / SIGTERM ─────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	// Give in-flight requests 5 seconds to complete.
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	cancel()
	svc.Stop()
	hub.CloseAll()
	if hooks != nil {
		hooks.Close()
	}
	if err := q.Close(); err != nil {
		slog.Warn("scheduler close error", "err", err)
	}
	if err := jnl.Close(); err != nil {
		slog.Warn("journal close error", "err", err)
	}
	if err := st.Close(); err != nil {
		slog.Warn("store close error", "err", err)
	}

	slog.Info("remindd stopped")
	return nil
}
