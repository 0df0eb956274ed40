// Package webhook pushes fired reminders to external HTTP endpoints.
//
// Each configured target receives a JSON POST per fired reminder. Delivery is
// at-least-once with bounded retries; a target that stays down simply misses
// events (the journal remains the durable record).
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sneh-joshi/remindd/internal/config"
	"github.com/sneh-joshi/remindd/internal/types"
)

// eventBuffer bounds the queue between the firing path and delivery workers.
// When full, new events are dropped for webhooks (never for the journal or
// WebSocket broadcast) and the drop is logged.
const eventBuffer = 256

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
)

// payload is the JSON body POSTed to each target.
type payload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	At      string `json:"at"`
	FiredAt string `json:"fired_at"`
}

// Notifier delivers fired-reminder events to a fixed set of webhook targets.
// It implements service.Sink.
type Notifier struct {
	targets []config.WebhookConfig
	client  *http.Client

	events chan types.FiredEvent
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Notifier and starts its delivery worker.
// Call Close to stop it.
func New(targets []config.WebhookConfig) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		targets: targets,
		client:  &http.Client{Timeout: 10 * time.Second},
		events:  make(chan types.FiredEvent, eventBuffer),
		cancel:  cancel,
	}
	n.wg.Add(1)
	go n.run(ctx)
	return n
}

// ReminderFired implements service.Sink. It never blocks the firing path:
// when the buffer is full the event is dropped with a warning.
func (n *Notifier) ReminderFired(ev types.FiredEvent) {
	select {
	case n.events <- ev:
	default:
		slog.Warn("webhook buffer full, dropping event", "id", ev.ID, "name", ev.Name)
	}
}

// Close stops the delivery worker. Buffered events that have not started
// delivery are discarded.
func (n *Notifier) Close() {
	n.cancel()
	n.wg.Wait()
}

func (n *Notifier) run(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.events:
			for _, target := range n.targets {
				n.deliverWithRetry(ctx, target, ev)
			}
		}
	}
}

// deliverWithRetry attempts delivery up to maxAttempts times with exponential
// backoff between attempts.
func (n *Notifier) deliverWithRetry(ctx context.Context, target config.WebhookConfig, ev types.FiredEvent) {
	backoff := initialBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := n.deliver(ctx, target, ev)
		if err == nil {
			return
		}
		if attempt == maxAttempts {
			slog.Warn("webhook delivery failed, giving up",
				"url", target.URL, "id", ev.ID, "attempts", attempt, "err", err)
			return
		}
		slog.Warn("webhook delivery failed, retrying",
			"url", target.URL, "id", ev.ID, "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// deliver POSTs ev to the target URL.
// Returns nil only when the endpoint responds with a 2xx status.
func (n *Notifier) deliver(ctx context.Context, target config.WebhookConfig, ev types.FiredEvent) error {
	p := payload{
		ID:      ev.ID,
		Name:    ev.Name,
		At:      time.UnixMilli(ev.At).UTC().Format(time.RFC3339),
		FiredAt: time.UnixMilli(ev.FiredAt).UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Sign the request body when a secret is provided.
	if target.Secret != "" {
		mac := hmac.New(sha256.New, []byte(target.Secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Remindd-Signature", "sha256="+sig)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: POST to %s: %w", target.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}
	return nil
}
