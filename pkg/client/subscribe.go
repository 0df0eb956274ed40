package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	gorillaws "github.com/gorilla/websocket"
)

// Frame types and error codes mirrored from the gateway protocol.
const (
	typeAddReminder   = "C2S_ADD_REMINDER"
	typeReminderAdded = "S2C_REMINDER_ADDED"
	typeReminderFired = "S2C_REMINDER_FIRED"
	typeError         = "ERROR"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GatewayError is an ERROR frame received over the WebSocket gateway.
type GatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("remindd gateway: %s: %s", e.Code, e.Message)
}

// Subscription is a live WebSocket connection to the gateway. Fired events
// arrive on Events until the connection drops or Close is called.
type Subscription struct {
	ws     *gorillaws.Conn
	events chan FiredEvent

	mu      sync.Mutex // guards writes to ws
	closed  sync.Once
	err     error
	closing chan struct{} // closed by Close, unblocks readLoop's event send
	done    chan struct{}
	pending chan frame // ADDED / ERROR answers to AddViaGateway
}

// Subscribe opens a WebSocket connection to the server's /ws endpoint and
// starts streaming fired-reminder events. The connection is closed when ctx
// is cancelled or Close is called.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	wsURL, err := gatewayURL(c.baseURL)
	if err != nil {
		return nil, err
	}

	hdr := http.Header{}
	if c.apiKey != "" {
		hdr.Set("X-Api-Key", c.apiKey)
	}

	conn, resp, err := gorillaws.DefaultDialer.DialContext(ctx, wsURL, hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial gateway: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	s := &Subscription{
		ws:      conn,
		events:  make(chan FiredEvent, 64),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		pending: make(chan frame, 4),
	}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// gatewayURL converts an http(s) base URL into the ws(s) gateway URL.
func gatewayURL(base string) (string, error) {
	switch {
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws", nil
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws", nil
	default:
		return "", fmt.Errorf("base URL %q must start with http:// or https://", base)
	}
}

// Events returns the channel of fired-reminder events. It is closed when the
// subscription ends; check Err afterwards for the cause.
func (s *Subscription) Events() <-chan FiredEvent { return s.events }

// Err returns the error that terminated the subscription, or nil after a
// clean Close.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close tears down the WebSocket connection. Safe to call more than once,
// and safe even when the subscriber stopped draining Events.
func (s *Subscription) Close() error {
	s.closed.Do(func() {
		close(s.closing)
		s.mu.Lock()
		_ = s.ws.WriteMessage(gorillaws.CloseMessage,
			gorillaws.FormatCloseMessage(gorillaws.CloseNormalClosure, ""))
		s.mu.Unlock()
		_ = s.ws.Close()
	})
	<-s.done
	return nil
}

// AddViaGateway creates a reminder over the subscription's WebSocket
// connection instead of a separate HTTP request. It returns the acknowledged
// reminder ID and whether a new reminder was created.
func (s *Subscription) AddViaGateway(name, atISO string) (id string, created bool, err error) {
	payload, err := json.Marshal(map[string]string{"name": name, "at": atISO})
	if err != nil {
		return "", false, err
	}
	s.mu.Lock()
	err = s.ws.WriteJSON(frame{Type: typeAddReminder, Payload: payload})
	s.mu.Unlock()
	if err != nil {
		return "", false, fmt.Errorf("write add frame: %w", err)
	}

	select {
	case f, ok := <-s.pending:
		if !ok {
			return "", false, fmt.Errorf("subscription closed: %w", s.err)
		}
		if f.Type == typeError {
			var ge GatewayError
			_ = json.Unmarshal(f.Payload, &ge)
			return "", false, &ge
		}
		var ack struct {
			ID      string `json:"id"`
			Created bool   `json:"created"`
		}
		if err := json.Unmarshal(f.Payload, &ack); err != nil {
			return "", false, fmt.Errorf("decode ack: %w", err)
		}
		return ack.ID, ack.Created, nil
	case <-s.done:
		return "", false, fmt.Errorf("subscription closed: %w", s.err)
	}
}

// readLoop demultiplexes inbound frames: fired events go to the events
// channel, everything else answers the most recent AddViaGateway call.
func (s *Subscription) readLoop() {
	defer func() {
		close(s.events)
		close(s.pending)
		close(s.done)
		_ = s.ws.Close()
	}()

	for {
		var f frame
		if err := s.ws.ReadJSON(&f); err != nil {
			if !gorillaws.IsCloseError(err, gorillaws.CloseNormalClosure) {
				s.err = err
			}
			return
		}

		switch f.Type {
		case typeReminderFired:
			var ev FiredEvent
			if json.Unmarshal(f.Payload, &ev) != nil {
				continue
			}
			// Never wedge on a subscriber that stopped draining: a pending
			// Close wins over the buffered send.
			select {
			case s.events <- ev:
			case <-s.closing:
				return
			}
		case typeReminderAdded, typeError:
			select {
			case s.pending <- f:
			default: // no waiter; drop
			}
		}
	}
}
