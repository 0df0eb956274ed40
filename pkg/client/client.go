// Package client is the official Go SDK for remindd.
//
// # Quick start
//
//	c := client.New("http://localhost:8080")
//
//	// Create a reminder (idempotent by name)
//	rem, created, err := c.Add(ctx, "standup", time.Now().Add(time.Hour))
//
//	// List pending reminders
//	rems, err := c.List(ctx, "PENDING")
//
//	// Stream fired events over the WebSocket gateway
//	sub, err := c.Subscribe(ctx)
//	for ev := range sub.Events() {
//	    fmt.Println("fired:", ev.Name)
//	}
//
// # Error handling
//
// REST methods return an *APIError when the server responds with a non-2xx
// status code. Check errors.As(err, &client.APIError{}) to inspect the HTTP
// status and server message.
//
// # Connection reuse
//
// Client is safe for concurrent use. It shares a single http.Client internally
// so connections are reused across goroutines.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ─── Error type ───────────────────────────────────────────────────────────────

// APIError is returned when the remindd server responds with a non-2xx status.
type APIError struct {
	StatusCode int    // HTTP status code
	Message    string // "error" field from the JSON response body
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remindd: server returned %d: %s", e.StatusCode, e.Message)
}

// IsValidation reports whether the error is a 400 from the server.
func IsValidation(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusBadRequest
}

// ─── Wire types ───────────────────────────────────────────────────────────────

// Reminder mirrors the server's reminder record. Timestamps are Unix
// milliseconds UTC.
type Reminder struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	At        int64  `json:"at"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	FiredAt   int64  `json:"fired_at,omitempty"`
}

// AtTime returns the scheduled fire time as a time.Time.
func (r *Reminder) AtTime() time.Time { return time.UnixMilli(r.At).UTC() }

// FiredEvent is delivered on a Subscription when a reminder fires.
type FiredEvent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	At      string `json:"at"`
	FiredAt string `json:"fired_at"`
}

// ─── Client options ───────────────────────────────────────────────────────────

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the API key sent in every request as the X-Api-Key header.
// Required when the server has auth.enabled = true.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default http.Client.
// Use this to configure TLS, proxies, or request tracing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
// The default is 30 seconds.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// ─── Client ───────────────────────────────────────────────────────────────────

// Client is the remindd API client. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a new Client that connects to the remindd server at baseURL.
//
//	c := client.New("http://localhost:8080")
//	c := client.New("http://remindd.example.com", client.WithAPIKey("secret"))
func New(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ─── REST operations ──────────────────────────────────────────────────────────

// Add creates a reminder named name firing at the given time. If a PENDING
// reminder with the same name already exists, the existing reminder is
// returned and created is false; the requested fire time is ignored.
func (c *Client) Add(ctx context.Context, name string, at time.Time) (rem *Reminder, created bool, err error) {
	body := map[string]string{
		"name": name,
		"at":   at.UTC().Format(time.RFC3339),
	}
	var resp struct {
		Reminder *Reminder `json:"reminder"`
		Created  bool      `json:"created"`
	}
	if err := c.do(ctx, http.MethodPost, "/reminders", body, &resp); err != nil {
		return nil, false, err
	}
	return resp.Reminder, resp.Created, nil
}

// List returns reminders filtered by status ("PENDING" or "FIRED").
// An empty status defaults to PENDING.
func (c *Client) List(ctx context.Context, status string) ([]*Reminder, error) {
	path := "/reminders"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Reminders []*Reminder `json:"reminders"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Reminders, nil
}

// Health checks server liveness and returns the server's node ID.
func (c *Client) Health(ctx context.Context) (nodeID string, err error) {
	var resp struct {
		Status string `json:"status"`
		NodeID string `json:"node_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.NodeID, nil
}

// do executes a single JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
