package ws_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/sneh-joshi/remindd/internal/clock"
	"github.com/sneh-joshi/remindd/internal/scheduler"
	"github.com/sneh-joshi/remindd/internal/service"
	"github.com/sneh-joshi/remindd/internal/store/bolt"
	"github.com/sneh-joshi/remindd/internal/transport/ws"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

var testEpoch = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type gateway struct {
	srv *httptest.Server
	clk *clock.Fixed
	mem *scheduler.Memory
	svc *service.Service
}

func newGateway(t *testing.T) *gateway {
	t.Helper()

	clk := clock.NewFixed(testEpoch)
	st, err := bolt.Open(filepath.Join(t.TempDir(), "reminders.db"), clk)
	if err != nil {
		t.Fatalf("bolt.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mem := scheduler.NewMemory(clk)
	hub := ws.NewHub(nil)
	svc := service.New(mem, st, hub, clk)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		cancel()
		svc.Stop()
		hub.CloseAll()
		_ = mem.Close()
	})

	srv := httptest.NewServer(&ws.Handler{Svc: svc, Hub: hub})
	t.Cleanup(srv.Close)

	return &gateway{srv: srv, clk: clk, mem: mem, svc: svc}
}

func (g *gateway) dial(t *testing.T) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http")
	c, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *gorillaws.Conn, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := c.WriteJSON(ws.Frame{Type: typ, Payload: raw}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func recv(t *testing.T, c *gorillaws.Conn) ws.Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f ws.Frame
	if err := c.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func decodePayload(t *testing.T, f ws.Frame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Payload, v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Type, err)
	}
}

// ─── tests ────────────────────────────────────────────────────────────────────

func TestWS_AddReminder(t *testing.T) {
	g := newGateway(t)
	c := g.dial(t)

	at := testEpoch.Add(time.Hour).Format(time.RFC3339)
	send(t, c, ws.TypeAddReminder, ws.AddReminderPayload{Name: "demo", At: at})

	f := recv(t, c)
	if f.Type != ws.TypeReminderAdded {
		t.Fatalf("want %s, got %s (%s)", ws.TypeReminderAdded, f.Type, f.Payload)
	}
	var ack ws.ReminderAddedPayload
	decodePayload(t, f, &ack)
	if !ack.Created {
		t.Error("created: want true")
	}
	if ack.Name != "demo" || ack.ID == "" {
		t.Errorf("unexpected ack: %+v", ack)
	}
	if ack.At != at {
		t.Errorf("at: want %s, got %s", at, ack.At)
	}
}

func TestWS_DuplicateAddReturnsExisting(t *testing.T) {
	g := newGateway(t)
	c := g.dial(t)

	at := testEpoch.Add(time.Hour).Format(time.RFC3339)
	send(t, c, ws.TypeAddReminder, ws.AddReminderPayload{Name: "demo", At: at})
	var first ws.ReminderAddedPayload
	decodePayload(t, recv(t, c), &first)

	send(t, c, ws.TypeAddReminder, ws.AddReminderPayload{
		Name: "demo", At: testEpoch.Add(2 * time.Hour).Format(time.RFC3339),
	})
	f := recv(t, c)
	if f.Type != ws.TypeReminderAdded {
		t.Fatalf("want %s, got %s", ws.TypeReminderAdded, f.Type)
	}
	var second ws.ReminderAddedPayload
	decodePayload(t, f, &second)
	if second.Created {
		t.Error("created: want false for duplicate")
	}
	if second.ID != first.ID {
		t.Errorf("duplicate must return original ID: %s vs %s", second.ID, first.ID)
	}
}

func TestWS_ValidationError(t *testing.T) {
	g := newGateway(t)
	c := g.dial(t)

	send(t, c, ws.TypeAddReminder, ws.AddReminderPayload{Name: "", At: "not-a-time"})
	f := recv(t, c)
	if f.Type != ws.TypeError {
		t.Fatalf("want ERROR, got %s", f.Type)
	}
	var e ws.ErrorPayload
	decodePayload(t, f, &e)
	if e.Code != ws.CodeValidation {
		t.Errorf("code: want %s, got %s", ws.CodeValidation, e.Code)
	}
}

func TestWS_UnknownTypeAndBadPayload(t *testing.T) {
	g := newGateway(t)
	c := g.dial(t)

	send(t, c, "C2S_NOPE", struct{}{})
	f := recv(t, c)
	var e ws.ErrorPayload
	decodePayload(t, f, &e)
	if e.Code != ws.CodeUnknownType {
		t.Errorf("code: want %s, got %s", ws.CodeUnknownType, e.Code)
	}

	if err := c.WriteMessage(gorillaws.TextMessage, []byte("{oops")); err != nil {
		t.Fatalf("write raw: %v", err)
	}
	f = recv(t, c)
	decodePayload(t, f, &e)
	if e.Code != ws.CodeBadPayload {
		t.Errorf("code: want %s, got %s", ws.CodeBadPayload, e.Code)
	}
}

func TestWS_FiredBroadcastReachesAllClients(t *testing.T) {
	g := newGateway(t)
	creator := g.dial(t)
	watcher := g.dial(t)

	at := testEpoch.Add(time.Minute)
	send(t, creator, ws.TypeAddReminder, ws.AddReminderPayload{
		Name: "demo", At: at.Format(time.RFC3339),
	})
	if f := recv(t, creator); f.Type != ws.TypeReminderAdded {
		t.Fatalf("ack: want %s, got %s", ws.TypeReminderAdded, f.Type)
	}

	g.clk.Advance(2 * time.Minute)
	g.mem.Wake()

	for name, c := range map[string]*gorillaws.Conn{"creator": creator, "watcher": watcher} {
		f := recv(t, c)
		if f.Type != ws.TypeReminderFired {
			t.Fatalf("%s: want %s, got %s", name, ws.TypeReminderFired, f.Type)
		}
		var ev ws.ReminderFiredPayload
		decodePayload(t, f, &ev)
		if ev.Name != "demo" {
			t.Errorf("%s: fired name: want demo, got %s", name, ev.Name)
		}
		if ev.At != at.Format(time.RFC3339) {
			t.Errorf("%s: fired at: want %s, got %s", name, at.Format(time.RFC3339), ev.At)
		}
	}
}
