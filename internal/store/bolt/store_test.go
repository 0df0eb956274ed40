package bolt_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sneh-joshi/remindd/internal/clock"
	"github.com/sneh-joshi/remindd/internal/store"
	"github.com/sneh-joshi/remindd/internal/store/bolt"
	"github.com/sneh-joshi/remindd/internal/types"
)

var testEpoch = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) (*bolt.Store, *clock.Fixed) {
	t.Helper()
	clk := clock.NewFixed(testEpoch)
	s, err := bolt.Open(filepath.Join(t.TempDir(), "reminders.db"), clk)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func TestInsertIfNotExists_CreatesPendingReminder(t *testing.T) {
	s, clk := openStore(t)

	at := clk.Now().Add(time.Minute).UnixMilli()
	rem, err := s.InsertIfNotExists("demo", at)
	if err != nil {
		t.Fatalf("InsertIfNotExists: %v", err)
	}
	if rem == nil {
		t.Fatal("expected a created reminder, got nil")
	}
	if rem.Status != types.StatusPending {
		t.Errorf("status: want pending, got %s", rem.Status)
	}
	if rem.At != at {
		t.Errorf("at: want %d, got %d", at, rem.At)
	}
	if rem.CreatedAt != clk.Now().UnixMilli() {
		t.Errorf("created_at: want %d, got %d", clk.Now().UnixMilli(), rem.CreatedAt)
	}
	if rem.FiredAt != 0 {
		t.Errorf("fired_at must be zero while pending, got %d", rem.FiredAt)
	}
	if len(rem.ID) != 26 {
		t.Errorf("id should be a 26-char ULID, got %q", rem.ID)
	}
}

func TestInsertIfNotExists_RejectsDuplicatePendingName(t *testing.T) {
	s, clk := openStore(t)

	at := clk.Now().Add(time.Minute).UnixMilli()
	first, err := s.InsertIfNotExists("demo", at)
	if err != nil || first == nil {
		t.Fatalf("first insert: rem=%v err=%v", first, err)
	}

	dup, err := s.InsertIfNotExists("demo", at+1000)
	if err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	if dup != nil {
		t.Fatalf("expected nil for duplicate pending name, got %+v", dup)
	}

	existing, err := s.GetPendingByName("demo")
	if err != nil {
		t.Fatalf("GetPendingByName: %v", err)
	}
	if existing.ID != first.ID {
		t.Errorf("existing pending reminder changed: %s != %s", existing.ID, first.ID)
	}
}

func TestInsertIfNotExists_NameReusableAfterFire(t *testing.T) {
	s, clk := openStore(t)

	at := clk.Now().Add(time.Minute).UnixMilli()
	first, _ := s.InsertIfNotExists("demo", at)
	if _, err := s.SetFiredStatus(first.ID, at); err != nil {
		t.Fatalf("SetFiredStatus: %v", err)
	}

	second, err := s.InsertIfNotExists("demo", at+60_000)
	if err != nil {
		t.Fatalf("insert after fire: %v", err)
	}
	if second == nil {
		t.Fatal("expected name to be reusable after the first reminder fired")
	}
	if second.ID == first.ID {
		t.Error("reused name must produce a new reminder id")
	}
}

func TestGetPendingByName_NotFound(t *testing.T) {
	s, _ := openStore(t)

	_, err := s.GetPendingByName("nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestSetFiredStatus_TransitionsOnce(t *testing.T) {
	s, clk := openStore(t)

	at := clk.Now().Add(time.Minute).UnixMilli()
	rem, _ := s.InsertIfNotExists("demo", at)

	firedAt := clk.Advance(time.Minute).UnixMilli()
	fired, err := s.SetFiredStatus(rem.ID, firedAt)
	if err != nil {
		t.Fatalf("SetFiredStatus: %v", err)
	}
	if fired == nil {
		t.Fatal("expected transitioned reminder, got nil")
	}
	if fired.Status != types.StatusFired {
		t.Errorf("status: want fired, got %s", fired.Status)
	}
	if fired.FiredAt != firedAt {
		t.Errorf("fired_at: want %d, got %d", firedAt, fired.FiredAt)
	}

	// Second CAS for the same id must be a no-op.
	again, err := s.SetFiredStatus(rem.ID, firedAt+1000)
	if err != nil {
		t.Fatalf("second SetFiredStatus: %v", err)
	}
	if again != nil {
		t.Fatalf("second transition must be a no-op, got %+v", again)
	}

	// fired_at must not have moved.
	fireds, err := s.List(types.StatusFired)
	if err != nil {
		t.Fatalf("List(fired): %v", err)
	}
	if len(fireds) != 1 || fireds[0].FiredAt != firedAt {
		t.Errorf("fired_at changed on repeated CAS: %+v", fireds)
	}
}

func TestSetFiredStatus_UnknownIDIsNoop(t *testing.T) {
	s, clk := openStore(t)

	rem, err := s.SetFiredStatus("01AN4Z07BY79KA1307SR9X4MV3", clk.Now().UnixMilli())
	if err != nil {
		t.Fatalf("SetFiredStatus: %v", err)
	}
	if rem != nil {
		t.Fatalf("unknown id must be a no-op, got %+v", rem)
	}
}

func TestList_FiltersByStatusAndOrdersByAt(t *testing.T) {
	s, clk := openStore(t)

	base := clk.Now()
	late, _ := s.InsertIfNotExists("late", base.Add(3*time.Minute).UnixMilli())
	early, _ := s.InsertIfNotExists("early", base.Add(time.Minute).UnixMilli())
	mid, _ := s.InsertIfNotExists("mid", base.Add(2*time.Minute).UnixMilli())

	if _, err := s.SetFiredStatus(mid.ID, base.UnixMilli()); err != nil {
		t.Fatalf("SetFiredStatus: %v", err)
	}

	pending, err := s.List(types.StatusPending)
	if err != nil {
		t.Fatalf("List(pending): %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("want 2 pending, got %d", len(pending))
	}
	if pending[0].ID != early.ID || pending[1].ID != late.ID {
		t.Errorf("pending not ordered by at: %s, %s", pending[0].Name, pending[1].Name)
	}

	fired, err := s.List(types.StatusFired)
	if err != nil {
		t.Fatalf("List(fired): %v", err)
	}
	if len(fired) != 1 || fired[0].ID != mid.ID {
		t.Errorf("want only %s fired, got %+v", mid.ID, fired)
	}
}

func TestOpen_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reminders.db")
	clk := clock.NewFixed(testEpoch)

	s1, err := bolt.Open(path, clk)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rem, _ := s1.InsertIfNotExists("demo", clk.Now().Add(time.Minute).UnixMilli())
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := bolt.Open(path, clk)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetPendingByName("demo")
	if err != nil {
		t.Fatalf("GetPendingByName after reopen: %v", err)
	}
	if got.ID != rem.ID {
		t.Errorf("reminder lost across reopen: %s != %s", got.ID, rem.ID)
	}
}
