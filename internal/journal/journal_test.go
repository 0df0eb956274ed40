package journal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sneh-joshi/remindd/internal/journal"
	"github.com/sneh-joshi/remindd/internal/node"
	"github.com/sneh-joshi/remindd/internal/types"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

func openJournal(t *testing.T) (*journal.Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.dat")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func makeEvent(t *testing.T, name string, firedAt int64) types.FiredEvent {
	t.Helper()
	return types.FiredEvent{
		ID:      node.MustNewID(),
		Name:    name,
		At:      firedAt - 1000,
		FiredAt: firedAt,
	}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestJournal_AppendAndEntries(t *testing.T) {
	j, _ := openJournal(t)

	ev1 := makeEvent(t, "standup", 1000)
	ev2 := makeEvent(t, "coffee", 2000)

	seq1, err := j.Append(ev1)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	seq2, err := j.Append(ev2)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if seq1 != 1 || seq2 != 2 {
		t.Fatalf("sequences: want 1,2 got %d,%d", seq1, seq2)
	}

	entries, err := j.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != ev1.ID || entries[0].Event.Name != "standup" {
		t.Errorf("entry 0 mismatch: %+v", entries[0])
	}
	if entries[1].Event.FiredAt != 2000 {
		t.Errorf("entry 1 fired_at: want 2000, got %d", entries[1].Event.FiredAt)
	}
}

// TestJournal_SeqSurvivesReopen verifies the sequence counter continues after
// a restart instead of reissuing old sequence numbers.
func TestJournal_SeqSurvivesReopen(t *testing.T) {
	j, path := openJournal(t)

	if _, err := j.Append(makeEvent(t, "a", 1000)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	seq, err := reopened.Append(makeEvent(t, "b", 2000))
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if seq != 2 {
		t.Fatalf("seq after reopen: want 2, got %d", seq)
	}

	n, err := reopened.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 2 {
		t.Fatalf("Len: want 2, got %d", n)
	}
}

// TestJournal_TornTailIsIgnored verifies that a partial trailing write (crash
// mid-append) is skipped without losing earlier entries.
func TestJournal_TornTailIsIgnored(t *testing.T) {
	j, path := openJournal(t)

	if _, err := j.Append(makeEvent(t, "kept", 1000)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a torn write: garbage bytes where the next entry would start.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.Write([]byte{0x00, 0x00, 0x00, 0xFF, 0xDE, 0xAD}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	_ = f.Close()

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Event.Name != "kept" {
		t.Fatalf("expected only the intact entry, got %+v", entries)
	}
}

// TestJournal_OversizedLengthPrefixIsIgnored verifies that a corrupt length
// prefix claiming more bytes than the file holds is treated as a torn tail
// rather than driving a huge allocation.
func TestJournal_OversizedLengthPrefixIsIgnored(t *testing.T) {
	j, path := openJournal(t)

	if _, err := j.Append(makeEvent(t, "kept", 1000)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Claim a ~4 GiB entry with no data behind it.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}); err != nil {
		t.Fatalf("write corrupt prefix: %v", err)
	}
	_ = f.Close()

	reopened, err := journal.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Event.Name != "kept" {
		t.Fatalf("expected only the intact entry, got %+v", entries)
	}
}

func TestJournal_RejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.dat")
	if err := os.WriteFile(path, []byte("not a journal"), 0o640); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := journal.Open(path); err == nil {
		t.Fatal("expected error opening a non-journal file")
	}
}
