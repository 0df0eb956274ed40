// Package journal persists an append-only, crash-safe record of every fired
// reminder. It is the audit trail behind the at-least-once delivery promise:
// even if every subscriber misses a broadcast, the journal still shows the
// reminder fired and when.
//
// File layout (journal.dat):
//
//	[magic:4] then repeated entries of
//	[totalLen:4][seq:8][id:26][payloadLen:4][payload:N][checksum:4]
//
// The checksum is CRC-32 (IEEE) over everything between the length prefix and
// the checksum itself. A torn tail write fails the checksum and scanning stops
// there, so a crash mid-append never corrupts earlier entries.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sneh-joshi/remindd/internal/types"
)

// magic is the 4-byte header at the start of every journal.dat file.
// It identifies the file as a remindd journal and encodes the format version.
var magic = [4]byte{0x52, 0x44, 0x4A, 0x01} // "RDJ\x01"

// fixedSize is the fixed part of every entry after the 4-byte totalLen:
//
//	seq(8) + id(26) + payloadLen(4) + checksum(4) = 42
const fixedSize = 8 + 26 + 4 + 4

// idLen is the length of a ULID string; shorter IDs are space-padded.
const idLen = 26

// Entry is a single fired-reminder record recovered from the journal.
type Entry struct {
	Seq   uint64
	ID    string
	Event types.FiredEvent
}

// Journal is an append-only fired-event log. All methods are safe for
// concurrent use.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	path string
	seq  atomic.Uint64 // last-used sequence number
}

// Open opens (or creates) the journal at path. An existing file is scanned to
// restore the sequence counter so new entries continue the sequence.
func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	j := &Journal{file: f, path: path}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("journal: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if _, err := f.Write(magic[:]); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("journal: write magic: %w", err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("journal: sync magic: %w", err)
		}
	} else {
		var hdr [4]byte
		if _, err := f.ReadAt(hdr[:], 0); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("journal: read magic: %w", err)
		}
		if hdr != magic {
			_ = f.Close()
			return nil, fmt.Errorf("journal: %s has invalid magic header", path)
		}
		if err := j.restoreSeq(); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("journal: restore seq: %w", err)
		}
	}

	return j, nil
}

// Append durably records ev and returns the assigned sequence number.
// The entry is fsynced before Append returns.
func (j *Journal) Append(ev types.FiredEvent) (uint64, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("journal: marshal event %s: %w", ev.ID, err)
	}

	seq := j.seq.Add(1)
	entry := encodeEntry(seq, ev.ID, payload)

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Seek(0, io.SeekEnd); err != nil {
		return 0, fmt.Errorf("journal: seek seq %d: %w", seq, err)
	}
	if _, err := j.file.Write(entry); err != nil {
		return 0, fmt.Errorf("journal: append seq %d: %w", seq, err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync seq %d: %w", seq, err)
	}
	return seq, nil
}

// ReminderFired implements service.Sink: the journal can be wired directly
// into the notification fan-out. Append failures are logged, never fatal.
func (j *Journal) ReminderFired(ev types.FiredEvent) {
	if _, err := j.Append(ev); err != nil {
		slog.Error("journal append failed", "id", ev.ID, "err", err)
	}
}

// Entries returns every valid entry in the journal, oldest first.
func (j *Journal) Entries() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var out []Entry
	err := j.scan(func(seq uint64, id string, payload []byte) {
		var ev types.FiredEvent
		if json.Unmarshal(payload, &ev) == nil {
			out = append(out, Entry{Seq: seq, ID: id, Event: ev})
		}
	})
	return out, err
}

// Len reports the number of valid entries in the journal.
func (j *Journal) Len() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := 0
	err := j.scan(func(uint64, string, []byte) { n++ })
	return n, err
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("journal: sync on close: %w", err)
	}
	return j.file.Close()
}

// Path returns the filesystem path of the journal file.
func (j *Journal) Path() string { return j.path }

// ---- internal helpers -------------------------------------------------------

// encodeEntry serialises one entry.
// Layout after the 4-byte length prefix: seq(8) | id(26) | payloadLen(4) |
// payload(N) | crc(4). totalLen covers all of it including the CRC.
func encodeEntry(seq uint64, id string, payload []byte) []byte {
	totalLen := uint32(fixedSize + len(payload))

	buf := make([]byte, 0, 4+int(totalLen))
	buf = binary.BigEndian.AppendUint32(buf, totalLen)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	buf = append(buf, padID(id)...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)

	checksum := crc32.ChecksumIEEE(buf[4:])
	return binary.BigEndian.AppendUint32(buf, checksum)
}

// padID right-pads id with spaces to idLen bytes; longer IDs are truncated.
func padID(id string) []byte {
	b := make([]byte, idLen)
	for i := range b {
		b[i] = ' '
	}
	copy(b, id)
	return b
}

func trimID(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == ' ' {
		i--
	}
	return string(b[:i])
}

// scan iterates over every entry, calling fn for each one that passes the
// checksum. Scanning stops at the first corrupt or truncated entry.
func (j *Journal) scan(fn func(seq uint64, id string, payload []byte)) error {
	info, err := j.file.Stat()
	if err != nil {
		return fmt.Errorf("journal: stat: %w", err)
	}
	size := info.Size()

	offset := int64(len(magic))

	for {
		var lenBuf [4]byte
		_, err := j.file.ReadAt(lenBuf[:], offset)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("journal: read length at %d: %w", offset, err)
		}

		totalLen := binary.BigEndian.Uint32(lenBuf[:])
		// A length below the fixed layout or past the end of the file is a
		// torn or corrupt prefix; never allocate from it.
		if totalLen < fixedSize || int64(totalLen) > size-offset-4 {
			return nil
		}

		entryBuf := make([]byte, totalLen)
		if _, err := j.file.ReadAt(entryBuf, offset+4); err != nil {
			return nil // truncated tail
		}

		storedCRC := binary.BigEndian.Uint32(entryBuf[len(entryBuf)-4:])
		if storedCRC != crc32.ChecksumIEEE(entryBuf[:len(entryBuf)-4]) {
			return nil // crash mid-append
		}

		seq := binary.BigEndian.Uint64(entryBuf[:8])
		id := trimID(entryBuf[8 : 8+idLen])
		payloadLen := binary.BigEndian.Uint32(entryBuf[8+idLen:])
		var payload []byte
		start := 8 + idLen + 4
		if payloadLen > 0 && start+int(payloadLen) <= len(entryBuf)-4 {
			payload = entryBuf[start : start+int(payloadLen)]
		}

		fn(seq, id, payload)
		offset += 4 + int64(totalLen)
	}
}

// restoreSeq scans existing entries and sets seq to the highest value seen.
func (j *Journal) restoreSeq() error {
	var maxSeq uint64
	if err := j.scan(func(seq uint64, _ string, _ []byte) {
		if seq > maxSeq {
			maxSeq = seq
		}
	}); err != nil {
		return err
	}
	j.seq.Store(maxSeq)
	return nil
}
