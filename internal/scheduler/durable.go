package scheduler

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"go.etcd.io/bbolt"

	"github.com/sneh-joshi/remindd/internal/clock"
)

var bucketSchedule = []byte("schedule")

// Durable is a Queue that keeps a bbolt-persisted copy of the schedule
// alongside an in-memory Memory queue.
//
// Ordering and timing are delegated entirely to the embedded Memory queue;
// bbolt only mirrors the {id, at} set so that a restarted process can re-arm
// without consulting the reminder store. The lifecycle's bootstrap path still
// works with this backend — its Load simply rewrites the mirrored set.
//
// bbolt is used for the same reasons it backs the reminder store: pure Go,
// ACID, single file, and consistent after a crash.
type Durable struct {
	mem *Memory
	db  *bbolt.DB
}

var _ Queue = (*Durable)(nil)

// OpenDurable opens (or creates) the schedule database at path and returns a
// Durable queue reading time from clk.
func OpenDurable(path string, clk clock.Clock) (*Durable, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("scheduler: open schedule db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSchedule)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("scheduler: init schedule bucket: %w", err)
	}
	return &Durable{mem: NewMemory(clk), db: db}, nil
}

// Start recovers any persisted entries into the in-memory heap, then launches
// the delivery goroutine. The fire callback is wrapped so the mirrored entry
// is dropped before the caller's callback runs — a crash between the two
// re-fires the entry on restart, which the lifecycle's CAS absorbs as a
// benign no-op.
func (d *Durable) Start(ctx context.Context, fire func(id string)) {
	recovered := d.snapshot()
	if len(recovered) > 0 {
		d.mem.Load(recovered)
	}
	d.mem.Start(ctx, func(id string) {
		if err := d.delete(id); err != nil {
			slog.Warn("scheduler: drop persisted schedule entry", "id", id, "err", err)
		}
		fire(id)
	})
}

// Push persists the entry, then hands it to the in-memory queue. A persist
// failure is logged and the entry is still scheduled in memory — firing once
// without durability beats not firing at all.
func (d *Durable) Push(id string, at int64) {
	if err := d.put(id, at); err != nil {
		slog.Warn("scheduler: persist schedule entry", "id", id, "err", err)
	}
	d.mem.Push(id, at)
}

// Load rewrites the persisted set to exactly items, then replaces the
// in-memory set.
func (d *Durable) Load(items []Item) {
	err := d.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSchedule); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketSchedule)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := b.Put([]byte(it.ID), encodeAt(it.At)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Warn("scheduler: rewrite persisted schedule", "err", err)
	}
	d.mem.Load(items)
}

// Clear empties both the persisted and the in-memory set.
func (d *Durable) Clear() {
	d.Load(nil)
}

// Close stops the delivery goroutine and closes the schedule database.
func (d *Durable) Close() error {
	if err := d.mem.Close(); err != nil {
		return err
	}
	return d.db.Close()
}

// Len returns the number of entries currently scheduled in memory.
func (d *Durable) Len() int { return d.mem.Len() }

// Wake forces an immediate due check on the in-memory queue.
func (d *Durable) Wake() { d.mem.Wake() }

// snapshot reads all persisted entries.
func (d *Durable) snapshot() []Item {
	var items []Item
	_ = d.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSchedule).ForEach(func(k, v []byte) error {
			items = append(items, Item{ID: string(k), At: decodeAt(v)})
			return nil
		})
	})
	return items
}

func (d *Durable) put(id string, at int64) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSchedule).Put([]byte(id), encodeAt(at))
	})
}

func (d *Durable) delete(id string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSchedule).Delete([]byte(id))
	})
}

// encodeAt stores the fire time as 8 big-endian bytes so entries sort by time
// when inspected with bbolt tooling.
func encodeAt(at int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(at))
	return buf
}

func decodeAt(v []byte) int64 {
	if len(v) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(v))
}
