// Package bolt is the bbolt-backed Store implementation.
//
// Layout (single file, reminders.db):
//
//	bucket "reminders"     — reminder ID (ULID) → JSON-encoded record
//	bucket "pending_names" — reminder name → reminder ID, for PENDING rows only
//
// The pending_names bucket is the partial unique index: a name has an entry
// iff a PENDING reminder with that name exists. InsertIfNotExists and
// SetFiredStatus maintain it inside the same bbolt Update transaction that
// touches the record, so the "at most one PENDING per name" invariant can
// never be observed broken, even after a crash.
//
// bbolt is chosen because it is pure Go (no CGO, no external process), ACID,
// and a single file per database.
package bolt

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/sneh-joshi/remindd/internal/clock"
	"github.com/sneh-joshi/remindd/internal/node"
	"github.com/sneh-joshi/remindd/internal/store"
	"github.com/sneh-joshi/remindd/internal/types"
)

var (
	bucketReminders    = []byte("reminders")
	bucketPendingNames = []byte("pending_names")
)

// Store is the bbolt-backed reminder store.
type Store struct {
	db  *bbolt.DB
	clk clock.Clock
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the reminder database at path. created_at stamps
// are read from clk.
func Open(path string, clk clock.Clock) (*Store, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: 0})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketReminders); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketPendingNames)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: init buckets: %w", err)
	}

	return &Store{db: db, clk: clk}, nil
}

// InsertIfNotExists creates a PENDING reminder unless the name is already
// taken by a PENDING one. Returns (nil, nil) on conflict.
func (s *Store) InsertIfNotExists(name string, at int64) (*types.Reminder, error) {
	id, err := node.NewID()
	if err != nil {
		return nil, fmt.Errorf("bolt: mint reminder id: %w", err)
	}

	rem := &types.Reminder{
		ID:        id,
		Name:      name,
		At:        at,
		Status:    types.StatusPending,
		CreatedAt: s.clk.Now().UnixMilli(),
	}

	var created bool
	err = s.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketPendingNames)
		if names.Get([]byte(name)) != nil {
			return nil // a PENDING reminder with this name already exists
		}

		val, err := json.Marshal(rem)
		if err != nil {
			return fmt.Errorf("marshal reminder %s: %w", id, err)
		}
		if err := tx.Bucket(bucketReminders).Put([]byte(id), val); err != nil {
			return err
		}
		if err := names.Put([]byte(name), []byte(id)); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: insert: %w", err)
	}
	if !created {
		return nil, nil
	}
	return rem, nil
}

// GetPendingByName resolves name through the pending_names index.
func (s *Store) GetPendingByName(name string) (*types.Reminder, error) {
	var rem *types.Reminder

	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketPendingNames).Get([]byte(name))
		if id == nil {
			return store.ErrNotFound
		}
		val := tx.Bucket(bucketReminders).Get(id)
		if val == nil {
			// Index points at a missing record — should be impossible given
			// single-transaction maintenance.
			return fmt.Errorf("bolt: pending index for %q references missing id %s: %w",
				name, id, store.ErrNotFound)
		}
		var r types.Reminder
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("bolt: decode reminder %s: %w", id, err)
		}
		rem = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rem, nil
}

// List returns all reminders with the given status ordered ascending by At,
// ties broken by ID.
func (s *Store) List(status types.Status) ([]*types.Reminder, error) {
	var out []*types.Reminder

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReminders).ForEach(func(k, v []byte) error {
			var r types.Reminder
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("bolt: decode reminder %s: %w", k, err)
			}
			if r.Status == status {
				out = append(out, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].At != out[j].At {
			return out[i].At < out[j].At
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// SetFiredStatus transitions id from PENDING to FIRED. Returns (nil, nil)
// when the id is unknown or the reminder is not PENDING.
func (s *Store) SetFiredStatus(id string, firedAt int64) (*types.Reminder, error) {
	var rem *types.Reminder

	err := s.db.Update(func(tx *bbolt.Tx) error {
		reminders := tx.Bucket(bucketReminders)
		val := reminders.Get([]byte(id))
		if val == nil {
			return nil // unknown id — conditional update matches no row
		}

		var r types.Reminder
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("bolt: decode reminder %s: %w", id, err)
		}
		if r.Status != types.StatusPending {
			return nil // already fired — no-op
		}

		r.Status = types.StatusFired
		r.FiredAt = firedAt

		updated, err := json.Marshal(&r)
		if err != nil {
			return fmt.Errorf("bolt: marshal reminder %s: %w", id, err)
		}
		if err := reminders.Put([]byte(id), updated); err != nil {
			return err
		}
		// The name becomes reusable the instant the record leaves PENDING.
		if err := tx.Bucket(bucketPendingNames).Delete([]byte(r.Name)); err != nil {
			return err
		}
		rem = &r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: set fired: %w", err)
	}
	return rem, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.db.Close()
}
