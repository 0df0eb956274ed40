// Package store defines the Store abstraction through which reminder records
// are persisted and retrieved.
//
// Design principle: the store is the single source of truth for reminder
// content and status. The scheduler holds references only, and the lifecycle
// service is the store's only writer — nothing else touches status or
// fired_at. The uniqueness-per-PENDING-name constraint lives here, inside the
// store's transactions, so it stays correct even with several lifecycle
// instances sharing one database.
package store

import (
	"errors"

	"github.com/sneh-joshi/remindd/internal/types"
)

// ErrNotFound is returned when a reminder does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the durable CRUD contract the lifecycle depends on.
//
// Implementations:
//   - bolt.Store — single-node, bbolt-backed.
//
// All methods must be safe for concurrent use.
type Store interface {
	// InsertIfNotExists atomically creates a PENDING reminder unless one with
	// the same name is already PENDING. It returns the created record, or
	// (nil, nil) when the uniqueness constraint rejected the insert. The
	// check and the insert happen in one transaction — callers never need a
	// separate existence check first.
	InsertIfNotExists(name string, at int64) (*types.Reminder, error)

	// GetPendingByName returns the PENDING reminder with the given name.
	// Returns ErrNotFound if no such reminder is currently pending.
	GetPendingByName(name string) (*types.Reminder, error)

	// List returns all reminders with the given status, ordered ascending by
	// At (ties broken by ID, which is time-sortable).
	List(status types.Status) ([]*types.Reminder, error)

	// SetFiredStatus conditionally transitions the reminder from PENDING to
	// FIRED and stamps firedAt. It returns the updated record, or (nil, nil)
	// when no transition happened — the id is unknown or the reminder already
	// fired. The conditional form makes a second call for the same id a
	// no-op, which is what absorbs stale queue entries after crash recovery.
	SetFiredStatus(id string, firedAt int64) (*types.Reminder, error)

	// Close flushes pending writes and releases the database.
	Close() error
}
