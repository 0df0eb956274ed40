// Package types contains the core domain types shared across all remindd
// internal packages. It deliberately has zero imports of other remindd packages
// so that both the storage layer and the scheduling layer can import from it
// without creating import cycles.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a reminder.
type Status uint8

const (
	// StatusPending means the reminder is scheduled and has not been
	// due-handled yet. At most one PENDING reminder exists per name.
	StatusPending Status = iota
	// StatusFired means due-handling completed: fired_at is stamped and
	// subscribers have been notified. Terminal — there is no reverse
	// transition and no deletion.
	StatusFired
)

// String returns the canonical wire form of the status: "PENDING" or "FIRED".
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusFired:
		return "FIRED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus converts a status string (as used in the HTTP API) back into a
// Status value. Matching is case-insensitive; the canonical form is uppercase.
func ParseStatus(s string) (Status, error) {
	switch strings.ToUpper(s) {
	case "PENDING":
		return StatusPending, nil
	case "FIRED":
		return StatusFired, nil
	default:
		return 0, fmt.Errorf("types: unknown status %q", s)
	}
}

// MarshalJSON encodes the status as its string form, so API clients see
// "PENDING"/"FIRED" rather than internal numeric values.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the string form in any casing.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("types: status must be a string: %w", err)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Reminder is the sole persisted entity: a named, one-shot notification
// request.
//
// Design rules:
//   - All timestamps are UTC milliseconds since Unix epoch.
//   - IDs are ULID strings: time-sortable and globally unique.
//   - Name is unique among PENDING reminders only; once a reminder fires its
//     name may be reused for a new PENDING reminder. The constraint is
//     enforced by the store, never recomputed in memory.
type Reminder struct {
	// ID is a ULID uniquely identifying this reminder. Immutable.
	ID string `json:"id"`

	// Name is the client-chosen label, non-empty and at most 256 characters.
	Name string `json:"name"`

	// At is the UTC millisecond at which the reminder becomes due. Strictly
	// in the future at creation time.
	At int64 `json:"at"`

	// Status is PENDING until the fire transition commits, then FIRED.
	Status Status `json:"status"`

	// CreatedAt is the UTC millisecond of creation. Immutable.
	CreatedAt int64 `json:"created_at"`

	// FiredAt is zero while PENDING and set exactly once, at the instant the
	// PENDING→FIRED transition is committed. FiredAt >= CreatedAt always;
	// FiredAt >= At is expected but not required (delay is tolerated).
	FiredAt int64 `json:"fired_at,omitempty"`
}

// IsDue reports whether the reminder should fire at or before nowMs.
func (r *Reminder) IsDue(nowMs int64) bool {
	return r.Status == StatusPending && r.At <= nowMs
}

// Clone returns a shallow copy of the reminder.
func (r *Reminder) Clone() *Reminder {
	c := *r
	return &c
}

// AtTime returns the fire instant as a time.Time in UTC.
func (r *Reminder) AtTime() time.Time { return time.UnixMilli(r.At).UTC() }

// FiredEvent is the payload delivered to notification sinks when a reminder
// transitions to FIRED.
type FiredEvent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	At      int64  `json:"at"`
	FiredAt int64  `json:"fired_at"`
}
