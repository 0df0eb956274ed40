// Package scheduler implements the delay queue that fires reminder callbacks
// at their scheduled instant.
//
// Core design principle:
//   - DB scan WHERE at <= NOW() → O(N) — gets slower as reminders grow.
//   - Min-Heap peek              → O(1) — constant regardless of size.
//   - Min-Heap insert            → O(log N) — fast.
//
// The delivery goroutine peeks at the heap root (the soonest-due reminder),
// sleeps until that point, then pops and fires the callback. A buffered notify
// channel lets Push interrupt the sleep early whenever a newly added reminder
// is due sooner than the current root, so there is never more than one
// outstanding wait.
//
// The queue holds references only — a reminder ID plus its fire time. Content
// and status live in the store; the lifecycle service resolves the ID when the
// callback fires. This keeps the queue from ever serving a stale in-memory
// copy of a record another path has already updated.
package scheduler

import "context"

// Item is one scheduled entry: a reminder reference and its fire time in UTC
// milliseconds.
type Item struct {
	ID string
	At int64
}

// Queue is the scheduling backend contract the lifecycle service depends on.
//
// Implementations:
//   - Memory  — in-process min-heap with a single timer goroutine.
//   - Durable — Memory plus a bbolt-persisted copy of the schedule.
type Queue interface {
	// Start launches the delivery goroutine. fire is invoked with the
	// reminder ID of each due entry, in ascending At order (FIFO among equal
	// At values). fire runs outside any queue lock and must not block for
	// long. Start must be called exactly once.
	Start(ctx context.Context, fire func(id string))

	// Push inserts one entry. Pushing an ID that is already queued replaces
	// the previous entry. If the new entry is due sooner than everything
	// currently queued, the outstanding wait is preempted and re-armed.
	Push(id string, at int64)

	// Load replaces the entire pending set with items. Used once at startup;
	// safe to call with an empty slice.
	Load(items []Item)

	// Clear discards the outstanding wait and empties the set.
	Clear()

	// Close stops the delivery goroutine and waits for it to exit. Entries
	// still queued are silently abandoned. Close is idempotent.
	Close() error
}
