package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/sneh-joshi/remindd/internal/clock"
)

// Memory is the in-process Queue implementation.
//
// Usage:
//
//	q := scheduler.NewMemory(clock.System{})
//	q.Start(ctx, func(id string) {
//	    // resolve id against the store and fire
//	})
//	defer q.Close()
//
//	q.Push("01...", time.Now().Add(time.Hour).UnixMilli())
//
// All methods are safe for concurrent use. The delivery goroutine is the only
// place a timer is armed, so at most one wait is outstanding at any time.
type Memory struct {
	clk clock.Clock

	mu   sync.Mutex
	h    minHeap
	byID map[string]*entry // reminder ID → entry for O(1) replace on re-Push
	seq  uint64            // insertion counter for FIFO tie-break

	// notify is a buffered channel of capacity 1.
	// Push/Load/Wake send a signal whenever the delivery goroutine should
	// re-evaluate its sleep duration.
	notify chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Queue = (*Memory)(nil)

// NewMemory creates a Memory queue that reads time from clk.
// Call Start to begin delivering.
func NewMemory(clk clock.Clock) *Memory {
	h := make(minHeap, 0, 64)
	heap.Init(&h)
	return &Memory{
		clk:    clk,
		h:      h,
		byID:   make(map[string]*entry),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the background delivery goroutine.
// fire is called from that goroutine for each entry whose at has arrived,
// outside the queue's lock — it must not block for long.
func (m *Memory) Start(ctx context.Context, fire func(id string)) {
	m.wg.Add(1)
	go m.run(ctx, fire)
}

// Push inserts one entry preserving ascending-at order. A Push with an ID
// already queued replaces the old entry cleanly.
func (m *Memory) Push(id string, at int64) {
	m.mu.Lock()
	m.insertLocked(id, at)
	m.mu.Unlock()
	m.wake()
}

// Load replaces the entire pending set with items and re-derives the next
// wake. An empty slice leaves the queue with nothing scheduled.
func (m *Memory) Load(items []Item) {
	m.mu.Lock()
	m.resetLocked()
	for _, it := range items {
		m.insertLocked(it.ID, it.At)
	}
	m.mu.Unlock()
	m.wake()
}

// Clear empties the set. The delivery goroutine retires its wait on the next
// wake and goes idle.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
	m.wake()
}

// Close stops the delivery goroutine and waits for it to exit.
// Entries still queued are silently abandoned.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
	return nil
}

// Len returns the number of currently queued (non-cancelled) entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Wake forces the delivery goroutine to re-run its due check immediately.
// Needed when the injected clock advances without a Push (fixed clocks in
// tests); harmless otherwise.
func (m *Memory) Wake() { m.wake() }

// insertLocked adds (or replaces) the entry for id. MUST hold m.mu.
func (m *Memory) insertLocked(id string, at int64) {
	if prev, ok := m.byID[id]; ok {
		prev.cancelled = true
		m.h.remove(prev.heapIdx)
		delete(m.byID, id)
	}
	m.seq++
	e := &entry{id: id, at: at, seq: m.seq}
	heap.Push(&m.h, e)
	m.byID[id] = e
}

// resetLocked empties the heap and index. MUST hold m.mu.
func (m *Memory) resetLocked() {
	for _, e := range m.h {
		e.cancelled = true
		e.heapIdx = -1
	}
	m.h = m.h[:0]
	m.byID = make(map[string]*entry)
}

// wake signals the delivery goroutine to re-evaluate. Non-blocking: if a
// signal is already pending the goroutine will wake soon anyway.
func (m *Memory) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// ─── delivery goroutine ──────────────────────────────────────────────────────

func (m *Memory) run(ctx context.Context, fire func(id string)) {
	defer m.wg.Done()

	// t is lazily allocated when there is something to wait for. It is the
	// single outstanding timer: every re-arm goes through Stop first.
	var t *time.Timer
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()

	for {
		m.mu.Lock()
		next := m.peekLocked() // nil if heap is empty
		m.mu.Unlock()

		if next == nil {
			// Nothing scheduled — wait for a new entry or shutdown.
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case <-m.notify:
				// Something changed; loop around to re-evaluate.
			}
			continue
		}

		delay := time.UnixMilli(next.at).Sub(m.clk.Now())
		if delay <= 0 {
			// Already due — pop and fire without sleeping. Looping back here
			// drains every overdue entry in one pass before a timer is armed,
			// so a queue loaded with N past-due entries catches up immediately.
			m.mu.Lock()
			e := m.popLocked()
			m.mu.Unlock()
			if e != nil && !e.cancelled {
				fire(e.id)
			}
			continue
		}

		if t == nil {
			t = time.NewTimer(delay)
		} else {
			t.Reset(delay)
		}

		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-m.done:
			t.Stop()
			return
		case <-m.notify:
			// The set changed — an earlier entry may have arrived. Retire the
			// current wait before re-evaluating so only one timer ever exists.
			t.Stop()
			// Drain the timer channel if it fired between Reset and Stop.
			select {
			case <-t.C:
			default:
			}
			t = nil
		case <-t.C:
			t = nil
			// Timer expired — loop back; the root is now due and the drain
			// branch above pops it.
		}
	}
}

// peekLocked returns the root entry without removing it, or nil if the heap is
// empty. Lazily drains cancelled entries from the root. MUST hold m.mu.
func (m *Memory) peekLocked() *entry {
	for m.h.Len() > 0 {
		root := m.h[0]
		if root.cancelled {
			heap.Pop(&m.h)
			delete(m.byID, root.id)
			continue
		}
		return root
	}
	return nil
}

// popLocked removes and returns the root entry, or nil if the heap is empty.
// MUST hold m.mu.
func (m *Memory) popLocked() *entry {
	for m.h.Len() > 0 {
		e := heap.Pop(&m.h).(*entry)
		delete(m.byID, e.id)
		if e.cancelled {
			continue
		}
		return e
	}
	return nil
}
