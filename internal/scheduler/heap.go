package scheduler

import "container/heap"

// entry is one element of the scheduler Min-Heap.
type entry struct {
	id string // reminder ULID
	at int64  // UTC milliseconds — primary sort key

	// seq is a monotonically increasing insertion counter. It breaks ties
	// between entries with equal at so that they fire in push order (FIFO)
	// rather than in whatever order the heap happens to settle.
	seq uint64

	// heapIdx is the entry's current position in the heap slice.
	// Maintained by minHeap.Swap so we can do O(log N) removal via heap.Remove.
	heapIdx int

	// cancelled marks an entry for lazy deletion.
	// Cancelled entries are discarded by the delivery goroutine instead of
	// fired. Lazy deletion avoids an extra O(log N) heap.Remove in the common
	// path.
	cancelled bool
}

// minHeap is a slice of *entry that satisfies heap.Interface.
// The soonest-due entry sits at index 0.
type minHeap []*entry

func (h minHeap) Len() int { return len(h) }

func (h minHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h minHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *minHeap) Push(x any) {
	n := len(*h)
	e := x.(*entry)
	e.heapIdx = n
	*h = append(*h, e)
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil  // allow GC
	e.heapIdx = -1  // mark as not in heap
	*h = old[:n-1]
	return e
}

// remove removes the entry at position idx and re-heapifies in O(log N).
func (h *minHeap) remove(idx int) *entry {
	return heap.Remove(h, idx).(*entry)
}
