package cover

import (
	"container/heap"
	"time"

	"github.com/busprobridge/core/internal/device"
)

// deadlineItem is one scheduled absolute-time STOP for a cover.
type deadlineItem struct {
	addr  device.Address
	due   time.Time
	index int
}

type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *deadlineHeap) Push(x any) {
	it := x.(*deadlineItem)
	it.index = len(*h)
	*h = append(*h, it)
}
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	it.index = -1
	*h = old[:n-1]
	return it
}

// DeadlineQueue is a priority queue of absolute-time STOP deadlines, one
// per cover address, backed by container/heap. It models spec.md's
// "coroutine-based cover engine" design note: an explicit per-cover state
// record plus a single scheduler task driven by a priority queue of
// absolute deadlines, rather than a timer goroutine per cover.
type DeadlineQueue struct {
	h     deadlineHeap
	items map[device.Address]*deadlineItem
}

// NewDeadlineQueue returns an empty queue.
func NewDeadlineQueue() *DeadlineQueue {
	return &DeadlineQueue{items: make(map[device.Address]*deadlineItem)}
}

// Schedule sets (or replaces) the STOP deadline for addr. A new deadline
// for an address that already has one cancels the old deadline — this is
// how SET_POSITION recomputes the remaining time when a command's bus
// confirmation arrives later than expected.
func (q *DeadlineQueue) Schedule(addr device.Address, due time.Time) {
	if it, ok := q.items[addr]; ok {
		it.due = due
		heap.Fix(&q.h, it.index)
		return
	}
	it := &deadlineItem{addr: addr, due: due}
	q.items[addr] = it
	heap.Push(&q.h, it)
}

// Cancel removes any pending deadline for addr.
func (q *DeadlineQueue) Cancel(addr device.Address) {
	it, ok := q.items[addr]
	if !ok {
		return
	}
	heap.Remove(&q.h, it.index)
	delete(q.items, addr)
}

// NextDue returns the earliest pending deadline and whether one exists.
func (q *DeadlineQueue) NextDue() (time.Time, bool) {
	if q.h.Len() == 0 {
		return time.Time{}, false
	}
	return q.h[0].due, true
}

// PopDue removes and returns every address whose deadline is at or before
// now.
func (q *DeadlineQueue) PopDue(now time.Time) []device.Address {
	var due []device.Address
	for q.h.Len() > 0 && !q.h[0].due.After(now) {
		it := heap.Pop(&q.h).(*deadlineItem)
		delete(q.items, it.addr)
		due = append(due, it.addr)
	}
	return due
}

// Len reports the number of pending deadlines.
func (q *DeadlineQueue) Len() int {
	return q.h.Len()
}
