package internal

import "container/heap"

// DeadlineQueue is a min-heap of record deadlines with O(1) key lookup.
// The reaper peeks the earliest deadline each cycle and pops entries that are
// due; when a record is rewritten or deleted its queued deadline is updated
// or removed directly by key.
//
// Thread-safety: not safe for concurrent use. Each shard's reaper goroutine
// is the only accessor of its queue.
type DeadlineQueue struct {
	items []*deadlineItem
	byKey map[UintKey]*deadlineItem
}

type deadlineItem struct {
	Key      UintKey
	Deadline uint64 // unix seconds
	index    int    // position in the heap, maintained by container/heap
}

// NewDeadlineQueue creates an empty queue.
func NewDeadlineQueue() *DeadlineQueue {
	return &DeadlineQueue{
		byKey: make(map[UintKey]*deadlineItem),
	}
}

// Set inserts a deadline for a key or updates the existing one.
func (q *DeadlineQueue) Set(key UintKey, deadline uint64) {
	if it, ok := q.byKey[key]; ok {
		it.Deadline = deadline
		heap.Fix(q, it.index)
		return
	}
	heap.Push(q, &deadlineItem{Key: key, Deadline: deadline})
}

// Remove drops the deadline for a key, if any.
func (q *DeadlineQueue) Remove(key UintKey) {
	if it, ok := q.byKey[key]; ok {
		heap.Remove(q, it.index)
	}
}

// PopDue removes and returns the key with the earliest deadline if that
// deadline is <= nowUnix. The bool reports whether a key was returned.
func (q *DeadlineQueue) PopDue(nowUnix uint64) (UintKey, bool) {
	if len(q.items) == 0 || q.items[0].Deadline > nowUnix {
		return 0, false
	}
	it := heap.Pop(q).(*deadlineItem)
	return it.Key, true
}

// Len returns the number of queued deadlines.
func (q *DeadlineQueue) Len() int { return len(q.items) }

// --------------------------------------------------------------------------
// heap.Interface
// --------------------------------------------------------------------------

func (q *DeadlineQueue) Less(i, j int) bool { return q.items[i].Deadline < q.items[j].Deadline }

func (q *DeadlineQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *DeadlineQueue) Push(x interface{}) {
	it := x.(*deadlineItem)
	it.index = len(q.items)
	q.items = append(q.items, it)
	q.byKey[it.Key] = it
}

func (q *DeadlineQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	q.items = old[:n-1]
	delete(q.byKey, it.Key)
	return it
}
