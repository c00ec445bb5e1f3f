package internal

import (
	"sort"
	"testing"

	"github.com/StefanHein/binKV/lib/record"
)

// TestNewDeadlineQueue tests the creation of a new DeadlineQueue
func TestNewDeadlineQueue(t *testing.T) {
	q := NewDeadlineQueue()

	if q == nil {
		t.Fatal("NewDeadlineQueue() returned nil")
	}

	if q.Len() != 0 {
		t.Errorf("New queue should be empty, but has length %d", q.Len())
	}

	if _, ok := q.PopDue(^uint64(0)); ok {
		t.Error("PopDue on empty queue should return ok=false")
	}
}

// TestSet tests inserting and updating deadlines
func TestSet(t *testing.T) {
	q := NewDeadlineQueue()

	q.Set(1, 100)
	q.Set(2, 200)
	q.Set(3, 50)

	if q.Len() != 3 {
		t.Errorf("Queue should have 3 items, but has %d", q.Len())
	}

	// nothing is due before the earliest deadline
	if _, ok := q.PopDue(49); ok {
		t.Error("PopDue(49) should return ok=false, earliest deadline is 50")
	}

	// the earliest deadline pops first
	key, ok := q.PopDue(50)
	if !ok {
		t.Fatal("PopDue(50) should return a key")
	}
	if key != 3 {
		t.Errorf("Expected key 3 (deadline 50), got %d", key)
	}

	// updating an existing key must reorder the heap
	q.Set(2, 10)

	key, ok = q.PopDue(99)
	if !ok {
		t.Fatal("PopDue(99) should return a key after update")
	}
	if key != 2 {
		t.Errorf("Expected key 2 after its deadline was lowered, got %d", key)
	}

	if q.Len() != 1 {
		t.Errorf("Queue should have 1 item left, has %d", q.Len())
	}
}

// TestRemove tests removing deadlines by key
func TestRemove(t *testing.T) {
	q := NewDeadlineQueue()

	q.Set(1, 100)
	q.Set(2, 200)
	q.Set(3, 300)

	q.Remove(2)

	if q.Len() != 2 {
		t.Errorf("Queue should have 2 items after removal, has %d", q.Len())
	}

	// the removed key must never pop
	for {
		key, ok := q.PopDue(^uint64(0))
		if !ok {
			break
		}
		if key == 2 {
			t.Error("Removed key 2 was popped")
		}
	}

	// removing a non-existent key is a no-op
	q.Remove(99)
	if q.Len() != 0 {
		t.Errorf("Queue should be empty, has %d items", q.Len())
	}
}

// TestPopDueOrder tests that keys pop in deadline order
func TestPopDueOrder(t *testing.T) {
	q := NewDeadlineQueue()

	items := []struct {
		key      UintKey
		deadline uint64
	}{
		{5, 50},
		{3, 30},
		{1, 10},
		{4, 40},
		{2, 20},
	}

	for _, item := range items {
		q.Set(item.key, item.deadline)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].deadline < items[j].deadline
	})

	for i, expected := range items {
		key, ok := q.PopDue(^uint64(0))
		if !ok {
			t.Fatalf("Queue empty after %d items, expected %d items", i, len(items))
		}
		if key != expected.key {
			t.Errorf("Pop %d: expected key %d, got %d", i, expected.key, key)
		}
	}

	if q.Len() != 0 {
		t.Errorf("Queue should be empty after popping all items, has %d items", q.Len())
	}
}

// TestPopDueCutoff tests that PopDue respects the cutoff
func TestPopDueCutoff(t *testing.T) {
	q := NewDeadlineQueue()

	q.Set(1, 10)
	q.Set(2, 20)
	q.Set(3, 30)

	due := 0
	for {
		_, ok := q.PopDue(20)
		if !ok {
			break
		}
		due++
	}

	if due != 2 {
		t.Errorf("Expected 2 keys due at cutoff 20, got %d", due)
	}

	if q.Len() != 1 {
		t.Errorf("Queue should have 1 item left, has %d", q.Len())
	}
}

// TestHashKeyDeterminism tests that hashing is stable per seed and
// distinguishes component boundaries
func TestHashKeyDeterminism(t *testing.T) {
	k1 := HashKey(record.NewKey("ns", "set", "name"), 42)
	k2 := HashKey(record.NewKey("ns", "set", "name"), 42)
	if k1 != k2 {
		t.Error("HashKey is not deterministic for equal inputs")
	}

	k3 := HashKey(record.NewKey("ns", "set", "name"), 43)
	if k1 == k3 {
		t.Error("HashKey should differ across seeds")
	}

	// the component separator keeps shifted splits apart
	a := HashKey(record.NewKey("ab", "c", "x"), 42)
	b := HashKey(record.NewKey("a", "bc", "x"), 42)
	if a == b {
		t.Error("HashKey should distinguish (ab,c) from (a,bc)")
	}
}
