package memrec

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/StefanHein/binKV/lib/record"
)

// fakeClock is an injectable time source advanced manually by tests. The
// reaper still cycles in real time, but every expiration decision is made
// against this clock.
type fakeClock struct {
	sec atomic.Int64
}

func newFakeClock(startUnix int64) *fakeClock {
	c := &fakeClock{}
	c.sec.Store(startUnix)
	return c
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(c.sec.Load(), 0)
}

func (c *fakeClock) Advance(seconds int64) {
	c.sec.Add(seconds)
}

func newClockedEngine(clock *fakeClock) record.IRecordStore {
	return New(&Options{
		NumShards:    2,
		ReapInterval: 10 * time.Millisecond,
		Clock:        clock.Now,
	})
}

// waitForRecords polls Info until the store holds the expected number of
// records or the deadline passes.
func waitForRecords(t *testing.T, store record.IRecordStore, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		info, err := store.Info()
		if err != nil {
			t.Fatalf("Unexpected error during Info: %v", err)
		}
		if info.Records == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	info, _ := store.Info()
	t.Fatalf("Expected %d records, still have %d after timeout", want, info.Records)
}

func putBin(t *testing.T, store record.IRecordStore, key record.Key, bin string, value []byte) {
	t.Helper()
	err := store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		if bins == nil {
			bins = record.Bins{}
		}
		bins[bin] = value
		return bins, true
	})
	if err != nil {
		t.Fatalf("Unexpected error during Update of %s: %v", key, err)
	}
}

func recordExists(t *testing.T, store record.IRecordStore, key record.Key) bool {
	t.Helper()
	var found bool
	if err := store.View(key, func(bins record.Bins, exists bool) {
		found = exists
	}); err != nil {
		t.Fatalf("Unexpected error during View of %s: %v", key, err)
	}
	return found
}

// TestLazyExpiry checks that an expired record turns invisible the moment
// the clock passes its deadline, before the reaper has removed it.
func TestLazyExpiry(t *testing.T) {
	clock := newFakeClock(1_000_000)
	store := newClockedEngine(clock)
	defer store.Close()

	key := record.NewKey("test", "set", "lazy-expiry")
	putBin(t, store, key, "bin1", []byte("value"))

	if err := store.ExpireIn(key, 60); err != nil {
		t.Fatalf("Unexpected error during ExpireIn: %v", err)
	}

	clock.Advance(59)
	if !recordExists(t, store, key) {
		t.Errorf("Record expired one second too early")
	}

	clock.Advance(1)
	if recordExists(t, store, key) {
		t.Errorf("Record still visible past its deadline")
	}
}

// TestReaperRemoval checks that the reaper physically removes expired
// records.
func TestReaperRemoval(t *testing.T) {
	clock := newFakeClock(1_000_000)
	store := newClockedEngine(clock)
	defer store.Close()

	numRecords := 100
	for i := 0; i < numRecords; i++ {
		key := record.NewKey("test", "set", fmt.Sprintf("reap-%d", i))
		putBin(t, store, key, "bin1", []byte("value"))
		if err := store.ExpireIn(key, uint64(10+i%5)); err != nil {
			t.Fatalf("Unexpected error during ExpireIn: %v", err)
		}
	}

	// one record without expiration must survive
	survivor := record.NewKey("test", "set", "survivor")
	putBin(t, store, survivor, "bin1", []byte("value"))

	waitForRecords(t, store, numRecords+1)

	clock.Advance(20)
	waitForRecords(t, store, 1)

	if !recordExists(t, store, survivor) {
		t.Errorf("Record without expiration was reaped")
	}
}

// TestRewriteOutlivesDeadline checks that a record rewritten after its
// deadline was queued is not removed by a stale reaper pop.
func TestRewriteOutlivesDeadline(t *testing.T) {
	clock := newFakeClock(1_000_000)
	store := newClockedEngine(clock)
	defer store.Close()

	key := record.NewKey("test", "set", "rewrite")
	putBin(t, store, key, "bin1", []byte("v1"))
	if err := store.ExpireIn(key, 10); err != nil {
		t.Fatalf("Unexpected error during ExpireIn: %v", err)
	}

	// clear the expiration before the deadline hits
	if err := store.ExpireIn(key, 0); err != nil {
		t.Fatalf("Unexpected error during ExpireIn(0): %v", err)
	}

	clock.Advance(60)

	// give the reaper a few cycles to process its queue
	time.Sleep(100 * time.Millisecond)

	if !recordExists(t, store, key) {
		t.Errorf("Record was removed although its expiration had been cleared")
	}
}

// TestExpireInRollover checks that extending the deadline keeps the record
// alive past the original one.
func TestExpireInRollover(t *testing.T) {
	clock := newFakeClock(1_000_000)
	store := newClockedEngine(clock)
	defer store.Close()

	key := record.NewKey("test", "set", "rollover")
	putBin(t, store, key, "bin1", []byte("value"))

	if err := store.ExpireIn(key, 10); err != nil {
		t.Fatalf("Unexpected error during ExpireIn: %v", err)
	}
	if err := store.ExpireIn(key, 100); err != nil {
		t.Fatalf("Unexpected error during ExpireIn: %v", err)
	}

	clock.Advance(50)
	time.Sleep(100 * time.Millisecond)
	if !recordExists(t, store, key) {
		t.Errorf("Record expired on the superseded deadline")
	}

	clock.Advance(50)
	if recordExists(t, store, key) {
		t.Errorf("Record still visible past the extended deadline")
	}
}

// TestUpdatePreservesExpiration checks that a content update keeps the
// record's native expiration.
func TestUpdatePreservesExpiration(t *testing.T) {
	clock := newFakeClock(1_000_000)
	store := newClockedEngine(clock)
	defer store.Close()

	key := record.NewKey("test", "set", "preserve-expiry")
	putBin(t, store, key, "bin1", []byte("v1"))
	if err := store.ExpireIn(key, 30); err != nil {
		t.Fatalf("Unexpected error during ExpireIn: %v", err)
	}

	putBin(t, store, key, "bin1", []byte("v2"))

	clock.Advance(30)
	if recordExists(t, store, key) {
		t.Errorf("Content update dropped the record's expiration")
	}
}

// TestScanStateReclaimed checks that the state of a completed scan is
// evicted after the retention period, so repeated sweeps do not grow the
// engine without bound.
func TestScanStateReclaimed(t *testing.T) {
	store := New(&Options{
		NumShards:     1,
		ScanRetention: 20 * time.Millisecond,
	})
	defer store.Close()

	key := record.NewKey("test", "set", "scanned")
	putBin(t, store, key, "bin1", []byte("value"))

	id, err := store.Scan("test", "set", func(key record.Key, bins record.Bins, exists bool) (record.Bins, bool, error) {
		return nil, false, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error during Scan: %v", err)
	}
	if err := store.AwaitScan(id, 5*time.Second); err != nil {
		t.Fatalf("Unexpected error during AwaitScan: %v", err)
	}

	// right after completion the stats are still queryable
	stats, err := store.ScanStats(id)
	if err != nil {
		t.Fatalf("Unexpected error during ScanStats: %v", err)
	}
	if stats.Visited != 1 {
		t.Errorf("Expected 1 visited record, got %d", stats.Visited)
	}

	// after the retention period the id must become unknown
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := store.ScanStats(id); err != nil {
			var recErr *record.Error
			if !errors.As(err, &recErr) || recErr.Code != record.RetCScanNotFound {
				t.Fatalf("Expected RetCScanNotFound after retention, got %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Scan state was not reclaimed after the retention period")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestCloseStopsStore checks that a closed store rejects new scans and that
// Close is idempotent.
func TestCloseStopsStore(t *testing.T) {
	store := New(&Options{NumShards: 1})

	if err := store.Close(); err != nil {
		t.Fatalf("Unexpected error during Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close must be idempotent, got: %v", err)
	}

	if _, err := store.Scan("ns", "set", func(key record.Key, bins record.Bins, exists bool) (record.Bins, bool, error) {
		return nil, false, nil
	}); err == nil {
		t.Errorf("Expected Scan on a closed store to fail")
	}
}
