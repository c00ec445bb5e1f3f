// Package rectest provides a reusable conformance test suite for
// record.IRecordStore implementations. Engine packages invoke it from their
// own tests so every implementation is held to the same contract.
package rectest

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/StefanHein/binKV/lib/record"
)

// StoreFactory is a function that creates a new instance of a record store
// implementation.
type StoreFactory func() record.IRecordStore

// RunRecordStoreTests runs a comprehensive test suite for a record store
// implementation.
func RunRecordStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Update&View", func(t *testing.T) {
			testUpdateView(t, factory())
		})

		t.Run("UpdateDirtyFlag", func(t *testing.T) {
			testUpdateDirtyFlag(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("ExpireIn", func(t *testing.T) {
			testExpireIn(t, factory())
		})

		t.Run("KeyValidation", func(t *testing.T) {
			testKeyValidation(t, factory())
		})

		t.Run("CopySemantics", func(t *testing.T) {
			testCopySemantics(t, factory())
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("CollisionHandling", func(t *testing.T) {
			testCollisionHandling(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("ScanErrors", func(t *testing.T) {
			testScanErrors(t, factory())
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func testKey(name string) record.Key {
	return record.NewKey("test", "rectest", name)
}

// mustPut writes a single bin via Update and fails the test on error.
func mustPut(t testing.TB, store record.IRecordStore, key record.Key, bin string, value []byte) {
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

// mustGet reads a single bin via View and fails the test on error.
func mustGet(t testing.TB, store record.IRecordStore, key record.Key, bin string) ([]byte, bool) {
	t.Helper()
	var (
		value []byte
		found bool
	)
	err := store.View(key, func(bins record.Bins, exists bool) {
		if !exists {
			return
		}
		value, found = bins[bin]
	})
	if err != nil {
		t.Fatalf("Unexpected error during View of %s: %v", key, err)
	}
	return value, found
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testUpdateView(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	key := testKey("update-view")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustPut(t, store, key, "bin1", testValue1)

	result, found := mustGet(t, store, key, "bin1")
	if !found {
		t.Errorf("Expected bin1 to exist after Update")
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	// overwrite
	mustPut(t, store, key, "bin1", testValue2)

	result, found = mustGet(t, store, key, "bin1")
	if !found {
		t.Errorf("Expected bin1 to exist after overwrite")
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	// a second bin on the same record must not disturb the first
	mustPut(t, store, key, "bin2", testValue1)

	result, found = mustGet(t, store, key, "bin1")
	if !found || !bytes.Equal(result, testValue2) {
		t.Errorf("bin1 changed after writing bin2: found=%v value=%s", found, result)
	}

	// View on a nonexistent record reports exists=false
	called := false
	err := store.View(testKey("nonexistent"), func(bins record.Bins, exists bool) {
		called = true
		if exists {
			t.Errorf("Expected exists=false for nonexistent record")
		}
		if bins != nil {
			t.Errorf("Expected nil bins for nonexistent record, got %v", bins)
		}
	})
	if err != nil {
		t.Errorf("Unexpected error during View of nonexistent record: %v", err)
	}
	if !called {
		t.Errorf("View callback was not invoked for nonexistent record")
	}
}

func testUpdateDirtyFlag(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	key := testKey("dirty-flag")

	// dirty=false on a missing record must not create it
	err := store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		if exists {
			t.Errorf("Expected exists=false for fresh record")
		}
		return nil, false
	})
	if err != nil {
		t.Fatalf("Unexpected error during Update: %v", err)
	}

	store.View(key, func(bins record.Bins, exists bool) {
		if exists {
			t.Errorf("Record was created despite dirty=false")
		}
	})

	// dirty=false on an existing record must not change it
	mustPut(t, store, key, "bin1", []byte("original"))

	err = store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		bins["bin1"] = []byte("mutated")
		return bins, false
	})
	if err != nil {
		t.Fatalf("Unexpected error during Update: %v", err)
	}

	result, found := mustGet(t, store, key, "bin1")
	if !found || !bytes.Equal(result, []byte("original")) {
		t.Errorf("Record changed despite dirty=false: found=%v value=%s", found, result)
	}

	// dirty=true with empty bins deletes the record
	err = store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		return nil, true
	})
	if err != nil {
		t.Fatalf("Unexpected error during Update: %v", err)
	}

	store.View(key, func(bins record.Bins, exists bool) {
		if exists {
			t.Errorf("Expected record to be deleted after dirty update with nil bins")
		}
	})
}

func testDelete(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	key := testKey("delete")
	mustPut(t, store, key, "bin1", []byte("delete-test-value"))

	if _, found := mustGet(t, store, key, "bin1"); !found {
		t.Errorf("Expected record to exist after Update")
	}

	if err := store.Delete(key); err != nil {
		t.Errorf("Unexpected error during Delete: %v", err)
	}

	store.View(key, func(bins record.Bins, exists bool) {
		if exists {
			t.Errorf("Expected record to not exist after Delete")
		}
	})

	// deleting a missing record is not an error
	if err := store.Delete(testKey("nonexistent")); err != nil {
		t.Errorf("Delete of nonexistent record returned error: %v", err)
	}
}

func testExpireIn(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	key := testKey("expire-in")
	mustPut(t, store, key, "bin1", []byte("expiring-value"))

	if err := store.ExpireIn(key, 1); err != nil {
		t.Fatalf("Unexpected error during ExpireIn: %v", err)
	}

	// still visible before the deadline
	if _, found := mustGet(t, store, key, "bin1"); !found {
		t.Errorf("Expected record to still exist right after ExpireIn")
	}

	// unix-second granularity: wait past the next two second boundaries
	time.Sleep(2100 * time.Millisecond)

	store.View(key, func(bins record.Bins, exists bool) {
		if exists {
			t.Errorf("Expected record to be expired")
		}
	})

	// ExpireIn with 0 clears a pending expiration
	key2 := testKey("expire-clear")
	mustPut(t, store, key2, "bin1", []byte("persistent-value"))

	if err := store.ExpireIn(key2, 1); err != nil {
		t.Fatalf("Unexpected error during ExpireIn: %v", err)
	}
	if err := store.ExpireIn(key2, 0); err != nil {
		t.Fatalf("Unexpected error during ExpireIn(0): %v", err)
	}

	time.Sleep(2100 * time.Millisecond)

	if _, found := mustGet(t, store, key2, "bin1"); !found {
		t.Errorf("Expected record to survive after its expiration was cleared")
	}

	// ExpireIn on a missing record is a no-op
	if err := store.ExpireIn(testKey("nonexistent"), 10); err != nil {
		t.Errorf("ExpireIn on nonexistent record returned error: %v", err)
	}
}

func testKeyValidation(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	invalidKeys := []record.Key{
		record.NewKey("", "set", "name"),
		record.NewKey(string(make([]byte, record.MaxNamespaceLen+1)), "set", "name"),
		record.NewKey("ns", string(make([]byte, record.MaxSetLen+1)), "name"),
		record.NewKey("ns", "set", ""),
		record.NewKey("ns", "set", string(make([]byte, record.MaxKeyLen+1))),
	}

	for i, key := range invalidKeys {
		err := store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
			t.Errorf("Update callback invoked for invalid key %d", i)
			return nil, false
		})
		var recErr *record.Error
		if !errors.As(err, &recErr) || recErr.Code != record.RetCInvalidKey {
			t.Errorf("Expected RetCInvalidKey for key %d, got %v", i, err)
		}

		if err := store.View(key, func(bins record.Bins, exists bool) {}); err == nil {
			t.Errorf("Expected View to reject invalid key %d", i)
		}
		if err := store.Delete(key); err == nil {
			t.Errorf("Expected Delete to reject invalid key %d", i)
		}
		if err := store.ExpireIn(key, 10); err == nil {
			t.Errorf("Expected ExpireIn to reject invalid key %d", i)
		}
	}

	// boundary lengths are valid
	maxKey := record.NewKey(
		string(bytes.Repeat([]byte("n"), record.MaxNamespaceLen)),
		string(bytes.Repeat([]byte("s"), record.MaxSetLen)),
		string(bytes.Repeat([]byte("k"), record.MaxKeyLen)),
	)
	mustPut(t, store, maxKey, "bin1", []byte("max-length-key"))
	if _, found := mustGet(t, store, maxKey, "bin1"); !found {
		t.Errorf("Expected record with maximum-length identifiers to be stored")
	}

	// an empty set is allowed
	noSetKey := record.NewKey("ns", "", "name")
	mustPut(t, store, noSetKey, "bin1", []byte("no-set"))
	if _, found := mustGet(t, store, noSetKey, "bin1"); !found {
		t.Errorf("Expected record with empty set to be stored")
	}
}

func testCopySemantics(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	key := testKey("copy-semantics")
	original := []byte("original-value")
	mustPut(t, store, key, "bin1", original)

	// mutating the snapshot inside Update without dirty must not leak
	store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		bins["bin1"][0] = 'X'
		bins["extra"] = []byte("should not appear")
		return bins, false
	})

	result, found := mustGet(t, store, key, "bin1")
	if !found || !bytes.Equal(result, original) {
		t.Errorf("Update snapshot mutation leaked into the store: %s", result)
	}
	if _, found := mustGet(t, store, key, "extra"); found {
		t.Errorf("Non-dirty Update created a bin")
	}

	// mutating the caller's slice after Update must not affect the store
	caller := []byte("caller-owned")
	mustPut(t, store, key, "bin2", caller)
	caller[0] = 'X'

	result, _ = mustGet(t, store, key, "bin2")
	if !bytes.Equal(result, []byte("caller-owned")) {
		t.Errorf("Store kept a reference to the caller's slice: %s", result)
	}
}

func testEdgeCases(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	// empty and nil bin values round-trip
	key := testKey("edge-cases")
	err := store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		return record.Bins{
			"empty": {},
			"nil":   nil,
			"data":  []byte("x"),
		}, true
	})
	if err != nil {
		t.Fatalf("Unexpected error during Update: %v", err)
	}

	for _, bin := range []string{"empty", "nil", "data"} {
		value, found := mustGet(t, store, key, bin)
		if !found {
			t.Errorf("Bin %s not found after Update", bin)
		}
		if bin != "data" && len(value) != 0 {
			t.Errorf("Bin %s expected empty, got %v", bin, value)
		}
	}

	// large values
	largeValue := make([]byte, 1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	mustPut(t, store, key, "large", largeValue)

	result, found := mustGet(t, store, key, "large")
	if !found {
		t.Errorf("Large value not found after Update")
	} else if !bytes.Equal(result, largeValue) {
		t.Errorf("Large value mismatch: len=%d expected=%d", len(result), len(largeValue))
	}

	// many bins on one record
	manyKey := testKey("many-bins")
	err = store.Update(manyKey, func(bins record.Bins, exists bool) (record.Bins, bool) {
		bins = record.Bins{}
		for i := 0; i < 500; i++ {
			bins[fmt.Sprintf("bin-%d", i)] = []byte(fmt.Sprintf("value-%d", i))
		}
		return bins, true
	})
	if err != nil {
		t.Fatalf("Unexpected error during Update: %v", err)
	}

	for i := 0; i < 500; i++ {
		value, found := mustGet(t, store, manyKey, fmt.Sprintf("bin-%d", i))
		if !found || !bytes.Equal(value, []byte(fmt.Sprintf("value-%d", i))) {
			t.Errorf("Bin bin-%d mismatch: found=%v value=%s", i, found, value)
			break
		}
	}
}

func testCollisionHandling(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	prefix := "collision-test-"
	numKeys := 1000

	for i := 0; i < numKeys; i++ {
		key := testKey(fmt.Sprintf("%s%d", prefix, i))
		mustPut(t, store, key, "bin1", []byte(fmt.Sprintf("value-%d", i)))
	}

	for i := 0; i < numKeys; i++ {
		key := testKey(fmt.Sprintf("%s%d", prefix, i))
		expectedValue := []byte(fmt.Sprintf("value-%d", i))

		actualValue, found := mustGet(t, store, key, "bin1")
		if !found {
			t.Errorf("Key %s not found", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value for key %s does not match: expected %s, got %s",
				key, expectedValue, actualValue)
		}
	}

	for i := 0; i < numKeys; i += 2 {
		key := testKey(fmt.Sprintf("%s%d", prefix, i))
		if err := store.Delete(key); err != nil {
			t.Errorf("Unexpected error during Delete of %s: %v", key, err)
		}
	}

	for i := 0; i < numKeys; i++ {
		key := testKey(fmt.Sprintf("%s%d", prefix, i))
		_, found := mustGet(t, store, key, "bin1")

		if i%2 == 0 {
			if found {
				t.Errorf("Key %s should be deleted", key)
			}
		} else {
			if !found {
				t.Errorf("Key %s should still exist", key)
			}
		}
	}
}

func testScan(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	numRecords := 100
	for i := 0; i < numRecords; i++ {
		key := record.NewKey("scan-ns", "scan-set", fmt.Sprintf("key-%d", i))
		mustPut(t, store, key, "counter", []byte{0})
	}

	// records of a different set must not be visited
	otherKey := record.NewKey("scan-ns", "other-set", "outsider")
	mustPut(t, store, otherKey, "counter", []byte{0})

	id, err := store.Scan("scan-ns", "scan-set", func(key record.Key, bins record.Bins, exists bool) (record.Bins, bool, error) {
		if !exists {
			return nil, false, nil
		}
		bins["counter"] = []byte{bins["counter"][0] + 1}
		return bins, true, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error during Scan: %v", err)
	}

	if err := store.AwaitScan(id, 10*time.Second); err != nil {
		t.Fatalf("Unexpected error during AwaitScan: %v", err)
	}

	stats, err := store.ScanStats(id)
	if err != nil {
		t.Fatalf("Unexpected error during ScanStats: %v", err)
	}
	if stats.Visited != uint64(numRecords) {
		t.Errorf("Expected %d visited records, got %d", numRecords, stats.Visited)
	}
	if stats.Failed != 0 {
		t.Errorf("Expected 0 failed records, got %d", stats.Failed)
	}

	for i := 0; i < numRecords; i++ {
		key := record.NewKey("scan-ns", "scan-set", fmt.Sprintf("key-%d", i))
		value, found := mustGet(t, store, key, "counter")
		if !found || value[0] != 1 {
			t.Errorf("Record %s not updated by scan: found=%v value=%v", key, found, value)
		}
	}

	value, _ := mustGet(t, store, otherKey, "counter")
	if value[0] != 0 {
		t.Errorf("Scan visited a record outside the requested set")
	}

	// a scan can delete records
	id, err = store.Scan("scan-ns", "scan-set", func(key record.Key, bins record.Bins, exists bool) (record.Bins, bool, error) {
		return nil, true, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error during delete scan: %v", err)
	}
	if err := store.AwaitScan(id, 10*time.Second); err != nil {
		t.Fatalf("Unexpected error during AwaitScan: %v", err)
	}

	for i := 0; i < numRecords; i++ {
		key := record.NewKey("scan-ns", "scan-set", fmt.Sprintf("key-%d", i))
		if _, found := mustGet(t, store, key, "counter"); found {
			t.Errorf("Record %s should have been deleted by the scan", key)
		}
	}
	if _, found := mustGet(t, store, otherKey, "counter"); !found {
		t.Errorf("Record outside the scanned set was deleted")
	}
}

func testScanErrors(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	numRecords := 10
	for i := 0; i < numRecords; i++ {
		key := record.NewKey("scan-ns", "err-set", fmt.Sprintf("key-%d", i))
		mustPut(t, store, key, "bin1", []byte(fmt.Sprintf("value-%d", i)))
	}

	// per-record failures are counted but never abort the scan
	id, err := store.Scan("scan-ns", "err-set", func(key record.Key, bins record.Bins, exists bool) (record.Bins, bool, error) {
		if key.Name == "key-3" || key.Name == "key-7" {
			return nil, false, fmt.Errorf("record rejected")
		}
		return nil, false, nil
	})
	if err != nil {
		t.Fatalf("Unexpected error during Scan: %v", err)
	}
	if err := store.AwaitScan(id, 10*time.Second); err != nil {
		t.Fatalf("Unexpected error during AwaitScan: %v", err)
	}

	stats, err := store.ScanStats(id)
	if err != nil {
		t.Fatalf("Unexpected error during ScanStats: %v", err)
	}
	if stats.Visited != uint64(numRecords) {
		t.Errorf("Expected %d visited records, got %d", numRecords, stats.Visited)
	}
	if stats.Failed != 2 {
		t.Errorf("Expected 2 failed records, got %d", stats.Failed)
	}

	// failed records are untouched
	value, found := mustGet(t, store, record.NewKey("scan-ns", "err-set", "key-3"), "bin1")
	if !found || !bytes.Equal(value, []byte("value-3")) {
		t.Errorf("Failed record was modified: found=%v value=%s", found, value)
	}

	// unknown scan ids are errors
	var recErr *record.Error
	if err := store.AwaitScan(99999, time.Second); err == nil {
		t.Errorf("Expected error for unknown scan id in AwaitScan")
	} else if !errors.As(err, &recErr) || recErr.Code != record.RetCScanNotFound {
		t.Errorf("Expected RetCScanNotFound from AwaitScan, got %v", err)
	}
	if _, err := store.ScanStats(99999); err == nil {
		t.Errorf("Expected error for unknown scan id in ScanStats")
	}

	// invalid namespace is rejected at launch
	if _, err := store.Scan("", "set", func(key record.Key, bins record.Bins, exists bool) (record.Bins, bool, error) {
		return nil, false, nil
	}); err == nil {
		t.Errorf("Expected error for scan with empty namespace")
	}
}

func testInfo(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	info, err := store.Info()
	if err != nil {
		t.Fatalf("Unexpected error during Info: %v", err)
	}
	if info.Records != 0 {
		t.Errorf("Expected 0 records in fresh store, got %d", info.Records)
	}
	if info.Impl == "" {
		t.Errorf("Expected a non-empty implementation name")
	}

	numRecords := 50
	for i := 0; i < numRecords; i++ {
		mustPut(t, store, testKey(fmt.Sprintf("info-%d", i)), "bin1", []byte("v"))
	}

	info, err = store.Info()
	if err != nil {
		t.Fatalf("Unexpected error during Info: %v", err)
	}
	if info.Records != numRecords {
		t.Errorf("Expected %d records, got %d", numRecords, info.Records)
	}
}

func testRealisticUsage(t *testing.T, store record.IRecordStore) {
	defer store.Close()

	type operation struct {
		op    string
		key   record.Key
		bin   string
		value []byte
	}

	numOperations := 10_000
	operations := make([]operation, numOperations)

	for i := 0; i < numOperations; i++ {
		var op string
		switch i % 10 {
		case 0, 1, 2, 3, 4, 5, 6:
			op = "update"
		case 7, 8:
			op = "view"
		case 9:
			op = "delete"
		}

		var key record.Key
		if i%5 == 0 {
			key = testKey(fmt.Sprintf("hot-key-%d", i%50))
		} else {
			key = testKey(fmt.Sprintf("key-%d", i))
		}

		bin := fmt.Sprintf("bin-%d", i%3)

		var value []byte
		if op == "update" {
			valueSize := 64
			if i%10 == 0 {
				valueSize = 1024
			}
			value = make([]byte, valueSize)
			for j := 0; j < valueSize; j++ {
				value[j] = byte((i + j) % 256)
			}
		}

		operations[i] = operation{op, key, bin, value}
	}

	allKeys := make(map[record.Key]bool)
	for _, op := range operations {
		allKeys[op.key] = true
	}

	numWorkers := 8
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	opsPerWorker := numOperations / numWorkers

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			start := workerId * opsPerWorker
			end := start + opsPerWorker

			for i := start; i < end; i++ {
				op := operations[i]

				switch op.op {
				case "update":
					store.Update(op.key, func(bins record.Bins, exists bool) (record.Bins, bool) {
						if bins == nil {
							bins = record.Bins{}
						}
						bins[op.bin] = op.value
						return bins, true
					})
				case "view":
					store.View(op.key, func(bins record.Bins, exists bool) {})
				case "delete":
					store.Delete(op.key)
				}
			}
		}(w)
	}

	wg.Wait()

	// after the parallel phase, reads must be internally consistent: a bin
	// that exists must yield the same value on consecutive reads
	for key := range allKeys {
		first := make(map[string][]byte)
		var firstExists bool

		store.View(key, func(bins record.Bins, exists bool) {
			firstExists = exists
			for name, val := range bins {
				first[name] = val
			}
		})

		var secondExists bool
		store.View(key, func(bins record.Bins, exists bool) {
			secondExists = exists
			for name, val := range bins {
				if !bytes.Equal(first[name], val) {
					t.Errorf("Consistency error: bin %s of %s changed between reads", name, key)
				}
			}
		})

		if firstExists != secondExists {
			t.Errorf("Consistency error: existence of %s changed between reads", key)
		}
	}
}
