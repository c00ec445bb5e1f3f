package expbin

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/StefanHein/binKV/lib/record"
	"github.com/StefanHein/binKV/lib/record/memrec"
)

// testClock is a manually advanced time source shared between the module
// and the underlying store, so expiry decisions are deterministic.
type testClock struct {
	sec atomic.Int64
}

func newTestClock() *testClock {
	c := &testClock{}
	c.sec.Store(1_000_000)
	return c
}

func (c *testClock) Now() time.Time {
	return time.Unix(c.sec.Load(), 0)
}

func (c *testClock) Advance(seconds int64) {
	c.sec.Add(seconds)
}

// newTestModule creates a module over a fresh in-memory store, both driven
// by the returned clock.
func newTestModule(t *testing.T) (*Module, *testClock, record.IRecordStore) {
	t.Helper()
	clock := newTestClock()
	store := memrec.New(&memrec.Options{
		NumShards:    2,
		ReapInterval: time.Hour, // keep the reaper out of the way
		Clock:        clock.Now,
	})
	t.Cleanup(func() { store.Close() })

	mod := NewModule(store)
	mod.now = clock.Now
	return mod, clock, store
}

func testModKey(name string) record.Key {
	return record.NewKey("test", "expbin", name)
}

// getOne reads a single bin through the module.
func getOne(t *testing.T, mod *Module, key record.Key, bin string) []byte {
	t.Helper()
	values, err := mod.Get(key, []string{bin})
	if err != nil {
		t.Fatalf("Unexpected error during Get: %v", err)
	}
	return values[0]
}

// rawBins reads the physical record content, bypassing expiry filtering.
func rawBins(t *testing.T, store record.IRecordStore, key record.Key) record.Bins {
	t.Helper()
	var snapshot record.Bins
	if err := store.View(key, func(bins record.Bins, exists bool) {
		if exists {
			snapshot = bins.Clone()
		}
	}); err != nil {
		t.Fatalf("Unexpected error during View: %v", err)
	}
	return snapshot
}

// --------------------------------------------------------------------------
// Put / Get
// --------------------------------------------------------------------------

func TestPutGet(t *testing.T) {
	mod, _, _ := newTestModule(t)
	key := testModKey("put-get")

	if err := mod.Put(key, "name", []byte("alice"), Normal()); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if err := mod.Put(key, "city", []byte("berlin"), Normal()); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	values, err := mod.Get(key, []string{"name", "missing", "city"})
	if err != nil {
		t.Fatalf("Unexpected error during Get: %v", err)
	}
	if !bytes.Equal(values[0], []byte("alice")) {
		t.Errorf("Expected alice, got %s", values[0])
	}
	if values[1] != nil {
		t.Errorf("Expected nil slot for missing bin, got %v", values[1])
	}
	if !bytes.Equal(values[2], []byte("berlin")) {
		t.Errorf("Expected berlin, got %s", values[2])
	}

	// Get on a missing record yields all-nil slots, no error
	values, err = mod.Get(testModKey("nonexistent"), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Unexpected error during Get of missing record: %v", err)
	}
	for i, v := range values {
		if v != nil {
			t.Errorf("Expected nil slot %d for missing record, got %v", i, v)
		}
	}
}

func TestPutExpiry(t *testing.T) {
	mod, clock, store := newTestModule(t)
	key := testModKey("put-expiry")

	if err := mod.Put(key, "session", []byte("token"), ExpireAfter(30)); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	if v := getOne(t, mod, key, "session"); !bytes.Equal(v, []byte("token")) {
		t.Errorf("Expected token before expiry, got %v", v)
	}

	clock.Advance(29)
	if v := getOne(t, mod, key, "session"); v == nil {
		t.Errorf("Bin expired one second too early")
	}

	clock.Advance(1)
	if v := getOne(t, mod, key, "session"); v != nil {
		t.Errorf("Expected nil for expired bin, got %s", v)
	}

	// expiry is lazy: the value and its metadata are still physically there
	raw := rawBins(t, store, key)
	if _, ok := raw["session"]; !ok {
		t.Errorf("Expected expired bin to remain physically present until cleaned")
	}
	if _, ok := raw[MetaBin]; !ok {
		t.Errorf("Expected metadata bin to remain physically present until cleaned")
	}
}

func TestPutPreserve(t *testing.T) {
	mod, _, _ := newTestModule(t)
	key := testModKey("put-preserve")

	if err := mod.Put(key, "counter", []byte("1"), ExpireAfter(60)); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	// an ordinary rewrite must not demote the expire bin
	if err := mod.Put(key, "counter", []byte("2"), Preserve()); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	if v := getOne(t, mod, key, "counter"); !bytes.Equal(v, []byte("2")) {
		t.Errorf("Expected rewritten value 2, got %s", v)
	}

	remaining, state, err := mod.BinTTL(key, "counter")
	if err != nil {
		t.Fatalf("Unexpected error during BinTTL: %v", err)
	}
	if state != TTLRemaining {
		t.Errorf("Expected TTLRemaining after Preserve rewrite, got %s", state)
	}
	if remaining != 60 {
		t.Errorf("Expected 60s remaining, got %d", remaining)
	}

	// Preserve on a bin without metadata creates a plain normal bin
	if err := mod.Put(key, "plain", []byte("x"), Preserve()); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if _, state, _ := mod.BinTTL(key, "plain"); state != TTLNone {
		t.Errorf("Expected TTLNone for a fresh Preserve put, got %s", state)
	}
}

func TestPutDemote(t *testing.T) {
	mod, clock, _ := newTestModule(t)
	key := testModKey("put-demote")

	if err := mod.Put(key, "bin", []byte("v1"), ExpireAfter(10)); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	// an explicit Normal put clears the expiry metadata
	if err := mod.Put(key, "bin", []byte("v2"), Normal()); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	clock.Advance(100)
	if v := getOne(t, mod, key, "bin"); !bytes.Equal(v, []byte("v2")) {
		t.Errorf("Demoted bin expired anyway: %v", v)
	}
	if _, state, _ := mod.BinTTL(key, "bin"); state != TTLNone {
		t.Errorf("Expected TTLNone after demotion, got %s", state)
	}
}

func TestPutsAtomicity(t *testing.T) {
	mod, _, _ := newTestModule(t)
	key := testModKey("puts-atomic")

	if err := mod.Put(key, "existing", []byte("before"), Normal()); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	// one invalid op fails the whole batch with nothing written
	err := mod.Puts(key, []PutOp{
		{Bin: "existing", Value: []byte("after"), TTL: Normal()},
		{Bin: "bad\x00name", Value: []byte("x"), TTL: Normal()},
	})
	if err == nil {
		t.Fatal("Expected error for batch containing an invalid bin name")
	}

	if v := getOne(t, mod, key, "existing"); !bytes.Equal(v, []byte("before")) {
		t.Errorf("Rejected batch partially applied: %s", v)
	}

	// a valid batch writes all ops with their individual TTL intents
	err = mod.Puts(key, []PutOp{
		{Bin: "a", Value: []byte("1"), TTL: Normal()},
		{Bin: "b", Value: []byte("2"), TTL: ExpireAfter(30)},
	})
	if err != nil {
		t.Fatalf("Unexpected error during Puts: %v", err)
	}

	if _, state, _ := mod.BinTTL(key, "a"); state != TTLNone {
		t.Errorf("Expected TTLNone for bin a, got %s", state)
	}
	if remaining, state, _ := mod.BinTTL(key, "b"); state != TTLRemaining || remaining != 30 {
		t.Errorf("Expected 30s remaining for bin b, got %d (%s)", remaining, state)
	}

	// an empty batch is a no-op and must not create the record
	emptyKey := testModKey("puts-empty")
	if err := mod.Puts(emptyKey, nil); err != nil {
		t.Fatalf("Unexpected error during empty Puts: %v", err)
	}
	if raw := rawBins(t, mod.store, emptyKey); raw != nil {
		t.Errorf("Empty Puts created a record: %v", raw)
	}
}

// TestMalformedMetadata tests that a record with corrupt metadata reads as
// all-normal bins instead of failing.
func TestMalformedMetadata(t *testing.T) {
	mod, clock, store := newTestModule(t)
	key := testModKey("bad-meta")

	if err := mod.Put(key, "bin", []byte("v"), ExpireAfter(10)); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	// corrupt the metadata bin
	err := store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		bins[MetaBin] = []byte("garbage")
		return bins, true
	})
	if err != nil {
		t.Fatalf("Unexpected error during Update: %v", err)
	}

	clock.Advance(100)

	// the bin now reads as a normal bin: visible, no remaining lifetime
	if v := getOne(t, mod, key, "bin"); !bytes.Equal(v, []byte("v")) {
		t.Errorf("Expected bin to read as normal with corrupt metadata, got %v", v)
	}
	if _, state, _ := mod.BinTTL(key, "bin"); state != TTLNone {
		t.Errorf("Expected TTLNone with corrupt metadata, got %s", state)
	}
}

// --------------------------------------------------------------------------
// Touch
// --------------------------------------------------------------------------

func TestTouch(t *testing.T) {
	mod, clock, _ := newTestModule(t)
	key := testModKey("touch")

	if err := mod.Put(key, "session", []byte("token"), ExpireAfter(10)); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	clock.Advance(5)

	// extend the lifetime without touching the value
	if err := mod.Touch(key, []TouchOp{{Bin: "session", TTL: ExpireAfter(20)}}); err != nil {
		t.Fatalf("Unexpected error during Touch: %v", err)
	}

	if v := getOne(t, mod, key, "session"); !bytes.Equal(v, []byte("token")) {
		t.Errorf("Touch changed the value: %s", v)
	}
	if remaining, state, _ := mod.BinTTL(key, "session"); state != TTLRemaining || remaining != 20 {
		t.Errorf("Expected 20s remaining after Touch, got %d (%s)", remaining, state)
	}

	clock.Advance(15)
	if v := getOne(t, mod, key, "session"); v == nil {
		t.Errorf("Touched bin expired on the superseded deadline")
	}

	clock.Advance(5)
	if v := getOne(t, mod, key, "session"); v != nil {
		t.Errorf("Touched bin still visible past the extended deadline")
	}
}

func TestTouchPromoteAndDemote(t *testing.T) {
	mod, clock, _ := newTestModule(t)
	key := testModKey("touch-promote")

	if err := mod.Put(key, "bin", []byte("v"), Normal()); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	// promote a normal bin to an expire bin
	if err := mod.Touch(key, []TouchOp{{Bin: "bin", TTL: ExpireAfter(30)}}); err != nil {
		t.Fatalf("Unexpected error during Touch: %v", err)
	}
	if _, state, _ := mod.BinTTL(key, "bin"); state != TTLRemaining {
		t.Errorf("Expected TTLRemaining after promotion, got %s", state)
	}

	// demote it back to a normal bin
	if err := mod.Touch(key, []TouchOp{{Bin: "bin", TTL: Normal()}}); err != nil {
		t.Fatalf("Unexpected error during Touch: %v", err)
	}
	if _, state, _ := mod.BinTTL(key, "bin"); state != TTLNone {
		t.Errorf("Expected TTLNone after demotion, got %s", state)
	}

	clock.Advance(100)
	if v := getOne(t, mod, key, "bin"); v == nil {
		t.Errorf("Demoted bin expired anyway")
	}
}

func TestTouchFailures(t *testing.T) {
	mod, clock, _ := newTestModule(t)
	key := testModKey("touch-fail")

	if err := mod.Put(key, "live", []byte("v"), ExpireAfter(60)); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	if err := mod.Put(key, "dying", []byte("v"), ExpireAfter(10)); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	// touching a missing bin fails the whole batch
	err := mod.Touch(key, []TouchOp{
		{Bin: "live", TTL: ExpireAfter(120)},
		{Bin: "missing", TTL: ExpireAfter(120)},
	})
	if err == nil {
		t.Fatal("Expected error for touch batch with missing bin")
	}

	// the valid op of the rejected batch must not have been applied
	if remaining, _, _ := mod.BinTTL(key, "live"); remaining != 60 {
		t.Errorf("Rejected touch batch partially applied: remaining=%d", remaining)
	}

	// an expired bin counts as nonexistent for touch
	clock.Advance(10)
	err = mod.Touch(key, []TouchOp{{Bin: "dying", TTL: ExpireAfter(60)}})
	if err == nil {
		t.Error("Expected error when touching an expired bin")
	}

	// touch on a missing record fails
	err = mod.Touch(testModKey("nonexistent"), []TouchOp{{Bin: "a", TTL: Normal()}})
	if err == nil {
		t.Error("Expected error when touching a missing record")
	}

	// an empty batch is a no-op
	if err := mod.Touch(key, nil); err != nil {
		t.Errorf("Unexpected error during empty Touch: %v", err)
	}
}

// --------------------------------------------------------------------------
// BinTTL
// --------------------------------------------------------------------------

func TestBinTTLStates(t *testing.T) {
	mod, clock, _ := newTestModule(t)
	key := testModKey("ttl-states")

	if err := mod.Puts(key, []PutOp{
		{Bin: "normal", Value: []byte("v"), TTL: Normal()},
		{Bin: "expiring", Value: []byte("v"), TTL: ExpireAfter(30)},
	}); err != nil {
		t.Fatalf("Unexpected error during Puts: %v", err)
	}

	if _, state, _ := mod.BinTTL(key, "normal"); state != TTLNone {
		t.Errorf("Expected TTLNone for normal bin, got %s", state)
	}

	remaining, state, err := mod.BinTTL(key, "expiring")
	if err != nil {
		t.Fatalf("Unexpected error during BinTTL: %v", err)
	}
	if state != TTLRemaining || remaining != 30 {
		t.Errorf("Expected 30s remaining, got %d (%s)", remaining, state)
	}

	if _, state, _ := mod.BinTTL(key, "missing"); state != TTLAbsent {
		t.Errorf("Expected TTLAbsent for missing bin, got %s", state)
	}

	clock.Advance(30)
	if _, state, _ := mod.BinTTL(key, "expiring"); state != TTLAbsent {
		t.Errorf("Expected TTLAbsent for expired bin, got %s", state)
	}

	// missing record
	if _, state, _ := mod.BinTTL(testModKey("nonexistent"), "a"); state != TTLAbsent {
		t.Errorf("Expected TTLAbsent for missing record, got %s", state)
	}
}

// --------------------------------------------------------------------------
// Clean
// --------------------------------------------------------------------------

func TestClean(t *testing.T) {
	mod, clock, store := newTestModule(t)
	key := testModKey("clean")

	if err := mod.Puts(key, []PutOp{
		{Bin: "dead", Value: []byte("v"), TTL: ExpireAfter(10)},
		{Bin: "alive", Value: []byte("v"), TTL: ExpireAfter(100)},
		{Bin: "normal", Value: []byte("v"), TTL: Normal()},
	}); err != nil {
		t.Fatalf("Unexpected error during Puts: %v", err)
	}

	clock.Advance(50)

	if err := mod.Clean(key, []string{"dead", "alive", "normal"}); err != nil {
		t.Fatalf("Unexpected error during Clean: %v", err)
	}

	raw := rawBins(t, store, key)
	if _, ok := raw["dead"]; ok {
		t.Errorf("Expected expired bin to be physically removed by Clean")
	}
	if _, ok := raw["alive"]; !ok {
		t.Errorf("Clean removed a live expire bin")
	}
	if _, ok := raw["normal"]; !ok {
		t.Errorf("Clean removed a normal bin")
	}

	// the metadata entry of the removed bin is gone, the live one remains
	deadlines := decodeDeadlines(raw[MetaBin])
	if _, ok := deadlines["dead"]; ok {
		t.Errorf("Expected metadata of cleaned bin to be removed")
	}
	if _, ok := deadlines["alive"]; !ok {
		t.Errorf("Clean dropped metadata of a live expire bin")
	}

	// a non-candidate expired bin is left alone
	key2 := testModKey("clean-non-candidate")
	if err := mod.Put(key2, "dead", []byte("v"), ExpireAfter(10)); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}
	clock.Advance(50)
	if err := mod.Clean(key2, []string{"other"}); err != nil {
		t.Fatalf("Unexpected error during Clean: %v", err)
	}
	if _, ok := rawBins(t, store, key2)["dead"]; !ok {
		t.Errorf("Clean removed a bin that was not a candidate")
	}

	// Clean on a missing record is a no-op
	if err := mod.Clean(testModKey("nonexistent"), []string{"a"}); err != nil {
		t.Errorf("Unexpected error during Clean of missing record: %v", err)
	}
}

func TestCleanStaleMetadata(t *testing.T) {
	mod, _, store := newTestModule(t)
	key := testModKey("clean-stale")

	if err := mod.Put(key, "keep", []byte("v"), Normal()); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	// craft metadata naming a bin that has no value
	err := store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		bins[MetaBin] = encodeDeadlines(map[string]uint64{"ghost": 9_999_999_999})
		return bins, true
	})
	if err != nil {
		t.Fatalf("Unexpected error during Update: %v", err)
	}

	if err := mod.Clean(key, []string{"ghost"}); err != nil {
		t.Fatalf("Unexpected error during Clean: %v", err)
	}

	raw := rawBins(t, store, key)
	if _, ok := raw[MetaBin]; ok {
		t.Errorf("Expected empty metadata bin to be dropped after pruning")
	}
	if _, ok := raw["keep"]; !ok {
		t.Errorf("Clean removed an unrelated bin")
	}
}

// TestCleanSkipsCleanRecords tests that Clean does not write when nothing
// is due.
func TestCleanSkipsCleanRecords(t *testing.T) {
	mod, _, store := newTestModule(t)
	key := testModKey("clean-noop")

	if err := mod.Put(key, "bin", []byte("v"), ExpireAfter(100)); err != nil {
		t.Fatalf("Unexpected error during Put: %v", err)
	}

	before := rawBins(t, store, key)

	if err := mod.Clean(key, []string{"bin"}); err != nil {
		t.Fatalf("Unexpected error during Clean: %v", err)
	}

	after := rawBins(t, store, key)
	if len(before) != len(after) {
		t.Errorf("Clean of a clean record changed the bins: before=%d after=%d", len(before), len(after))
	}
	if !bytes.Equal(before[MetaBin], after[MetaBin]) {
		t.Errorf("Clean of a clean record rewrote the metadata")
	}
}
