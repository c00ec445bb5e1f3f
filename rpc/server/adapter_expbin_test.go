package server

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/StefanHein/binKV/lib/record"
	"github.com/StefanHein/binKV/lib/record/memrec"
	"github.com/StefanHein/binKV/rpc/common"
)

func newTestStore(t *testing.T) record.IRecordStore {
	t.Helper()
	store := memrec.New(&memrec.Options{NumShards: 2})
	t.Cleanup(func() { store.Close() })
	return store
}

// ok fails the test if the response carries an error.
func ok(t *testing.T, resp *common.Message) *common.Message {
	t.Helper()
	if resp.Err != "" {
		t.Fatalf("Unexpected error response: %s", resp.Err)
	}
	return resp
}

func TestAdapterPutGet(t *testing.T) {
	store := newTestStore(t)
	adapter := NewExpBinServerAdapter()

	ok(t, adapter.Handle(common.NewPutRequest("ns", "set", "key", "name", []byte("alice"), 0), store))

	resp := ok(t, adapter.Handle(common.NewGetRequest("ns", "set", "key", []string{"name", "missing"}), store))
	if resp.MsgType != common.MsgTBinGet {
		t.Errorf("Expected get response, got %s", resp.MsgType)
	}
	if len(resp.Values) != 2 {
		t.Fatalf("Expected 2 value slots, got %d", len(resp.Values))
	}
	if !bytes.Equal(resp.Values[0], []byte("alice")) {
		t.Errorf("Expected alice, got %s", resp.Values[0])
	}
	if resp.Values[1] != nil {
		t.Errorf("Expected nil slot for missing bin, got %v", resp.Values[1])
	}
}

func TestAdapterPutsAndTouch(t *testing.T) {
	store := newTestStore(t)
	adapter := NewExpBinServerAdapter()

	ok(t, adapter.Handle(common.NewPutsRequest("ns", "set", "key", []common.BinOp{
		{Bin: "a", Value: []byte("1"), TTLSec: 0},
		{Bin: "b", Value: []byte("2"), TTLSec: 3600},
	}), store))

	// promote bin a, keep bin b
	ok(t, adapter.Handle(common.NewTouchRequest("ns", "set", "key", []common.BinOp{
		{Bin: "a", TTLSec: 1800},
	}), store))

	resp := ok(t, adapter.Handle(common.NewTTLRequest("ns", "set", "key", "a"), store))
	if !resp.Ok {
		t.Errorf("Expected ok=true for promoted bin")
	}
	if resp.TTLSec < 1799 || resp.TTLSec > 1800 {
		t.Errorf("Expected ~1800s remaining, got %d", resp.TTLSec)
	}

	// touching a missing bin fails the batch
	resp = adapter.Handle(common.NewTouchRequest("ns", "set", "key", []common.BinOp{
		{Bin: "missing", TTLSec: 60},
	}), store)
	if resp.Err == "" {
		t.Errorf("Expected error for touch of missing bin")
	}
}

func TestAdapterTTLStates(t *testing.T) {
	store := newTestStore(t)
	adapter := NewExpBinServerAdapter()

	ok(t, adapter.Handle(common.NewPutRequest("ns", "set", "key", "normal", []byte("v"), 0), store))
	ok(t, adapter.Handle(common.NewPutRequest("ns", "set", "key", "expiring", []byte("v"), 3600), store))

	// normal bin: ok with ttl -1
	resp := ok(t, adapter.Handle(common.NewTTLRequest("ns", "set", "key", "normal"), store))
	if !resp.Ok || resp.TTLSec != -1 {
		t.Errorf("Expected ok=true ttl=-1 for normal bin, got ok=%v ttl=%d", resp.Ok, resp.TTLSec)
	}

	// expire bin: ok with remaining seconds
	resp = ok(t, adapter.Handle(common.NewTTLRequest("ns", "set", "key", "expiring"), store))
	if !resp.Ok || resp.TTLSec < 3599 || resp.TTLSec > 3600 {
		t.Errorf("Expected ok=true ttl~3600, got ok=%v ttl=%d", resp.Ok, resp.TTLSec)
	}

	// missing bin: ok=false
	resp = ok(t, adapter.Handle(common.NewTTLRequest("ns", "set", "key", "missing"), store))
	if resp.Ok {
		t.Errorf("Expected ok=false for missing bin")
	}
}

func TestAdapterSweep(t *testing.T) {
	store := newTestStore(t)
	adapter := NewExpBinServerAdapter()

	for _, key := range []string{"k1", "k2", "k3"} {
		ok(t, adapter.Handle(common.NewPutRequest("ns", "set", key, "session", []byte("v"), 3600), store))
	}

	resp := ok(t, adapter.Handle(common.NewSweepRequest("ns", "set", []string{"session"}), store))
	if resp.MsgType != common.MsgTSweep {
		t.Errorf("Expected sweep response, got %s", resp.MsgType)
	}
	if resp.ScanID == 0 {
		t.Errorf("Expected a non-zero scan id")
	}

	ok(t, adapter.Handle(common.NewSweepAwaitRequest(resp.ScanID, 10), store))

	// nothing was due, the bins survive
	resp = ok(t, adapter.Handle(common.NewGetRequest("ns", "set", "k1", []string{"session"}), store))
	if resp.Values[0] == nil {
		t.Errorf("Sweep removed a live bin")
	}

	// awaiting an unknown sweep is an error response
	resp = adapter.Handle(common.NewSweepAwaitRequest(99999, 1), store)
	if resp.Err == "" {
		t.Errorf("Expected error for unknown sweep id")
	}
}

func TestAdapterInfo(t *testing.T) {
	store := newTestStore(t)
	adapter := NewExpBinServerAdapter()

	ok(t, adapter.Handle(common.NewPutRequest("ns", "set", "key", "bin", []byte("v"), 0), store))

	resp := ok(t, adapter.Handle(common.NewInfoRequest(), store))
	if resp.MsgType != common.MsgTInfo {
		t.Errorf("Expected info response, got %s", resp.MsgType)
	}

	var info record.StoreInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		t.Fatalf("Info meta is not valid json: %v", err)
	}
	if info.Records != 1 {
		t.Errorf("Expected 1 record, got %d", info.Records)
	}
	if info.Impl != "memrec" {
		t.Errorf("Expected impl memrec, got %s", info.Impl)
	}
}

func TestAdapterErrors(t *testing.T) {
	store := newTestStore(t)
	adapter := NewExpBinServerAdapter()

	// nil store
	resp := adapter.Handle(common.NewInfoRequest(), nil)
	if resp.MsgType != common.MsgTError || resp.Err == "" {
		t.Errorf("Expected error response for nil store")
	}

	// unsupported message type
	resp = adapter.Handle(&common.Message{MsgType: common.MsgTSuccess}, store)
	if resp.MsgType != common.MsgTError {
		t.Errorf("Expected error response for unsupported message type")
	}

	// invalid key surfaces as an error response, not a panic
	resp = adapter.Handle(common.NewPutRequest("", "set", "key", "bin", []byte("v"), 0), store)
	if resp.Err == "" {
		t.Errorf("Expected error response for invalid namespace")
	}
}
