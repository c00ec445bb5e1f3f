package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// BinOp is one element of a batch put or touch request. For touch operations
// the Value field is unused.
type BinOp struct {
	Bin    string `json:"bin"`
	Value  []byte `json:"value,omitempty"`
	TTLSec int64  `json:"ttl_sec"`
}

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Record address (all record-scoped requests; Key empty for sweeps)
	Namespace string `json:"namespace,omitempty"`
	Set       string `json:"set,omitempty"`
	Key       string `json:"key,omitempty"`

	// Request fields
	Bins       []string `json:"bins,omitempty"`        // Used for: Get, Sweep (candidates)
	Bin        string   `json:"bin,omitempty"`         // Used for: Put, TTL
	Value      []byte   `json:"value,omitempty"`       // Used for: Put
	TTLSec     int64    `json:"ttl_sec,omitempty"`     // Used for: Put (request), TTL (response: -1 = none)
	Ops        []BinOp  `json:"ops,omitempty"`         // Used for: Puts, Touch
	TimeoutSec int64    `json:"timeout_sec,omitempty"` // Used for: SweepAwait (0 = wait indefinitely)

	// Response fields
	Values [][]byte `json:"values,omitempty"`  // Used for: Get (aligned with request bins)
	ScanID uint64   `json:"scan_id,omitempty"` // Used for: Sweep (response), SweepAwait (request)
	Ok     bool     `json:"ok,omitempty"`      // Used for: TTL (false = bin absent or expired)
	Err    string   `json:"err,omitempty"`     // Empty if no error, otherwise the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info (json encoded store info)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewGetRequest creates a new Get request for the named bins of one record.
func NewGetRequest(namespace, set, key string, bins []string) *Message {
	return &Message{
		MsgType:   MsgTBinGet,
		Namespace: namespace,
		Set:       set,
		Key:       key,
		Bins:      bins,
	}
}

// NewGetResponse creates a new Get response. Values is aligned by position
// with the requested bin names; a nil slot marks an absent or expired bin.
func NewGetResponse(values [][]byte, err error) *Message {
	return &Message{
		MsgType: MsgTBinGet,
		Values:  values,
		Err:     errString(err),
	}
}

// NewPutRequest creates a new single-bin Put request. ttlSec follows the
// numeric convention: -1 preserve, 0 demote to normal, >0 expire after.
func NewPutRequest(namespace, set, key, bin string, value []byte, ttlSec int64) *Message {
	return &Message{
		MsgType:   MsgTBinPut,
		Namespace: namespace,
		Set:       set,
		Key:       key,
		Bin:       bin,
		Value:     value,
		TTLSec:    ttlSec,
	}
}

// NewPutResponse creates a new Put response.
func NewPutResponse(err error) *Message {
	return &Message{MsgType: MsgTBinPut, Err: errString(err)}
}

// NewPutsRequest creates a new batch Put request.
func NewPutsRequest(namespace, set, key string, ops []BinOp) *Message {
	return &Message{
		MsgType:   MsgTBinPuts,
		Namespace: namespace,
		Set:       set,
		Key:       key,
		Ops:       ops,
	}
}

// NewPutsResponse creates a new batch Put response (one aggregate status).
func NewPutsResponse(err error) *Message {
	return &Message{MsgType: MsgTBinPuts, Err: errString(err)}
}

// NewTouchRequest creates a new Touch request. The Value field of each op is
// ignored; ttlSec <= 0 clears the bin's expiry metadata.
func NewTouchRequest(namespace, set, key string, ops []BinOp) *Message {
	return &Message{
		MsgType:   MsgTBinTouch,
		Namespace: namespace,
		Set:       set,
		Key:       key,
		Ops:       ops,
	}
}

// NewTouchResponse creates a new Touch response.
func NewTouchResponse(err error) *Message {
	return &Message{MsgType: MsgTBinTouch, Err: errString(err)}
}

// NewTTLRequest creates a new TTL query for a single bin.
func NewTTLRequest(namespace, set, key, bin string) *Message {
	return &Message{
		MsgType:   MsgTBinTTL,
		Namespace: namespace,
		Set:       set,
		Key:       key,
		Bin:       bin,
	}
}

// NewTTLResponse creates a new TTL response: ok=false means the bin is
// absent or expired; otherwise ttlSec holds the remaining seconds, or -1 for
// a bin that never expires.
func NewTTLResponse(ttlSec int64, ok bool, err error) *Message {
	return &Message{
		MsgType: MsgTBinTTL,
		TTLSec:  ttlSec,
		Ok:      ok,
		Err:     errString(err),
	}
}

// NewSweepRequest creates a new Sweep request cleaning the candidate bins on
// every record of the namespace/set.
func NewSweepRequest(namespace, set string, candidates []string) *Message {
	return &Message{
		MsgType:   MsgTSweep,
		Namespace: namespace,
		Set:       set,
		Bins:      candidates,
	}
}

// NewSweepResponse creates a new Sweep response carrying the scan id.
func NewSweepResponse(scanID uint64, err error) *Message {
	return &Message{
		MsgType: MsgTSweep,
		ScanID:  scanID,
		Err:     errString(err),
	}
}

// NewSweepAwaitRequest creates a request waiting for a sweep to complete.
// timeoutSec 0 waits indefinitely.
func NewSweepAwaitRequest(scanID uint64, timeoutSec int64) *Message {
	return &Message{
		MsgType:    MsgTSweepAwait,
		ScanID:     scanID,
		TimeoutSec: timeoutSec,
	}
}

// NewSweepAwaitResponse creates a new SweepAwait response.
func NewSweepAwaitResponse(err error) *Message {
	return &Message{MsgType: MsgTSweepAwait, Err: errString(err)}
}

// NewInfoRequest creates a new store Info request.
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTInfo}
}

// NewInfoResponse creates a new Info response with json encoded store info.
func NewInfoResponse(meta []byte, err error) *Message {
	return &Message{
		MsgType: MsgTInfo,
		Meta:    meta,
		Err:     errString(err),
	}
}

// NewErrorResponse creates a new Error response.
func NewErrorResponse(err string) *Message {
	return &Message{MsgType: MsgTError, Err: err}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTBinGet:
		return "get"
	case MsgTBinPut:
		return "put"
	case MsgTBinPuts:
		return "puts"
	case MsgTBinTouch:
		return "touch"
	case MsgTBinTTL:
		return "ttl"
	case MsgTSweep:
		return "sweep"
	case MsgTSweepAwait:
		return "sweepAwait"
	case MsgTInfo:
		return "info"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "get":
		*t = MsgTBinGet
	case "put":
		*t = MsgTBinPut
	case "puts":
		*t = MsgTBinPuts
	case "touch":
		*t = MsgTBinTouch
	case "ttl":
		*t = MsgTBinTTL
	case "sweep":
		*t = MsgTSweep
	case "sweepAwait":
		*t = MsgTSweepAwait
	case "info":
		*t = MsgTInfo
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Bin operations (applied to one record)

	MsgTBinGet   // Read a list of bins (expired bins read as absent)
	MsgTBinPut   // Create or update one bin with a TTL intent
	MsgTBinPuts  // Batch put against one record
	MsgTBinTouch // Update expiry metadata without changing values
	MsgTBinTTL   // Query the remaining lifetime of one bin

	// Sweep operations (applied to a whole namespace/set)

	MsgTSweep      // Launch a background sweep, returns a scan id
	MsgTSweepAwait // Wait for a sweep to complete

	// Store operations

	MsgTInfo // Query store metadata
)
