package record

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Key and Record Types
// --------------------------------------------------------------------------

// Identifier length limits. Records are addressed by short identifiers, not
// arbitrary blobs, so the limits are validated instead of silently truncated.
const (
	MaxNamespaceLen = 31
	MaxSetLen       = 63
	MaxKeyLen       = 1023
)

// Key addresses a single record.
type Key struct {
	Namespace string
	Set       string
	Name      string
}

// NewKey creates a Key from its three components.
func NewKey(namespace, set, name string) Key {
	return Key{Namespace: namespace, Set: set, Name: name}
}

// Validate checks the identifier length limits.
// An empty namespace or key name is invalid; an empty set is allowed.
func (k Key) Validate() error {
	if k.Namespace == "" || len(k.Namespace) > MaxNamespaceLen {
		return NewError(RetCInvalidKey, fmt.Sprintf("namespace must be 1-%d bytes", MaxNamespaceLen))
	}
	if len(k.Set) > MaxSetLen {
		return NewError(RetCInvalidKey, fmt.Sprintf("set must be at most %d bytes", MaxSetLen))
	}
	if k.Name == "" || len(k.Name) > MaxKeyLen {
		return NewError(RetCInvalidKey, fmt.Sprintf("key must be 1-%d bytes", MaxKeyLen))
	}
	return nil
}

func (k Key) String() string {
	return k.Namespace + "/" + k.Set + "/" + k.Name
}

// Bins is the content of one record: a mapping from bin name to bin value.
type Bins map[string][]byte

// Clone returns a deep copy of the bins.
func (b Bins) Clone() Bins {
	if b == nil {
		return nil
	}
	out := make(Bins, len(b))
	for name, val := range b {
		cp := make([]byte, len(val))
		copy(cp, val)
		out[name] = cp
	}
	return out
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// UpdateFunc is the callback for an atomic read-modify-write of one record.
// It receives a private copy of the record's bins (nil if the record does not
// exist) and returns the new bins plus a dirty flag. If dirty is false the
// store skips the write entirely. Returning dirty=true with nil or empty bins
// deletes the record.
type UpdateFunc func(bins Bins, exists bool) (newBins Bins, dirty bool)

// ViewFunc is the callback for a read-only snapshot of one record. The bins
// passed in must not be retained or modified.
type ViewFunc func(bins Bins, exists bool)

// ScanFunc is applied to every record during a scan, under the same
// single-record atomicity as Update. A returned error marks the record as
// failed; the scan continues with the next record.
type ScanFunc func(key Key, bins Bins, exists bool) (newBins Bins, dirty bool, err error)

// IRecordStore is the generic interface for a record store.
// All operations validate the key and return a *Error on failure (nil on
// success). Implementations serialize concurrent operations on the same
// record; callers must not assume any ordering across records.
type IRecordStore interface {
	// Update atomically reads, modifies and writes one record.
	Update(key Key, fn UpdateFunc) (err error)
	// View reads one record without modifying it.
	View(key Key, fn ViewFunc) (err error)
	// Delete removes a record. Deleting a missing record is not an error.
	Delete(key Key) (err error)
	// ExpireIn sets the native whole-record expiration to now + seconds.
	// A value of 0 clears any expiration.
	ExpireIn(key Key, seconds uint64) (err error)
	// Scan applies fn to every record of the namespace/set in the background
	// and returns a scan id. Per-record failures never abort the scan.
	Scan(namespace, set string, fn ScanFunc) (id uint64, err error)
	// AwaitScan blocks until the identified scan completes. A timeout of 0
	// waits indefinitely. An unknown id is an error.
	AwaitScan(id uint64, timeout time.Duration) (err error)
	// ScanStats returns the progress counters of a scan. The counters are
	// only final once AwaitScan has returned for the same id. Implementations
	// may evict the state of a completed scan after a retention period, after
	// which the id is unknown.
	ScanStats(id uint64) (info ScanInfo, err error)
	// Info returns metadata about the store.
	Info() (info StoreInfo, err error)
	// Close releases background resources. The store must not be used after.
	Close() (err error)
}

// StoreInfo describes a store instance.
type StoreInfo struct {
	Records  int         `json:"records"`
	Impl     string      `json:"impl"`
	Metadata interface{} `json:"metadata"`
}

// ScanInfo is the result of a completed scan.
type ScanInfo struct {
	Visited uint64 `json:"visited"`
	Failed  uint64 `json:"failed"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by record stores. It wraps a return code
// and a message.
type Error struct {
	Code RetCode
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	code := "Unknown"
	switch e.Code {
	case RetCInternalError:
		code = "InternalError"
	case RetCInvalidKey:
		code = "InvalidKey"
	case RetCScanNotFound:
		code = "ScanNotFound"
	}
	return fmt.Sprintf("RecordStoreError (code %s): %s", code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                // 1: Operation failed due to an internal error.
	RetCInvalidKey                   // 2: Key violates the identifier limits.
	RetCScanNotFound                 // 3: No scan with the given id is known.
)
