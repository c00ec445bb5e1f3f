// Package internal holds the shard structure of the memrec engine.
//
// A shard is an independent partition of the store: a concurrent map of
// record entries plus the bookkeeping the per-shard reaper needs (a deadline
// queue of records with a native expiration and an event channel feeding it).
package internal

import (
	"github.com/StefanHein/binKV/lib/record"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Hash Key Type
// --------------------------------------------------------------------------

// UintKey is the hashed form of a record address, used as map key.
type UintKey uint64

// HashKey hashes a record key with a per-engine seed (FNV-1a over the three
// identifier components, NUL-separated).
func HashKey(k record.Key, seed uint64) UintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	mix := func(s string) {
		for i := 0; i < len(s); i++ {
			hash ^= uint64(s[i])
			hash *= prime64
		}
		// component separator, so ("ab","c") and ("a","bc") differ
		hash ^= 0x1f
		hash *= prime64
	}
	mix(k.Namespace)
	mix(k.Set)
	mix(k.Name)

	return UintKey(hash)
}

// --------------------------------------------------------------------------
// Event Types are used to feed the per-shard reaper
// --------------------------------------------------------------------------

type EventType int

const (
	EventTWrite EventType = iota // entry written, deadline may have changed
	EventTDelete                 // entry removed, forget its deadline
)

type Event struct {
	Type EventType
	Key  UintKey
}

// --------------------------------------------------------------------------
// Entry Type (one record with metadata)
// --------------------------------------------------------------------------

// Entry stores one record with its store-level metadata.
type Entry struct {
	Key      record.Key  // original address, needed by scans and to detect hash collisions
	Bins     record.Bins // bin name -> bin value
	ExpireAt uint64      // native whole-record expiration (unix seconds, 0 = never)
	Version  uint64      // bumped on every dirty update
}

// Expired reports whether the record's native expiration has passed.
func (e Entry) Expired(nowUnix uint64) bool {
	return e.ExpireAt != 0 && nowUnix >= e.ExpireAt
}

// --------------------------------------------------------------------------
// Shard Type (partition of the store)
// --------------------------------------------------------------------------

// eventBuffer is the capacity of a shard's event channel. The reaper drains
// the channel on every cycle; a full buffer stalls the writer briefly instead
// of dropping the event.
const eventBuffer = 1024

// Shard represents one partition of the store.
type Shard struct {
	Data      *xsync.MapOf[UintKey, Entry]
	Deadlines *DeadlineQueue
	Events    chan Event
}

// NewShard creates an empty shard.
func NewShard() *Shard {
	return &Shard{
		Data:      xsync.NewMapOf[UintKey, Entry](),
		Deadlines: NewDeadlineQueue(),
		Events:    make(chan Event, eventBuffer),
	}
}

// ShardFor returns the shard responsible for a hashed key.
//
// Thread-safety: safe for concurrent use.
func ShardFor(key UintKey, shards []*Shard) *Shard {
	// skip the low bits, they carry the least entropy after FNV mixing
	return shards[(uint64(key)>>7)%uint64(len(shards))]
}
