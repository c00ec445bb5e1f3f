package memrec

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/StefanHein/binKV/lib/record"
	"github.com/StefanHein/binKV/lib/record/memrec/internal"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("memrec")

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

const (
	defaultReapInterval  = 100 * time.Millisecond
	defaultScanRetention = time.Minute
)

// Options configures the engine during initialization.
type Options struct {
	NumShards     int              // number of shards (0 = one per CPU)
	ReapInterval  time.Duration    // time between reaper cycles (0 = default 100ms)
	ScanRetention time.Duration    // how long finished scan stats stay queryable (0 = default 1m)
	Clock         func() time.Time // time source (nil = time.Now), injectable for tests
}

// DefaultOptions returns the default engine options.
func DefaultOptions() *Options {
	return &Options{
		NumShards:     runtime.NumCPU(),
		ReapInterval:  defaultReapInterval,
		ScanRetention: defaultScanRetention,
	}
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

type engine struct {
	seed   uint64
	shards []*internal.Shard
	clock  func() time.Time

	reapInterval  time.Duration
	scanRetention time.Duration
	stopCh        chan struct{}
	closed        atomic.Bool

	scans   *xsync.MapOf[uint64, *scanState]
	scanSeq atomic.Uint64
}

// New creates a new in-memory record store with the given options (nil for
// defaults) and starts its reaper goroutines.
//
// Thread-safety: the returned store is safe for concurrent use; New itself
// should only be called once per instance.
func New(opts *Options) record.IRecordStore {
	if opts == nil {
		opts = DefaultOptions()
	}
	numShards := opts.NumShards
	if numShards <= 0 {
		numShards = runtime.NumCPU()
	}
	interval := opts.ReapInterval
	if interval <= 0 {
		interval = defaultReapInterval
	}
	retention := opts.ScanRetention
	if retention <= 0 {
		retention = defaultScanRetention
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	shards := make([]*internal.Shard, numShards)
	for i := range shards {
		shards[i] = internal.NewShard()
	}

	e := &engine{
		seed:          generateSeed(),
		shards:        shards,
		clock:         clock,
		reapInterval:  interval,
		scanRetention: retention,
		stopCh:        make(chan struct{}),
		scans:         xsync.NewMapOf[uint64, *scanState](),
	}

	for _, shard := range e.shards {
		go e.reap(shard)
	}

	return e
}

// generateSeed creates a random seed for the key hash, so that two engine
// instances never share a hash distribution.
func generateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

func (e *engine) nowUnix() uint64 {
	return uint64(e.clock().Unix())
}

// shardFor resolves the shard and hashed key for a record address.
func (e *engine) shardFor(key record.Key) (*internal.Shard, internal.UintKey) {
	h := internal.HashKey(key, e.seed)
	return internal.ShardFor(h, e.shards), h
}

// publish hands an event to the shard's reaper without blocking forever on a
// closed engine.
func (e *engine) publish(shard *internal.Shard, ev internal.Event) {
	select {
	case shard.Events <- ev:
	case <-e.stopCh:
	}
}

// --------------------------------------------------------------------------
// Interface Methods - Record Operations (docu see record/interface.go)
// --------------------------------------------------------------------------

func (e *engine) Update(key record.Key, fn record.UpdateFunc) error {
	if err := key.Validate(); err != nil {
		return err
	}
	shard, h := e.shardFor(key)
	now := e.nowUnix()

	var (
		opErr error
		event *internal.Event
	)

	shard.Data.Compute(h, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && old.Key != key {
			opErr = record.NewError(record.RetCInternalError,
				fmt.Sprintf("hash collision between %q and %q", old.Key, key))
			return old, false
		}

		// a record past its native deadline is gone, even before the reaper
		// has removed it
		exists := loaded && !old.Expired(now)

		var snapshot record.Bins
		if exists {
			snapshot = old.Bins.Clone()
		}

		newBins, dirty := fn(snapshot, exists)
		if !dirty {
			// nothing to write; make sure Compute does not create a zero entry
			if loaded {
				return old, false
			}
			return internal.Entry{}, true
		}

		if len(newBins) == 0 {
			// dirty with no bins left deletes the record
			if loaded {
				event = &internal.Event{Type: internal.EventTDelete, Key: h}
			}
			return old, true
		}

		entry := internal.Entry{
			Key:     key,
			Bins:    newBins.Clone(),
			Version: old.Version + 1,
		}
		if exists {
			entry.ExpireAt = old.ExpireAt
		}
		if entry.ExpireAt != 0 {
			event = &internal.Event{Type: internal.EventTWrite, Key: h}
		}
		return entry, false
	})

	if event != nil {
		e.publish(shard, *event)
	}
	return opErr
}

func (e *engine) View(key record.Key, fn record.ViewFunc) error {
	if err := key.Validate(); err != nil {
		return err
	}
	shard, h := e.shardFor(key)

	entry, loaded := shard.Data.Load(h)
	if loaded && entry.Key != key {
		return record.NewError(record.RetCInternalError,
			fmt.Sprintf("hash collision between %q and %q", entry.Key, key))
	}

	if !loaded || entry.Expired(e.nowUnix()) {
		fn(nil, false)
		return nil
	}

	// stored bins are never mutated in place, so the snapshot is stable for
	// the duration of the callback
	fn(entry.Bins, true)
	return nil
}

func (e *engine) Delete(key record.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	shard, h := e.shardFor(key)

	var event *internal.Event
	shard.Data.Compute(h, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if loaded && old.Key == key {
			event = &internal.Event{Type: internal.EventTDelete, Key: h}
			return old, true
		}
		// missing record (or foreign collision): leave the map untouched
		if loaded {
			return old, false
		}
		return internal.Entry{}, true
	})

	if event != nil {
		e.publish(shard, *event)
	}
	return nil
}

func (e *engine) ExpireIn(key record.Key, seconds uint64) error {
	if err := key.Validate(); err != nil {
		return err
	}
	shard, h := e.shardFor(key)
	now := e.nowUnix()

	var event *internal.Event
	shard.Data.Compute(h, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			return internal.Entry{}, true
		}
		if old.Key != key || old.Expired(now) {
			return old, false
		}

		entry := old
		if seconds == 0 {
			entry.ExpireAt = 0
			event = &internal.Event{Type: internal.EventTDelete, Key: h}
		} else {
			entry.ExpireAt = now + seconds
			event = &internal.Event{Type: internal.EventTWrite, Key: h}
		}
		entry.Version = old.Version + 1
		return entry, false
	})

	if event != nil {
		e.publish(shard, *event)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods - Store Metadata
// --------------------------------------------------------------------------

func (e *engine) Info() (record.StoreInfo, error) {
	records := 0
	for _, shard := range e.shards {
		records += shard.Data.Size()
	}

	meta := &struct {
		ShardCount int `json:"shard_count"`
	}{
		ShardCount: len(e.shards),
	}

	return record.StoreInfo{
		Records:  records,
		Impl:     "memrec",
		Metadata: meta,
	}, nil
}

func (e *engine) Close() error {
	if e.closed.CompareAndSwap(false, true) {
		close(e.stopCh)
	}
	return nil
}

// --------------------------------------------------------------------------
// Reaper (native whole-record expiration)
// --------------------------------------------------------------------------

// reap is the per-shard reaper loop. It ingests deadline events between
// cycles and physically removes records whose native expiration has passed.
func (e *engine) reap(shard *internal.Shard) {
	timer := time.NewTimer(e.reapInterval)
	defer timer.Stop()

	for {
		timer.Reset(e.reapInterval)

		// ingest events until the cycle timer fires
		ingest := true
		for ingest {
			select {
			case ev := <-shard.Events:
				switch ev.Type {
				case internal.EventTWrite:
					if entry, ok := shard.Data.Load(ev.Key); ok && entry.ExpireAt != 0 {
						shard.Deadlines.Set(ev.Key, entry.ExpireAt)
					}
				case internal.EventTDelete:
					shard.Deadlines.Remove(ev.Key)
				}
			case <-timer.C:
				ingest = false
			case <-e.stopCh:
				return
			}
		}

		// remove everything that is due as of this cycle
		now := e.nowUnix()
		for {
			h, ok := shard.Deadlines.PopDue(now)
			if !ok {
				break
			}

			shard.Data.Compute(h, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
				if !loaded {
					return internal.Entry{}, true
				}
				// the record may have been rewritten since its deadline was
				// queued; in that case the rewrite also queued a fresh event
				// and this pop is stale
				if !old.Expired(now) {
					return old, false
				}
				return internal.Entry{}, true
			})
		}
	}
}
