package memrec

import (
	"sync/atomic"
	"time"

	"github.com/StefanHein/binKV/lib/record"
	"github.com/StefanHein/binKV/lib/record/memrec/internal"
)

// scanState tracks one background scan.
type scanState struct {
	done    chan struct{}
	visited atomic.Uint64
	failed  atomic.Uint64
}

// --------------------------------------------------------------------------
// Interface Methods - Scans (docu see record/interface.go)
// --------------------------------------------------------------------------

func (e *engine) Scan(namespace, set string, fn record.ScanFunc) (uint64, error) {
	if namespace == "" || len(namespace) > record.MaxNamespaceLen || len(set) > record.MaxSetLen {
		return 0, record.NewError(record.RetCInvalidKey, "invalid namespace or set for scan")
	}
	if e.closed.Load() {
		return 0, record.NewError(record.RetCInternalError, "store is closed")
	}

	id := e.scanSeq.Add(1)
	st := &scanState{done: make(chan struct{})}
	e.scans.Store(id, st)

	go e.runScan(id, namespace, set, fn, st)
	return id, nil
}

func (e *engine) AwaitScan(id uint64, timeout time.Duration) error {
	st, ok := e.scans.Load(id)
	if !ok {
		return record.NewError(record.RetCScanNotFound, "unknown scan id")
	}

	if timeout <= 0 {
		<-st.done
		return nil
	}

	select {
	case <-st.done:
		return nil
	case <-time.After(timeout):
		return record.NewError(record.RetCInternalError, "timed out waiting for scan")
	}
}

func (e *engine) ScanStats(id uint64) (record.ScanInfo, error) {
	st, ok := e.scans.Load(id)
	if !ok {
		return record.ScanInfo{}, record.NewError(record.RetCScanNotFound, "unknown scan id")
	}
	return record.ScanInfo{
		Visited: st.visited.Load(),
		Failed:  st.failed.Load(),
	}, nil
}

// --------------------------------------------------------------------------
// Scan Execution
// --------------------------------------------------------------------------

// runScan walks all shards and applies fn to every record of the requested
// namespace/set. Each record is processed under its own atomic compute; a
// failing record is counted and skipped.
func (e *engine) runScan(id uint64, namespace, set string, fn record.ScanFunc, st *scanState) {
	defer func() {
		close(st.done)
		// keep the stats queryable for a while, then reclaim the state so
		// long-running engines do not accumulate one entry per scan forever
		time.AfterFunc(e.scanRetention, func() {
			e.scans.Delete(id)
		})
	}()

	start := time.Now()

	for _, shard := range e.shards {
		// snapshot the matching keys first so the walk is not affected by
		// writes the scan function itself performs
		var keys []internal.UintKey
		shard.Data.Range(func(h internal.UintKey, entry internal.Entry) bool {
			if entry.Key.Namespace == namespace && entry.Key.Set == set {
				keys = append(keys, h)
			}
			return true
		})

		for _, h := range keys {
			select {
			case <-e.stopCh:
				Logger.Warningf("scan %d aborted: store closed", id)
				return
			default:
			}
			e.scanRecord(shard, h, fn, st)
		}
	}

	Logger.Debugf("scan %d completed: visited=%d failed=%d took=%s",
		id, st.visited.Load(), st.failed.Load(), time.Since(start))
}

// scanRecord applies the scan function to a single record.
func (e *engine) scanRecord(shard *internal.Shard, h internal.UintKey, fn record.ScanFunc, st *scanState) {
	now := e.nowUnix()

	var (
		scanErr error
		visited bool
		event   *internal.Event
	)

	shard.Data.Compute(h, func(old internal.Entry, loaded bool) (internal.Entry, bool) {
		if !loaded {
			// record vanished between the key snapshot and now
			return internal.Entry{}, true
		}
		visited = true
		exists := !old.Expired(now)

		var snapshot record.Bins
		if exists {
			snapshot = old.Bins.Clone()
		}

		newBins, dirty, err := fn(old.Key, snapshot, exists)
		if err != nil {
			scanErr = err
			return old, false
		}
		if !dirty {
			return old, false
		}

		if len(newBins) == 0 {
			event = &internal.Event{Type: internal.EventTDelete, Key: h}
			return old, true
		}

		entry := internal.Entry{
			Key:     old.Key,
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

	if visited {
		st.visited.Add(1)
	}
	if scanErr != nil {
		st.failed.Add(1)
		Logger.Warningf("scan: record failed: %v", scanErr)
	}
	if event != nil {
		e.publish(shard, *event)
	}
}
