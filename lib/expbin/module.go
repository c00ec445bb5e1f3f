package expbin

import (
	"fmt"
	"strings"
	"time"

	"github.com/StefanHein/binKV/lib/record"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("expbin")

// --------------------------------------------------------------------------
// Module
// --------------------------------------------------------------------------

// Module implements the bin-expiry operations against a record store.
type Module struct {
	store record.IRecordStore
	now   func() time.Time
}

// NewModule creates a bin-expiry module on top of the given store.
func NewModule(store record.IRecordStore) *Module {
	return &Module{
		store: store,
		now:   time.Now,
	}
}

// PutOp is one element of a batch put.
type PutOp struct {
	Bin   string
	Value []byte
	TTL   TTL
}

// TouchOp is one element of a batch touch.
type TouchOp struct {
	Bin string
	TTL TTL
}

func (m *Module) nowUnix() uint64 {
	return uint64(m.now().Unix())
}

// validateBinName rejects names that could collide with the reserved
// metadata bin.
func validateBinName(name string) error {
	if name == "" {
		return fmt.Errorf("bin name must not be empty")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("bin name must not contain NUL bytes")
	}
	return nil
}

// writeDeadlines stores the (possibly emptied) deadline mapping back into
// the record's reserved bin.
func writeDeadlines(bins record.Bins, deadlines map[string]uint64) {
	if encoded := encodeDeadlines(deadlines); encoded != nil {
		bins[MetaBin] = encoded
	} else {
		delete(bins, MetaBin)
	}
}

// --------------------------------------------------------------------------
// Get
// --------------------------------------------------------------------------

// Get returns the values of the named bins, aligned by position with the
// input. A slot is nil if the bin is absent or its expiry has passed. Get
// never writes: an expired bin stays physically present until the sweep
// removes it, it is merely invisible here.
func (m *Module) Get(key record.Key, bins []string) ([][]byte, error) {
	results := make([][]byte, len(bins))

	err := m.store.View(key, func(data record.Bins, exists bool) {
		if !exists {
			return
		}
		deadlines := decodeDeadlines(data[MetaBin])
		now := m.nowUnix()

		for i, name := range bins {
			val, ok := data[name]
			if !ok {
				continue
			}
			if deadline, isExpireBin := deadlines[name]; isExpireBin && now >= deadline {
				continue
			}
			cp := make([]byte, len(val))
			copy(cp, val)
			results[i] = cp
		}
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// --------------------------------------------------------------------------
// Put / Puts
// --------------------------------------------------------------------------

// Put creates or updates a single bin. The TTL variant decides the bin's
// expiry metadata: Preserve writes the value without touching existing
// metadata (an expire bin is not demoted by an ordinary write), Normal
// writes the value and clears the metadata, ExpireAfter writes the value and
// sets the deadline to now + seconds.
func (m *Module) Put(key record.Key, bin string, value []byte, ttl TTL) error {
	return m.Puts(key, []PutOp{{Bin: bin, Value: value, TTL: ttl}})
}

// Puts applies several put operations to the same record as one atomic
// update. The result is a single status for the whole batch; a rejected
// operation fails the batch with nothing written.
func (m *Module) Puts(key record.Key, ops []PutOp) error {
	if len(ops) == 0 {
		return nil
	}

	var opErr error
	err := m.store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		for _, op := range ops {
			if err := validateBinName(op.Bin); err != nil {
				opErr = fmt.Errorf("put %q: %w", op.Bin, err)
				return nil, false
			}
		}

		if bins == nil {
			bins = record.Bins{}
		}
		deadlines := decodeDeadlines(bins[MetaBin])
		now := m.nowUnix()

		for _, op := range ops {
			bins[op.Bin] = op.Value
			switch op.TTL.kind {
			case ttlPreserve:
				// existing expire bins keep their deadline
			case ttlNormal:
				delete(deadlines, op.Bin)
			case ttlExpireAfter:
				deadlines[op.Bin] = now + op.TTL.seconds
			}
		}

		writeDeadlines(bins, deadlines)
		return bins, true
	})
	if err != nil {
		return err
	}
	return opErr
}

// --------------------------------------------------------------------------
// Touch
// --------------------------------------------------------------------------

// Touch updates only the expiry metadata of existing bins; values are never
// changed. Touching a bin that does not exist (or is already expired) fails
// the whole batch without writing anything: touch is not bin creation. A
// touch on a normal bin with ExpireAfter promotes it to an expire bin.
func (m *Module) Touch(key record.Key, ops []TouchOp) error {
	if len(ops) == 0 {
		return nil
	}

	var opErr error
	err := m.store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		if !exists {
			opErr = fmt.Errorf("touch %s: record does not exist", key)
			return nil, false
		}
		deadlines := decodeDeadlines(bins[MetaBin])
		now := m.nowUnix()

		for _, op := range ops {
			if err := validateBinName(op.Bin); err != nil {
				opErr = fmt.Errorf("touch %q: %w", op.Bin, err)
				return nil, false
			}
			_, present := bins[op.Bin]
			if deadline, isExpireBin := deadlines[op.Bin]; present && isExpireBin && now >= deadline {
				present = false
			}
			if !present {
				opErr = fmt.Errorf("touch %q: bin does not exist", op.Bin)
				return nil, false
			}

			switch op.TTL.kind {
			case ttlPreserve:
				// keep the current expiry status
			case ttlNormal:
				delete(deadlines, op.Bin)
			case ttlExpireAfter:
				deadlines[op.Bin] = now + op.TTL.seconds
			}
		}

		writeDeadlines(bins, deadlines)
		return bins, true
	})
	if err != nil {
		return err
	}
	return opErr
}

// --------------------------------------------------------------------------
// TTL Query
// --------------------------------------------------------------------------

// BinTTL reports the remaining lifetime of a bin: (seconds, TTLRemaining)
// for a live expire bin, (0, TTLNone) for a normal bin, and (0, TTLAbsent)
// if the bin is missing or already expired. The query never mutates state.
func (m *Module) BinTTL(key record.Key, bin string) (uint64, TTLState, error) {
	var (
		remaining uint64
		state     = TTLAbsent
	)

	err := m.store.View(key, func(data record.Bins, exists bool) {
		if !exists {
			return
		}
		if _, ok := data[bin]; !ok {
			return
		}

		deadlines := decodeDeadlines(data[MetaBin])
		deadline, isExpireBin := deadlines[bin]
		if !isExpireBin {
			state = TTLNone
			return
		}
		if now := m.nowUnix(); now < deadline {
			remaining = deadline - now
			state = TTLRemaining
		}
	})
	if err != nil {
		return 0, TTLAbsent, err
	}
	return remaining, state, nil
}

// --------------------------------------------------------------------------
// Clean
// --------------------------------------------------------------------------

// Clean physically removes every candidate bin whose expiry has passed,
// together with its metadata entry, in one atomic record update. Stale
// metadata entries (naming bins that no longer exist) are pruned as well.
// When nothing is due the write is skipped entirely, so sweeping a clean
// record costs no write at all. Clean is the only path that reclaims the
// space of expired bins.
func (m *Module) Clean(key record.Key, candidates []string) error {
	now := m.nowUnix()
	return m.store.Update(key, func(bins record.Bins, exists bool) (record.Bins, bool) {
		if !exists {
			return nil, false
		}
		newBins, dirty, _ := cleanBins(bins, candidates, now)
		return newBins, dirty
	})
}

// cleanBins removes expired candidate bins and stale metadata from a bins
// snapshot. It returns the updated bins, whether anything changed and the
// number of bin values removed. Shared between Clean and the Sweeper.
func cleanBins(bins record.Bins, candidates []string, now uint64) (record.Bins, bool, int) {
	deadlines := decodeDeadlines(bins[MetaBin])
	if len(deadlines) == 0 {
		return bins, false, 0
	}

	dirty := false
	removed := 0
	for _, name := range candidates {
		deadline, isExpireBin := deadlines[name]
		if !isExpireBin {
			continue
		}
		if _, ok := bins[name]; !ok {
			// stale metadata for a bin that no longer exists
			delete(deadlines, name)
			dirty = true
			continue
		}
		if now >= deadline {
			delete(bins, name)
			delete(deadlines, name)
			dirty = true
			removed++
		}
	}

	if dirty {
		writeDeadlines(bins, deadlines)
	}
	return bins, dirty, removed
}
