package expbin

import (
	"time"

	"github.com/StefanHein/binKV/lib/record"
	"github.com/VictoriaMetrics/metrics"
)

var (
	sweepsStarted  = metrics.NewCounter("binkv_sweeps_started_total")
	sweptRecords   = metrics.NewCounter("binkv_sweep_records_total")
	reclaimedBins  = metrics.NewCounter("binkv_sweep_bins_reclaimed_total")
	sweepRecordErr = metrics.NewCounter("binkv_sweep_record_failures_total")
)

// Sweeper drives Clean across a whole namespace/set using the store's
// background scan. The sweep is best-effort: a record that fails to clean is
// counted and skipped, only a failed scan launch surfaces as an error.
type Sweeper struct {
	store record.IRecordStore
	now   func() time.Time
}

// NewSweeper creates a sweeper for the given store.
func NewSweeper(store record.IRecordStore) *Sweeper {
	return &Sweeper{
		store: store,
		now:   time.Now,
	}
}

// Sweep launches a background scan that cleans the candidate bins on every
// record of the namespace/set, and returns the scan id. The expiry cutoff is
// taken once at launch, so a sweep is idempotent: records already cleaned
// (or cleaned by a concurrent sweep) are simply skipped without a write.
func (s *Sweeper) Sweep(namespace, set string, candidates []string) (uint64, error) {
	cutoff := uint64(s.now().Unix())

	id, err := s.store.Scan(namespace, set, func(key record.Key, bins record.Bins, exists bool) (record.Bins, bool, error) {
		if !exists {
			return nil, false, nil
		}
		sweptRecords.Inc()
		newBins, dirty, removed := cleanBins(bins, candidates, cutoff)
		if removed > 0 {
			reclaimedBins.Add(removed)
			Logger.Debugf("sweep: reclaimed %d bins from %s", removed, key)
		}
		return newBins, dirty, nil
	})
	if err != nil {
		return 0, err
	}

	sweepsStarted.Inc()
	Logger.Infof("sweep %d started for %s/%s (%d candidate bins)", id, namespace, set, len(candidates))
	return id, nil
}

// Await blocks until the identified sweep completes. A timeout of 0 waits
// indefinitely.
func (s *Sweeper) Await(id uint64, timeout time.Duration) error {
	if err := s.store.AwaitScan(id, timeout); err != nil {
		return err
	}

	if stats, err := s.store.ScanStats(id); err == nil {
		if stats.Failed > 0 {
			sweepRecordErr.Add(int(stats.Failed))
		}
		Logger.Infof("sweep %d finished: visited=%d failed=%d", id, stats.Visited, stats.Failed)
	}
	return nil
}
