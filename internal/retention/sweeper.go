// Package retention implements the background sweeper of spec section 5
// and 9: "a background sweeper (low priority) reclaims multi-version
// entries with version strictly less than min(cdc_watermark,
// done_watermark) subject to per-source retention policy. Reclamation is
// idempotent."
//
// What: per-source policy (keep-forever / keep-versions(N) /
// keep-duration) selects which sources are eligible to reclaim at all,
// and a cleanup mode (delete/drop) selects how ReclaimBefore is invoked.
// How: grounded on tinySQL's own scheduler pattern (a
// ticker-driven background loop with a stop channel) generalized to use
// robfig/cron/v3 for the schedule, matching SPEC_FULL.md's dependency
// wiring for the CDC poll loop's ticking.
// Why: reclamation must run continuously but must never race ahead of a
// consumer's checkpoint or a still-open reader (spec invariant I4).
package retention

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/reifydb/reifydb-core/internal/config"
	"github.com/reifydb/reifydb-core/internal/rlog"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

// DoneWatermarkSource reports the done watermark (spec section 4.4: the
// lower bound for safe reclamation contributed by still-open readers).
type DoneWatermarkSource interface {
	DoneUntil() storage.CommitVersion
}

// SourceID names one source (table/view/ring-buffer) whose rows a
// retention policy governs, distinct from the CDC consumer checkpoints
// that bound the global CDC watermark.
type SourceID = uint64

// PolicyResolver selects the effective retention policy for a source,
// falling back to the configured default (spec section 6 "retention per
// source").
type PolicyResolver func(source SourceID) config.RetentionPolicy

// Sweeper periodically computes the global reclamation watermark and
// invokes ReclaimBefore on eligible sources' underlying tables.
type Sweeper struct {
	multi    storage.MultiTable
	cdc      storage.CdcTable
	single   storage.SingleTable
	done     DoneWatermarkSource
	resolve  PolicyResolver
	sources  func() []SourceID
	schedule cron.Schedule

	mu      sync.Mutex
	cronJob *cron.Cron
	log     zerolog.Logger
}

// New returns a Sweeper that reclaims on the given cron schedule (e.g.
// "@every 30s" for the low-priority background cadence of spec section
// 5). sources lists every live source id to consider each tick;
// resolve picks that source's policy.
func New(multi storage.MultiTable, cdcTable storage.CdcTable, single storage.SingleTable, done DoneWatermarkSource, sources func() []SourceID, resolve PolicyResolver, schedule string) (*Sweeper, error) {
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, err
	}
	return &Sweeper{
		multi:    multi,
		cdc:      cdcTable,
		single:   single,
		done:     done,
		sources:  sources,
		resolve:  resolve,
		schedule: parsed,
		log:      rlog.WithComponent("retention.sweeper"),
	}, nil
}

// Start runs SweepOnce on the configured schedule until Stop is called.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cronJob != nil {
		return
	}
	c := cron.New()
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if err := s.SweepOnce(time.Now()); err != nil {
			s.log.Warn().Err(err).Msg("retention sweep failed")
		}
	}))
	c.Start()
	s.cronJob = c
}

// Stop halts the scheduled sweeps; an in-flight sweep finishes.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cronJob == nil {
		return
	}
	ctx := s.cronJob.Stop()
	<-ctx.Done()
	s.cronJob = nil
}

// SweepOnce computes min(cdc_watermark, done_watermark) and reclaims
// every eligible source's multi-version entries strictly older than it
// (spec section 5), plus the CDC log itself. now is injected so
// keep-duration policies are testable without a wall-clock dependency.
func (s *Sweeper) SweepOnce(now time.Time) error {
	cdcWatermark, err := GlobalCdcWatermark(s.single)
	if err != nil {
		return err
	}
	doneWatermark := s.done.DoneUntil()

	watermark := cdcWatermark
	if doneWatermark < watermark {
		watermark = doneWatermark
	}

	// MultiTable.ReclaimBefore reclaims across the whole table, with no
	// per-source scoping in its signature (spec section 4.2's table is
	// a single opaque keyspace). A per-source policy can therefore only
	// be honored exactly when every live source agrees on how far back
	// is safe: the sweep takes the most conservative cutoff among all
	// "delete"-mode sources, and skips reclaiming entirely if any live
	// source is "keep-forever" (reclaiming past it would destroy
	// entries that source's policy requires keeping). A "drop"-mode
	// source bypasses the watermark individually, but is only safe to
	// fold into the same blanket call when every live source is itself
	// in "drop" mode; mixed drop/keep-forever sources fall back to
	// skipping the sweep, logged at warn so an operator notices the
	// source needs moving to its own reclamation path.
	cutoff, ok, err := s.globalCutoff(s.sources(), watermark, now)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug().Msg("retention sweep skipped: a live source forbids reclaiming past the watermark")
	} else if err := s.multi.ReclaimBefore(cutoff); err != nil {
		return err
	}

	return s.cdc.ReclaimBefore(watermark)
}

// globalCutoff folds every live source's policy into the single cutoff
// the sweep may pass to MultiTable.ReclaimBefore, or reports false if no
// single cutoff can honor every source at once.
func (s *Sweeper) globalCutoff(sources []SourceID, watermark storage.CommitVersion, now time.Time) (storage.CommitVersion, bool, error) {
	if len(sources) == 0 {
		return watermark, true, nil
	}

	allDrop := true
	cutoff := watermark
	any := false
	for _, source := range sources {
		policy := s.resolve(source)
		if policy.CleanupMode != config.CleanupDrop {
			allDrop = false
		}
		c, eligible, err := s.cutoffFor(policy, watermark, now)
		if err != nil {
			return 0, false, err
		}
		if !eligible {
			return 0, false, nil
		}
		if !any || c < cutoff {
			cutoff, any = c, true
		}
	}
	if allDrop {
		return maxCommitVersion, true, nil
	}
	return cutoff, true, nil
}

// cutoffFor returns the version strictly below which source's entries
// may be reclaimed, and whether the policy permits reclaiming at all
// right now. keep-versions and keep-duration both still respect
// watermark: a policy only ever narrows the watermark-derived cutoff,
// it never reclaims past it (spec invariant I4).
func (s *Sweeper) cutoffFor(policy config.RetentionPolicy, watermark storage.CommitVersion, now time.Time) (storage.CommitVersion, bool, error) {
	switch policy.Kind {
	case "keep-forever", "":
		return 0, false, nil
	case "keep-versions":
		if storage.CommitVersion(policy.Versions) >= watermark {
			return 0, false, nil
		}
		return watermark - storage.CommitVersion(policy.Versions), true, nil
	case "keep-duration":
		cutoff, err := s.durationCutoff(watermark, policy.Duration, now)
		if err != nil {
			return 0, false, err
		}
		return cutoff, true, nil
	default:
		return watermark, true, nil
	}
}

// durationCutoff returns the newest version whose CDC record committed
// at or before now-duration (spec section 6 keep-duration: entries
// committed less than duration ago must not be reclaimed, however old
// the watermark otherwise allows). Every committed write produces
// exactly one CdcRecord stamped with its commit time, so the CDC log
// doubles as the version-to-commit-time index this needs; the scan only
// looks at versions still below watermark, which this tick's CDC
// reclaim (below, after the multi reclaim) has not yet removed.
// Versions are assumed to commit in non-decreasing wall-clock order
// (true for a single oracle assigning both in the same critical
// section), so the scan stops at the first record newer than the
// threshold.
func (s *Sweeper) durationCutoff(watermark storage.CommitVersion, duration time.Duration, now time.Time) (storage.CommitVersion, error) {
	if duration <= 0 {
		return watermark, nil
	}
	threshold := now.Add(-duration)

	records, err := s.cdc.Range(0, watermark)
	if err != nil {
		return 0, err
	}

	var cutoff storage.CommitVersion
	for _, record := range records {
		if record.Timestamp.After(threshold) {
			break
		}
		cutoff = record.Version
	}
	return cutoff, nil
}

const maxCommitVersion = storage.CommitVersion(1<<64 - 1)

// GlobalCdcWatermark scans every persisted consumer checkpoint and
// returns their minimum (spec section 4.7: "a global CDC watermark is
// min of all consumers' checkpoints"). No checkpoints at all reports the
// zero version, so reclamation stays disabled until at least one
// consumer has registered.
func GlobalCdcWatermark(single storage.SingleTable) (storage.CommitVersion, error) {
	it, err := single.Range(types.CdcConsumerPrefix())
	if err != nil {
		return 0, err
	}

	min, any := storage.CommitVersion(0), false
	for it.Next() {
		entry := it.Item()
		if len(entry.Value) < 8 {
			continue
		}
		v := decodeBigEndianVersion(entry.Value)
		if !any || v < min {
			min, any = v, true
		}
	}
	if !any {
		return 0, nil
	}
	return min, nil
}

func decodeBigEndianVersion(b types.EncodedValues) storage.CommitVersion {
	var v uint64
	for _, c := range b[:8] {
		v = (v << 8) | uint64(c)
	}
	return storage.CommitVersion(v)
}
