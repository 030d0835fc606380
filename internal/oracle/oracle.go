// Package oracle implements the single source of commit versions of
// spec section 4.4: version allocation, commit linearization (the
// "committed window"), and the read/done watermarks that bound safe
// cleanup.
package oracle

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/reifydb/reifydb-core/internal/conflict"
	"github.com/reifydb/reifydb-core/internal/diagnostic"
	"github.com/reifydb/reifydb-core/internal/rlog"
	"github.com/reifydb/reifydb-core/internal/storage"
)

// windowEntry is one committed transaction's write-set summary kept in
// the committed window for conflict validation of newcomers.
type windowEntry struct {
	version storage.CommitVersion
	summary *conflict.Summary
}

// Oracle is the process-wide singleton of spec section 9 ("process-wide
// state with init/teardown at database open/close").
type Oracle struct {
	mu          sync.Mutex
	nextVersion storage.CommitVersion
	windowSize  int
	window      []windowEntry // append-only, ascending by version

	// ReadWatermark tracks commit versions and exposes the highest
	// version whose transaction has fully finished applying (spec
	// glossary "Read watermark"). New transactions snapshot at this
	// value.
	ReadWatermark *WaterMark

	// DoneWatermark tracks in-flight read snapshots and exposes the
	// lowest still-open snapshot minus one (spec glossary
	// "Done watermark"), a lower bound for safe reclamation.
	DoneWatermark *WaterMark

	log zerolog.Logger
}

// Config bounds the oracle's resource usage, mirroring spec section 6.
type Config struct {
	WindowSize              int
	MaxWaiters              int
	MaxPending              int
	OldVersionThreshold     uint64
	PendingCleanupThreshold uint64
}

// New returns an Oracle with no committed transactions yet; version 0 is
// reserved so the first assigned commit version is 1.
func New(cfg Config) *Oracle {
	windowSize := cfg.WindowSize
	if windowSize <= 0 {
		windowSize = 4096
	}
	return &Oracle{
		nextVersion:   1,
		windowSize:    windowSize,
		ReadWatermark: NewWaterMark(0, cfg.MaxWaiters, cfg.MaxPending),
		DoneWatermark: NewWaterMark(0, cfg.MaxWaiters, cfg.MaxPending),
		log:           rlog.WithComponent("oracle"),
	}
}

// BeginReadTimestamp returns the current read watermark as a snapshot
// version and registers it as in-flight on the done watermark, so
// reclamation never runs ahead of an open reader (spec section 4.5
// begin_query/begin_command).
func (o *Oracle) BeginReadTimestamp() (storage.CommitVersion, error) {
	readTs := o.ReadWatermark.DoneUntil()
	if err := o.DoneWatermark.Begin(readTs); err != nil {
		return 0, err
	}
	return readTs, nil
}

// EndReadTimestamp releases a previously acquired read snapshot, letting
// the done watermark advance (spec section 4.5 rollback/commit).
func (o *Oracle) EndReadTimestamp(readTs storage.CommitVersion) {
	o.DoneWatermark.Done(readTs)
}

// CommitRequest is what a transaction presents to the oracle at commit
// time (spec section 4.4 step 1).
type CommitRequest struct {
	ReadTs    storage.CommitVersion
	Conflicts *conflict.Manager
	Deltas    []storage.Delta
}

// Commit runs the oracle's serialization protocol: it assigns a commit
// version, checks the request's read/range-read sets against every
// committed window entry in (ReadTs, commit_ts), and on success records
// the new entry in the window. The caller is responsible for applying
// Deltas to storage at the returned version and then calling Applied.
func (o *Oracle) Commit(req CommitRequest) (storage.CommitVersion, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	commitTs := o.nextVersion

	for _, entry := range o.window {
		if entry.version <= req.ReadTs || entry.version >= commitTs {
			continue
		}
		if req.Conflicts.ConflictsWith(entry.summary) {
			o.log.Warn().Uint64("read_ts", uint64(req.ReadTs)).
				Uint64("conflicting_version", uint64(entry.version)).
				Msg("read/range-read conflict")
			return 0, diagnostic.Conflict("transaction conflicts with a transaction committed after its read snapshot")
		}
		// Write-write exclusion applies at every isolation level (spec
		// section 4.5: Optimistic's conflict rule is "overlap on at
		// least one key" across reads, range-reads, *and writes* — two
		// blind Set() calls on the same key must not both commit).
		if req.Conflicts.WriteWriteConflictsWith(entry.summary) {
			o.log.Warn().Uint64("read_ts", uint64(req.ReadTs)).
				Uint64("conflicting_version", uint64(entry.version)).
				Msg("write-write conflict")
			return 0, diagnostic.Conflict("transaction conflicts with a transaction committed after its read snapshot")
		}
	}

	o.nextVersion++
	summary := conflict.NewSummary(req.Conflicts.WriteKeys())
	o.window = append(o.window, windowEntry{version: commitTs, summary: summary})
	if len(o.window) > o.windowSize {
		o.window = o.window[len(o.window)-o.windowSize:]
	}

	if err := o.ReadWatermark.Begin(commitTs); err != nil {
		// Roll back the version assignment's visibility bookkeeping;
		// the version itself is still retired (never reused), per
		// spec invariant I1 ("dense, no gaps committed after close").
		return 0, err
	}

	o.log.Debug().Uint64("commit_version", uint64(commitTs)).Msg("commit version assigned")
	return commitTs, nil
}

// Applied must be called once a committed transaction's deltas and CDC
// record have been durably written, advancing the read watermark past
// commitTs (spec section 4.4 step 4).
func (o *Oracle) Applied(commitTs storage.CommitVersion) {
	o.ReadWatermark.Done(commitTs)
}

// NextVersionPeek reports the next version that would be assigned,
// without assigning it. Used only for diagnostics/tests.
func (o *Oracle) NextVersionPeek() storage.CommitVersion {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.nextVersion
}
