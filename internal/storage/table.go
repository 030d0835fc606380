package storage

import "github.com/reifydb/reifydb-core/internal/types"

// Iterator yields Versioned entries in ascending key order. Implementations
// snapshot their underlying slice at creation time so a concurrent commit
// never mutates an in-flight iteration (spec section 4.2: "snapshot-stable
// against concurrent commits").
type Iterator struct {
	items []Versioned
	pos   int
}

func newIterator(items []Versioned) *Iterator {
	return &Iterator{items: items}
}

func (it *Iterator) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *Iterator) Item() Versioned {
	return it.items[it.pos-1]
}

// Collect drains the iterator into a slice; mainly useful in tests.
func (it *Iterator) Collect() []Versioned {
	out := make([]Versioned, 0, len(it.items)-it.pos)
	for it.Next() {
		out = append(out, it.Item())
	}
	return out
}

// SingleIterator yields SingleEntry rows in ascending key order.
type SingleIterator struct {
	items []SingleEntry
	pos   int
}

func newSingleIterator(items []SingleEntry) *SingleIterator {
	return &SingleIterator{items: items}
}

func (it *SingleIterator) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *SingleIterator) Item() SingleEntry {
	return it.items[it.pos-1]
}

// MultiTable is the versioned key-value table of spec section 4.2.
type MultiTable interface {
	Get(key types.EncodedKey, version CommitVersion) (Versioned, bool, error)
	Contains(key types.EncodedKey, version CommitVersion) (bool, error)
	Range(r types.EncodedKeyRange, version CommitVersion) (*Iterator, error)
	Commit(deltas []Delta, version CommitVersion, txn TransactionID) error
	// ReclaimBefore physically removes version-chain entries strictly
	// older than watermark, subject to the caller having already
	// decided retention permits it (spec section 5/9 retention sweeper).
	ReclaimBefore(watermark CommitVersion) error
}

// SingleTable is the unversioned side store of spec section 4.2.
type SingleTable interface {
	Get(key types.EncodedKey) (types.EncodedValues, bool, error)
	Contains(key types.EncodedKey) (bool, error)
	Range(r types.EncodedKeyRange) (*SingleIterator, error)
	Commit(deltas []Delta) error
}

// CdcTable is the change-log table of spec section 4.2.
type CdcTable interface {
	Get(version CommitVersion) (CdcRecord, bool, error)
	// Range returns records with version in (startExclusive, endInclusive].
	Range(startExclusive, endInclusive CommitVersion) ([]CdcRecord, error)
	Scan() ([]CdcRecord, error)
	Count(version CommitVersion) (int, error)
	Append(record CdcRecord) error
	ReclaimBefore(watermark CommitVersion) error
}

// Backend bundles the three logical tables plus lifecycle management, per
// spec section 4.2 ("Backends: one pure-memory ..., one file-backed ...").
type Backend interface {
	Multi() MultiTable
	Single() SingleTable
	Cdc() CdcTable
	Close() error

	// CommitTransaction installs multiDeltas and record atomically: a
	// reader observes either the full pre-state or full post-state,
	// never partial (spec section 4.2 "Atomicity contract").
	// singleDeltas are applied in the same transition when non-empty
	// (e.g. a sequence counter bumped alongside the row it produced).
	CommitTransaction(multiDeltas []Delta, singleDeltas []Delta, version CommitVersion, txn TransactionID, record CdcRecord) error
}
