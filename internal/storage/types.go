// Package storage implements the ordered multi-version key-value store
// of spec section 4.2: a versioned `multi` table, an unversioned
// `single` side table, and a `cdc` log, each exposed by two
// interchangeable backends (in-memory and file-backed).
//
// What: keys sort by byte-lex order; values in `multi` are version
// chains (commit-version -> optional value); `cdc` is ordered by commit
// version.
// How: grounded on tinySQL's internal/storage MVCC (TxID/Timestamp
// bookkeeping) and WAL (LSN-ordered before/after images) packages,
// generalized from row-oriented SQL storage to the spec's opaque
// key/value model.
// Why: every other core component (conflict manager, oracle, transaction
// manager, CDC, flow runtime) is built directly on these three tables.
package storage

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/reifydb/reifydb-core/internal/types"
)

// CommitVersion is the monotonically increasing integer the oracle
// assigns to each successful transaction (spec section 4.4, GLOSSARY).
type CommitVersion uint64

// TransactionID identifies the transaction that produced a commit, used
// to tag CDC records (spec section 4.6).
type TransactionID [16]byte

// NewTransactionID generates a fresh random transaction identifier.
func NewTransactionID() TransactionID {
	return TransactionID(uuid.New())
}

func (t TransactionID) String() string {
	return uuid.UUID(t).String()
}

// DeltaKind discriminates the three possible mutations to a key.
type DeltaKind uint8

const (
	DeltaInsert DeltaKind = iota
	DeltaUpdate
	DeltaDelete
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaInsert:
		return "Insert"
	case DeltaUpdate:
		return "Update"
	case DeltaDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Delta is one pending mutation buffered by a transaction and applied
// atomically at commit time (spec section 4.2 "commit(deltas, ...)").
type Delta struct {
	Key   types.EncodedKey
	Kind  DeltaKind
	Value types.EncodedValues // nil for DeltaDelete
}

// Versioned is one multi-version table entry as returned by Get/Range: a
// value (nil for a tombstone) plus the commit version at which it was
// written.
type Versioned struct {
	Key          types.EncodedKey
	Value        types.EncodedValues // nil denotes a tombstone
	VersionFound CommitVersion
}

func (v Versioned) IsTombstone() bool {
	return v.Value == nil
}

func (v Versioned) String() string {
	if v.IsTombstone() {
		return fmt.Sprintf("%x@%d=<deleted>", []byte(v.Key), v.VersionFound)
	}
	return fmt.Sprintf("%x@%d=%x", []byte(v.Key), v.VersionFound, []byte(v.Value))
}

// SingleEntry is one single-version table entry.
type SingleEntry struct {
	Key   types.EncodedKey
	Value types.EncodedValues
}
