package txn

import (
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Query is a read-only transaction: a stable snapshot at readTs with no
// write buffer and no conflict tracking (spec section 4.5 begin_query).
type Query struct {
	manager *Manager
	readTs  storage.CommitVersion
	closed  bool
}

// ReadTs reports the snapshot version this query observes.
func (q *Query) ReadTs() storage.CommitVersion { return q.readTs }

// Get returns the value visible at readTs, if any.
func (q *Query) Get(key types.EncodedKey) (types.EncodedValues, bool, error) {
	v, ok, err := q.manager.backend.Multi().Get(key, q.readTs)
	if err != nil || !ok || v.IsTombstone() {
		return nil, false, err
	}
	return v.Value, true, nil
}

// Contains reports whether key has a non-tombstone value visible at
// readTs.
func (q *Query) Contains(key types.EncodedKey) (bool, error) {
	_, ok, err := q.Get(key)
	return ok, err
}

// Range returns the rows visible at readTs within r, in key order.
func (q *Query) Range(r types.EncodedKeyRange) ([]storage.Versioned, error) {
	it, err := q.manager.backend.Multi().Range(r, q.readTs)
	if err != nil {
		return nil, err
	}
	var out []storage.Versioned
	for it.Next() {
		item := it.Item()
		if !item.IsTombstone() {
			out = append(out, item)
		}
	}
	return out, nil
}

// Close releases the read snapshot, letting the done watermark advance
// past it once every older query has also closed (spec section 4.4).
func (q *Query) Close() {
	if q.closed {
		return
	}
	q.closed = true
	q.manager.oracle.EndReadTimestamp(q.readTs)
}
