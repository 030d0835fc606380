package txn

import (
	"time"

	"github.com/reifydb/reifydb-core/internal/cdc"
	"github.com/reifydb/reifydb-core/internal/conflict"
	"github.com/reifydb/reifydb-core/internal/diagnostic"
	"github.com/reifydb/reifydb-core/internal/oracle"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

// bufferedWrite is one pending mutation held in a Command's write
// buffer, keyed by the encoded key's string form.
type bufferedWrite struct {
	key     types.EncodedKey
	value   types.EncodedValues // nil when deleted
	deleted bool
}

// Command is a read-write transaction: a write buffer with last-write-
// wins semantics plus a conflict manager, per spec section 4.5.
type Command struct {
	manager      *Manager
	readTs       storage.CommitVersion
	txnID        storage.TransactionID
	conflicts    *conflict.Manager
	buffer       map[string]*bufferedWrite
	order        []string // insertion order of first touch, for deterministic CDC sequencing
	singleWrites map[string]types.EncodedValues
	singleOrder  []string
	done         bool
}

// SetSingle buffers a last-writer-wins write against the single-version
// table (e.g. a CDC consumer's checkpoint) to apply atomically alongside
// this command's multi-version deltas and CDC record at Commit (spec
// section 4.7 step 3: "persist the record's version as the new
// checkpoint in the same transaction"). Unlike Set/Remove this is not
// tracked by the conflict manager: the single table is last-writer-wins,
// outside MVCC visibility (spec invariant I6).
func (c *Command) SetSingle(key types.EncodedKey, value types.EncodedValues) error {
	if c.done {
		return diagnostic.Internal("command already committed or rolled back", nil)
	}
	ks := string(key)
	if _, seen := c.singleWrites[ks]; !seen {
		c.singleOrder = append(c.singleOrder, ks)
	}
	c.singleWrites[ks] = value
	return nil
}

// ReadTs reports the snapshot version this command reads against.
func (c *Command) ReadTs() storage.CommitVersion { return c.readTs }

func (c *Command) remember(key types.EncodedKey) {
	ks := string(key)
	if _, seen := c.buffer[ks]; !seen {
		c.order = append(c.order, ks)
	}
}

// Get consults the write buffer first (last-write-wins within the
// transaction), falling back to storage at read_ts and recording the
// read in the conflict manager (spec section 4.5).
func (c *Command) Get(key types.EncodedKey) (types.EncodedValues, bool, error) {
	if w, ok := c.buffer[string(key)]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	c.conflicts.MarkRead(key)
	v, ok, err := c.manager.backend.Multi().Get(key, c.readTs)
	if err != nil || !ok || v.IsTombstone() {
		return nil, false, err
	}
	return v.Value, true, nil
}

// Contains reports whether key currently resolves to a non-tombstone
// value, consulting the write buffer first.
func (c *Command) Contains(key types.EncodedKey) (bool, error) {
	_, ok, err := c.Get(key)
	return ok, err
}

// Range merges the write buffer's pending mutations within r over the
// storage snapshot at read_ts. Under serializable isolation the whole
// range is tracked as a range read (phantom protection); under
// optimistic isolation only the keys actually observed are tracked,
// matching spec section 4.5's "at key granularity" contract.
func (c *Command) Range(r types.EncodedKeyRange) ([]storage.Versioned, error) {
	it, err := c.manager.backend.Multi().Range(r, c.readTs)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]storage.Versioned)
	for it.Next() {
		item := it.Item()
		merged[string(item.Key)] = item
	}
	for ks, w := range c.buffer {
		key := types.EncodedKey(ks)
		if !r.Contains(key) {
			continue
		}
		if w.deleted {
			delete(merged, ks)
			continue
		}
		merged[ks] = storage.Versioned{Key: key, Value: w.value, VersionFound: c.readTs}
	}

	if c.manager.trackRanges {
		c.conflicts.MarkRange(r)
	}

	out := make([]storage.Versioned, 0, len(merged))
	for _, v := range merged {
		if v.IsTombstone() {
			continue
		}
		if !c.manager.trackRanges {
			c.conflicts.MarkRead(v.Key)
		}
		out = append(out, v)
	}
	sortVersionedByKey(out)
	return out, nil
}

// Set buffers an upsert, to be classified Insert or Update against
// storage at commit time (spec section 4.5 Command.set).
func (c *Command) Set(key types.EncodedKey, value types.EncodedValues) error {
	if c.done {
		return diagnostic.Internal("command already committed or rolled back", nil)
	}
	c.remember(key)
	c.buffer[string(key)] = &bufferedWrite{key: key, value: value}
	c.conflicts.MarkWrite(key)
	return nil
}

// Remove buffers a tombstone (spec section 4.5 Command.remove).
func (c *Command) Remove(key types.EncodedKey) error {
	if c.done {
		return diagnostic.Internal("command already committed or rolled back", nil)
	}
	c.remember(key)
	c.buffer[string(key)] = &bufferedWrite{key: key, deleted: true}
	c.conflicts.MarkWrite(key)
	return nil
}

// finalize resolves each buffered write's Insert/Update/Delete kind
// against storage at read_ts, in first-touch order, for a deterministic
// CDC change sequence (spec section 4.6).
func (c *Command) finalize() ([]storage.Delta, error) {
	deltas := make([]storage.Delta, 0, len(c.order))
	for _, ks := range c.order {
		w := c.buffer[ks]
		existing, ok, err := c.manager.backend.Multi().Get(w.key, c.readTs)
		if err != nil {
			return nil, err
		}
		existed := ok && !existing.IsTombstone()

		switch {
		case w.deleted:
			if !existed {
				continue // deleting a key that never existed is a no-op
			}
			deltas = append(deltas, storage.Delta{Key: w.key, Kind: storage.DeltaDelete})
		case existed:
			deltas = append(deltas, storage.Delta{Key: w.key, Kind: storage.DeltaUpdate, Value: w.value})
		default:
			deltas = append(deltas, storage.Delta{Key: w.key, Kind: storage.DeltaInsert, Value: w.value})
		}
	}
	return deltas, nil
}

// Commit runs the oracle's commit protocol (spec section 4.4), applies
// the resulting deltas and CDC record atomically, and advances the read
// watermark. On conflict it returns a retryable diagnostic and the
// command is left usable only for Rollback.
func (c *Command) Commit() (storage.CommitVersion, error) {
	if c.done {
		return 0, diagnostic.Internal("command already committed or rolled back", nil)
	}

	deltas, err := c.finalize()
	if err != nil {
		c.manager.oracle.EndReadTimestamp(c.readTs)
		c.done = true
		return 0, err
	}

	req := oracle.CommitRequest{
		ReadTs:    c.readTs,
		Conflicts: c.conflicts,
		Deltas:    deltas,
	}
	commitTs, err := c.manager.oracle.Commit(req)
	if err != nil {
		c.manager.oracle.EndReadTimestamp(c.readTs)
		c.done = true
		return 0, err
	}

	record, err := cdc.BuildRecord(c.manager.backend.Multi(), deltas, commitTs, c.txnID, time.Now().UTC())
	if err != nil {
		c.manager.oracle.EndReadTimestamp(c.readTs)
		c.done = true
		return 0, diagnostic.Storage("building CDC record", err)
	}

	singleDeltas := make([]storage.Delta, 0, len(c.singleOrder))
	for _, ks := range c.singleOrder {
		singleDeltas = append(singleDeltas, storage.Delta{Key: types.EncodedKey(ks), Kind: storage.DeltaUpdate, Value: c.singleWrites[ks]})
	}

	if err := c.manager.backend.CommitTransaction(deltas, singleDeltas, commitTs, c.txnID, record); err != nil {
		c.manager.oracle.EndReadTimestamp(c.readTs)
		c.done = true
		return 0, diagnostic.Storage("applying committed transaction", err)
	}

	c.manager.oracle.Applied(commitTs)
	c.manager.oracle.EndReadTimestamp(c.readTs)
	c.done = true

	// Post-commit interceptor failures are secondary: the commit already
	// succeeded and is never rolled back for them (spec section 7).
	if err := c.manager.interceptors.Run(commitTs, deltas, record); err != nil {
		return commitTs, err
	}
	return commitTs, nil
}

// Rollback discards the write buffer with no storage effect and
// releases read_ts (spec section 4.5 Command.rollback).
func (c *Command) Rollback() {
	if c.done {
		return
	}
	c.done = true
	c.manager.oracle.EndReadTimestamp(c.readTs)
}

func sortVersionedByKey(items []storage.Versioned) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && string(items[j].Key) < string(items[j-1].Key); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
