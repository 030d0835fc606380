// Checkpoint persistence, grounded on the original Rust source's
// crates/cdc/src/checkpoint.rs: a consumer's checkpoint is an 8-byte
// big-endian commit version stored under a well-known key in the
// single-version side (spec sections 4.7 and 6).
package cdc

import (
	"encoding/binary"

	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

// ToConsumerKey lets any identity type be used as a CDC consumer id,
// matching the original source's generic `ToConsumerKey` trait.
type ToConsumerKey interface {
	ConsumerKey() types.EncodedKey
}

// ConsumerID is the common string-identity consumer key.
type ConsumerID string

func (id ConsumerID) ConsumerKey() types.EncodedKey {
	return types.CdcConsumerKey(string(id))
}

// FetchCheckpoint returns the consumer's durable checkpoint, defaulting
// to 1 when none has been persisted yet (spec section 4.7 step 1).
func FetchCheckpoint(single storage.SingleTable, consumer ToConsumerKey) (storage.CommitVersion, error) {
	raw, ok, err := single.Get(consumer.ConsumerKey())
	if err != nil {
		return 0, err
	}
	if !ok || len(raw) < 8 {
		return 1, nil
	}
	return storage.CommitVersion(binary.BigEndian.Uint64(raw[:8])), nil
}

// PersistCheckpoint writes consumer's new checkpoint as part of
// singleDeltas, for the caller to apply atomically with whatever else a
// poll iteration's processing transaction writes.
func PersistCheckpoint(consumer ToConsumerKey, version storage.CommitVersion) storage.Delta {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(version))
	return storage.Delta{Key: consumer.ConsumerKey(), Kind: storage.DeltaUpdate, Value: types.EncodedValues(buf)}
}
