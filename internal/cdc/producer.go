// Package cdc implements change-data-capture production and consumption
// (spec sections 4.6 and 4.7): one record per commit, delivered to
// registered consumers with durable per-consumer checkpoints.
package cdc

import (
	"time"

	"github.com/reifydb/reifydb-core/internal/storage"
)

// BuildRecord produces the single CdcRecord for a committing transaction
// (spec section 4.6): for each delta it resolves the prior value with a
// point-read at version-1 to capture `before`, in the same order the
// deltas were buffered (a sufficient total order per spec section 4.6's
// contract).
func BuildRecord(multi storage.MultiTable, deltas []storage.Delta, version storage.CommitVersion, txn storage.TransactionID, now time.Time) (storage.CdcRecord, error) {
	changes := make([]storage.Change, len(deltas))
	for i, d := range deltas {
		change := storage.Change{Kind: d.Kind, Key: d.Key, Sequence: uint32(i)}

		if d.Kind == storage.DeltaUpdate || d.Kind == storage.DeltaDelete {
			if version > 0 {
				before, ok, err := multi.Get(d.Key, version-1)
				if err != nil {
					return storage.CdcRecord{}, err
				}
				if ok {
					change.Before = before.Value
				}
			}
		}
		if d.Kind != storage.DeltaDelete {
			change.After = d.Value
		}
		changes[i] = change
	}

	return storage.CdcRecord{
		Version:     version,
		Timestamp:   now,
		Transaction: txn,
		Changes:     changes,
	}, nil
}
