package cdc_test

import (
	"testing"
	"time"

	"github.com/reifydb/reifydb-core/internal/cdc"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

// TestBuildRecordResolvesBeforeImage covers spec section 8 property P4:
// a committed record's changes carry `before` equal to the pre-image
// read at version-1.
func TestBuildRecordResolvesBeforeImage(t *testing.T) {
	backend := storage.NewMemoryBackend()
	multi := backend.Multi()
	txnID := storage.NewTransactionID()

	if err := multi.Commit([]storage.Delta{{Key: types.EncodedKey("k"), Kind: storage.DeltaInsert, Value: types.EncodedValues("1")}}, 1, txnID); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	deltas := []storage.Delta{{Key: types.EncodedKey("k"), Kind: storage.DeltaUpdate, Value: types.EncodedValues("2")}}
	record, err := cdc.BuildRecord(multi, deltas, 2, txnID, time.Now())
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	if record.Version != 2 || len(record.Changes) != 1 {
		t.Fatalf("record = %+v, want version 2 with 1 change", record)
	}
	change := record.Changes[0]
	if string(change.Before) != "1" || string(change.After) != "2" || change.Kind != storage.DeltaUpdate {
		t.Fatalf("change = %+v, want before=1 after=2 Update", change)
	}
}

// TestBuildRecordDeleteCarriesOnlyBefore covers spec section 8 property
// P5's lifecycle: a Delete change carries the deleted value as `before`
// and no `after`.
func TestBuildRecordDeleteCarriesOnlyBefore(t *testing.T) {
	backend := storage.NewMemoryBackend()
	multi := backend.Multi()
	txnID := storage.NewTransactionID()
	_ = multi.Commit([]storage.Delta{{Key: types.EncodedKey("k"), Kind: storage.DeltaInsert, Value: types.EncodedValues("1")}}, 1, txnID)

	deltas := []storage.Delta{{Key: types.EncodedKey("k"), Kind: storage.DeltaDelete}}
	record, err := cdc.BuildRecord(multi, deltas, 2, txnID, time.Now())
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	change := record.Changes[0]
	if string(change.Before) != "1" || change.After != nil {
		t.Fatalf("change = %+v, want before=1 after=nil", change)
	}
}
