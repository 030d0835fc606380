package catalog

import (
	"testing"

	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

func TestLoadFromStorageAndAt(t *testing.T) {
	backend := storage.NewMemoryBackend()
	multi := backend.Multi()
	txnID := storage.NewTransactionID()

	key := types.CatalogEntityKey(7)
	_ = multi.Commit([]storage.Delta{{Key: key, Kind: storage.DeltaInsert, Value: types.EncodedValues("v1")}}, 1, txnID)
	_ = multi.Commit([]storage.Delta{{Key: key, Kind: storage.DeltaUpdate, Value: types.EncodedValues("v2")}}, 2, txnID)

	c := New()
	if err := c.LoadFromStorage(multi, 2); err != nil {
		t.Fatalf("load: %v", err)
	}

	def, ok := c.At(7, 1)
	if !ok || string(def.Data) != "v1" {
		t.Fatalf("At(7,1) = %+v, %v, want v1", def, ok)
	}
	def, ok = c.At(7, 2)
	if !ok || string(def.Data) != "v2" {
		t.Fatalf("At(7,2) = %+v, %v, want v2", def, ok)
	}
	latest, ok := c.Latest(7)
	if !ok || string(latest.Data) != "v2" {
		t.Fatalf("Latest(7) = %+v, %v, want v2", latest, ok)
	}
}

func TestInterceptorHookReplaysDeltas(t *testing.T) {
	c := New()
	hook := c.AsInterceptorHook()

	deltas := []storage.Delta{
		{Key: types.CatalogEntityKey(1), Kind: storage.DeltaInsert, Value: types.EncodedValues("a")},
		{Key: types.EncodedKey("not-catalog"), Kind: storage.DeltaInsert, Value: types.EncodedValues("ignored")},
	}
	if err := hook.AfterCommit(5, deltas, storage.CdcRecord{Version: 5}); err != nil {
		t.Fatalf("AfterCommit: %v", err)
	}

	def, ok := c.Latest(1)
	if !ok || string(def.Data) != "a" || def.Version != 5 {
		t.Fatalf("Latest(1) = %+v, %v, want {1 5 a}", def, ok)
	}

	if err := hook.AfterCommit(6, []storage.Delta{{Key: types.CatalogEntityKey(1), Kind: storage.DeltaDelete}}, storage.CdcRecord{Version: 6}); err != nil {
		t.Fatalf("AfterCommit drop: %v", err)
	}
	def, ok = c.Latest(1)
	if !ok || !def.IsDropped() {
		t.Fatalf("Latest(1) after drop = %+v, %v, want dropped", def, ok)
	}
}
