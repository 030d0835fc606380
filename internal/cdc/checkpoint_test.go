package cdc_test

import (
	"testing"

	"github.com/reifydb/reifydb-core/internal/cdc"
	"github.com/reifydb/reifydb-core/internal/storage"
)

func TestFetchCheckpointDefaultsToOne(t *testing.T) {
	backend := storage.NewMemoryBackend()
	got, err := cdc.FetchCheckpoint(backend.Single(), cdc.ConsumerID("new-consumer"))
	if err != nil || got != 1 {
		t.Fatalf("FetchCheckpoint = %d, %v, want 1", got, err)
	}
}

func TestPersistCheckpointRoundTrips(t *testing.T) {
	backend := storage.NewMemoryBackend()
	id := cdc.ConsumerID("consumer-a")
	delta := cdc.PersistCheckpoint(id, 42)
	if err := backend.Single().Commit([]storage.Delta{delta}); err != nil {
		t.Fatalf("commit checkpoint: %v", err)
	}
	got, err := cdc.FetchCheckpoint(backend.Single(), id)
	if err != nil || got != 42 {
		t.Fatalf("FetchCheckpoint = %d, %v, want 42", got, err)
	}
}
