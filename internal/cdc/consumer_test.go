package cdc_test

import (
	"context"
	"testing"
	"time"

	"github.com/reifydb/reifydb-core/internal/cdc"
	"github.com/reifydb/reifydb-core/internal/config"
	"github.com/reifydb/reifydb-core/internal/oracle"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/txn"
	"github.com/reifydb/reifydb-core/internal/types"
)

// TestConsumerCheckpointing mirrors spec section 8 scenarios S4 and S5:
// two commits produce two ordered CDC records, a single poll consumes
// both and advances the checkpoint, and a subsequent poll with no new
// commits sees an empty range.
func TestConsumerCheckpointing(t *testing.T) {
	backend := storage.NewMemoryBackend()
	o := oracle.New(oracle.Config{WindowSize: 64, MaxWaiters: 64, MaxPending: 64})
	manager := txn.New(backend, o, config.IsolationOptimistic)

	commit := func(key, value string) storage.CommitVersion {
		cmd, err := manager.BeginCommand()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if err := cmd.Set(types.EncodedKey(key), types.EncodedValues(value)); err != nil {
			t.Fatalf("set: %v", err)
		}
		v, err := cmd.Commit()
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		return v
	}

	v1 := commit("k", "1")
	v2 := commit("k", "2")
	if v1 != 1 || v2 != 2 {
		t.Fatalf("commit versions = %d, %d, want 1, 2", v1, v2)
	}

	recs, err := backend.Cdc().Range(0, 1<<62)
	if err != nil || len(recs) != 2 {
		t.Fatalf("cdc.range = %v, %v, want 2 records", recs, err)
	}
	if len(recs[0].Changes) != 1 || recs[0].Changes[0].Kind != storage.DeltaInsert {
		t.Fatalf("record 1 = %+v, want a single Insert", recs[0])
	}
	if len(recs[1].Changes) != 1 || recs[1].Changes[0].Kind != storage.DeltaUpdate ||
		string(recs[1].Changes[0].Before) != "1" || string(recs[1].Changes[0].After) != "2" {
		t.Fatalf("record 2 = %+v, want Update before=1 after=2", recs[1])
	}

	var processed []storage.CommitVersion
	processor := func(_ cdc.Command, record storage.CdcRecord) error {
		processed = append(processed, record.Version)
		return nil
	}

	consumer := cdc.NewConsumer(
		cdc.ConsumerID("test-consumer"),
		backend.Single(),
		backend.Cdc(),
		manager.AsCommandBeginner(),
		manager.AsReadWatermarkSource(),
		processor,
		10*time.Millisecond,
	)

	n, err := consumer.PollOnce()
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if n != 2 {
		t.Fatalf("first poll processed %d records, want 2", n)
	}
	if len(processed) != 2 || processed[0] != 1 || processed[1] != 2 {
		t.Fatalf("processed versions = %v, want [1 2]", processed)
	}

	checkpoint, err := cdc.FetchCheckpoint(backend.Single(), cdc.ConsumerID("test-consumer"))
	if err != nil || checkpoint != 2 {
		t.Fatalf("checkpoint = %d, %v, want 2", checkpoint, err)
	}

	// Crash-restart simulation: a fresh poll with no new commits sees an
	// empty range (spec section 8 S5).
	n, err = consumer.PollOnce()
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if n != 0 {
		t.Fatalf("second poll processed %d records, want 0", n)
	}
}

// TestConsumerRunStopsOnContextCancel exercises the Run loop's
// cancellation path (spec section 5 "CDC consumers suspend on an empty
// scan").
func TestConsumerRunStopsOnContextCancel(t *testing.T) {
	backend := storage.NewMemoryBackend()
	o := oracle.New(oracle.Config{WindowSize: 64, MaxWaiters: 64, MaxPending: 64})
	manager := txn.New(backend, o, config.IsolationOptimistic)

	consumer := cdc.NewConsumer(
		cdc.ConsumerID("idle-consumer"),
		backend.Single(),
		backend.Cdc(),
		manager.AsCommandBeginner(),
		manager.AsReadWatermarkSource(),
		func(cdc.Command, storage.CdcRecord) error { return nil },
		5*time.Millisecond,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
