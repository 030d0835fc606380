package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/reifydb/reifydb-core/internal/conflict"
	"github.com/reifydb/reifydb-core/internal/types"
)

func testConfig() Config {
	return Config{WindowSize: 64, MaxWaiters: 100, MaxPending: 100}
}

func TestOracleMonotonicVersions(t *testing.T) {
	o := New(testConfig())
	var last uint64
	for i := 0; i < 5; i++ {
		readTs, err := o.BeginReadTimestamp()
		if err != nil {
			t.Fatalf("begin read ts: %v", err)
		}
		c := conflict.New()
		v, err := o.Commit(CommitRequest{ReadTs: readTs, Conflicts: c})
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		if uint64(v) <= last {
			t.Fatalf("commit versions not strictly increasing: %d <= %d", v, last)
		}
		last = uint64(v)
		o.Applied(v)
		o.EndReadTimestamp(readTs)
	}
}

func TestOracleWriteWriteConflict(t *testing.T) {
	o := New(testConfig())
	readTsA, _ := o.BeginReadTimestamp()
	readTsB, _ := o.BeginReadTimestamp()

	a := conflict.New()
	a.MarkWrite(types.EncodedKey("k"))
	vA, err := o.Commit(CommitRequest{ReadTs: readTsA, Conflicts: a})
	if err != nil {
		t.Fatalf("commit A: %v", err)
	}
	o.Applied(vA)

	b := conflict.New()
	b.MarkRead(types.EncodedKey("k"))
	b.MarkWrite(types.EncodedKey("k"))
	_, err = o.Commit(CommitRequest{ReadTs: readTsB, Conflicts: b})
	if err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestWaterMarkWaitAndCancel(t *testing.T) {
	w := NewWaterMark(0, 10, 10)
	if err := w.Begin(1); err != nil {
		t.Fatalf("begin: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- w.WaitForMark(context.Background(), 1)
	}()

	time.Sleep(10 * time.Millisecond)
	w.Done(1)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not complete after Done")
	}

	if w.DoneUntil() != 1 {
		t.Fatalf("doneUntil = %d, want 1", w.DoneUntil())
	}
}

func TestWaterMarkCancellation(t *testing.T) {
	w := NewWaterMark(0, 10, 10)
	_ = w.Begin(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.WaitForMark(ctx, 1)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after cancel")
	}
}
