package txn

import (
	"testing"

	"github.com/reifydb/reifydb-core/internal/config"
	"github.com/reifydb/reifydb-core/internal/diagnostic"
	"github.com/reifydb/reifydb-core/internal/oracle"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

func newTestManager(t *testing.T, isolation config.IsolationLevel) (*Manager, storage.Backend) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	o := oracle.New(oracle.Config{WindowSize: 64, MaxWaiters: 64, MaxPending: 64})
	return New(backend, o, isolation), backend
}

func k(s string) types.EncodedKey        { return types.EncodedKey(s) }
func v(s string) types.EncodedValues     { return types.EncodedValues(s) }
func asDiag(err error) *diagnostic.Diagnostic {
	d, _ := err.(*diagnostic.Diagnostic)
	return d
}

// TestSnapshotIsolation mirrors spec section 8 scenario S1.
func TestSnapshotIsolation(t *testing.T) {
	m, _ := newTestManager(t, config.IsolationOptimistic)

	a, err := m.BeginCommand()
	if err != nil {
		t.Fatalf("begin A: %v", err)
	}
	if err := a.Set(k("k"), v("1")); err != nil {
		t.Fatalf("A.set: %v", err)
	}
	vA, err := a.Commit()
	if err != nil || vA != 1 {
		t.Fatalf("A.commit = %v, %v, want 1", vA, err)
	}

	r, err := m.BeginQuery()
	if err != nil {
		t.Fatalf("begin R: %v", err)
	}
	if r.ReadTs() != 1 {
		t.Fatalf("R.read_ts = %d, want 1", r.ReadTs())
	}

	b, err := m.BeginCommand()
	if err != nil {
		t.Fatalf("begin B: %v", err)
	}
	if err := b.Set(k("k"), v("2")); err != nil {
		t.Fatalf("B.set: %v", err)
	}
	vB, err := b.Commit()
	if err != nil || vB != 2 {
		t.Fatalf("B.commit = %v, %v, want 2", vB, err)
	}

	got, ok, err := r.Get(k("k"))
	if err != nil || !ok || string(got) != "1" {
		t.Fatalf("R.get(k) = %q, %v, %v, want \"1\"", got, ok, err)
	}
	r.Close()

	q, err := m.BeginQuery()
	if err != nil {
		t.Fatalf("begin Q: %v", err)
	}
	defer q.Close()
	got, ok, err = q.Get(k("k"))
	if err != nil || !ok || string(got) != "2" {
		t.Fatalf("Q.get(k) = %q, %v, %v, want \"2\"", got, ok, err)
	}
}

// TestWriteWriteConflict mirrors spec section 8 scenario S2.
func TestWriteWriteConflict(t *testing.T) {
	m, _ := newTestManager(t, config.IsolationOptimistic)

	a, _ := m.BeginCommand()
	b, _ := m.BeginCommand()

	if err := a.Set(k("k"), v("1")); err != nil {
		t.Fatalf("A.set: %v", err)
	}
	if err := b.Set(k("k"), v("2")); err != nil {
		t.Fatalf("B.set: %v", err)
	}

	vA, err := a.Commit()
	if err != nil || vA != 1 {
		t.Fatalf("A.commit = %v, %v, want 1", vA, err)
	}

	_, err = b.Commit()
	if err == nil {
		t.Fatalf("B.commit: expected TXN_CONFLICT, got nil")
	}
	d := asDiag(err)
	if d == nil || d.Code != diagnostic.CodeTxnConflict || !d.Retryable() {
		t.Fatalf("B.commit error = %v, want retryable TXN_CONFLICT", err)
	}
}

// TestRangeReadConflictSerializable mirrors spec section 8 scenario S3:
// under serializable isolation a range read must be invalidated by a
// later writer landing inside the tracked range, even though the range
// read itself never touched the written key before the write occurred.
func TestRangeReadConflictSerializable(t *testing.T) {
	m, _ := newTestManager(t, config.IsolationSerializable)

	a, _ := m.BeginCommand()
	if _, err := a.Range(types.EncodedKeyRange{Start: k("a"), End: k("m")}); err != nil {
		t.Fatalf("A.range: %v", err)
	}

	b, _ := m.BeginCommand()
	if err := b.Set(k("g"), v("1")); err != nil {
		t.Fatalf("B.set: %v", err)
	}
	vB, err := b.Commit()
	if err != nil || vB != 1 {
		t.Fatalf("B.commit = %v, %v, want 1", vB, err)
	}

	if err := a.Set(k("x"), v("1")); err != nil {
		t.Fatalf("A.set: %v", err)
	}
	_, err = a.Commit()
	if err == nil {
		t.Fatalf("A.commit: expected TXN_CONFLICT, got nil")
	}
	d := asDiag(err)
	if d == nil || d.Code != diagnostic.CodeTxnConflict {
		t.Fatalf("A.commit error = %v, want TXN_CONFLICT", err)
	}
}

// TestOptimisticRangeDoesNotTrackWholeRange shows the optimistic flavor
// only guards the keys actually observed, so a writer landing in an
// unobserved part of a scanned range does not conflict (spec section
// 4.5 "Optimistic: ... conflict = overlap on at least one key").
func TestOptimisticRangeDoesNotTrackWholeRange(t *testing.T) {
	m, _ := newTestManager(t, config.IsolationOptimistic)

	a, _ := m.BeginCommand()
	if _, err := a.Range(types.EncodedKeyRange{Start: k("a"), End: k("m")}); err != nil {
		t.Fatalf("A.range: %v", err)
	}

	b, _ := m.BeginCommand()
	if err := b.Set(k("g"), v("1")); err != nil {
		t.Fatalf("B.set: %v", err)
	}
	if _, err := b.Commit(); err != nil {
		t.Fatalf("B.commit: %v", err)
	}

	if err := a.Set(k("x"), v("1")); err != nil {
		t.Fatalf("A.set: %v", err)
	}
	if _, err := a.Commit(); err != nil {
		t.Fatalf("A.commit under optimistic isolation should not conflict: %v", err)
	}
}

// TestCommandSeesOwnWrites covers spec section 4.5's "sees its own
// uncommitted writes via the write buffer".
func TestCommandSeesOwnWrites(t *testing.T) {
	m, _ := newTestManager(t, config.IsolationOptimistic)
	a, _ := m.BeginCommand()
	if err := a.Set(k("k"), v("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := a.Get(k("k"))
	if err != nil || !ok || string(got) != "1" {
		t.Fatalf("get own write = %q, %v, %v", got, ok, err)
	}
	if err := a.Remove(k("k")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, ok, err = a.Get(k("k"))
	if err != nil || ok {
		t.Fatalf("get after own remove should be absent, ok=%v err=%v", ok, err)
	}
	if _, err := a.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// TestRollbackHasNoStorageEffect covers spec section 4.5 Command.rollback.
func TestRollbackHasNoStorageEffect(t *testing.T) {
	m, backend := newTestManager(t, config.IsolationOptimistic)
	a, _ := m.BeginCommand()
	if err := a.Set(k("k"), v("1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	a.Rollback()

	q, _ := m.BeginQuery()
	defer q.Close()
	_, ok, err := q.Get(k("k"))
	if err != nil || ok {
		t.Fatalf("expected no effect from rolled-back command, ok=%v err=%v", ok, err)
	}

	recs, err := backend.Cdc().Scan()
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected no CDC records after rollback, got %v, %v", recs, err)
	}
}
