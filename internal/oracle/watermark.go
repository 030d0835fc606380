// Watermark tracking, grounded on spec section 4.4/9's "producer/consumer
// queue with per-version wait slots; cancellation via a broadcast
// channel", and structurally close to tinySQL's own TxContext/Timestamp
// bookkeeping in internal/storage/mvcc.go, generalized to a
// begin/done/wait-for-mark protocol.
package oracle

import (
	"container/heap"
	"context"
	"sync"

	"github.com/reifydb/reifydb-core/internal/diagnostic"
	"github.com/reifydb/reifydb-core/internal/storage"
)

// WaterMark tracks a set of in-flight versions and exposes the highest
// version V such that every version <= V has completed — the read
// watermark of spec section 4.4 when fed commit versions, and the done
// watermark when fed read-snapshot versions.
type WaterMark struct {
	mu          sync.Mutex
	doneUntil   storage.CommitVersion
	pending     map[storage.CommitVersion]struct{}
	heap        versionHeap
	waiters     map[storage.CommitVersion][]chan struct{}
	maxWaiters  int
	maxPending  int
}

// NewWaterMark returns a WaterMark whose doneUntil starts at initial.
func NewWaterMark(initial storage.CommitVersion, maxWaiters, maxPending int) *WaterMark {
	return &WaterMark{
		doneUntil:  initial,
		pending:    make(map[storage.CommitVersion]struct{}),
		waiters:    make(map[storage.CommitVersion][]chan struct{}),
		maxWaiters: maxWaiters,
		maxPending: maxPending,
	}
}

// Begin registers version as in-flight. Returns an error if MAX_PENDING
// would be exceeded (spec section 4.4 bounds).
func (w *WaterMark) Begin(version storage.CommitVersion) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.maxPending > 0 && len(w.pending) >= w.maxPending {
		return diagnostic.New(diagnostic.KindRetryable, diagnostic.CodeInternal,
			"watermark pending-set at capacity (MAX_PENDING)")
	}
	w.pending[version] = struct{}{}
	heap.Push(&w.heap, version)
	return nil
}

// Done marks version complete and advances doneUntil as far as
// contiguity allows, waking any waiters whose target version is now
// satisfied.
func (w *WaterMark) Done(version storage.CommitVersion) {
	w.mu.Lock()
	delete(w.pending, version)

	for w.heap.Len() > 0 {
		next := w.heap[0]
		if _, stillPending := w.pending[next]; stillPending {
			break
		}
		heap.Pop(&w.heap)
		if next > w.doneUntil {
			w.doneUntil = next
		}
	}

	doneUntil := w.doneUntil
	var toWake []chan struct{}
	for target, chans := range w.waiters {
		if target <= doneUntil {
			toWake = append(toWake, chans...)
			delete(w.waiters, target)
		}
	}
	w.mu.Unlock()

	for _, ch := range toWake {
		close(ch)
	}
}

// DoneUntil returns the current watermark value.
func (w *WaterMark) DoneUntil() storage.CommitVersion {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doneUntil
}

// WaitForMark blocks until doneUntil >= version or ctx is cancelled, in
// which case it returns a retryable WATERMARK_CANCELLED Diagnostic with
// no durable side effect (spec section 4.4/5).
func (w *WaterMark) WaitForMark(ctx context.Context, version storage.CommitVersion) error {
	w.mu.Lock()
	if w.doneUntil >= version {
		w.mu.Unlock()
		return nil
	}
	if w.maxWaiters > 0 && w.waiterCount() >= w.maxWaiters {
		w.mu.Unlock()
		return diagnostic.New(diagnostic.KindRetryable, diagnostic.CodeInternal,
			"watermark waiter-set at capacity (MAX_WAITERS)")
	}
	ch := make(chan struct{})
	w.waiters[version] = append(w.waiters[version], ch)
	w.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return diagnostic.Cancelled("watermark wait cancelled")
	}
}

// waiterCount must be called with mu held.
func (w *WaterMark) waiterCount() int {
	n := 0
	for _, chans := range w.waiters {
		n += len(chans)
	}
	return n
}

type versionHeap []storage.CommitVersion

func (h versionHeap) Len() int            { return len(h) }
func (h versionHeap) Less(i, j int) bool   { return h[i] < h[j] }
func (h versionHeap) Swap(i, j int)        { h[i], h[j] = h[j], h[i] }
func (h *versionHeap) Push(x interface{})  { *h = append(*h, x.(storage.CommitVersion)) }
func (h *versionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
