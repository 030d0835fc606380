package flow_test

import (
	"testing"

	"github.com/reifydb/reifydb-core/internal/config"
	"github.com/reifydb/reifydb-core/internal/flow"
	"github.com/reifydb/reifydb-core/internal/flow/operator"
	"github.com/reifydb/reifydb-core/internal/flow/planinput"
	"github.com/reifydb/reifydb-core/internal/oracle"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/txn"
	"github.com/reifydb/reifydb-core/internal/types"
)

const tableT uint64 = 1
const viewV uint64 = 2

var rowLayout = types.NewLayout([]types.Field{{Name: "col", Type: types.TypeInt64}})

func encodeRow(t *testing.T, col int64) types.EncodedValues {
	t.Helper()
	value, err := rowLayout.Encode([]types.Value{{Type: types.TypeInt64, Int: col}})
	if err != nil {
		t.Fatalf("encode row: %v", err)
	}
	return value
}

func compileFlowFlowFilter(t *testing.T, backend storage.Backend, m *txn.Manager) uint64 {
	t.Helper()
	cmd, err := m.BeginCommand()
	if err != nil {
		t.Fatalf("begin compile command: %v", err)
	}
	root := &planinput.PlanNode{Type: planinput.NodeFilter, Config: map[string]string{"column": "col", "op": ">", "value": "10"},
		Children: []*planinput.PlanNode{{Type: planinput.NodeTableScan, SourceID: tableT}}}

	const flowID = 1
	compiler := flow.NewCompiler(flowID)
	if _, err := compiler.Compile(cmd, root, viewV); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := cmd.Commit(); err != nil {
		t.Fatalf("commit compile: %v", err)
	}
	return flowID
}

// TestFlowFilterScenario mirrors spec section 8 scenario S6.
func TestFlowFilterScenario(t *testing.T) {
	backend := storage.NewMemoryBackend()
	o := oracle.New(oracle.Config{WindowSize: 64, MaxWaiters: 64, MaxPending: 64})
	m := txn.New(backend, o, config.IsolationOptimistic)

	compileFlowFlowFilter(t, backend, m)

	rt := flow.NewRuntime(backend.Multi(), operator.Default(), flow.LayoutCodec{Layout: rowLayout, Columns: []string{"col"}})

	rowKey := []byte("row-1")

	// Insert T.row(5) -> V has no row.
	mustProcessRow(t, backend, m, rt, rowKey, nil, encodeRow(t, 5))
	assertViewRow(t, backend, rowKey, false)

	// Update T.row(5->15) -> V gets Insert.
	mustProcessRow(t, backend, m, rt, rowKey, encodeRow(t, 5), encodeRow(t, 15))
	assertViewRow(t, backend, rowKey, true)

	// Update T.row(15->7) -> V gets Remove.
	mustProcessRow(t, backend, m, rt, rowKey, encodeRow(t, 15), encodeRow(t, 7))
	assertViewRow(t, backend, rowKey, false)
}

// mustProcessRow performs one table write (as the source would) and then
// feeds the resulting CDC record into the flow runtime, inside its own
// command transaction, exactly as the CDC consumer would (spec section
// 4.9: writes to operator/view state go through a FlowTransaction
// wrapping a command transaction).
func mustProcessRow(t *testing.T, backend storage.Backend, m *txn.Manager, rt *flow.Runtime, rowKey []byte, before, after types.EncodedValues) {
	t.Helper()
	cmd, err := m.BeginCommand()
	if err != nil {
		t.Fatalf("begin command: %v", err)
	}
	key := types.SourceRowKey(tableT, rowKey)
	if after == nil {
		if err := cmd.Remove(key); err != nil {
			t.Fatalf("remove: %v", err)
		}
	} else if err := cmd.Set(key, after); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := cmd.Commit(); err != nil {
		t.Fatalf("commit row write: %v", err)
	}

	records, err := backend.Cdc().Scan()
	if err != nil {
		t.Fatalf("cdc scan: %v", err)
	}
	record := records[len(records)-1]

	flowCmd, err := m.BeginCommand()
	if err != nil {
		t.Fatalf("begin flow command: %v", err)
	}
	if err := rt.HandleCdcRecord(flowCmd, record); err != nil {
		t.Fatalf("handle cdc record: %v", err)
	}
	if _, err := flowCmd.Commit(); err != nil {
		t.Fatalf("commit flow processing: %v", err)
	}
}

const farFutureVersion = storage.CommitVersion(1 << 62)

func assertViewRow(t *testing.T, backend storage.Backend, rowKey []byte, wantPresent bool) {
	t.Helper()
	key := types.SourceRowKey(viewV, rowKey)
	_, ok, err := backend.Multi().Get(key, farFutureVersion)
	if err != nil {
		t.Fatalf("get view row: %v", err)
	}
	if ok != wantPresent {
		t.Fatalf("view row present = %v, want %v", ok, wantPresent)
	}
}
