// Package flow implements the flow compiler (spec section 4.8) and
// runtime (spec section 4.9): a persisted DAG of FlowNode/FlowEdge rows,
// compiled postorder from a physical plan tree, driven at runtime by CDC
// records into per-operator state mutations and a final materialized
// view.
//
// Grounded on tinySQL's internal/engine volcano-style row execution
// (Row = map[string]any, a per-statement ExecEnv) generalized from a
// pull-based query executor to a push-based incremental diff propagator:
// instead of iterating tables and returning a ResultSet, each operator
// consumes a FlowChange and emits the FlowChange its downstream sees.
package flow

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/reifydb/reifydb-core/internal/diagnostic"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Row is one logical row flowing through the graph, keyed by column
// name (grounded on tinySQL's engine.Row).
type Row map[string]any

func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DiffKind discriminates the three incremental change shapes spec
// section 4.9 names.
type DiffKind uint8

const (
	DiffInsert DiffKind = iota
	DiffUpdate
	DiffRemove
)

func (k DiffKind) String() string {
	switch k {
	case DiffInsert:
		return "Insert"
	case DiffUpdate:
		return "Update"
	case DiffRemove:
		return "Remove"
	default:
		return "Unknown"
	}
}

// Diff is one incremental row change. Update carries both Before and
// After; Insert carries only After; Remove carries only Before.
type Diff struct {
	Kind   DiffKind
	Before Row
	After  Row
}

// Origin identifies where a FlowChange's diffs came from. The only
// origin spec section 4.9 names is an external CDC-sourced change; the
// type is kept open (a struct, not a bare uint64) so a future origin
// (e.g. a sibling flow) has somewhere to go without breaking callers.
type Origin struct {
	ExternalSourceID uint64
}

// FlowChange is the unit the runtime threads through the graph (spec
// section 4.9 step 2). Input identifies which leg of a two-input
// operator this change arrived on (0 = left, 1 = right); single-input
// operators and sources ignore it.
type FlowChange struct {
	Origin  Origin
	Version storage.CommitVersion
	Diffs   []Diff
	Input   int
}

// Transaction is the write surface an operator needs: get/set/remove
// against the enclosing command transaction. *txn.Command satisfies this
// structurally (same method set), keeping this package free of a direct
// dependency on internal/txn.
type Transaction interface {
	Get(key types.EncodedKey) (types.EncodedValues, bool, error)
	Set(key types.EncodedKey, value types.EncodedValues) error
	Remove(key types.EncodedKey) error
}

// FlowTransaction wraps a command transaction with the flow/node
// identity needed to scope operator state keys, and the CDC origin of
// the change being processed (spec section 4.9 step 4).
type FlowTransaction struct {
	Txn    Transaction
	FlowID uint64
	NodeID uint64
	Origin Origin
}

// StateKey scopes a raw sub-key under this node's private state
// namespace (spec invariant I5).
func (ft *FlowTransaction) StateKey(sub []byte) types.EncodedKey {
	return types.OperatorStateKey(ft.FlowID, ft.NodeID, sub)
}

func (ft *FlowTransaction) GetState(sub []byte) (types.EncodedValues, bool, error) {
	return ft.Txn.Get(ft.StateKey(sub))
}

func (ft *FlowTransaction) SetState(sub []byte, value types.EncodedValues) error {
	return ft.Txn.Set(ft.StateKey(sub), value)
}

func (ft *FlowTransaction) RemoveState(sub []byte) error {
	return ft.Txn.Remove(ft.StateKey(sub))
}

// FlowNodeType is the persisted discriminator of a FlowNode (spec
// section 4.8: "type discriminator + type-specific blob").
type FlowNodeType string

const (
	NodeSource    FlowNodeType = "source"
	NodeFilter    FlowNodeType = "filter"
	NodeMap       FlowNodeType = "map"
	NodeExtend    FlowNodeType = "extend"
	NodeAggregate FlowNodeType = "aggregate"
	NodeSort      FlowNodeType = "sort"
	NodeTake      FlowNodeType = "take"
	NodeMerge     FlowNodeType = "merge"
	NodeJoin      FlowNodeType = "join"
	NodeApply     FlowNodeType = "apply"
	NodeSink      FlowNodeType = "sink"
)

// FlowNode is one persisted row of the flow graph (spec section 4.8).
type FlowNode struct {
	FlowID     uint64
	NodeID     uint64
	Type       FlowNodeType
	SourceID   uint64            // valid when Type == NodeSource
	SinkViewID uint64            // valid when Type == NodeSink: the view this flow materializes
	Config     map[string]string // operator-specific parameters
}

// FlowEdge is one persisted edge of the flow graph. Input distinguishes
// the left (0) and right (1) leg of a two-input operator.
type FlowEdge struct {
	FlowID uint64
	EdgeID uint64
	From   uint64
	To     uint64
	Input  int
}

func encodeGob(v any) (types.EncodedValues, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, diagnostic.Wrap(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed, "encoding flow graph row", err)
	}
	return types.EncodedValues(buf.Bytes()), nil
}

func decodeGob(data types.EncodedValues, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return diagnostic.Wrap(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed, "decoding flow graph row", err)
	}
	return nil
}

// EncodeFlowNode/DecodeFlowNode persist a FlowNode's value payload (the
// key itself is built by types.FlowNodeKey).
func EncodeFlowNode(n FlowNode) (types.EncodedValues, error) { return encodeGob(n) }
func DecodeFlowNode(data types.EncodedValues) (FlowNode, error) {
	var n FlowNode
	err := decodeGob(data, &n)
	return n, err
}

func EncodeFlowEdge(e FlowEdge) (types.EncodedValues, error) { return encodeGob(e) }
func DecodeFlowEdge(data types.EncodedValues) (FlowEdge, error) {
	var e FlowEdge
	err := decodeGob(data, &e)
	return e, err
}

// Operator is the uniform contract every flow node variant implements
// (spec section 9 "Operator polymorphism ... a uniform apply(txn,
// change) -> change contract").
type Operator interface {
	Apply(ft *FlowTransaction, node FlowNode, change FlowChange) (FlowChange, error)
}

// RowKey builds a deterministic grouping/join key from the named
// columns, used by Aggregate, Sort, and Join state to index rows by a
// tuple of column values.
func RowKey(cols []string, r Row) string {
	var b bytes.Buffer
	for _, c := range cols {
		fmt.Fprintf(&b, "%v\x00", r[c])
	}
	return b.String()
}
