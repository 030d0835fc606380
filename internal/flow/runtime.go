package flow

import (
	"bytes"
	"encoding/gob"

	"github.com/rs/zerolog"

	"github.com/reifydb/reifydb-core/internal/diagnostic"
	"github.com/reifydb/reifydb-core/internal/rlog"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Registry maps a persisted node type to the Operator implementation
// that runs it (spec section 9: "Operator polymorphism ... a closed
// tagged union"; internal/flow/operator populates the default registry).
type Registry map[FlowNodeType]Operator

// Runtime drives the flow graph from CDC records (spec section 4.9).
// Scheduling is single logical worker per flow, cooperative (spec
// section 4.9 "Scheduling model"): Runtime itself is not goroutine-safe
// across concurrent calls for the same flow, matching that contract;
// parallelism across flows is the caller's responsibility (e.g. one
// goroutine per flow shard).
type Runtime struct {
	multi        storage.MultiTable
	registry     Registry
	codecs       map[uint64]RowCodec
	defaultCodec RowCodec
	log          zerolog.Logger
}

// NewRuntime returns a Runtime reading graphs from multi and dispatching
// to registry. defaultCodec decodes rows of any source with no entry in
// codecs.
func NewRuntime(multi storage.MultiTable, registry Registry, defaultCodec RowCodec) *Runtime {
	return &Runtime{
		multi:        multi,
		registry:     registry,
		codecs:       make(map[uint64]RowCodec),
		defaultCodec: defaultCodec,
		log:          rlog.WithComponent("flow.runtime"),
	}
}

// RegisterCodec binds a RowCodec to a specific source id.
func (rt *Runtime) RegisterCodec(sourceID uint64, codec RowCodec) {
	rt.codecs[sourceID] = codec
}

func (rt *Runtime) codecFor(sourceID uint64) RowCodec {
	if c, ok := rt.codecs[sourceID]; ok {
		return c
	}
	return rt.defaultCodec
}

// AffectedFlows answers spec section 4.9 step 1: which flows reference
// sourceID, via the reverse source->flow index.
func (rt *Runtime) AffectedFlows(version storage.CommitVersion, sourceID uint64) ([]uint64, error) {
	it, err := rt.multi.Range(types.ReverseSourceIndexPrefix(sourceID), version)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	for it.Next() {
		item := it.Item()
		if item.IsTombstone() {
			continue
		}
		_, flowID, ok := types.DecodeReverseSourceIndexKey(item.Key)
		if ok {
			ids = append(ids, flowID)
		}
	}
	return ids, nil
}

// HandleCdcRecord fans one committed CDC record out to every flow it
// affects and traverses each one to completion (spec section 4.9 steps
// 1-3; the CDC-to-flow batching boundary decision in DESIGN.md: a whole
// record is fully traversed, across every affected flow, before this
// call returns).
func (rt *Runtime) HandleCdcRecord(tx Transaction, record storage.CdcRecord) error {
	bySource := make(map[uint64][]storage.Change)
	for _, ch := range record.Changes {
		sourceID, _, ok := types.DecodeSourceRowKey(ch.Key)
		if !ok {
			continue // not a source row change (e.g. catalog/sequence bookkeeping); flows never see it
		}
		bySource[sourceID] = append(bySource[sourceID], ch)
	}

	for sourceID, changes := range bySource {
		flowIDs, err := rt.AffectedFlows(record.Version, sourceID)
		if err != nil {
			return err
		}
		for _, flowID := range flowIDs {
			graph, err := LoadGraph(rt.multi, flowID, record.Version)
			if err != nil {
				return err
			}
			diffs, err := rt.decodeDiffs(sourceID, changes)
			if err != nil {
				return err
			}
			change := FlowChange{Origin: Origin{ExternalSourceID: sourceID}, Version: record.Version, Diffs: diffs}
			if err := rt.Process(tx, flowID, graph, change); err != nil {
				return err
			}
		}
	}
	return nil
}

func (rt *Runtime) decodeDiffs(sourceID uint64, changes []storage.Change) ([]Diff, error) {
	codec := rt.codecFor(sourceID)
	diffs := make([]Diff, 0, len(changes))
	for _, ch := range changes {
		_, rowKey, _ := types.DecodeSourceRowKey(ch.Key)
		var before, after Row
		if ch.Before != nil {
			r, err := codec.Decode(ch.Before)
			if err != nil {
				return nil, err
			}
			r["_row_key"] = rowKey
			before = r
		}
		if ch.After != nil {
			r, err := codec.Decode(ch.After)
			if err != nil {
				return nil, err
			}
			r["_row_key"] = rowKey
			after = r
		}
		diffs = append(diffs, Diff{Kind: diffKindFor(ch.Kind), Before: before, After: after})
	}
	return diffs, nil
}

func diffKindFor(k storage.DeltaKind) DiffKind {
	switch k {
	case storage.DeltaInsert:
		return DiffInsert
	case storage.DeltaDelete:
		return DiffRemove
	default:
		return DiffUpdate
	}
}

// Process traverses graph in topological order starting from the source
// node(s) matching change.Origin, invoking each operator's Apply and
// forwarding its output along outgoing edges, finally projecting into
// the sink's materialized view rows (spec section 4.9 steps 3 and 5).
func (rt *Runtime) Process(tx Transaction, flowID uint64, graph *Graph, change FlowChange) error {
	pending := make(map[uint64][]FlowChange)
	for _, id := range graph.TopologicalOrder() {
		node := graph.Nodes[id]
		if node.Type == NodeSource && node.SourceID == change.Origin.ExternalSourceID {
			pending[id] = append(pending[id], change)
		}
	}

	for _, id := range graph.TopologicalOrder() {
		incoming := pending[id]
		if len(incoming) == 0 {
			continue
		}
		node, ok := graph.Nodes[id]
		if !ok {
			return diagnostic.Flow("flow graph references unknown node", nil)
		}

		switch node.Type {
		case NodeSource:
			for _, chg := range incoming {
				rt.forward(graph, pending, id, chg)
			}
		case NodeSink:
			for _, chg := range incoming {
				if err := rt.writeSink(tx, node, chg); err != nil {
					return err
				}
			}
		default:
			op, ok := rt.registry[node.Type]
			if !ok {
				return diagnostic.Flow("no operator registered for flow node type "+string(node.Type), nil)
			}
			ft := &FlowTransaction{Txn: tx, FlowID: flowID, NodeID: id, Origin: change.Origin}
			for _, chg := range incoming {
				out, err := op.Apply(ft, node, chg)
				if err != nil {
					return diagnostic.Flow("operator "+string(node.Type)+" failed", err)
				}
				if len(out.Diffs) == 0 {
					continue
				}
				rt.forward(graph, pending, id, out)
			}
		}
	}
	return nil
}

func (rt *Runtime) forward(graph *Graph, pending map[uint64][]FlowChange, from uint64, change FlowChange) {
	for _, e := range graph.Out(from) {
		leg := change
		leg.Input = e.Input
		pending[e.To] = append(pending[e.To], leg)
	}
}

func (rt *Runtime) writeSink(tx Transaction, node FlowNode, change FlowChange) error {
	for _, d := range change.Diffs {
		row := d.After
		if row == nil {
			row = d.Before
		}
		rowKey, _ := row["_row_key"].([]byte)
		key := types.SourceRowKey(node.SinkViewID, rowKey)
		if d.Kind == DiffRemove {
			if err := tx.Remove(key); err != nil {
				return err
			}
			continue
		}
		value, err := encodeRow(d.After)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func encodeRow(r Row) (types.EncodedValues, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, diagnostic.Wrap(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed, "encoding sink row", err)
	}
	return types.EncodedValues(buf.Bytes()), nil
}

// DecodeRow reverses encodeRow, for callers inspecting materialized view
// rows (e.g. tests, the compact/stats CLI).
func DecodeRow(value types.EncodedValues) (Row, error) {
	var r Row
	if err := gob.NewDecoder(bytes.NewReader(value)).Decode(&r); err != nil {
		return nil, diagnostic.Wrap(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed, "decoding sink row", err)
	}
	return r, nil
}
