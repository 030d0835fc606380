package flow

import (
	"github.com/reifydb/reifydb-core/internal/flow/planinput"
	"github.com/reifydb/reifydb-core/internal/types"
)

// GraphWriter is the minimal write surface the compiler needs; satisfied
// structurally by *txn.Command. Adding a flow is one transactional
// commit (spec section 4.8), so the caller opens and commits the
// surrounding command.
type GraphWriter interface {
	Set(key types.EncodedKey, value types.EncodedValues) error
}

// nodeTypeFor maps a plan node's type to the persisted FlowNodeType,
// except for source nodes which always persist as NodeSource (spec
// section 4.8: "Source nodes ... generate a unique FlowNode of type
// 'source'").
func nodeTypeFor(t planinput.NodeType) FlowNodeType {
	switch t {
	case planinput.NodeFilter:
		return NodeFilter
	case planinput.NodeMap:
		return NodeMap
	case planinput.NodeExtend:
		return NodeExtend
	case planinput.NodeAggregate:
		return NodeAggregate
	case planinput.NodeSort:
		return NodeSort
	case planinput.NodeTake:
		return NodeTake
	case planinput.NodeMerge:
		return NodeMerge
	case planinput.NodeJoin:
		return NodeJoin
	case planinput.NodeApply:
		return NodeApply
	default:
		return NodeSource
	}
}

// Compiler assigns node and edge ids while compiling one flow.
type Compiler struct {
	flowID     uint64
	nextNodeID uint64
	nextEdgeID uint64
}

// NewCompiler returns a Compiler for flowID. Node/edge ids start at 1.
func NewCompiler(flowID uint64) *Compiler {
	return &Compiler{flowID: flowID, nextNodeID: 1, nextEdgeID: 1}
}

// Compile walks root postorder (spec section 4.8: "a child's compilation
// yields a node id that the parent edges to") and persists the
// resulting FlowNode/FlowEdge rows, plus a reverse source->flow index
// entry for every source node so the runtime can answer "which flows
// does this CDC change affect" (spec section 4.9 step 1). sinkViewID
// binds the flow's root to the view it materializes (spec section 4.8:
// "bound to the view it materializes").
func (c *Compiler) Compile(w GraphWriter, root *planinput.PlanNode, sinkViewID uint64) (rootNodeID uint64, err error) {
	opRoot, err := c.compileNode(w, root)
	if err != nil {
		return 0, err
	}

	sinkID := c.allocNodeID()
	sink := FlowNode{FlowID: c.flowID, NodeID: sinkID, Type: NodeSink, SinkViewID: sinkViewID}
	if err := c.writeNode(w, sink); err != nil {
		return 0, err
	}
	if err := c.writeEdge(w, FlowEdge{FlowID: c.flowID, EdgeID: c.allocEdgeID(), From: opRoot, To: sinkID, Input: 0}); err != nil {
		return 0, err
	}
	return sinkID, nil
}

func (c *Compiler) compileNode(w GraphWriter, n *planinput.PlanNode) (uint64, error) {
	if n.Type.IsSource() {
		id := c.allocNodeID()
		node := FlowNode{FlowID: c.flowID, NodeID: id, Type: NodeSource, SourceID: n.SourceID, Config: n.Config}
		if err := c.writeNode(w, node); err != nil {
			return 0, err
		}
		if err := w.Set(types.ReverseSourceIndexKey(n.SourceID, c.flowID), types.EncodedValues{1}); err != nil {
			return 0, err
		}
		return id, nil
	}

	childIDs := make([]uint64, 0, len(n.Children))
	for _, child := range n.Children {
		id, err := c.compileNode(w, child)
		if err != nil {
			return 0, err
		}
		childIDs = append(childIDs, id)
	}

	id := c.allocNodeID()
	node := FlowNode{FlowID: c.flowID, NodeID: id, Type: nodeTypeFor(n.Type), Config: n.Config}
	if err := c.writeNode(w, node); err != nil {
		return 0, err
	}
	for input, childID := range childIDs {
		edge := FlowEdge{FlowID: c.flowID, EdgeID: c.allocEdgeID(), From: childID, To: id, Input: input}
		if err := c.writeEdge(w, edge); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (c *Compiler) allocNodeID() uint64 { id := c.nextNodeID; c.nextNodeID++; return id }
func (c *Compiler) allocEdgeID() uint64 { id := c.nextEdgeID; c.nextEdgeID++; return id }

func (c *Compiler) writeNode(w GraphWriter, n FlowNode) error {
	value, err := EncodeFlowNode(n)
	if err != nil {
		return err
	}
	return w.Set(types.FlowNodeKey(n.FlowID, n.NodeID), value)
}

func (c *Compiler) writeEdge(w GraphWriter, e FlowEdge) error {
	value, err := EncodeFlowEdge(e)
	if err != nil {
		return err
	}
	return w.Set(types.FlowEdgeKey(e.FlowID, e.EdgeID), value)
}
