package flow

import (
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Graph is the in-memory reconstruction of one flow's persisted nodes
// and edges (spec section 9: "persist nodes/edges under deterministic
// keys so the runtime can reconstruct the DAG by a single prefix scan on
// startup").
type Graph struct {
	FlowID uint64
	Nodes  map[uint64]FlowNode
	Edges  []FlowEdge

	// outEdges/inEdges index edges by endpoint for traversal.
	outEdges map[uint64][]FlowEdge
	inEdges  map[uint64][]FlowEdge
}

func newGraph(flowID uint64) *Graph {
	return &Graph{
		FlowID:   flowID,
		Nodes:    make(map[uint64]FlowNode),
		outEdges: make(map[uint64][]FlowEdge),
		inEdges:  make(map[uint64][]FlowEdge),
	}
}

func (g *Graph) addNode(n FlowNode) { g.Nodes[n.NodeID] = n }

func (g *Graph) addEdge(e FlowEdge) {
	g.Edges = append(g.Edges, e)
	g.outEdges[e.From] = append(g.outEdges[e.From], e)
	g.inEdges[e.To] = append(g.inEdges[e.To], e)
}

// Out returns the edges leaving nodeID, in registration order.
func (g *Graph) Out(nodeID uint64) []FlowEdge { return g.outEdges[nodeID] }

// In returns the edges entering nodeID, in registration order (Input 0
// before Input 1 for two-input nodes, since the compiler always links
// the left leg first).
func (g *Graph) In(nodeID uint64) []FlowEdge { return g.inEdges[nodeID] }

// LoadGraph reconstructs one flow's graph with two prefix scans (spec
// section 9 design note).
func LoadGraph(multi storage.MultiTable, flowID uint64, readTs storage.CommitVersion) (*Graph, error) {
	g := newGraph(flowID)

	nodeIt, err := multi.Range(types.FlowNodePrefix(flowID), readTs)
	if err != nil {
		return nil, err
	}
	for nodeIt.Next() {
		item := nodeIt.Item()
		if item.IsTombstone() {
			continue
		}
		n, err := DecodeFlowNode(item.Value)
		if err != nil {
			return nil, err
		}
		g.addNode(n)
	}

	edgeIt, err := multi.Range(types.FlowEdgePrefix(flowID), readTs)
	if err != nil {
		return nil, err
	}
	for edgeIt.Next() {
		item := edgeIt.Item()
		if item.IsTombstone() {
			continue
		}
		e, err := DecodeFlowEdge(item.Value)
		if err != nil {
			return nil, err
		}
		g.addEdge(e)
	}

	return g, nil
}

// TopologicalOrder returns node ids from sources to sinks, per spec
// section 4.9 step 3 ("Traverse the graph in topological order from
// source to sink"). Deterministic: ties break by node id ascending.
func (g *Graph) TopologicalOrder() []uint64 {
	indegree := make(map[uint64]int, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = len(g.inEdges[id])
	}

	var ready []uint64
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sortUint64s(ready)

	var order []uint64
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		var next []uint64
		for _, e := range g.outEdges[id] {
			indegree[e.To]--
			if indegree[e.To] == 0 {
				next = append(next, e.To)
			}
		}
		sortUint64s(next)
		ready = append(ready, next...)
		sortUint64s(ready)
	}
	return order
}

func sortUint64s(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
