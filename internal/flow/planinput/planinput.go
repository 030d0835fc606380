// Package planinput stands in for the external physical query plan tree
// the flow compiler consumes (spec section 4.8: "Input: a rooted
// physical query plan"). Producing that tree is the planner's job,
// explicitly out of scope for this core (spec section 1 non-goals); this
// package only defines the small node-tree shape the compiler walks.
package planinput

// NodeType enumerates the physical plan node kinds spec section 4.8
// names.
type NodeType string

const (
	NodeTableScan      NodeType = "TableScan"
	NodeViewScan       NodeType = "ViewScan"
	NodeFlowScan       NodeType = "FlowScan"
	NodeRingBufferScan NodeType = "RingBufferScan"
	NodeFilter         NodeType = "Filter"
	NodeMap            NodeType = "Map"
	NodeExtend         NodeType = "Extend"
	NodeAggregate      NodeType = "Aggregate"
	NodeSort           NodeType = "Sort"
	NodeTake           NodeType = "Take"
	NodeMerge          NodeType = "Merge"
	NodeJoin           NodeType = "Join"
	NodeApply          NodeType = "Apply"
)

// IsSource reports whether t is one of the source scan node types (spec
// section 4.8: "Source nodes ... generate a unique FlowNode of type
// 'source'").
func (t NodeType) IsSource() bool {
	switch t {
	case NodeTableScan, NodeViewScan, NodeFlowScan, NodeRingBufferScan:
		return true
	default:
		return false
	}
}

// IsTwoInput reports whether t links two child subtrees (spec section
// 4.8: "Two-input operators (Merge, Join) link both subtrees").
func (t NodeType) IsTwoInput() bool {
	return t == NodeMerge || t == NodeJoin
}

// PlanNode is one node of the physical plan tree. Children holds one
// entry for single-input operators, two for Merge/Join, and none for
// source scans. Config carries node-specific parameters (e.g. a filter
// predicate, a sort key list, a join's equality column) as plain
// strings, since evaluating expressions is also out of scope here.
type PlanNode struct {
	Type     NodeType
	SourceID uint64 // valid when Type.IsSource()
	Children []*PlanNode
	Config   map[string]string
}
