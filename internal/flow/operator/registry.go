package operator

import "github.com/reifydb/reifydb-core/internal/flow"

// Default returns the built-in flow.Registry wiring every FlowNodeType
// operator variant spec section 4.9 names (the "closed tagged union" of
// spec section 9's design note).
func Default() flow.Registry {
	return flow.Registry{
		flow.NodeFilter:    Filter{},
		flow.NodeMap:       Map{},
		flow.NodeExtend:    Extend{},
		flow.NodeAggregate: Aggregate{},
		flow.NodeSort:      Sort{},
		flow.NodeTake:      Take{},
		flow.NodeMerge:     Merge{},
		flow.NodeJoin:      Join{},
		flow.NodeApply:     Apply{},
	}
}
