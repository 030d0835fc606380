package operator

import "github.com/reifydb/reifydb-core/internal/flow"

// Filter drops rows whose predicate evaluates to false (spec section
// 4.9). Config carries "column", "op", "value". An Update whose Before
// and After disagree on the predicate is split into a bare Insert or
// Remove so downstream only ever sees rows that currently satisfy the
// filter.
type Filter struct{}

func (Filter) Apply(ft *flow.FlowTransaction, node flow.FlowNode, change flow.FlowChange) (flow.FlowChange, error) {
	column := node.Config["column"]
	op := node.Config["op"]
	value := node.Config["value"]

	out := change
	out.Diffs = make([]flow.Diff, 0, len(change.Diffs))

	for _, d := range change.Diffs {
		switch d.Kind {
		case flow.DiffInsert:
			if evalComparison(d.After, column, op, value) {
				out.Diffs = append(out.Diffs, d)
			}
		case flow.DiffRemove:
			if evalComparison(d.Before, column, op, value) {
				out.Diffs = append(out.Diffs, d)
			}
		case flow.DiffUpdate:
			before := evalComparison(d.Before, column, op, value)
			after := evalComparison(d.After, column, op, value)
			switch {
			case before && after:
				out.Diffs = append(out.Diffs, d)
			case !before && after:
				out.Diffs = append(out.Diffs, flow.Diff{Kind: flow.DiffInsert, After: d.After})
			case before && !after:
				out.Diffs = append(out.Diffs, flow.Diff{Kind: flow.DiffRemove, Before: d.Before})
			}
		}
	}
	return out, nil
}
