package operator

import "github.com/reifydb/reifydb-core/internal/flow"

// Extend appends computed columns to the input schema (spec section
// 4.9). As with Map, no expression evaluator is in scope, so Config's
// new-column -> source-column entries copy an existing column's value
// under a new name rather than evaluating an arbitrary expression; every
// original column is preserved.
type Extend struct{}

func (Extend) Apply(ft *flow.FlowTransaction, node flow.FlowNode, change flow.FlowChange) (flow.FlowChange, error) {
	out := change
	out.Diffs = make([]flow.Diff, len(change.Diffs))
	for i, d := range change.Diffs {
		out.Diffs[i] = flow.Diff{Kind: d.Kind, Before: extend(node.Config, d.Before), After: extend(node.Config, d.After)}
	}
	return out, nil
}

func extend(columns map[string]string, row flow.Row) flow.Row {
	if row == nil {
		return nil
	}
	out := row.Clone()
	for newCol, fromCol := range columns {
		out[newCol] = row[fromCol]
	}
	return out
}
