package operator

import "github.com/reifydb/reifydb-core/internal/flow"

// Map projects each input row to an output row (spec section 4.9:
// "projects to output row via evaluated expressions; preserves row
// identity"). Without an expression evaluator in scope, Config is a
// direct output-column -> input-column projection map; "_row_key" is
// always carried through regardless of Config so row identity survives.
type Map struct{}

func (Map) Apply(ft *flow.FlowTransaction, node flow.FlowNode, change flow.FlowChange) (flow.FlowChange, error) {
	out := change
	out.Diffs = make([]flow.Diff, len(change.Diffs))
	for i, d := range change.Diffs {
		out.Diffs[i] = flow.Diff{Kind: d.Kind, Before: project(node.Config, d.Before), After: project(node.Config, d.After)}
	}
	return out, nil
}

func project(projection map[string]string, row flow.Row) flow.Row {
	if row == nil {
		return nil
	}
	out := make(flow.Row, len(projection)+1)
	for outCol, inCol := range projection {
		out[outCol] = row[inCol]
	}
	if rk, ok := row["_row_key"]; ok {
		out["_row_key"] = rk
	}
	return out
}
