package operator

import (
	"strings"

	"github.com/reifydb/reifydb-core/internal/flow"
)

// Subroutine is a named row transform Apply can invoke (spec section
// 4.9: "invokes a named subroutine on each diff, replacing the diff with
// its result"). Grounded on tinySQL's funcHandler registry
// (getBuiltinFunctions), generalized from scalar expressions to whole
// row transforms.
type Subroutine func(row flow.Row) flow.Row

// Subroutines is the built-in registry; Apply's Config["name"] selects
// one by name. No RQL/UDF layer is in scope, so this set is fixed.
var Subroutines = map[string]Subroutine{
	"uppercase": func(row flow.Row) flow.Row {
		out := row.Clone()
		for k, v := range out {
			if s, ok := v.(string); ok {
				out[k] = strings.ToUpper(s)
			}
		}
		return out
	},
	"identity": func(row flow.Row) flow.Row { return row.Clone() },
}

// Apply invokes Config["name"]'s subroutine on every diff's rows.
type Apply struct{}

func (Apply) Apply(ft *flow.FlowTransaction, node flow.FlowNode, change flow.FlowChange) (flow.FlowChange, error) {
	name := node.Config["name"]
	fn, ok := Subroutines[name]
	if !ok {
		fn = Subroutines["identity"]
	}

	out := change
	out.Diffs = make([]flow.Diff, len(change.Diffs))
	for i, d := range change.Diffs {
		out.Diffs[i] = flow.Diff{Kind: d.Kind, Before: applyRow(fn, d.Before), After: applyRow(fn, d.After)}
	}
	return out, nil
}

func applyRow(fn Subroutine, row flow.Row) flow.Row {
	if row == nil {
		return nil
	}
	return fn(row)
}
