package operator

import (
	"bytes"
	"encoding/gob"

	"github.com/reifydb/reifydb-core/internal/flow"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Aggregate maintains per-group state keyed by a grouping tuple (spec
// section 4.9): an Insert updates state and emits a diff of the changed
// group's aggregate, Remove is symmetric, and Update is modeled as
// Remove(pre) + Insert(post). Config carries "group_by" (comma-separated
// column names), "agg_col", and "agg_func" (sum|count|avg|min|max).
type Aggregate struct{}

type groupState struct {
	Count int64
	Sum   float64
	Min   float64
	Max   float64
	HasMM bool // whether Min/Max have been initialized
}

func (Aggregate) Apply(ft *flow.FlowTransaction, node flow.FlowNode, change flow.FlowChange) (flow.FlowChange, error) {
	groupBy := splitCSV(node.Config["group_by"])
	aggCol := node.Config["agg_col"]
	aggFunc := node.Config["agg_func"]

	out := change
	out.Diffs = nil

	for _, d := range change.Diffs {
		diffs, err := applyOneAggregate(ft, groupBy, aggCol, aggFunc, d)
		if err != nil {
			return flow.FlowChange{}, err
		}
		out.Diffs = append(out.Diffs, diffs...)
	}
	return out, nil
}

func applyOneAggregate(ft *flow.FlowTransaction, groupBy []string, aggCol, aggFunc string, d flow.Diff) ([]flow.Diff, error) {
	switch d.Kind {
	case flow.DiffInsert:
		return foldGroup(ft, groupBy, aggCol, aggFunc, d.After, +1)
	case flow.DiffRemove:
		return foldGroup(ft, groupBy, aggCol, aggFunc, d.Before, -1)
	case flow.DiffUpdate:
		removed, err := foldGroup(ft, groupBy, aggCol, aggFunc, d.Before, -1)
		if err != nil {
			return nil, err
		}
		added, err := foldGroup(ft, groupBy, aggCol, aggFunc, d.After, +1)
		if err != nil {
			return nil, err
		}
		return append(removed, added...), nil
	default:
		return nil, nil
	}
}

// foldGroup folds row into (sign=+1) or out of (sign=-1) its group's
// state, persists the new state, and returns the diff describing how
// the group's materialized aggregate row changed: Insert on
// 0->non-zero count, Remove on non-zero->0, Update otherwise.
func foldGroup(ft *flow.FlowTransaction, groupBy []string, aggCol, aggFunc string, row flow.Row, sign int64) ([]flow.Diff, error) {
	groupKey := flow.RowKey(groupBy, row)
	stateKey := []byte(groupKey)

	before, hadState, err := loadGroupState(ft, stateKey)
	if err != nil {
		return nil, err
	}

	after := before
	val, _ := numeric(row[aggCol])
	if sign > 0 {
		after.Count++
		after.Sum += val
		if !after.HasMM || val < after.Min {
			after.Min = val
		}
		if !after.HasMM || val > after.Max {
			after.Max = val
		}
		after.HasMM = true
	} else {
		after.Count--
		after.Sum -= val
	}

	if after.Count <= 0 {
		if err := ft.RemoveState(stateKey); err != nil {
			return nil, err
		}
	} else if err := saveGroupState(ft, stateKey, after); err != nil {
		return nil, err
	}

	beforeRow := groupRow(groupBy, row, aggCol, aggFunc, before, hadState && before.Count > 0)
	afterRow := groupRow(groupBy, row, aggCol, aggFunc, after, after.Count > 0)

	switch {
	case beforeRow == nil && afterRow == nil:
		return nil, nil
	case beforeRow == nil:
		return []flow.Diff{{Kind: flow.DiffInsert, After: afterRow}}, nil
	case afterRow == nil:
		return []flow.Diff{{Kind: flow.DiffRemove, Before: beforeRow}}, nil
	default:
		return []flow.Diff{{Kind: flow.DiffUpdate, Before: beforeRow, After: afterRow}}, nil
	}
}

func groupRow(groupBy []string, sample flow.Row, aggCol, aggFunc string, s groupState, present bool) flow.Row {
	if !present {
		return nil
	}
	row := make(flow.Row, len(groupBy)+1)
	for _, c := range groupBy {
		row[c] = sample[c]
	}
	row[aggCol+"_"+aggFunc] = groupResult(aggFunc, s)
	row["_row_key"] = []byte(flow.RowKey(groupBy, sample))
	return row
}

func loadGroupState(ft *flow.FlowTransaction, key []byte) (groupState, bool, error) {
	raw, ok, err := ft.GetState(key)
	if err != nil {
		return groupState{}, false, err
	}
	if !ok {
		return groupState{}, false, nil
	}
	var s groupState
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return groupState{}, false, err
	}
	return s, true, nil
}

func saveGroupState(ft *flow.FlowTransaction, key []byte, s groupState) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return err
	}
	return ft.SetState(key, types.EncodedValues(buf.Bytes()))
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func groupResult(aggFunc string, s groupState) float64 {
	switch aggFunc {
	case "count":
		return float64(s.Count)
	case "sum":
		return s.Sum
	case "avg":
		if s.Count == 0 {
			return 0
		}
		return s.Sum / float64(s.Count)
	case "min":
		return s.Min
	case "max":
		return s.Max
	default:
		return s.Sum
	}
}
