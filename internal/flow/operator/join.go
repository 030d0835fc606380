package operator

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/reifydb/reifydb-core/internal/flow"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Join maintains per-side indexed state keyed by the equality column's
// value; for each incoming diff it probes the other side's index and
// emits the combined join diff (spec section 4.9). Config carries
// "left_col", "right_col", and "join_type" (inner|left|right). Only the
// insert-time null-padding is maintained incrementally for outer joins:
// a later arrival on the previously-unmatched side does not retract an
// already-emitted null-padded row, a scope cut noted in DESIGN.md since
// doing so correctly needs a full outer-row rewrite on every probe.
type Join struct{}

type joinSideEntry struct {
	RowKey []byte
	Row    flow.Row
}

type joinSideState struct {
	Entries []joinSideEntry
}

func (Join) Apply(ft *flow.FlowTransaction, node flow.FlowNode, change flow.FlowChange) (flow.FlowChange, error) {
	leftCol := node.Config["left_col"]
	rightCol := node.Config["right_col"]
	joinType := node.Config["join_type"]

	ownCol, otherCol := leftCol, rightCol
	ownSide, otherSide := "join:left", "join:right"
	if change.Input == 1 {
		ownCol, otherCol = rightCol, leftCol
		ownSide, otherSide = "join:right", "join:left"
	}

	out := change
	out.Diffs = nil

	for _, d := range change.Diffs {
		diffs, err := applyJoinDiff(ft, d, ownCol, otherCol, ownSide, otherSide, change.Input, joinType)
		if err != nil {
			return flow.FlowChange{}, err
		}
		out.Diffs = append(out.Diffs, diffs...)
	}
	return out, nil
}

func applyJoinDiff(ft *flow.FlowTransaction, d flow.Diff, ownCol, otherCol, ownSide, otherSide string, input int, joinType string) ([]flow.Diff, error) {
	rowKey := rowKeyOf(d)
	if rowKey == nil {
		return nil, nil
	}

	own, err := loadJoinSide(ft, ownSide)
	if err != nil {
		return nil, err
	}
	other, err := loadJoinSide(ft, otherSide)
	if err != nil {
		return nil, err
	}

	if d.Kind == flow.DiffRemove {
		own.remove(rowKey)
		if err := saveJoinSide(ft, ownSide, own); err != nil {
			return nil, err
		}
		matches := other.matching(otherCol, d.Before[ownCol])
		var out []flow.Diff
		for _, m := range matches {
			out = append(out, flow.Diff{Kind: flow.DiffRemove, Before: combineRows(input, d.Before, m.Row)})
		}
		if len(matches) == 0 && joinType != "inner" {
			out = append(out, flow.Diff{Kind: flow.DiffRemove, Before: combineRows(input, d.Before, nil)})
		}
		return out, nil
	}

	own.upsert(rowKey, d.After)
	if err := saveJoinSide(ft, ownSide, own); err != nil {
		return nil, err
	}
	matches := other.matching(otherCol, d.After[ownCol])

	var out []flow.Diff
	kind := flow.DiffInsert
	if d.Kind == flow.DiffUpdate {
		kind = flow.DiffUpdate
	}
	for _, m := range matches {
		out = append(out, flow.Diff{Kind: kind, Before: combineRows(input, d.Before, m.Row), After: combineRows(input, d.After, m.Row)})
	}
	if len(matches) == 0 && joinType != "inner" {
		out = append(out, flow.Diff{Kind: kind, Before: combineRows(input, d.Before, nil), After: combineRows(input, d.After, nil)})
	}
	return out, nil
}

// combineRows merges the driving side's row with the matched (or
// null-padding, if match is nil) other side's row, placing the driving
// side's columns first when input==0 (left) and last when input==1.
func combineRows(input int, own, match flow.Row) flow.Row {
	if own == nil {
		return nil
	}
	out := make(flow.Row, len(own)+len(match)+1)
	if input == 0 {
		copyInto(out, own)
		copyInto(out, match)
	} else {
		copyInto(out, match)
		copyInto(out, own)
	}
	if rk, ok := own["_row_key"]; ok {
		out["_row_key"] = rk
	}
	return out
}

func copyInto(dst, src flow.Row) {
	for k, v := range src {
		dst[k] = v
	}
}

func (s *joinSideState) upsert(rowKey []byte, row flow.Row) {
	for i, e := range s.Entries {
		if bytes.Equal(e.RowKey, rowKey) {
			s.Entries[i].Row = row
			return
		}
	}
	s.Entries = append(s.Entries, joinSideEntry{RowKey: rowKey, Row: row})
}

func (s *joinSideState) remove(rowKey []byte) {
	for i, e := range s.Entries {
		if bytes.Equal(e.RowKey, rowKey) {
			s.Entries = append(s.Entries[:i], s.Entries[i+1:]...)
			return
		}
	}
}

func (s joinSideState) matching(col string, value any) []joinSideEntry {
	var out []joinSideEntry
	for _, e := range s.Entries {
		if fmt.Sprint(e.Row[col]) == fmt.Sprint(value) {
			out = append(out, e)
		}
	}
	return out
}

func loadJoinSide(ft *flow.FlowTransaction, side string) (joinSideState, error) {
	raw, ok, err := ft.GetState([]byte(side))
	if err != nil || !ok {
		return joinSideState{}, err
	}
	var s joinSideState
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return joinSideState{}, err
	}
	return s, nil
}

func saveJoinSide(ft *flow.FlowTransaction, side string, s joinSideState) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return err
	}
	return ft.SetState([]byte(side), types.EncodedValues(buf.Bytes()))
}
