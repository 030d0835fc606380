package operator

import (
	"bytes"
	"encoding/gob"
	"sort"

	"github.com/reifydb/reifydb-core/internal/flow"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Take maintains the first n rows by the input's order, emitting diffs
// only when the tracked prefix changes (spec section 4.9). Config
// carries "order_by" and "limit". The tracked set itself (not a wider
// candidate pool) is the operator's whole persisted state, since the
// minimal per-node Transaction contract (spec section 4.9 step 4) has no
// range scan to recompute "next best" once a row leaves the top n; a row
// that falls out of the tracked set without a replacement from inside it
// is simply dropped rather than backfilled from untracked rows below it.
type Take struct{}

const takeStateKey = "take"

type takeEntry struct {
	RowKey []byte
	Row    flow.Row
	Key    sortedRow
}

type takeState struct {
	Entries []takeEntry
}

func (Take) Apply(ft *flow.FlowTransaction, node flow.FlowNode, change flow.FlowChange) (flow.FlowChange, error) {
	column := node.Config["order_by"]
	limit := configInt(node.Config["limit"], 10)

	state, err := loadTakeState(ft)
	if err != nil {
		return flow.FlowChange{}, err
	}
	before := snapshotTake(state)

	for _, d := range change.Diffs {
		applyTakeDiff(&state, column, d)
	}
	sort.Slice(state.Entries, func(i, j int) bool { return state.Entries[i].Key.compareKey(state.Entries[j].Key) < 0 })
	if len(state.Entries) > limit {
		state.Entries = state.Entries[:limit]
	}

	if err := saveTakeState(ft, state); err != nil {
		return flow.FlowChange{}, err
	}

	out := change
	out.Diffs = diffTakeSets(before, snapshotTake(state))
	return out, nil
}

func applyTakeDiff(state *takeState, column string, d flow.Diff) {
	rowKey := rowKeyOf(d)
	if rowKey == nil {
		return
	}
	idx := -1
	for i, e := range state.Entries {
		if bytes.Equal(e.RowKey, rowKey) {
			idx = i
			break
		}
	}

	if d.Kind == flow.DiffRemove {
		if idx >= 0 {
			state.Entries = append(state.Entries[:idx], state.Entries[idx+1:]...)
		}
		return
	}

	entry := takeEntry{RowKey: rowKey, Row: d.After, Key: sortKeyOf(rowKey, d.After, column)}
	if idx >= 0 {
		state.Entries[idx] = entry
	} else {
		state.Entries = append(state.Entries, entry)
	}
}

func snapshotTake(state takeState) map[string]flow.Row {
	out := make(map[string]flow.Row, len(state.Entries))
	for _, e := range state.Entries {
		out[string(e.RowKey)] = e.Row
	}
	return out
}

func diffTakeSets(before, after map[string]flow.Row) []flow.Diff {
	var diffs []flow.Diff
	for k, a := range after {
		if b, ok := before[k]; !ok {
			diffs = append(diffs, flow.Diff{Kind: flow.DiffInsert, After: a})
		} else if !rowsEqual(b, a) {
			diffs = append(diffs, flow.Diff{Kind: flow.DiffUpdate, Before: b, After: a})
		}
	}
	for k, b := range before {
		if _, ok := after[k]; !ok {
			diffs = append(diffs, flow.Diff{Kind: flow.DiffRemove, Before: b})
		}
	}
	return diffs
}

func rowsEqual(a, b flow.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func loadTakeState(ft *flow.FlowTransaction) (takeState, error) {
	raw, ok, err := ft.GetState([]byte(takeStateKey))
	if err != nil || !ok {
		return takeState{}, err
	}
	var s takeState
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return takeState{}, err
	}
	return s, nil
}

func saveTakeState(ft *flow.FlowTransaction, s takeState) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return err
	}
	return ft.SetState([]byte(takeStateKey), types.EncodedValues(buf.Bytes()))
}

func configInt(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}
