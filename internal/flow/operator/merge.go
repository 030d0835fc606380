package operator

import (
	"encoding/binary"

	"github.com/reifydb/reifydb-core/internal/flow"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Merge interleaves two inputs; diffs pass through unchanged (spec
// section 4.9). Per the two-input ordering decision recorded in
// DESIGN.md, legs advance independently rather than in strict lock-step,
// so Merge needs no buffering of the other leg to stay correct — it only
// records the highest version seen per leg, giving downstream a single
// monotonic version stream to reason about even though the legs
// themselves are not synchronized.
type Merge struct{}

func (Merge) Apply(ft *flow.FlowTransaction, node flow.FlowNode, change flow.FlowChange) (flow.FlowChange, error) {
	if err := recordLegVersion(ft, legVersionKey(change.Input), uint64(change.Version)); err != nil {
		return flow.FlowChange{}, err
	}
	return change, nil
}

func legVersionKey(input int) []byte {
	if input == 1 {
		return []byte("merge:right")
	}
	return []byte("merge:left")
}

func recordLegVersion(ft *flow.FlowTransaction, key []byte, version uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, version)
	return ft.SetState(key, types.EncodedValues(buf))
}
