package operator

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/reifydb/reifydb-core/internal/flow"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Sort maintains an ordered index over input rows by sort key (spec
// section 4.9: "eager and unbounded unless combined with Take"). It
// materializes every input row's sort key under its own state so a
// downstream Take can recompute the current top-n without re-reading the
// source table; the diffs it forwards carry the row unchanged, since
// only Sort's index (not the row content) is affected by ordering.
type Sort struct{}

type sortedRow struct {
	RowKey  []byte
	NumKey  float64
	StrKey  string
	IsNumer bool
}

func (Sort) Apply(ft *flow.FlowTransaction, node flow.FlowNode, change flow.FlowChange) (flow.FlowChange, error) {
	column := node.Config["order_by"]
	for _, d := range change.Diffs {
		rowKey := rowKeyOf(d)
		if rowKey == nil {
			continue
		}
		if d.Kind == flow.DiffRemove {
			if err := ft.RemoveState(sortIndexKey(rowKey)); err != nil {
				return flow.FlowChange{}, err
			}
			continue
		}
		entry := sortKeyOf(rowKey, d.After, column)
		value, err := encodeSortedRow(entry)
		if err != nil {
			return flow.FlowChange{}, err
		}
		if err := ft.SetState(sortIndexKey(rowKey), value); err != nil {
			return flow.FlowChange{}, err
		}
	}
	return change, nil
}

func rowKeyOf(d flow.Diff) []byte {
	row := d.After
	if row == nil {
		row = d.Before
	}
	rk, _ := row["_row_key"].([]byte)
	return rk
}

func sortKeyOf(rowKey []byte, row flow.Row, column string) sortedRow {
	if row == nil {
		return sortedRow{RowKey: rowKey}
	}
	if f, ok := numeric(row[column]); ok {
		return sortedRow{RowKey: rowKey, NumKey: f, IsNumer: true}
	}
	return sortedRow{RowKey: rowKey, StrKey: fmt.Sprint(row[column])}
}

func (s sortedRow) compareKey(other sortedRow) int {
	if s.IsNumer && other.IsNumer {
		switch {
		case s.NumKey < other.NumKey:
			return -1
		case s.NumKey > other.NumKey:
			return 1
		default:
			return 0
		}
	}
	switch {
	case s.StrKey < other.StrKey:
		return -1
	case s.StrKey > other.StrKey:
		return 1
	default:
		return 0
	}
}

func sortIndexKey(rowKey []byte) []byte {
	return append([]byte("sort:"), rowKey...)
}

func encodeSortedRow(r sortedRow) (types.EncodedValues, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return types.EncodedValues(buf.Bytes()), nil
}

func decodeSortedRow(value types.EncodedValues) (sortedRow, error) {
	var r sortedRow
	err := gob.NewDecoder(bytes.NewReader(value)).Decode(&r)
	return r, err
}
