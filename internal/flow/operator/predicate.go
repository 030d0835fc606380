// Package operator implements the concrete Operator variants spec section
// 4.9 names: Map, Filter, Extend, Aggregate, Sort, Take, Merge, Join,
// Apply. Since expression evaluation is out of scope (spec section 1),
// each operator reads its parameters from FlowNode.Config as plain
// strings and evaluates only simple column/op/value comparisons and
// column projections, generalized from tinySQL's volcano-style
// evalComparisonBinary/compare to operate on flow.Row diffs instead of
// query result rows.
package operator

import (
	"fmt"
	"strconv"

	"github.com/reifydb/reifydb-core/internal/flow"
)

// compare mirrors tinySQL's exec.compare: numeric operands compare as
// float64, everything else falls back to a string comparison.
func compare(a, b any) int {
	if af, aok := numeric(a); aok {
		if bf, bok := numeric(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// evalComparison evaluates "column <op> value" against row, where value
// is the literal string from FlowNode.Config (spec section 1 excludes an
// expression evaluator, so literals are the only right-hand side).
func evalComparison(row flow.Row, column, op, literal string) bool {
	if row == nil {
		return false
	}
	left, ok := row[column]
	if !ok || left == nil {
		return false
	}
	cmp := compare(left, literal)
	switch op {
	case "=", "==":
		return cmp == 0
	case "!=", "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}
