package flow

import "github.com/reifydb/reifydb-core/internal/types"

// RowCodec turns a row's raw encoded value into a Row the operators can
// evaluate predicates and expressions against. Schema/layout resolution
// belongs to whatever catalog owns the source (out of scope here, spec
// section 1), so the runtime is handed one codec per source id.
type RowCodec interface {
	Decode(value types.EncodedValues) (Row, error)
}

// LayoutCodec decodes rows using a fixed internal/types.Layout, naming
// each decoded field after Columns (same order as the layout's fields).
type LayoutCodec struct {
	Layout  *types.Layout
	Columns []string
}

func (c LayoutCodec) Decode(value types.EncodedValues) (Row, error) {
	values, err := c.Layout.Decode(value)
	if err != nil {
		return nil, err
	}
	row := make(Row, len(values))
	for i, v := range values {
		name := fieldName(c.Columns, i)
		row[name] = goValue(v)
	}
	return row, nil
}

func fieldName(columns []string, i int) string {
	if i < len(columns) {
		return columns[i]
	}
	return "_field"
}

func goValue(v types.Value) any {
	if v.Undefined {
		return nil
	}
	switch v.Type {
	case types.TypeBool:
		return v.Bool
	case types.TypeInt8, types.TypeInt16, types.TypeInt32, types.TypeInt64:
		return v.Int
	case types.TypeUint8, types.TypeUint16, types.TypeUint32, types.TypeUint64:
		return v.Uint
	case types.TypeFloat32:
		return float64(v.F32)
	case types.TypeFloat64:
		return v.F64
	case types.TypeUtf8:
		return v.Str
	default:
		return v.Bytes
	}
}
