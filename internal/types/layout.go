package types

import (
	"encoding/binary"
	"math"

	"github.com/reifydb/reifydb-core/internal/diagnostic"
)

// FieldType enumerates the supported primitive types of a Layout, per
// spec section 4.1.
type FieldType uint8

const (
	TypeBool FieldType = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeUtf8
	TypeBlob
	TypeDate
	TypeTime
	TypeDateTime
	TypeInterval
	TypeUuid4
	TypeUuid7
	TypeDecimal
)

// fixedWidth returns the in-record slot width for types with a static
// size; variable-length types return 0 (they store an 8-byte
// offset+length pair instead).
func (t FieldType) fixedWidth(precision uint8) int {
	switch t {
	case TypeBool, TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32, TypeDate:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64, TypeTime, TypeDateTime, TypeInterval:
		return 8
	case TypeUuid4, TypeUuid7:
		return 16
	case TypeDecimal:
		return 0
	default:
		return 0 // variable-length: Utf8, Blob, Decimal
	}
}

func (t FieldType) isVariable() bool {
	return t == TypeUtf8 || t == TypeBlob || t == TypeDecimal
}

// Field describes one named, typed column of a Layout. Precision/Scale
// only apply to TypeDecimal.
type Field struct {
	Name      string
	Type      FieldType
	Precision uint8
	Scale     uint8
}

// Layout is an ordered, append-only list of Fields producing a fixed
// record schema. Adding a trailing field is compatible; reordering or
// removing a field is not (spec section 4.1).
type Layout struct {
	Fields []Field

	slotOffset []int // byte offset of each field's fixed slot
	bitmapLen  int
	fixedLen   int // bitmap + all fixed slots (variable fields store offset+len here)
}

// NewLayout computes slot offsets for the given fields.
func NewLayout(fields []Field) *Layout {
	l := &Layout{Fields: append([]Field(nil), fields...)}
	l.bitmapLen = (len(fields) + 7) / 8
	offset := l.bitmapLen
	l.slotOffset = make([]int, len(fields))
	for i, f := range fields {
		l.slotOffset[i] = offset
		if f.Type.isVariable() {
			offset += 8 // 4-byte offset + 4-byte length into the trailing region
		} else {
			offset += f.Type.fixedWidth(f.Precision)
		}
	}
	l.fixedLen = offset
	return l
}

// Value is a dynamically typed field value produced by Decode and
// consumed by Encode. Exactly one of the typed fields is meaningful,
// selected by Type; Undefined suppresses all of them.
type Value struct {
	Type      FieldType
	Undefined bool

	Bool  bool
	Int   int64
	Uint  uint64
	F32   float32
	F64   float64
	Str   string
	Bytes []byte
	// Decimal is stored as an unscaled integer plus Scale, matching a
	// bounded-precision fixed-point representation.
	DecimalUnscaled int64
	DecimalScale    uint8
}

// EncodedValues is the byte-exact encoding of a record under a Layout:
// a definedness bitmap, fixed slots, and a trailing variable-length
// region.
type EncodedValues []byte

// Encode lays out values according to l, producing a byte-exact record.
// len(values) must equal len(l.Fields).
func (l *Layout) Encode(values []Value) (EncodedValues, error) {
	if len(values) != len(l.Fields) {
		return nil, diagnostic.New(diagnostic.KindEncoding, diagnostic.CodeEncodingLayout,
			"value count does not match layout field count")
	}

	buf := make([]byte, l.fixedLen)
	var tail []byte

	for i, f := range l.Fields {
		v := values[i]
		if v.Undefined {
			continue
		}
		buf[i/8] |= 1 << uint(i%8)
		off := l.slotOffset[i]

		switch f.Type {
		case TypeBool:
			if v.Bool {
				buf[off] = 1
			}
		case TypeInt8:
			buf[off] = byte(v.Int)
		case TypeInt16:
			binary.LittleEndian.PutUint16(buf[off:], uint16(v.Int))
		case TypeInt32, TypeDate:
			binary.LittleEndian.PutUint32(buf[off:], uint32(v.Int))
		case TypeInt64, TypeTime, TypeDateTime, TypeInterval:
			binary.LittleEndian.PutUint64(buf[off:], uint64(v.Int))
		case TypeUint8:
			buf[off] = byte(v.Uint)
		case TypeUint16:
			binary.LittleEndian.PutUint16(buf[off:], uint16(v.Uint))
		case TypeUint32:
			binary.LittleEndian.PutUint32(buf[off:], uint32(v.Uint))
		case TypeUint64:
			binary.LittleEndian.PutUint64(buf[off:], v.Uint)
		case TypeFloat32:
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v.F32))
		case TypeFloat64:
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v.F64))
		case TypeUuid4, TypeUuid7:
			if len(v.Bytes) != 16 {
				return nil, diagnostic.New(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed,
					"uuid value must be 16 bytes")
			}
			copy(buf[off:off+16], v.Bytes)
		case TypeUtf8:
			tail = writeVarSlot(buf, off, tail, []byte(v.Str))
		case TypeBlob:
			tail = writeVarSlot(buf, off, tail, v.Bytes)
		case TypeDecimal:
			payload := make([]byte, 9)
			binary.LittleEndian.PutUint64(payload, uint64(v.DecimalUnscaled))
			payload[8] = v.DecimalScale
			tail = writeVarSlot(buf, off, tail, payload)
		default:
			return nil, diagnostic.New(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed,
				"unsupported field type")
		}
	}

	return EncodedValues(append(buf, tail...)), nil
}

func writeVarSlot(buf []byte, off int, tail []byte, payload []byte) []byte {
	start := uint32(len(tail))
	binary.LittleEndian.PutUint32(buf[off:], start)
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(len(payload)))
	return append(tail, payload...)
}

// Decode reverses Encode. A field whose bitmap bit is 0 decodes to a
// Value with Undefined set.
func (l *Layout) Decode(data EncodedValues) ([]Value, error) {
	if len(data) < l.fixedLen {
		return nil, diagnostic.New(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed,
			"encoded record shorter than layout's fixed region")
	}
	tail := data[l.fixedLen:]
	out := make([]Value, len(l.Fields))

	for i, f := range l.Fields {
		out[i].Type = f.Type
		bit := data[i/8] & (1 << uint(i%8))
		if bit == 0 {
			out[i].Undefined = true
			continue
		}
		off := l.slotOffset[i]

		switch f.Type {
		case TypeBool:
			out[i].Bool = data[off] != 0
		case TypeInt8:
			out[i].Int = int64(int8(data[off]))
		case TypeInt16:
			out[i].Int = int64(int16(binary.LittleEndian.Uint16(data[off:])))
		case TypeInt32:
			out[i].Int = int64(int32(binary.LittleEndian.Uint32(data[off:])))
		case TypeDate:
			out[i].Int = int64(int32(binary.LittleEndian.Uint32(data[off:])))
		case TypeInt64, TypeTime, TypeDateTime, TypeInterval:
			out[i].Int = int64(binary.LittleEndian.Uint64(data[off:]))
		case TypeUint8:
			out[i].Uint = uint64(data[off])
		case TypeUint16:
			out[i].Uint = uint64(binary.LittleEndian.Uint16(data[off:]))
		case TypeUint32:
			out[i].Uint = uint64(binary.LittleEndian.Uint32(data[off:]))
		case TypeUint64:
			out[i].Uint = binary.LittleEndian.Uint64(data[off:])
		case TypeFloat32:
			out[i].F32 = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		case TypeFloat64:
			out[i].F64 = math.Float64frombits(binary.LittleEndian.Uint64(data[off:]))
		case TypeUuid4, TypeUuid7:
			out[i].Bytes = append([]byte(nil), data[off:off+16]...)
		case TypeUtf8:
			payload, err := readVarSlot(data, tail, off)
			if err != nil {
				return nil, err
			}
			out[i].Str = string(payload)
		case TypeBlob:
			payload, err := readVarSlot(data, tail, off)
			if err != nil {
				return nil, err
			}
			out[i].Bytes = payload
		case TypeDecimal:
			payload, err := readVarSlot(data, tail, off)
			if err != nil {
				return nil, err
			}
			if len(payload) != 9 {
				return nil, diagnostic.New(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed,
					"malformed decimal payload")
			}
			out[i].DecimalUnscaled = int64(binary.LittleEndian.Uint64(payload))
			out[i].DecimalScale = payload[8]
		default:
			return nil, diagnostic.New(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed,
				"unsupported field type")
		}
	}
	return out, nil
}

func readVarSlot(data EncodedValues, tail []byte, off int) ([]byte, error) {
	start := binary.LittleEndian.Uint32(data[off:])
	length := binary.LittleEndian.Uint32(data[off+4:])
	if uint64(start)+uint64(length) > uint64(len(tail)) {
		return nil, diagnostic.New(diagnostic.KindEncoding, diagnostic.CodeEncodingMalformed,
			"variable-length slot out of bounds")
	}
	out := make([]byte, length)
	copy(out, tail[start:start+length])
	return out, nil
}

// WithDefault returns v, or the type's zero Value when v is undefined and
// the caller explicitly asks for a default (spec section 4.1: decoding an
// undefined field only yields a zero value on request, otherwise callers
// receive Undefined).
func WithDefault(v Value) Value {
	if !v.Undefined {
		return v
	}
	zero := v
	zero.Undefined = false
	return zero
}
