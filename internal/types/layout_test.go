package types

import (
	"bytes"
	"testing"
)

func sampleLayout() *Layout {
	return NewLayout([]Field{
		{Name: "id", Type: TypeUint64},
		{Name: "name", Type: TypeUtf8},
		{Name: "active", Type: TypeBool},
		{Name: "score", Type: TypeFloat64},
		{Name: "note", Type: TypeBlob},
		{Name: "price", Type: TypeDecimal, Scale: 2},
	})
}

func TestLayoutRoundTrip(t *testing.T) {
	l := sampleLayout()
	values := []Value{
		{Type: TypeUint64, Uint: 42},
		{Type: TypeUtf8, Str: "hello world"},
		{Type: TypeBool, Bool: true},
		{Type: TypeFloat64, F64: 3.25},
		{Type: TypeBlob, Bytes: []byte{1, 2, 3, 4}},
		{Type: TypeDecimal, DecimalUnscaled: 12345, DecimalScale: 2},
	}

	encoded, err := l.Encode(values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := l.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded[0].Uint != 42 {
		t.Errorf("id = %d, want 42", decoded[0].Uint)
	}
	if decoded[1].Str != "hello world" {
		t.Errorf("name = %q", decoded[1].Str)
	}
	if !decoded[2].Bool {
		t.Errorf("active = false, want true")
	}
	if decoded[3].F64 != 3.25 {
		t.Errorf("score = %v", decoded[3].F64)
	}
	if !bytes.Equal(decoded[4].Bytes, []byte{1, 2, 3, 4}) {
		t.Errorf("note = %v", decoded[4].Bytes)
	}
	if decoded[5].DecimalUnscaled != 12345 || decoded[5].DecimalScale != 2 {
		t.Errorf("price = %d/%d", decoded[5].DecimalUnscaled, decoded[5].DecimalScale)
	}

	reEncoded, err := l.Encode(decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(encoded, reEncoded) {
		t.Errorf("encode(decode(bytes)) != bytes")
	}
}

func TestLayoutUndefinedField(t *testing.T) {
	l := sampleLayout()
	values := []Value{
		{Type: TypeUint64, Uint: 1},
		{Type: TypeUtf8, Undefined: true},
		{Type: TypeBool, Bool: false},
		{Type: TypeFloat64, F64: 0},
		{Type: TypeBlob, Undefined: true},
		{Type: TypeDecimal, Undefined: true},
	}
	encoded, err := l.Encode(values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := l.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded[1].Undefined {
		t.Errorf("name should be undefined")
	}
	if !decoded[4].Undefined {
		t.Errorf("note should be undefined")
	}
	def := WithDefault(decoded[1])
	if def.Str != "" {
		t.Errorf("default for undefined utf8 should be empty string")
	}
}

func TestEncodeKeycodeInt64Order(t *testing.T) {
	values := []int64{-100, -1, 0, 1, 100}
	var prev []byte
	for _, v := range values {
		enc := EncodeKeycodeInt64(v)
		if prev != nil && bytes.Compare(prev, enc) >= 0 {
			t.Fatalf("keycode order violated at %d", v)
		}
		prev = enc
		if got := DecodeKeycodeInt64(enc); got != v {
			t.Errorf("round trip %d -> %d", v, got)
		}
	}
}

func TestEncodedKeyRangeOverlaps(t *testing.T) {
	r1 := EncodedKeyRange{Start: EncodedKey("a"), End: EncodedKey("m")}
	r2 := EncodedKeyRange{Start: EncodedKey("g"), End: EncodedKey("g\x00")}
	if !r1.Overlaps(r2) {
		t.Errorf("expected overlap")
	}
	r3 := EncodedKeyRange{Start: EncodedKey("m"), End: EncodedKey("z")}
	if r1.Overlaps(r3) {
		t.Errorf("expected no overlap for adjacent half-open ranges")
	}
}
