// Keycode encoding: turns a logical tuple of values into bytes whose
// lexicographic order matches the tuple's natural order, per spec
// section 4.1. Signed integers are bias-shifted (XOR the sign bit after
// widening to unsigned) so two's-complement ordering becomes big-endian
// byte-lex ordering.
package types

import "encoding/binary"

// EncodeKeycodeInt64 encodes a signed 64-bit integer so that byte-lex
// order matches numeric order.
func EncodeKeycodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v)^(1<<63))
	return b
}

func DecodeKeycodeInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}

// EncodeKeycodeUint64 encodes an unsigned 64-bit integer big-endian,
// which is already order-preserving.
func EncodeKeycodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func DecodeKeycodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// EncodeKeycodeString encodes a UTF-8 string as its raw bytes terminated
// by a 0x00 sentinel, so that a shorter string sorts before any string it
// is a strict prefix of. Embedded 0x00 bytes are escaped as 0x00 0xFF to
// preserve the sentinel's meaning.
func EncodeKeycodeString(s string) []byte {
	out := make([]byte, 0, len(s)+1)
	for i := 0; i < len(s); i++ {
		if s[i] == 0x00 {
			out = append(out, 0x00, 0xFF)
		} else {
			out = append(out, s[i])
		}
	}
	return append(out, 0x00)
}

// EncodeKeycodeTuple concatenates the keycode encoding of each component,
// preceded by the category tag byte. Concatenation of order-preserving
// encodings is itself order-preserving as long as no component's
// encoding is a byte-prefix of another's at the same position, which the
// 0x00 sentinel on strings and the fixed width of integers both guarantee.
func EncodeKeycodeTuple(tag Tag, parts ...[]byte) EncodedKey {
	total := 1
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	out = append(out, byte(tag))
	for _, p := range parts {
		out = append(out, p...)
	}
	return EncodedKey(out)
}
