package conflict

import (
	"testing"

	"github.com/reifydb/reifydb-core/internal/types"
)

func TestManagerDiscreteKeyConflict(t *testing.T) {
	reader := New()
	reader.MarkRead(types.EncodedKey("k"))

	writer := New()
	writer.MarkWrite(types.EncodedKey("k"))
	summary := NewSummary(writer.WriteKeys())

	if !reader.ConflictsWith(summary) {
		t.Fatalf("expected conflict on overlapping discrete key")
	}
}

func TestManagerNoConflictDisjointKeys(t *testing.T) {
	reader := New()
	reader.MarkRead(types.EncodedKey("a"))

	writer := New()
	writer.MarkWrite(types.EncodedKey("b"))
	summary := NewSummary(writer.WriteKeys())

	if reader.ConflictsWith(summary) {
		t.Fatalf("expected no conflict on disjoint keys")
	}
}

func TestManagerRangeConflict(t *testing.T) {
	reader := New()
	reader.MarkRange(types.EncodedKeyRange{Start: types.EncodedKey("a"), End: types.EncodedKey("m")})

	writer := New()
	writer.MarkWrite(types.EncodedKey("g"))
	summary := NewSummary(writer.WriteKeys())

	if !reader.ConflictsWith(summary) {
		t.Fatalf("expected conflict: write falls inside tracked range")
	}
}

func TestManagerRangeNoConflictOutsideRange(t *testing.T) {
	reader := New()
	reader.MarkRange(types.EncodedKeyRange{Start: types.EncodedKey("a"), End: types.EncodedKey("m")})

	writer := New()
	writer.MarkWrite(types.EncodedKey("x"))
	summary := NewSummary(writer.WriteKeys())

	if reader.ConflictsWith(summary) {
		t.Fatalf("expected no conflict: write falls outside tracked range")
	}
}
