// Package types implements the encoded values and keys of spec section
// 4.1: a fixed per-schema binary record layout plus a lexicographically
// ordered key encoding ("keycode").
//
// What: EncodedKey is an opaque, totally ordered byte string; a leading
// tag byte discriminates the key category (row, operator state, sequence,
// catalog entity, retention policy, CDC cursor, system version, ...).
// How: byte-lex order on the raw slice already gives the desired order
// for big-endian integers; signed integers are bias-shifted so their
// byte-lex order matches numeric order.
// Why: the storage backend never needs to know what a key "means" — it
// only compares bytes — which keeps multi/single/cdc generic.
package types

import "bytes"

// EncodedKey is an opaque, lexicographically ordered byte sequence.
type EncodedKey []byte

// Compare orders two keys by byte-lex, matching storage backend iteration
// order.
func (k EncodedKey) Compare(other EncodedKey) int {
	return bytes.Compare(k, other)
}

func (k EncodedKey) Equal(other EncodedKey) bool {
	return bytes.Equal(k, other)
}

func (k EncodedKey) Clone() EncodedKey {
	out := make(EncodedKey, len(k))
	copy(out, k)
	return out
}

// EncodedKeyRange is a half-open [Start, End) byte range used by range
// scans across multi, single, and the reverse indexes the flow runtime
// keeps. An empty End means "open ended".
type EncodedKeyRange struct {
	Start EncodedKey
	End   EncodedKey
}

// Contains reports whether key falls in [Start, End).
func (r EncodedKeyRange) Contains(key EncodedKey) bool {
	if r.Start != nil && bytes.Compare(key, r.Start) < 0 {
		return false
	}
	if r.End != nil && bytes.Compare(key, r.End) >= 0 {
		return false
	}
	return true
}

// Overlaps reports whether two half-open ranges intersect; used by the
// conflict manager to test a committed write against a tracked range read.
func (r EncodedKeyRange) Overlaps(other EncodedKeyRange) bool {
	if r.End != nil && other.Start != nil && bytes.Compare(r.End, other.Start) <= 0 {
		return false
	}
	if other.End != nil && r.Start != nil && bytes.Compare(other.End, r.Start) <= 0 {
		return false
	}
	return true
}

// KeyRangeContainingKey builds the tightest range that a single discrete
// key read can be checked against.
func KeyRangeContainingKey(key EncodedKey) EncodedKeyRange {
	end := make(EncodedKey, len(key)+1)
	copy(end, key)
	end[len(key)] = 0x00
	return EncodedKeyRange{Start: key, End: end}
}

// Tag is the single leading byte discriminating a key category, per
// spec section 6's "wire-stable" tag discriminators.
type Tag byte

const (
	TagSourceRow        Tag = 0x01
	TagOperatorState    Tag = 0x02
	TagSequenceCounter  Tag = 0x03
	TagCatalogEntity    Tag = 0x04
	TagRetentionPolicy  Tag = 0x05
	TagCdcConsumerCursor Tag = 0x06
	TagSystemVersion    Tag = 0x07
	TagFlowNode         Tag = 0x08
	TagFlowEdge         Tag = 0x09
	TagReverseSourceIdx Tag = 0x0A
)

// SystemVersionKey is the single well-known key recording the on-disk
// storage format version (spec section 6).
func SystemVersionKey() EncodedKey {
	return EncodedKey{byte(TagSystemVersion)}
}

// CatalogEntityKey builds the row key for a catalog entity (table, view,
// ring buffer, or other schema object), keyed by an opaque id assigned by
// whatever DDL layer creates it (spec section 4.10; DDL itself is out of
// scope here).
func CatalogEntityKey(entityID uint64) EncodedKey {
	buf := make([]byte, 0, 9)
	buf = append(buf, byte(TagCatalogEntity))
	buf = appendUint64BE(buf, entityID)
	return EncodedKey(buf)
}

// CatalogEntityPrefix returns the half-open range covering every catalog
// entity row, used to populate the materialized catalog cache on
// startup with a single prefix scan (spec section 9 design note).
func CatalogEntityPrefix() EncodedKeyRange {
	return EncodedKeyRange{Start: EncodedKey{byte(TagCatalogEntity)}, End: EncodedKey{byte(TagCatalogEntity) + 1}}
}

// DecodeCatalogEntityKey extracts the entity id from a key built by
// CatalogEntityKey, reporting false if key is not a catalog entity key.
func DecodeCatalogEntityKey(key EncodedKey) (uint64, bool) {
	if len(key) != 9 || key[0] != byte(TagCatalogEntity) {
		return 0, false
	}
	var v uint64
	for _, b := range key[1:] {
		v = (v << 8) | uint64(b)
	}
	return v, true
}

// CdcConsumerKey builds the single-version-side key holding a consumer's
// durable checkpoint (spec section 4.7/6).
func CdcConsumerKey(consumerID string) EncodedKey {
	buf := make([]byte, 0, 1+len(consumerID))
	buf = append(buf, byte(TagCdcConsumerCursor))
	buf = append(buf, []byte(consumerID)...)
	return EncodedKey(buf)
}

// CdcConsumerPrefix returns the half-open range covering every consumer
// checkpoint, letting the retention sweeper enumerate all consumers to
// compute the global CDC watermark (spec section 4.7: "a global CDC
// watermark is min of all consumers' checkpoints").
func CdcConsumerPrefix() EncodedKeyRange {
	return EncodedKeyRange{Start: EncodedKey{byte(TagCdcConsumerCursor)}, End: EncodedKey{byte(TagCdcConsumerCursor) + 1}}
}

// SourceRowKey builds a row key for a source (table/view/ring-buffer)
// identified by sourceID, with the row's own encoded primary-key bytes
// appended so rows of the same source sort together.
func SourceRowKey(sourceID uint64, rowKey []byte) EncodedKey {
	buf := make([]byte, 0, 9+len(rowKey))
	buf = append(buf, byte(TagSourceRow))
	buf = appendUint64BE(buf, sourceID)
	buf = append(buf, rowKey...)
	return EncodedKey(buf)
}

// SourceRowPrefix returns the half-open range covering every row of a
// single source, used by TableScan-style full scans and by retention.
func SourceRowPrefix(sourceID uint64) EncodedKeyRange {
	start := append([]byte{byte(TagSourceRow)}, uint64BE(sourceID)...)
	end := append([]byte{byte(TagSourceRow)}, uint64BE(sourceID+1)...)
	return EncodedKeyRange{Start: EncodedKey(start), End: EncodedKey(end)}
}

// DecodeSourceRowKey splits a key built by SourceRowKey back into its
// source id and row-key bytes, reporting false if key is not a source
// row key.
func DecodeSourceRowKey(key EncodedKey) (sourceID uint64, rowKey []byte, ok bool) {
	if len(key) < 9 || key[0] != byte(TagSourceRow) {
		return 0, nil, false
	}
	var v uint64
	for _, b := range key[1:9] {
		v = (v << 8) | uint64(b)
	}
	return v, key[9:], true
}

// OperatorStateKey builds a key under a flow node's private state
// namespace (spec invariant I5: owned exclusively by that node).
func OperatorStateKey(flowID uint64, nodeID uint64, stateKey []byte) EncodedKey {
	buf := make([]byte, 0, 17+len(stateKey))
	buf = append(buf, byte(TagOperatorState))
	buf = appendUint64BE(buf, flowID)
	buf = appendUint64BE(buf, nodeID)
	buf = append(buf, stateKey...)
	return EncodedKey(buf)
}

// OperatorStatePrefix returns the half-open range covering all state for
// one flow node.
func OperatorStatePrefix(flowID, nodeID uint64) EncodedKeyRange {
	prefix := append([]byte{byte(TagOperatorState)}, uint64BE(flowID)...)
	prefix = append(prefix, uint64BE(nodeID)...)
	end := make([]byte, len(prefix))
	copy(end, prefix)
	end = incrementBytes(end)
	return EncodedKeyRange{Start: EncodedKey(prefix), End: EncodedKey(end)}
}

// FlowNodeKey and FlowEdgeKey encode flow-graph rows per spec section
// 4.8/6: key encodes (flow-id, node-or-edge-id).
func FlowNodeKey(flowID, nodeID uint64) EncodedKey {
	buf := make([]byte, 0, 17)
	buf = append(buf, byte(TagFlowNode))
	buf = appendUint64BE(buf, flowID)
	buf = appendUint64BE(buf, nodeID)
	return EncodedKey(buf)
}

func FlowEdgeKey(flowID, edgeID uint64) EncodedKey {
	buf := make([]byte, 0, 17)
	buf = append(buf, byte(TagFlowEdge))
	buf = appendUint64BE(buf, flowID)
	buf = appendUint64BE(buf, edgeID)
	return EncodedKey(buf)
}

// FlowPrefix returns the half-open range covering every node or edge row
// of one flow, used to reconstruct the DAG with a single prefix scan on
// startup (design note in spec section 9).
func FlowNodePrefix(flowID uint64) EncodedKeyRange {
	start := append([]byte{byte(TagFlowNode)}, uint64BE(flowID)...)
	end := append([]byte{byte(TagFlowNode)}, uint64BE(flowID+1)...)
	return EncodedKeyRange{Start: EncodedKey(start), End: EncodedKey(end)}
}

func FlowEdgePrefix(flowID uint64) EncodedKeyRange {
	start := append([]byte{byte(TagFlowEdge)}, uint64BE(flowID)...)
	end := append([]byte{byte(TagFlowEdge)}, uint64BE(flowID+1)...)
	return EncodedKeyRange{Start: EncodedKey(start), End: EncodedKey(end)}
}

// ReverseSourceIndexKey maps a source id to a flow id that consumes it,
// so the flow runtime can answer "which flows does this CDC change
// affect" in O(1) per changed source (spec section 4.9 step 1).
func ReverseSourceIndexKey(sourceID, flowID uint64) EncodedKey {
	buf := make([]byte, 0, 17)
	buf = append(buf, byte(TagReverseSourceIdx))
	buf = appendUint64BE(buf, sourceID)
	buf = appendUint64BE(buf, flowID)
	return EncodedKey(buf)
}

func ReverseSourceIndexPrefix(sourceID uint64) EncodedKeyRange {
	start := append([]byte{byte(TagReverseSourceIdx)}, uint64BE(sourceID)...)
	end := append([]byte{byte(TagReverseSourceIdx)}, uint64BE(sourceID+1)...)
	return EncodedKeyRange{Start: EncodedKey(start), End: EncodedKey(end)}
}

// DecodeReverseSourceIndexKey splits a key built by
// ReverseSourceIndexKey back into its source and flow ids.
func DecodeReverseSourceIndexKey(key EncodedKey) (sourceID uint64, flowID uint64, ok bool) {
	if len(key) != 17 || key[0] != byte(TagReverseSourceIdx) {
		return 0, 0, false
	}
	var s, f uint64
	for _, b := range key[1:9] {
		s = (s << 8) | uint64(b)
	}
	for _, b := range key[9:17] {
		f = (f << 8) | uint64(b)
	}
	return s, f, true
}

func uint64BE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func appendUint64BE(buf []byte, v uint64) []byte {
	return append(buf, uint64BE(v)...)
}

// incrementBytes returns the lexicographically next byte string of the
// same "prefix family", used to build an exclusive upper bound from a
// prefix. Callers only use this on fixed-width prefixes so overflow (all
// 0xFF) is not a concern in practice.
func incrementBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	return out
}
