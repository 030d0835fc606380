package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb-core/internal/types"
)

func enc(s string) types.EncodedValues { return types.EncodedValues(s) }
func key(s string) types.EncodedKey    { return types.EncodedKey(s) }

func TestMemoryMultiVisibilityAcrossVersions(t *testing.T) {
	b := NewMemoryBackend()
	multi := b.Multi()

	require.NoError(t, multi.Commit([]Delta{{Key: key("k"), Kind: DeltaInsert, Value: enc("1")}}, 1, NewTransactionID()))
	require.NoError(t, multi.Commit([]Delta{{Key: key("k"), Kind: DeltaUpdate, Value: enc("2")}}, 2, NewTransactionID()))

	v1, ok, err := multi.Get(key("k"), 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v1.Value))

	v2, ok, err := multi.Get(key("k"), 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", string(v2.Value))

	// reads at a version between commits see the older value (S1).
	vBetween, ok, err := multi.Get(key("k"), 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(vBetween.Value))
}

func TestMemoryMultiTombstone(t *testing.T) {
	b := NewMemoryBackend()
	multi := b.Multi()
	require.NoError(t, multi.Commit([]Delta{{Key: key("k"), Kind: DeltaInsert, Value: enc("1")}}, 1, NewTransactionID()))
	require.NoError(t, multi.Commit([]Delta{{Key: key("k"), Kind: DeltaDelete}}, 2, NewTransactionID()))

	_, ok, err := multi.Get(key("k"), 2)
	require.NoError(t, err)
	require.False(t, ok, "expected tombstone to hide value at version 2")

	v1, ok, err := multi.Get(key("k"), 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v1.Value), "a later tombstone must not hide an earlier read version")
}

func TestMemoryMultiRangeOrdering(t *testing.T) {
	b := NewMemoryBackend()
	multi := b.Multi()
	for _, k := range []string{"b", "a", "c"} {
		require.NoError(t, multi.Commit([]Delta{{Key: key(k), Kind: DeltaInsert, Value: enc(k)}}, 1, NewTransactionID()))
	}
	it, err := multi.Range(types.EncodedKeyRange{Start: key("a"), End: key("z")}, 1)
	require.NoError(t, err)
	items := it.Collect()
	require.Len(t, items, 3)
	want := []string{"a", "b", "c"}
	for i, item := range items {
		assertKeyEquals(t, want[i], item.Key)
	}
}

func assertKeyEquals(t *testing.T, want string, got types.EncodedKey) {
	t.Helper()
	require.Equal(t, want, string(got))
}

func TestMemoryCdcOrderingAndReclaim(t *testing.T) {
	b := NewMemoryBackend()
	cdc := b.Cdc()
	for v := CommitVersion(1); v <= 3; v++ {
		require.NoError(t, cdc.Append(CdcRecord{Version: v}))
	}
	recs, err := cdc.Range(0, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	require.NoError(t, cdc.ReclaimBefore(3))

	recs, err = cdc.Scan()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, CommitVersion(3), recs[0].Version)
}

func TestMemorySingleLastWriterWins(t *testing.T) {
	b := NewMemoryBackend()
	single := b.Single()
	require.NoError(t, single.Commit([]Delta{{Key: key("checkpoint"), Kind: DeltaInsert, Value: enc("1")}}))
	require.NoError(t, single.Commit([]Delta{{Key: key("checkpoint"), Kind: DeltaUpdate, Value: enc("2")}}))

	v, ok, err := single.Get(key("checkpoint"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", string(v))
}
