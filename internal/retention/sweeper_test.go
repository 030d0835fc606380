package retention_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb-core/internal/cdc"
	"github.com/reifydb/reifydb-core/internal/config"
	"github.com/reifydb/reifydb-core/internal/oracle"
	"github.com/reifydb/reifydb-core/internal/retention"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/txn"
	"github.com/reifydb/reifydb-core/internal/types"
)

type doneAt storage.CommitVersion

func (d doneAt) DoneUntil() storage.CommitVersion { return storage.CommitVersion(d) }

func TestGlobalCdcWatermarkNoConsumers(t *testing.T) {
	backend := storage.NewMemoryBackend()
	got, err := retention.GlobalCdcWatermark(backend.Single())
	require.NoError(t, err)
	require.Equal(t, storage.CommitVersion(0), got, "watermark with no registered consumers")
}

func TestGlobalCdcWatermarkIsMinimumOfConsumers(t *testing.T) {
	backend := storage.NewMemoryBackend()
	single := backend.Single()

	require.NoError(t, single.Commit([]storage.Delta{
		cdc.PersistCheckpoint(cdc.ConsumerID("fast"), 10),
		cdc.PersistCheckpoint(cdc.ConsumerID("slow"), 3),
	}))

	got, err := retention.GlobalCdcWatermark(single)
	require.NoError(t, err)
	require.Equal(t, storage.CommitVersion(3), got, "global watermark is the slowest consumer's checkpoint")
}

// TestSweepReclaimsOnlyBelowWatermark mirrors spec section 5's
// reclamation rule: entries strictly older than
// min(cdc_watermark, done_watermark) are reclaimed, subject to the
// source's policy.
func TestSweepReclaimsOnlyBelowWatermark(t *testing.T) {
	backend := storage.NewMemoryBackend()
	o := oracle.New(oracle.Config{WindowSize: 64, MaxWaiters: 64, MaxPending: 64})
	manager := txn.New(backend, o, config.IsolationOptimistic)

	const sourceID uint64 = 7
	key := types.SourceRowKey(sourceID, []byte("row"))

	commit := func(value string) storage.CommitVersion {
		cmd, err := manager.BeginCommand()
		require.NoError(t, err)
		require.NoError(t, cmd.Set(key, types.EncodedValues(value)))
		v, err := cmd.Commit()
		require.NoError(t, err)
		return v
	}

	commit("v1")
	commit("v2")
	v3 := commit("v3")

	require.NoError(t, backend.Single().Commit([]storage.Delta{
		cdc.PersistCheckpoint(cdc.ConsumerID("only"), v3),
	}))

	sweeper, err := retention.New(backend.Multi(), backend.Cdc(), backend.Single(), doneAt(v3),
		func() []retention.SourceID { return []retention.SourceID{sourceID} },
		func(retention.SourceID) config.RetentionPolicy {
			return config.RetentionPolicy{Kind: "keep-versions", Versions: 1, CleanupMode: config.CleanupDelete}
		},
		"@every 1h")
	require.NoError(t, err)
	require.NoError(t, sweeper.SweepOnce(time.Now()))
}
