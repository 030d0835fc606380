package cdc

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/reifydb/reifydb-core/internal/rlog"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Command is the minimal write-transaction surface a CDC processor
// needs; satisfied structurally by *txn.Command (package txn is not
// imported here to keep cdc a leaf of the transaction manager instead of
// a dependency of it).
type Command interface {
	Set(key types.EncodedKey, value types.EncodedValues) error
	Remove(key types.EncodedKey) error
	SetSingle(key types.EncodedKey, value types.EncodedValues) error
	Commit() (storage.CommitVersion, error)
	Rollback()
}

// CommandBeginner starts a new read-write transaction, matching
// *txn.Manager.BeginCommand.
type CommandBeginner interface {
	BeginCommand() (Command, error)
}

// ReadWatermarkSource reports the oracle's current read watermark, the
// upper bound a poll iteration may scan up to (spec section 4.7 step 2).
type ReadWatermarkSource interface {
	CurrentReadWatermark() storage.CommitVersion
}

// Processor handles one CdcRecord inside a fresh Command transaction;
// returning an error rolls that transaction back and the checkpoint is
// not advanced.
type Processor func(cmd Command, record storage.CdcRecord) error

// Consumer polls the CDC log and delivers records to a Processor,
// advancing a durable per-consumer checkpoint (spec section 4.7).
type Consumer struct {
	ID           ToConsumerKey
	single       storage.SingleTable
	cdc          storage.CdcTable
	beginner     CommandBeginner
	watermark    ReadWatermarkSource
	process      Processor
	pollInterval time.Duration
	stop         chan struct{}
	log          zerolog.Logger
}

// NewConsumer registers a consumer. pollInterval bounds how long Run
// sleeps between empty polls (spec section 5 "CDC consumers suspend on
// an empty scan (bounded polling interval)").
func NewConsumer(id ToConsumerKey, single storage.SingleTable, cdcTable storage.CdcTable, beginner CommandBeginner, watermark ReadWatermarkSource, process Processor, pollInterval time.Duration) *Consumer {
	return &Consumer{
		ID:           id,
		single:       single,
		cdc:          cdcTable,
		beginner:     beginner,
		watermark:    watermark,
		process:      process,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
		log:          rlog.WithComponent("cdc.consumer"),
	}
}

// PollOnce runs one iteration of the poll protocol (spec section 4.7
// steps 1-3) and returns the number of records processed.
func (c *Consumer) PollOnce() (int, error) {
	checkpoint, err := FetchCheckpoint(c.single, c.ID)
	if err != nil {
		return 0, err
	}

	records, err := c.cdc.Range(checkpoint, c.watermark.CurrentReadWatermark())
	if err != nil {
		return 0, err
	}

	for _, record := range records {
		cmd, err := c.beginner.BeginCommand()
		if err != nil {
			return 0, err
		}
		if err := c.process(cmd, record); err != nil {
			cmd.Rollback()
			return 0, err
		}

		// Persist the checkpoint as part of the same command as the
		// record's processing (spec section 4.7 step 3: "persist the
		// record's version as the new checkpoint in the same
		// transaction"). storage.Backend.CommitTransaction applies
		// multiDeltas and singleDeltas atomically, so a crash between
		// processing and checkpointing can no longer happen: either
		// both land, or neither does, and the record is reprocessed
		// from the still-unadvanced checkpoint.
		delta := PersistCheckpoint(c.ID, record.Version)
		if err := cmd.SetSingle(delta.Key, delta.Value); err != nil {
			cmd.Rollback()
			return 0, err
		}

		if _, err := cmd.Commit(); err != nil {
			return 0, err
		}
	}

	return len(records), nil
}

// Run polls until ctx is cancelled or Stop is called, sleeping
// pollInterval between empty polls and looping immediately while records
// remain (spec section 4.7 step 4).
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stop:
			return nil
		default:
		}

		n, err := c.PollOnce()
		if err != nil {
			c.log.Warn().Err(err).Msg("CDC poll iteration failed")
		}
		if n > 0 {
			continue // more records may be waiting; loop immediately
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop signals Run to return within one poll interval (spec section 5).
func (c *Consumer) Stop() {
	close(c.stop)
}
