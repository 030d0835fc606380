// Package txn implements the transaction manager of spec section 4.5:
// read-only Query and read-write Command, sharing the oracle and
// conflict-manager primitives of internal/oracle and internal/conflict,
// in optimistic or serializable flavor per config.IsolationLevel.
package txn

import (
	"github.com/rs/zerolog"

	"github.com/reifydb/reifydb-core/internal/cdc"
	"github.com/reifydb/reifydb-core/internal/conflict"
	"github.com/reifydb/reifydb-core/internal/config"
	"github.com/reifydb/reifydb-core/internal/oracle"
	"github.com/reifydb/reifydb-core/internal/rlog"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/txn/interceptor"
	"github.com/reifydb/reifydb-core/internal/types"
)

// Manager begins Query and Command transactions against one Backend,
// coordinated through one Oracle (spec section 9: "process-wide state
// with init/teardown at database open/close").
type Manager struct {
	backend     storage.Backend
	oracle      *oracle.Oracle
	isolation   config.IsolationLevel
	trackRanges bool
	interceptors *interceptor.Chain
	log         zerolog.Logger
}

// New returns a Manager bound to backend and oracle, running at the
// given isolation level.
func New(backend storage.Backend, o *oracle.Oracle, isolation config.IsolationLevel) *Manager {
	return &Manager{
		backend:      backend,
		oracle:       o,
		isolation:    isolation,
		trackRanges:  isolation == config.IsolationSerializable,
		interceptors: interceptor.New(),
		log:          rlog.WithComponent("txn"),
	}
}

// Interceptors returns the post-commit hook chain, for callers (the
// catalog cache, CDC external delivery) to register hooks before the
// manager begins serving transactions (spec section 9).
func (m *Manager) Interceptors() *interceptor.Chain {
	return m.interceptors
}

// BeginQuery starts a read-only transaction at the current read
// watermark (spec section 4.5 begin_query).
func (m *Manager) BeginQuery() (*Query, error) {
	readTs, err := m.oracle.BeginReadTimestamp()
	if err != nil {
		return nil, err
	}
	return &Query{manager: m, readTs: readTs}, nil
}

// BeginCommand starts a read-write transaction with a write buffer and
// conflict manager (spec section 4.5 begin_command).
func (m *Manager) BeginCommand() (*Command, error) {
	readTs, err := m.oracle.BeginReadTimestamp()
	if err != nil {
		return nil, err
	}
	return &Command{
		manager:      m,
		readTs:       readTs,
		txnID:        storage.NewTransactionID(),
		conflicts:    conflict.New(),
		buffer:       make(map[string]*bufferedWrite),
		singleWrites: make(map[string]types.EncodedValues),
	}, nil
}

// commandBeginnerAdapter makes *Manager satisfy cdc.CommandBeginner,
// whose BeginCommand must return the cdc.Command interface rather than
// the concrete *Command type.
type commandBeginnerAdapter struct{ m *Manager }

func (a commandBeginnerAdapter) BeginCommand() (cdc.Command, error) {
	return a.m.BeginCommand()
}

// AsCommandBeginner adapts m to cdc.CommandBeginner, for wiring a
// cdc.Consumer to run its processor inside Command transactions.
func (m *Manager) AsCommandBeginner() cdc.CommandBeginner {
	return commandBeginnerAdapter{m: m}
}

// readWatermarkSourceAdapter makes *oracle.Oracle satisfy
// cdc.ReadWatermarkSource.
type readWatermarkSourceAdapter struct{ o *oracle.Oracle }

func (a readWatermarkSourceAdapter) CurrentReadWatermark() storage.CommitVersion {
	return a.o.ReadWatermark.DoneUntil()
}

// AsReadWatermarkSource adapts m's oracle to cdc.ReadWatermarkSource.
func (m *Manager) AsReadWatermarkSource() cdc.ReadWatermarkSource {
	return readWatermarkSourceAdapter{o: m.oracle}
}
