// Package interceptor implements the post-commit hook chain of spec
// section 9 ("a simple list of pluggable hooks invoked after a
// successful commit in registration order; each hook may touch the
// catalog cache or enqueue CDC records for external delivery"),
// grounded on the original Rust source's crates/transaction/src/interceptor.
package interceptor

import (
	"github.com/rs/zerolog"

	"github.com/reifydb/reifydb-core/internal/rlog"
	"github.com/reifydb/reifydb-core/internal/storage"
)

// Hook is invoked once per successful commit, after deltas and the CDC
// record are durable. A Hook failing does not un-commit the transaction
// (spec section 7): its error is logged and surfaced as a secondary
// error, never rolled back.
type Hook interface {
	Name() string
	AfterCommit(version storage.CommitVersion, deltas []storage.Delta, record storage.CdcRecord) error
}

// HookFunc adapts a plain function to Hook.
type HookFunc struct {
	HookName string
	Fn       func(version storage.CommitVersion, deltas []storage.Delta, record storage.CdcRecord) error
}

func (f HookFunc) Name() string { return f.HookName }
func (f HookFunc) AfterCommit(version storage.CommitVersion, deltas []storage.Delta, record storage.CdcRecord) error {
	return f.Fn(version, deltas, record)
}

// Chain runs registered hooks in registration order, collecting but not
// propagating failures as commit-aborting errors.
type Chain struct {
	hooks []Hook
	log   zerolog.Logger
}

// New returns an empty Chain.
func New() *Chain {
	return &Chain{log: rlog.WithComponent("txn.interceptor")}
}

// Register appends h to the chain.
func (c *Chain) Register(h Hook) {
	c.hooks = append(c.hooks, h)
}

// SecondaryError is returned by Run when one or more hooks failed; the
// commit itself already succeeded (spec section 7).
type SecondaryError struct {
	Failures map[string]error
}

func (e *SecondaryError) Error() string {
	msg := "post-commit interceptor failures: "
	first := true
	for name, err := range e.Failures {
		if !first {
			msg += "; "
		}
		first = false
		msg += name + ": " + err.Error()
	}
	return msg
}

// Run invokes every registered hook in order. It always runs every hook
// (one hook's failure does not skip the rest) and returns a
// *SecondaryError describing any failures, or nil if all succeeded.
func (c *Chain) Run(version storage.CommitVersion, deltas []storage.Delta, record storage.CdcRecord) error {
	var failures map[string]error
	for _, h := range c.hooks {
		if err := h.AfterCommit(version, deltas, record); err != nil {
			c.log.Error().Err(err).Str("hook", h.Name()).Uint64("commit_version", uint64(version)).
				Msg("post-commit interceptor failed")
			if failures == nil {
				failures = make(map[string]error)
			}
			failures[h.Name()] = err
		}
	}
	if failures != nil {
		return &SecondaryError{Failures: failures}
	}
	return nil
}
