// Package rlog provides the global structured logger used across the
// storage, oracle, transaction, CDC, and flow subsystems.
//
// What: a single zerolog.Logger plus component-scoped child loggers.
// How: Init configures a console or JSON writer once at process start;
// everything downstream calls With* to attach component/id fields.
// Why: every subsystem logs the same way tinySQL-adjacent services in the
// corpus do (cuemby-warren/pkg/log), so operators see one coherent stream.
package rlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it; until Init is
// called it defaults to a console writer on stderr at info level.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// Level is the accepted set of configuration log levels.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init installs the global logger per Config. Safe to call once at
// startup; not safe for concurrent use with logging calls.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with the given component
// name (e.g. "oracle", "cdc.producer", "flow.runtime").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTxn returns a child logger tagged with a transaction id.
func WithTxn(logger zerolog.Logger, txnID string) zerolog.Logger {
	return logger.With().Str("txn_id", txnID).Logger()
}

// WithVersion returns a child logger tagged with a commit version.
func WithVersion(logger zerolog.Logger, version uint64) zerolog.Logger {
	return logger.With().Uint64("commit_version", version).Logger()
}

// WithConsumer returns a child logger tagged with a CDC consumer id.
func WithConsumer(logger zerolog.Logger, consumerID string) zerolog.Logger {
	return logger.With().Str("consumer_id", consumerID).Logger()
}

// WithFlow returns a child logger tagged with a flow id.
func WithFlow(logger zerolog.Logger, flowID string) zerolog.Logger {
	return logger.With().Str("flow_id", flowID).Logger()
}
