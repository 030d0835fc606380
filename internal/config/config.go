// Package config holds the recognized configuration options of spec
// section 6, loaded from YAML (grounded on tinySQL's yaml.v3 usage in
// internal/testhelper) with documented defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageBackendKind selects the storage engine.
type StorageBackendKind string

const (
	BackendMemory       StorageBackendKind = "memory"
	BackendEmbeddedFile StorageBackendKind = "embedded-file"
)

// IsolationLevel selects the transaction manager flavor.
type IsolationLevel string

const (
	IsolationOptimistic   IsolationLevel = "optimistic"
	IsolationSerializable IsolationLevel = "serializable"
)

// CleanupMode controls how a retention policy reclaims entries.
type CleanupMode string

const (
	CleanupDelete CleanupMode = "delete"
	CleanupDrop   CleanupMode = "drop"
)

// RetentionPolicy is the per-source retention rule of spec section 6.
type RetentionPolicy struct {
	// Kind is one of "keep-forever", "keep-versions", "keep-duration".
	Kind        string        `yaml:"kind"`
	Versions    uint64        `yaml:"versions,omitempty"`
	Duration    time.Duration `yaml:"duration,omitempty"`
	CleanupMode CleanupMode   `yaml:"cleanup_mode"`
}

// KeepForever reports a policy that never reclaims entries.
func KeepForever() RetentionPolicy {
	return RetentionPolicy{Kind: "keep-forever", CleanupMode: CleanupDelete}
}

// Config is the top-level recognized configuration for the core.
type Config struct {
	Storage struct {
		Backend StorageBackendKind `yaml:"backend"`
		Path    string             `yaml:"path"`
	} `yaml:"storage"`

	Isolation IsolationLevel `yaml:"isolation"`

	Retention struct {
		Default RetentionPolicy            `yaml:"default"`
		PerSource map[string]RetentionPolicy `yaml:"per_source"`
	} `yaml:"retention"`

	Oracle struct {
		WindowSize              int    `yaml:"window_size"`
		MaxWaiters              int    `yaml:"max_waiters"`
		MaxPending              int    `yaml:"max_pending"`
		OldVersionThreshold     uint64 `yaml:"old_version_threshold"`
		PendingCleanupThreshold uint64 `yaml:"pending_cleanup_threshold"`
	} `yaml:"oracle"`

	CDC struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		DrainTimeout time.Duration `yaml:"drain_timeout"`
	} `yaml:"cdc"`

	Flow struct {
		WorkerNamePrefix string `yaml:"worker_name_prefix"`
		WorkerPoolSize   int    `yaml:"worker_pool_size"`
	} `yaml:"flow"`
}

// DefaultConfig returns the documented defaults. Numeric bounds mirror
// the oracle/watermark constants of spec section 4.4/6/9.
func DefaultConfig() Config {
	var c Config
	c.Storage.Backend = BackendMemory
	c.Storage.Path = "./reifydb-data"
	c.Isolation = IsolationSerializable
	c.Retention.Default = KeepForever()
	c.Retention.PerSource = map[string]RetentionPolicy{}
	c.Oracle.WindowSize = 4096
	c.Oracle.MaxWaiters = 10000
	c.Oracle.MaxPending = 100000
	c.Oracle.OldVersionThreshold = 1000
	c.Oracle.PendingCleanupThreshold = 1000
	c.CDC.PollInterval = 200 * time.Millisecond
	c.CDC.DrainTimeout = 5 * time.Second
	c.Flow.WorkerNamePrefix = "reifydb-flow-"
	c.Flow.WorkerPoolSize = 4
	return c
}

// Load reads a YAML configuration file, applying it on top of
// DefaultConfig so unset fields keep their documented defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
