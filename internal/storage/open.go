package storage

import (
	"fmt"

	"github.com/reifydb/reifydb-core/internal/config"
)

// Open returns the Backend selected by cfg.Storage.Backend.
func Open(cfg config.Config) (Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory, "":
		return NewMemoryBackend(), nil
	case config.BackendEmbeddedFile:
		return OpenBboltBackend(cfg.Storage.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
