// Package catalog implements the materialized catalog cache of spec
// section 4.10: a concurrent in-memory map from entity id to its latest
// committed definition plus a bounded history of recent versions,
// populated by a startup scan and kept current by a post-commit
// interceptor. Grounded on tinySQL's internal/storage catalog.go
// (in-memory schema cache rebuilt from committed rows), generalized
// from SQL table/column metadata to an opaque per-entity definition blob
// since DDL parsing itself is out of scope here (spec section 1).
package catalog

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/reifydb/reifydb-core/internal/rlog"
	"github.com/reifydb/reifydb-core/internal/storage"
	"github.com/reifydb/reifydb-core/internal/txn/interceptor"
	"github.com/reifydb/reifydb-core/internal/types"
)

// DefaultHistoryLimit bounds how many past versions of one entity the
// cache retains in memory, per spec section 4.10's "history of recent
// versions".
const DefaultHistoryLimit = 16

// Definition is one committed version of a catalog entity. Data is an
// opaque blob: this core has no DDL layer, so entity schema shape is the
// caller's concern (spec section 1 non-goals).
type Definition struct {
	EntityID uint64
	Version  storage.CommitVersion
	Data     types.EncodedValues // nil means the entity was dropped at Version
}

func (d Definition) IsDropped() bool { return d.Data == nil }

// Cache is the concurrent in-memory catalog described by spec section
// 4.10.
type Cache struct {
	mu           sync.RWMutex
	history      map[uint64][]Definition // ascending by Version, bounded to historyLimit
	historyLimit int
	log          zerolog.Logger
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		history:      make(map[uint64][]Definition),
		historyLimit: DefaultHistoryLimit,
		log:          rlog.WithComponent("catalog"),
	}
}

// LoadFromStorage populates the cache with a single prefix scan over
// every catalog entity row visible at readTs (spec section 9 "persist
// nodes/edges under deterministic keys so ... a single prefix scan on
// startup", applied here to catalog rows).
func (c *Cache) LoadFromStorage(multi storage.MultiTable, readTs storage.CommitVersion) error {
	it, err := multi.Range(types.CatalogEntityPrefix(), readTs)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for it.Next() {
		item := it.Item()
		entityID, ok := types.DecodeCatalogEntityKey(item.Key)
		if !ok {
			continue
		}
		c.appendLocked(entityID, Definition{EntityID: entityID, Version: item.VersionFound, Data: item.Value})
	}
	return nil
}

// Latest returns the newest definition known for entityID, regardless of
// snapshot.
func (c *Cache) Latest(entityID uint64) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	versions := c.history[entityID]
	if len(versions) == 0 {
		return Definition{}, false
	}
	return versions[len(versions)-1], true
}

// At returns the definition visible to a reader at readTs: the newest
// entry with Version <= readTs (spec section 4.10 "Readers under
// read_ts obtain a definition no newer than read_ts").
func (c *Cache) At(entityID uint64, readTs storage.CommitVersion) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	versions := c.history[entityID]
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Version > readTs })
	if i == 0 {
		return Definition{}, false
	}
	return versions[i-1], true
}

// appendLocked must be called with mu held.
func (c *Cache) appendLocked(entityID uint64, def Definition) {
	versions := append(c.history[entityID], def)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	if len(versions) > c.historyLimit {
		versions = versions[len(versions)-c.historyLimit:]
	}
	c.history[entityID] = versions
}

// AsInterceptorHook returns a post-commit hook that replays any
// schema-relevant deltas from a just-committed transaction into the
// cache (spec section 4.10 "Updated by a post-commit interceptor that
// replays schema-relevant deltas from the just-committed transaction").
func (c *Cache) AsInterceptorHook() interceptor.Hook {
	return interceptor.HookFunc{
		HookName: "catalog-cache",
		Fn: func(version storage.CommitVersion, deltas []storage.Delta, _ storage.CdcRecord) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			for _, d := range deltas {
				entityID, ok := types.DecodeCatalogEntityKey(d.Key)
				if !ok {
					continue
				}
				def := Definition{EntityID: entityID, Version: version}
				if d.Kind != storage.DeltaDelete {
					def.Data = d.Value
				}
				c.appendLocked(entityID, def)
			}
			return nil
		},
	}
}
