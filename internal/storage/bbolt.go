// File-backed Backend built on go.etcd.io/bbolt, grounded on
// cuemby-warren's pkg/storage/boltdb.go bucket-per-entity pattern. bbolt's
// single-writer, many-reader transaction model is exactly the "backend
// serializes writes through a single writer actor and exposes concurrent
// readers" contract of spec section 4.2.
package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/reifydb/reifydb-core/internal/diagnostic"
	"github.com/reifydb/reifydb-core/internal/types"
)

// CurrentStorageVersion is the compiled-in on-disk format version. It
// must equal the persisted SystemVersion key on open, or open fails
// fatally (spec section 6).
const CurrentStorageVersion uint32 = 1

var (
	bucketMulti = []byte("multi")
	bucketSingle = []byte("single")
	bucketCdc   = []byte("cdc")
	bucketMeta  = []byte("meta")
)

var metaSystemVersionKey = []byte("system_version")

// BboltBackend is the embedded file-backed Backend of spec section 4.2.
type BboltBackend struct {
	db     *bolt.DB
	multi  *bboltMulti
	single *bboltSingle
	cdc    *bboltCdc
}

// OpenBboltBackend opens (creating if absent) a bbolt-backed store at
// dir/reifydb.db, verifying the persisted SystemVersion matches
// CurrentStorageVersion.
func OpenBboltBackend(dir string) (*BboltBackend, error) {
	path := filepath.Join(dir, "reifydb.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, diagnostic.Storage(fmt.Sprintf("open bbolt store at %q", path), err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMulti, bucketSingle, bucketCdc, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		existing := meta.Get(metaSystemVersionKey)
		if existing == nil {
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, CurrentStorageVersion)
			return meta.Put(metaSystemVersionKey, buf)
		}
		got := binary.BigEndian.Uint32(existing)
		if got != CurrentStorageVersion {
			return diagnostic.New(diagnostic.KindStorage, diagnostic.CodeStorageVersionMismatch,
				fmt.Sprintf("on-disk storage version %d does not match compiled-in version %d", got, CurrentStorageVersion))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BboltBackend{
		db:     db,
		multi:  &bboltMulti{db: db},
		single: &bboltSingle{db: db},
		cdc:    &bboltCdc{db: db},
	}, nil
}

func (b *BboltBackend) Multi() MultiTable   { return b.multi }
func (b *BboltBackend) Single() SingleTable { return b.single }
func (b *BboltBackend) Cdc() CdcTable       { return b.cdc }
func (b *BboltBackend) Close() error        { return b.db.Close() }

// CommitTransaction applies multiDeltas, singleDeltas, and record inside
// a single bbolt write transaction, giving the "readers see either the
// full pre-state or full post-state" atomicity contract of spec section
// 4.2 for real, unlike the memory backend's lock-based approximation.
func (b *BboltBackend) CommitTransaction(multiDeltas []Delta, singleDeltas []Delta, version CommitVersion, _ TransactionID, record CdcRecord) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		multiBucket := tx.Bucket(bucketMulti)
		for _, d := range multiDeltas {
			var chain *versionChain
			if raw := multiBucket.Get(d.Key); raw != nil {
				var err error
				chain, err = decodeChain(raw)
				if err != nil {
					return diagnostic.Storage("decode version chain", err)
				}
			} else {
				chain = &versionChain{}
			}
			var value types.EncodedValues
			if d.Kind != DeltaDelete {
				value = d.Value
			}
			chain.entries = append(chain.entries, chainEntry{version: version, value: value})
			encoded, err := encodeChain(chain)
			if err != nil {
				return diagnostic.Storage("encode version chain", err)
			}
			if err := multiBucket.Put(d.Key, encoded); err != nil {
				return diagnostic.Storage("write version chain", err)
			}
		}

		singleBucket := tx.Bucket(bucketSingle)
		for _, d := range singleDeltas {
			if d.Kind == DeltaDelete {
				if err := singleBucket.Delete(d.Key); err != nil {
					return err
				}
				continue
			}
			if err := singleBucket.Put(d.Key, d.Value); err != nil {
				return err
			}
		}

		cdcBucket := tx.Bucket(bucketCdc)
		key := versionKey(record.Version)
		if existing := cdcBucket.Get(key); existing != nil {
			return diagnostic.Internal("cdc record already exists for version", nil)
		}
		encoded, err := encodeRecord(record)
		if err != nil {
			return err
		}
		return cdcBucket.Put(key, encoded)
	})
}

// gobChain/gobRecord mirror versionChain/CdcRecord in a form gob can
// encode (gob needs exported fields).
type gobChain struct {
	Entries []gobChainEntry
}

type gobChainEntry struct {
	Version CommitVersion
	Value   []byte
	Tombstone bool
}

func encodeChain(c *versionChain) ([]byte, error) {
	g := gobChain{Entries: make([]gobChainEntry, len(c.entries))}
	for i, e := range c.entries {
		g.Entries[i] = gobChainEntry{Version: e.version, Value: []byte(e.value), Tombstone: e.value == nil}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeChain(data []byte) (*versionChain, error) {
	var g gobChain
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return nil, err
	}
	c := &versionChain{entries: make([]chainEntry, len(g.Entries))}
	for i, e := range g.Entries {
		var v types.EncodedValues
		if !e.Tombstone {
			v = types.EncodedValues(e.Value)
		}
		c.entries[i] = chainEntry{version: e.Version, value: v}
	}
	return c, nil
}

type bboltMulti struct {
	db *bolt.DB
}

func (m *bboltMulti) Get(key types.EncodedKey, version CommitVersion) (Versioned, bool, error) {
	var result Versioned
	var found bool
	err := m.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMulti).Get(key)
		if raw == nil {
			return nil
		}
		chain, err := decodeChain(raw)
		if err != nil {
			return diagnostic.Storage("decode version chain", err)
		}
		entry, ok := chain.visibleAt(version)
		if !ok || entry.value == nil {
			return nil
		}
		result = Versioned{Key: key, Value: entry.value, VersionFound: entry.version}
		found = true
		return nil
	})
	return result, found, err
}

func (m *bboltMulti) Contains(key types.EncodedKey, version CommitVersion) (bool, error) {
	_, ok, err := m.Get(key, version)
	return ok, err
}

func (m *bboltMulti) Range(r types.EncodedKeyRange, version CommitVersion) (*Iterator, error) {
	var items []Versioned
	err := m.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketMulti).Cursor()
		var k, v []byte
		if r.Start != nil {
			k, v = c.Seek(r.Start)
		} else {
			k, v = c.First()
		}
		for ; k != nil; k, v = c.Next() {
			if r.End != nil && bytes.Compare(k, r.End) >= 0 {
				break
			}
			chain, err := decodeChain(v)
			if err != nil {
				return diagnostic.Storage("decode version chain", err)
			}
			if entry, ok := chain.visibleAt(version); ok && entry.value != nil {
				keyCopy := make([]byte, len(k))
				copy(keyCopy, k)
				items = append(items, Versioned{Key: types.EncodedKey(keyCopy), Value: entry.value, VersionFound: entry.version})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newIterator(items), nil
}

func (m *bboltMulti) Commit(deltas []Delta, version CommitVersion, _ TransactionID) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMulti)
		for _, d := range deltas {
			var chain *versionChain
			if raw := bucket.Get(d.Key); raw != nil {
				var err error
				chain, err = decodeChain(raw)
				if err != nil {
					return diagnostic.Storage("decode version chain", err)
				}
			} else {
				chain = &versionChain{}
			}
			var value types.EncodedValues
			if d.Kind != DeltaDelete {
				value = d.Value
			}
			chain.entries = append(chain.entries, chainEntry{version: version, value: value})
			encoded, err := encodeChain(chain)
			if err != nil {
				return diagnostic.Storage("encode version chain", err)
			}
			if err := bucket.Put(d.Key, encoded); err != nil {
				return diagnostic.Storage("write version chain", err)
			}
		}
		return nil
	})
}

func (m *bboltMulti) ReclaimBefore(watermark CommitVersion) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMulti)
		return bucket.ForEach(func(k, v []byte) error {
			chain, err := decodeChain(v)
			if err != nil {
				return diagnostic.Storage("decode version chain", err)
			}
			if len(chain.entries) <= 1 {
				return nil
			}
			cut := 0
			for cut < len(chain.entries) && chain.entries[cut].version < watermark {
				cut++
			}
			if cut > 1 {
				chain.entries = append([]chainEntry(nil), chain.entries[cut-1:]...)
				encoded, err := encodeChain(chain)
				if err != nil {
					return diagnostic.Storage("encode version chain", err)
				}
				return bucket.Put(k, encoded)
			}
			return nil
		})
	})
}

type bboltSingle struct {
	db *bolt.DB
}

func (s *bboltSingle) Get(key types.EncodedKey) (types.EncodedValues, bool, error) {
	var value types.EncodedValues
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSingle).Get(key)
		if raw == nil {
			return nil
		}
		value = append(types.EncodedValues(nil), raw...)
		found = true
		return nil
	})
	return value, found, err
}

func (s *bboltSingle) Contains(key types.EncodedKey) (bool, error) {
	_, ok, err := s.Get(key)
	return ok, err
}

func (s *bboltSingle) Range(r types.EncodedKeyRange) (*SingleIterator, error) {
	var items []SingleEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSingle).Cursor()
		var k, v []byte
		if r.Start != nil {
			k, v = c.Seek(r.Start)
		} else {
			k, v = c.First()
		}
		for ; k != nil; k, v = c.Next() {
			if r.End != nil && bytes.Compare(k, r.End) >= 0 {
				break
			}
			keyCopy := append(types.EncodedKey(nil), k...)
			valCopy := append(types.EncodedValues(nil), v...)
			items = append(items, SingleEntry{Key: keyCopy, Value: valCopy})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newSingleIterator(items), nil
}

func (s *bboltSingle) Commit(deltas []Delta) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSingle)
		for _, d := range deltas {
			if d.Kind == DeltaDelete {
				if err := bucket.Delete(d.Key); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put(d.Key, d.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

type bboltCdc struct {
	db *bolt.DB
}

func versionKey(v CommitVersion) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

func encodeRecord(r CdcRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (CdcRecord, error) {
	var r CdcRecord
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&r)
	return r, err
}

func (c *bboltCdc) Get(version CommitVersion) (CdcRecord, bool, error) {
	var rec CdcRecord
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCdc).Get(versionKey(version))
		if raw == nil {
			return nil
		}
		var err error
		rec, err = decodeRecord(raw)
		found = err == nil
		return err
	})
	return rec, found, err
}

func (c *bboltCdc) Range(startExclusive, endInclusive CommitVersion) ([]CdcRecord, error) {
	var out []CdcRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(bucketCdc).Cursor()
		for k, v := cur.Seek(versionKey(startExclusive + 1)); k != nil; k, v = cur.Next() {
			ver := CommitVersion(binary.BigEndian.Uint64(k))
			if ver > endInclusive {
				break
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (c *bboltCdc) Scan() ([]CdcRecord, error) {
	return c.Range(0, ^CommitVersion(0))
}

func (c *bboltCdc) Count(version CommitVersion) (int, error) {
	rec, ok, err := c.Get(version)
	if err != nil || !ok {
		return 0, err
	}
	return len(rec.Changes), nil
}

func (c *bboltCdc) Append(record CdcRecord) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCdc)
		key := versionKey(record.Version)
		if existing := bucket.Get(key); existing != nil {
			return diagnostic.Internal("cdc record already exists for version", nil)
		}
		encoded, err := encodeRecord(record)
		if err != nil {
			return err
		}
		return bucket.Put(key, encoded)
	})
}

func (c *bboltCdc) ReclaimBefore(watermark CommitVersion) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCdc)
		cur := bucket.Cursor()
		var toDelete [][]byte
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if CommitVersion(binary.BigEndian.Uint64(k)) >= watermark {
				break
			}
			toDelete = append(toDelete, append([]byte(nil), k...))
		}
		for _, k := range toDelete {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
