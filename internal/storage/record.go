package storage

import (
	"time"

	"github.com/reifydb/reifydb-core/internal/types"
)

// Change is one entry within a CdcRecord, mirroring the Delta that
// produced it but carrying before/after images (spec section 3).
type Change struct {
	Kind   DeltaKind
	Key    types.EncodedKey
	Before types.EncodedValues // set for Update/Delete
	After  types.EncodedValues // set for Insert/Update
	// Sequence is this change's position within its record's total
	// order (spec section 4.2: "CDC records... carry a monotonic
	// sequence per change within a record").
	Sequence uint32
}

// CdcRecord is the single per-commit change log entry of spec section 3:
// commit version, wall-clock timestamp, transaction id, and an ordered
// list of changes.
type CdcRecord struct {
	Version     CommitVersion
	Timestamp   time.Time
	Transaction TransactionID
	Changes     []Change
}
