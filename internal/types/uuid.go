// UUID helpers adapted from tinySQL's internal/storage/uuid_helpers.go,
// extended to cover both the v4 (random) and v7 (time-ordered) variants
// the Layout type supports (spec section 4.1).
package types

import "github.com/google/uuid"

// NewUUID4 generates a random UUID and returns its 16-byte form, ready
// for a Value with Type TypeUuid4.
func NewUUID4() []byte {
	id := uuid.New()
	return id[:]
}

// NewUUID7 generates a time-ordered UUID; unlike v4, its byte-lex order
// matches generation order, which matters for keys derived from it.
func NewUUID7() ([]byte, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return id[:], nil
}

// FormatUUID renders a 16-byte UUID value in canonical string form.
func FormatUUID(b []byte) (string, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseUUID parses a canonical UUID string back into its 16-byte form.
func ParseUUID(s string) ([]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return id[:], nil
}
