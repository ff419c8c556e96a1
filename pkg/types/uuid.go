// Package types implements the typed value model shared by the data model
// and the on-disk encodings: UUIDs, tag descriptors, layers, fields, and
// the tagged Datacell union.
package types

import "github.com/google/uuid"

// UUID is an opaque 128-bit identifier, stable for an object across
// restarts. It wraps google/uuid rather than re-deriving a UUID
// implementation.
type UUID uuid.UUID

// NewUUID allocates a new random UUID.
func NewUUID() UUID {
	return UUID(uuid.New())
}

func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Bytes returns the raw 16-byte representation.
func (u UUID) Bytes() [16]byte {
	return [16]byte(u)
}

// UUIDFromBytes parses a raw 16-byte representation.
func UUIDFromBytes(b []byte) (UUID, error) {
	id, err := uuid.FromBytes(b)
	if err != nil {
		return UUID{}, err
	}
	return UUID(id), nil
}
