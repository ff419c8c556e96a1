package types

// PrimaryIndexKey is an immutable, comparable representation of a
// Datacell whose class is in the Unique set (spec §3). Datacell itself
// isn't comparable (lists carry a mutex and slice), so the primary index
// keys on this canonical encoded form instead.
type PrimaryIndexKey struct {
	Unique Unique
	Bytes  string
}

// NewPrimaryIndexKey derives a PrimaryIndexKey from a Datacell whose class
// can back a primary key. It returns ok=false for float/list cells.
func NewPrimaryIndexKey(pk Datacell) (PrimaryIndexKey, bool) {
	if !pk.Tag.CanBePrimaryKey() {
		return PrimaryIndexKey{}, false
	}
	encoded, err := EncodePrimaryKey(nil, pk)
	if err != nil {
		return PrimaryIndexKey{}, false
	}
	return PrimaryIndexKey{Unique: pk.Tag.Unique, Bytes: string(encoded)}, true
}
