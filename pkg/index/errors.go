package index

import "errors"

var (
	// ErrKeyNotFound is returned by GetValue/Remove when the key is absent.
	ErrKeyNotFound = errors.New("index: key not found")

	// ErrDuplicateKey is returned by Insert on a unique-key index when the
	// key is already present.
	ErrDuplicateKey = errors.New("index: duplicate key")

	// ErrTreeCorrupt signals an on-disk structural invariant violation: a
	// child pointer outside its parent's range, a leaf chain that does not
	// terminate, or similar.
	ErrTreeCorrupt = errors.New("index: tree structure invariant violation")
)
