package store

import "errors"

var (
	// ErrInvalidRecord marks a record that fails validation: content too
	// short, confidence or importance out of range, or a supersession that
	// would break the lineage forest.
	ErrInvalidRecord = errors.New("invalid memory record")

	// ErrUnknownRecord marks an operation against a memory id that does not
	// exist or belongs to a different user.
	ErrUnknownRecord = errors.New("unknown memory record")
)
