package engine

import "errors"

var (
	// ErrUnknownEntry marks an extraction trigger for a journal entry that
	// does not exist.
	ErrUnknownEntry = errors.New("unknown journal entry")

	// ErrInvalidCandidate marks an extraction candidate rejected by
	// validation. Dropped, never fatal to the run.
	ErrInvalidCandidate = errors.New("invalid candidate")
)
