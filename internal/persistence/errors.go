package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrRevisionConflict is returned when a conditional write observes a
	// revision other than the one the caller read.
	ErrRevisionConflict = errors.New("persistence: revision conflict")
	// ErrDataCorruption is returned when a stored document cannot be decoded.
	ErrDataCorruption = errors.New("persistence: data corruption")
)
