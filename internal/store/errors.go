package store

import "errors"

// Domain errors for the store package.
var (
	// ErrStorageCorruption is returned when neither the primary file nor its
	// backup holds a readable, schema-valid snapshot.
	ErrStorageCorruption = errors.New("store: storage corrupted and no valid backup")

	// ErrStaleCapture is returned when a resolve or fail targets a record
	// that has since been relearned, resolved or removed.
	ErrStaleCapture = errors.New("store: capture is no longer current")

	// ErrInvalidSnapshot is returned when a snapshot fails schema validation.
	ErrInvalidSnapshot = errors.New("store: snapshot failed validation")
)
