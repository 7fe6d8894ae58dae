package codesource

import "errors"

var (
	// ErrMalformed is returned when a code file cannot be parsed.
	ErrMalformed = errors.New("codesource: malformed code file")

	// ErrInvalidController is returned for a controller reference that
	// cannot be mapped to a file name.
	ErrInvalidController = errors.New("codesource: invalid controller reference")
)
