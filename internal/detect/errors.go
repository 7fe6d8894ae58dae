package detect

import "errors"

var (
	// ErrUnknown indicates no entity type reaches its minimum role set.
	ErrUnknown = errors.New("detect: no entity type matches the command set")

	// ErrValidation indicates a device with an explicit entity type lacks a
	// role that type requires.
	ErrValidation = errors.New("detect: entity is missing a required role")
)
