package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when a device or command does not exist.
	ErrNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device or command name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidEntityType is returned when an entity type is not recognised.
	ErrInvalidEntityType = errors.New("device: invalid entity type")

	// ErrInvalidCodeKind is returned when a code kind is not ir or rf.
	ErrInvalidCodeKind = errors.New("device: invalid code kind")

	// ErrInvalidCommand is returned when a command record violates its invariants.
	ErrInvalidCommand = errors.New("device: invalid command record")
)
