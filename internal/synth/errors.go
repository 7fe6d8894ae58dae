package synth

import "errors"

var (
	// ErrMissingController indicates a device has no controller reference,
	// so none of its commands can be sent.
	ErrMissingController = errors.New("synth: device has no controller reference")

	// ErrDisabled indicates the device is disabled and produces no entities.
	ErrDisabled = errors.New("synth: device is disabled")
)
