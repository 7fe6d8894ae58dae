package teaching

import "errors"

var (
	// ErrAckTimeout is returned when no acknowledgement arrives before the
	// context deadline.
	ErrAckTimeout = errors.New("teaching: no acknowledgement")

	// ErrRejected is returned when the teaching service refuses a directive.
	ErrRejected = errors.New("teaching: directive rejected")

	// ErrUnknownController is returned when the teaching service does not
	// know the addressed controller.
	ErrUnknownController = errors.New("teaching: unknown controller")

	// ErrNotStarted is returned when a directive is sent before Start.
	ErrNotStarted = errors.New("teaching: client not started")
)
