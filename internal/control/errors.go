package control

import (
	"errors"

	"github.com/nerrad567/gray-logic-irlearn/internal/capture"
	"github.com/nerrad567/gray-logic-irlearn/internal/detect"
	"github.com/nerrad567/gray-logic-irlearn/internal/device"
)

// Error codes reported in ResponseError.Code.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnknownAction      = "unknown_action"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodeValidation         = "validation_error"
	ErrCodeControllerNotFound = "controller_not_found"
	ErrCodeLearnTimeout       = "learn_timeout"
	ErrCodeLearnRejected      = "learn_rejected"
	ErrCodeCascadeFailed      = "cascade_failed"
	ErrCodeBusy               = "busy"
	ErrCodeUnavailable        = "unavailable"
	ErrCodeInternal           = "internal_error"
)

var (
	// ErrBadRequest is returned for malformed or incomplete requests.
	ErrBadRequest = errors.New("control: bad request")

	// ErrUnavailable is returned when an optional collaborator is not configured.
	ErrUnavailable = errors.New("control: not available")
)

// errorCode maps a domain error onto a response code. Order matters:
// ErrControllerNotFound also matches device.ErrNotFound.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return ErrCodeBadRequest
	case errors.Is(err, ErrUnavailable):
		return ErrCodeUnavailable
	case errors.Is(err, capture.ErrControllerNotFound):
		return ErrCodeControllerNotFound
	case errors.Is(err, capture.ErrLearnTimeout):
		return ErrCodeLearnTimeout
	case errors.Is(err, capture.ErrLearnRejected):
		return ErrCodeLearnRejected
	case errors.Is(err, capture.ErrCascadeFailed):
		return ErrCodeCascadeFailed
	case errors.Is(err, device.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, device.ErrDeviceExists):
		return ErrCodeConflict
	case errors.Is(err, device.ErrInvalidDevice),
		errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidEntityType),
		errors.Is(err, device.ErrInvalidCodeKind),
		errors.Is(err, device.ErrInvalidCommand),
		errors.Is(err, detect.ErrValidation),
		errors.Is(err, detect.ErrUnknown):
		return ErrCodeValidation
	default:
		return ErrCodeInternal
	}
}
