package emit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateObjectID indicates two devices produce the same entity ID.
var ErrDuplicateObjectID = errors.New("emit: duplicate object id")

// DeviceFailure names a device that was left out of the output.
type DeviceFailure struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Err      error  `json:"-"`
	Reason   string `json:"reason"`
}

// PartialEmissionFailure is returned alongside the documents when some
// devices could not be emitted. Every other device is still in the output.
type PartialEmissionFailure struct {
	Failures     []DeviceFailure
	SuccessCount int
}

func (e *PartialEmissionFailure) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s (%s): %v", f.DeviceID, f.Name, f.Err)
	}
	return fmt.Sprintf("emit: %d device(s) failed, %d emitted: %s",
		len(e.Failures), e.SuccessCount, strings.Join(parts, "; "))
}

// Unwrap exposes the per-device errors to errors.Is and errors.As.
func (e *PartialEmissionFailure) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
