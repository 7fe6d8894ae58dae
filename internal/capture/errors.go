package capture

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
)

var (
	// ErrControllerNotFound indicates the device has no controller, or its
	// controller is unknown. It matches device.ErrNotFound.
	ErrControllerNotFound = fmt.Errorf("capture: controller not found: %w", device.ErrNotFound)

	// ErrLearnTimeout indicates the learn directive was not acknowledged in
	// time. No record is written.
	ErrLearnTimeout = errors.New("capture: learn directive not acknowledged")

	// ErrLearnRejected indicates the teaching service refused the directive.
	ErrLearnRejected = errors.New("capture: learn directive rejected")

	// ErrCascadeFailed indicates the external codes could not be deleted,
	// so the local deletion was not performed.
	ErrCascadeFailed = errors.New("capture: deleting external codes failed")
)
