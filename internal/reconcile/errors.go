package reconcile

import "errors"

var (
	// ErrReconciliationTimeout is the failure reason for a capture whose
	// code never appeared before its deadline.
	ErrReconciliationTimeout = errors.New("reconcile: code did not appear before the deadline")

	// ErrInvalidEntry indicates a PendingReconciliation is missing its key,
	// capture ID or controller.
	ErrInvalidEntry = errors.New("reconcile: invalid pending entry")
)
