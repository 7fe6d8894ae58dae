package reconcile

import (
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/codesource"
)

// DefaultDeadline is how long a capture may stay pending.
const DefaultDeadline = 60 * time.Second

// Key identifies one command of one device.
type Key struct {
	DeviceID string
	Command  string
}

// PendingReconciliation is an outstanding capture waiting for its code.
type PendingReconciliation struct {
	DeviceID    string
	Command     string
	CaptureID   string
	Controller  string
	StorageName string

	// Baseline is the code the source held for this command before the
	// learn directive was sent, empty if none. Relearning a command must
	// not resolve to the code it already had.
	Baseline string

	CreatedAt time.Time
	Deadline  time.Time
	Attempts  int
}

// Key returns the entry's (device, command) key.
func (p PendingReconciliation) Key() Key {
	return Key{DeviceID: p.DeviceID, Command: p.Command}
}

func (p PendingReconciliation) validate() error {
	switch {
	case p.DeviceID == "", p.Command == "", p.CaptureID == "":
		return ErrInvalidEntry
	case p.Controller == "", p.StorageName == "":
		return ErrInvalidEntry
	}
	return nil
}

// matches reports whether a lookup result is this capture's code. The code
// file is shared by every device on a controller, so its mtime says nothing
// about this command; only a code that differs from the baseline counts. A
// relearn clears the stored code before learning, leaving the baseline empty.
func (p PendingReconciliation) matches(r codesource.Result) bool {
	return r.Found && r.Code != p.Baseline
}

// PassResult summarises one reconciliation pass.
type PassResult struct {
	Checked   int `json:"checked"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}
