package teaching

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
)

// Action is the kind of directive.
type Action string

const (
	// ActionLearn puts the controller into learning mode for one command.
	ActionLearn Action = "learn"

	// ActionDelete removes stored codes from the teaching service's storage.
	ActionDelete Action = "delete"
)

// Directive is published to the teaching service.
type Directive struct {
	// ID correlates the directive with its acknowledgement.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`

	Controller string `json:"controller"`

	// Device is the storage name the codes are filed under.
	Device string `json:"device"`

	// Command is set for learn; Commands for delete.
	Command  string          `json:"command,omitempty"`
	Commands []string        `json:"commands,omitempty"`
	CodeKind device.CodeKind `json:"code_kind,omitempty"`
}

// AckStatus is the acknowledgement outcome.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// Error codes reported in AckError.Code.
const (
	ErrCodeUnknownController = "UNKNOWN_CONTROLLER"
	ErrCodeBusy              = "BUSY"
	ErrCodeInvalidDirective  = "INVALID_DIRECTIVE"
)

// Ack is the teaching service's reply to a Directive.
type Ack struct {
	CommandID  string    `json:"command_id"`
	Timestamp  time.Time `json:"timestamp"`
	Controller string    `json:"controller,omitempty"`
	Status     AckStatus `json:"status"`
	Error      *AckError `json:"error,omitempty"`
}

// AckError carries details for failed acknowledgements.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AckError) String() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ParseAck decodes and sanity-checks an acknowledgement payload.
func ParseAck(payload []byte) (Ack, error) {
	var a Ack
	if err := json.Unmarshal(payload, &a); err != nil {
		return Ack{}, fmt.Errorf("parsing ack: %w", err)
	}
	if a.CommandID == "" {
		return Ack{}, fmt.Errorf("ack missing command_id")
	}
	switch a.Status {
	case AckAccepted, AckFailed:
	default:
		return Ack{}, fmt.Errorf("ack %s has unknown status %q", a.CommandID, a.Status)
	}
	return a, nil
}

// err maps a failed ack to the package sentinels.
func (a Ack) err() error {
	if a.Status == AckAccepted {
		return nil
	}
	if a.Error != nil && a.Error.Code == ErrCodeUnknownController {
		return fmt.Errorf("%w: %s", ErrUnknownController, a.Error)
	}
	return fmt.Errorf("%w: %s", ErrRejected, a.Error)
}
