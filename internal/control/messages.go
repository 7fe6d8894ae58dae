package control

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
)

// Action names, taken from the last segment of the request topic.
const (
	ActionCapture       = "capture"
	ActionCheckNow      = "check_now"
	ActionPending       = "pending"
	ActionGenerate      = "generate"
	ActionDetect        = "detect"
	ActionDeviceCreate  = "device_create"
	ActionDeviceUpdate  = "device_update"
	ActionDeviceGet     = "device_get"
	ActionDeviceList    = "device_list"
	ActionDeviceDelete  = "device_delete"
	ActionCommandDelete = "command_delete"
	ActionHistory       = "history"
)

// Request is the envelope for every control request. Fields are read only
// by the actions that use them.
type Request struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	DeviceID string `json:"device_id,omitempty"`
	Command  string `json:"command,omitempty"`
	CodeKind string `json:"code_kind,omitempty"`

	// Cascade also deletes the codes held by the teaching service.
	Cascade bool `json:"cascade,omitempty"`

	// Device carries the fields for device_create and device_update.
	Device *DeviceFields `json:"device,omitempty"`

	// Controller and EntityType filter device_list.
	Controller string `json:"controller,omitempty"`
	EntityType string `json:"entity_type,omitempty"`

	// Kind, Limit and Offset page history.
	Kind   string `json:"kind,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// DeviceFields is a partial device. Nil fields are left unchanged on update.
type DeviceFields struct {
	Name                *string `json:"name,omitempty"`
	EntityType          *string `json:"entity_type,omitempty"`
	ControllerReference *string `json:"controller_reference,omitempty"`
	Area                *string `json:"area,omitempty"`
	Icon                *string `json:"icon,omitempty"`
	Enabled             *bool   `json:"enabled,omitempty"`
}

// apply copies the set fields onto d. StorageName is never touched.
func (f *DeviceFields) apply(d *device.Device) {
	if f == nil {
		return
	}
	if f.Name != nil {
		d.Name = *f.Name
	}
	if f.EntityType != nil {
		d.EntityType = device.EntityType(*f.EntityType)
	}
	if f.ControllerReference != nil {
		d.ControllerReference = *f.ControllerReference
	}
	if f.Area != nil {
		d.Area = *f.Area
	}
	if f.Icon != nil {
		d.Icon = *f.Icon
	}
	if f.Enabled != nil {
		d.Enabled = *f.Enabled
	}
}

// Response is published on the response topic for a request.
type Response struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Error     *ResponseError `json:"error,omitempty"`
}

// ResponseError carries details for failed requests.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseRequest decodes a request payload. A request without request_id
// cannot be answered and is rejected.
func ParseRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if req.RequestID == "" {
		return Request{}, fmt.Errorf("%w: request_id is required", ErrBadRequest)
	}
	return req, nil
}
