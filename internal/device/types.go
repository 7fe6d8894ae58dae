package device

import (
	"sort"
	"time"
)

// Device is a physical appliance whose IR/RF commands have been captured
// through a controller (the transmitter that replays them).
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// StorageName is the key under which the external learned-code source
	// files this device's codes. It is derived from Name on creation and
	// never regenerated, so renaming a device keeps its codes reachable.
	StorageName string `json:"storage_name"`

	// EntityType is the synthesised entity kind. Empty or EntityTypeAuto
	// means the type is inferred from command names at generation time.
	EntityType EntityType `json:"entity_type"`

	// ControllerReference identifies the transmitter that sends this
	// device's commands (e.g. "remote.living_room").
	ControllerReference string `json:"controller_reference"`

	Area    string `json:"area,omitempty"`
	Icon    string `json:"icon,omitempty"`
	Enabled bool   `json:"enabled"`

	// Commands maps command name to its capture record.
	Commands map[string]*CommandRecord `json:"commands"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommandRecord is the capture state of one named command.
//
// A pending record never carries a code. A resolved record only changes
// through an explicit relearn, which puts it back to pending under a new
// CaptureID.
type CommandRecord struct {
	Name     string        `json:"name"`
	Status   CommandStatus `json:"status"`
	Code     string        `json:"code,omitempty"`
	CodeKind CodeKind      `json:"code_kind"`

	// LearnedAt is the capture request time while pending, and the
	// resolution time once resolved.
	LearnedAt time.Time `json:"learned_at"`

	// CaptureID identifies the capture that owns this record. Reconciliation
	// only writes to a record whose CaptureID matches its own.
	CaptureID string `json:"capture_id,omitempty"`

	// Error explains why a failed record failed.
	Error string `json:"error,omitempty"`
}

// DeepCopy creates an independent copy of the Device, including every
// command record, so callers can mutate the copy freely.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Commands = make(map[string]*CommandRecord, len(d.Commands))
	for name, rec := range d.Commands {
		if rec == nil {
			continue
		}
		r := *rec
		cpy.Commands[name] = &r
	}
	return &cpy
}

// CommandNames returns the device's command names in sorted order.
func (d *Device) CommandNames() []string {
	names := make([]string, 0, len(d.Commands))
	for name := range d.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolvedCommands returns the sorted names of commands that have a code.
func (d *Device) ResolvedCommands() []string {
	names := make([]string, 0, len(d.Commands))
	for name, rec := range d.Commands {
		if rec != nil && rec.Status == StatusResolved {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// CommandStatus is the reconciliation state of a command record.
type CommandStatus string

// Command status constants.
const (
	StatusPending  CommandStatus = "pending"
	StatusResolved CommandStatus = "resolved"
	StatusFailed   CommandStatus = "failed"
)

// AllCommandStatuses returns all valid command statuses.
func AllCommandStatuses() []CommandStatus {
	return []CommandStatus{StatusPending, StatusResolved, StatusFailed}
}

// CodeKind is the radio medium a code was captured on.
type CodeKind string

// Code kind constants.
const (
	CodeKindIR CodeKind = "ir"
	CodeKindRF CodeKind = "rf"
)

// AllCodeKinds returns all valid code kinds.
func AllCodeKinds() []CodeKind {
	return []CodeKind{CodeKindIR, CodeKindRF}
}

// EntityType is the kind of entity synthesised for a device.
type EntityType string

// Entity type constants.
const (
	EntityTypeAuto        EntityType = "auto"
	EntityTypeLight       EntityType = "light"
	EntityTypeFan         EntityType = "fan"
	EntityTypeSwitch      EntityType = "switch"
	EntityTypeCover       EntityType = "cover"
	EntityTypeMediaPlayer EntityType = "media_player"
)

// AllEntityTypes returns every concrete entity type (excluding auto).
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityTypeLight, EntityTypeFan, EntityTypeSwitch,
		EntityTypeCover, EntityTypeMediaPlayer,
	}
}

// IsAuto reports whether the type should be inferred from command names.
func (t EntityType) IsAuto() bool {
	return t == "" || t == EntityTypeAuto
}
