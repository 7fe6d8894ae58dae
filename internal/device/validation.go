package device

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Validation constants.
const (
	maxNameLength        = 100
	maxCommandNameLength = 64
	maxStorageNameLength = 50
	maxCommands          = 200
	maxCodeLength        = 64 * 1024
)

// Pre-computed validation sets for O(1) lookups.
var (
	validEntityTypes map[EntityType]struct{}
	validCodeKinds   map[CodeKind]struct{}
	validStatuses    map[CommandStatus]struct{}
)

func init() {
	validEntityTypes = make(map[EntityType]struct{}, len(AllEntityTypes())+1)
	for _, t := range AllEntityTypes() {
		validEntityTypes[t] = struct{}{}
	}
	validEntityTypes[EntityTypeAuto] = struct{}{}

	validCodeKinds = make(map[CodeKind]struct{}, len(AllCodeKinds()))
	for _, k := range AllCodeKinds() {
		validCodeKinds[k] = struct{}{}
	}

	validStatuses = make(map[CommandStatus]struct{}, len(AllCommandStatuses()))
	for _, s := range AllCommandStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ValidateDevice performs validation on a device and all of its command
// records. Returns an error describing the first failure found.
//
// A missing controller reference is allowed here: devices may be created
// before a transmitter is assigned. Capture and emission reject them later.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.StorageName == "" {
		return fmt.Errorf("%w: storage_name is required", ErrInvalidDevice)
	}
	if len(d.StorageName) > maxStorageNameLength {
		return fmt.Errorf("%w: storage_name exceeds %d characters", ErrInvalidDevice, maxStorageNameLength)
	}
	if d.EntityType != "" {
		if _, ok := validEntityTypes[d.EntityType]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidEntityType, d.EntityType)
		}
	}
	if len(d.Commands) > maxCommands {
		return fmt.Errorf("%w: more than %d commands", ErrInvalidDevice, maxCommands)
	}
	for name, rec := range d.Commands {
		if rec == nil {
			return fmt.Errorf("%w: command %q has no record", ErrInvalidCommand, name)
		}
		if rec.Name != name {
			return fmt.Errorf("%w: command key %q holds record named %q", ErrInvalidCommand, name, rec.Name)
		}
		if err := ValidateCommandRecord(rec); err != nil {
			return fmt.Errorf("device %s: %w", d.ID, err)
		}
	}
	return nil
}

// ValidateName checks that a display name is non-empty and within limits.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len([]rune(trimmed)) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateCommandName checks a command name.
// Command names are opaque to the store but must be usable as map keys in
// the external learned-code source, so whitespace-only names are rejected.
func ValidateCommandName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name {
		return fmt.Errorf("%w: command name %q", ErrInvalidName, name)
	}
	if len([]rune(name)) > maxCommandNameLength {
		return fmt.Errorf("%w: command name exceeds %d characters", ErrInvalidName, maxCommandNameLength)
	}
	return nil
}

// ValidateCommandRecord enforces the per-status invariants of a record.
func ValidateCommandRecord(rec *CommandRecord) error {
	if err := ValidateCommandName(rec.Name); err != nil {
		return err
	}
	if _, ok := validStatuses[rec.Status]; !ok {
		return fmt.Errorf("%w: command %q has status %q", ErrInvalidCommand, rec.Name, rec.Status)
	}
	if _, ok := validCodeKinds[rec.CodeKind]; !ok {
		return fmt.Errorf("%w: command %q: %q", ErrInvalidCodeKind, rec.Name, rec.CodeKind)
	}
	switch rec.Status {
	case StatusPending:
		if rec.Code != "" {
			return fmt.Errorf("%w: pending command %q carries a code", ErrInvalidCommand, rec.Name)
		}
	case StatusResolved:
		if rec.Code == "" {
			return fmt.Errorf("%w: resolved command %q has no code", ErrInvalidCommand, rec.Name)
		}
	}
	if len(rec.Code) > maxCodeLength {
		return fmt.Errorf("%w: command %q code exceeds %d bytes", ErrInvalidCommand, rec.Name, maxCodeLength)
	}
	return nil
}

// ParseCodeKind converts a string to a CodeKind, defaulting to IR when empty.
func ParseCodeKind(s string) (CodeKind, error) {
	if s == "" {
		return CodeKindIR, nil
	}
	k := CodeKind(strings.ToLower(s))
	if _, ok := validCodeKinds[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidCodeKind, s)
	}
	return k, nil
}

// GenerateStorageName derives an identifier-safe name from a display name:
// accents are folded, everything else non-alphanumeric becomes an
// underscore. Names with no foldable characters (e.g. CJK) fall back to a
// stable hash so the result is never empty.
//
// Examples:
//
//	"Office Light"     -> "office_light"
//	"Salón – Ventilador" -> "salon_ventilador"
func GenerateStorageName(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		strings.ToLower(strings.TrimSpace(name)),
	)
	if err != nil {
		folded = strings.ToLower(name)
	}

	var b strings.Builder
	lastUnderscore := true
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	slug := strings.Trim(b.String(), "_")

	if len(slug) > maxStorageNameLength {
		slug = strings.TrimRight(slug[:maxStorageNameLength], "_")
	}
	if slug == "" {
		h := fnv.New32a()
		_, _ = h.Write([]byte(name)) //nolint:errcheck // hash writes never fail
		slug = fmt.Sprintf("device_%08x", h.Sum32())
	}
	return slug
}

// GenerateID generates a new unique device ID.
func GenerateID() string {
	return uuid.New().String()
}

// GenerateCaptureID generates the token that ties a pending record to the
// reconciliation entry created for it.
func GenerateCaptureID() string {
	return "cap-" + uuid.NewString()
}
