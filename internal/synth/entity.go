package synth

import (
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
)

// Platform is the configuration section an entity or helper belongs to.
type Platform string

// Entity platforms.
const (
	PlatformLight       Platform = "light"
	PlatformFan         Platform = "fan"
	PlatformSwitch      Platform = "switch"
	PlatformCover       Platform = "cover"
	PlatformMediaPlayer Platform = "media_player"
	PlatformScript      Platform = "script"
)

// Helper platforms hold local state for entities whose devices report none.
const (
	PlatformInputBoolean Platform = "input_boolean"
	PlatformInputNumber  Platform = "input_number"
	PlatformInputSelect  Platform = "input_select"
)

// Platforms lists every platform in emission order.
func Platforms() []Platform {
	return []Platform{
		PlatformLight, PlatformFan, PlatformSwitch, PlatformCover, PlatformMediaPlayer,
		PlatformScript, PlatformInputBoolean, PlatformInputNumber, PlatformInputSelect,
	}
}

func platformFor(t device.EntityType) Platform {
	return Platform(t)
}

// StepKind distinguishes the two things an action can do.
type StepKind string

// Step kinds.
const (
	StepSend     StepKind = "send"      // transmit a learned command
	StepSetState StepKind = "set_state" // update a local helper
)

// Step is one element of an action sequence.
type Step struct {
	Kind    StepKind
	Command string

	// Helper is the helper's entity ID (e.g. "input_boolean.fan_state").
	Helper string

	// Value is the helper's new value. It may be a template evaluated by
	// the configuration loader.
	Value string
}

// Send returns a step transmitting cmd.
func Send(cmd string) Step { return Step{Kind: StepSend, Command: cmd} }

// SetState returns a step updating helper to value.
func SetState(helper, value string) Step {
	return Step{Kind: StepSetState, Helper: helper, Value: value}
}

// HelperPlatform returns the platform part of the step's helper.
func (s Step) HelperPlatform() Platform {
	p, _, _ := strings.Cut(s.Helper, ".")
	return Platform(p)
}

// Level is one step of an ordinal axis. Percentage is the axis value (0-100)
// that selects this level.
type Level struct {
	Rank       int
	Command    string
	Percentage int
}

// Direction describes a fan's direction axis. With no commands the axis is
// local only: changing it updates the helper and sends nothing.
type Direction struct {
	Helper  string
	Forward string
	Reverse string
	Toggle  string
}

// LocalOnly reports whether no direction command has been learned.
func (d Direction) LocalOnly() bool {
	return d.Forward == "" && d.Reverse == "" && d.Toggle == ""
}

// Entity is one synthesised entity definition.
type Entity struct {
	Platform    Platform
	ObjectID    string
	Name        string
	UniqueID    string
	DeviceID    string
	Controller  string
	StorageName string
	Icon        string
	Area        string

	// Actions maps a platform action name (turn_on, open_cover,
	// volume_up, sequence...) to its steps.
	Actions map[string][]Step

	// StateHelper tracks on/off for devices without feedback.
	StateHelper string

	// Fan speed axis.
	Speeds           []Level
	PercentageHelper string
	Direction        *Direction
	OscillateCommand string
	OscillateHelper  string

	// Light brightness axis (0-100).
	Brightness       []Level
	BrightnessHelper string

	// Companion is the object ID of a media player's power switch.
	Companion string
}

// PercentageSteps returns the steps that set a fan to p percent. Zero turns
// the fan off, using the off command when one exists. Any other value
// selects rank ceil(p*N/100).
func (e *Entity) PercentageSteps(p int) []Step {
	n := len(e.Speeds)
	if p <= 0 || n == 0 {
		return e.Actions["turn_off"]
	}
	if p > 100 {
		p = 100
	}
	rank := int(math.Ceil(float64(p) * float64(n) / 100))
	if rank < 1 {
		rank = 1
	}
	lvl := e.Speeds[rank-1]
	steps := []Step{Send(lvl.Command)}
	if e.StateHelper != "" {
		steps = append(steps, SetState(e.StateHelper, "on"))
	}
	if e.PercentageHelper != "" {
		steps = append(steps, SetState(e.PercentageHelper, strconv.Itoa(lvl.Percentage)))
	}
	return steps
}

// Helper is a local state holder emitted alongside entities.
type Helper struct {
	Platform Platform
	ObjectID string
	Name     string

	Min, Max, Step float64  // input_number
	Options        []string // input_select
}

// EntityID returns the helper's full entity ID.
func (h Helper) EntityID() string { return string(h.Platform) + "." + h.ObjectID }

// levelPercentages spreads N ranks evenly over 1..100, rounding down so
// PercentageSteps maps each level's percentage back to its own rank.
func levelPercentages(n, rank int) int {
	return rank * 100 / n
}
