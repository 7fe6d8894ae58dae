// Package synth turns a device's resolved commands into typed entity
// definitions: the primary entity for its detected type, the helpers that
// track its state locally, and one script per command that fills no role.
package synth

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/nerrad567/gray-logic-irlearn/internal/detect"
	"github.com/nerrad567/gray-logic-irlearn/internal/device"
)

// Options configures a Synthesizer.
type Options struct {
	// UniqueIDPrefix is prepended to every unique_id. Default "irlearn_".
	UniqueIDPrefix string
}

// Bundle is everything synthesised for one device.
type Bundle struct {
	Device    *device.Device
	Detection *detect.Result // nil when only scripts were produced
	Entities  []Entity
	Helpers   []Helper
}

// Synthesizer builds entity bundles. It is stateless and safe for
// concurrent use.
type Synthesizer struct {
	uniquePrefix string
}

// New creates a Synthesizer.
func New(opts Options) *Synthesizer {
	prefix := opts.UniqueIDPrefix
	if prefix == "" {
		prefix = "irlearn_"
	}
	return &Synthesizer{uniquePrefix: prefix}
}

// Synthesize builds the bundle for d from its resolved commands.
//
// A device whose type is detected automatically but matches no type still
// gets one script per command. A device with an explicit type that lacks a
// required role fails with detect.ErrValidation.
func (s *Synthesizer) Synthesize(d *device.Device) (*Bundle, error) {
	if !d.Enabled {
		return nil, fmt.Errorf("device %s: %w", d.ID, ErrDisabled)
	}
	if d.ControllerReference == "" {
		return nil, fmt.Errorf("device %s (%s): %w", d.ID, d.Name, ErrMissingController)
	}

	b := &Bundle{Device: d}
	cmds := d.ResolvedCommands()
	if len(cmds) == 0 {
		return b, nil
	}

	res, err := detect.Classify(d.Name, cmds, d.EntityType)
	switch {
	case err == nil:
	case errors.Is(err, detect.ErrUnknown):
		s.addScripts(b, cmds)
		return b, nil
	default:
		return nil, fmt.Errorf("device %s (%s): %w", d.ID, d.Name, err)
	}
	b.Detection = res

	var extra []string
	switch res.EntityType {
	case device.EntityTypeLight:
		extra = s.light(b, res)
	case device.EntityTypeFan:
		s.fan(b, res)
	case device.EntityTypeSwitch:
		s.switchEntity(b, res)
	case device.EntityTypeCover:
		s.cover(b, res)
	case device.EntityTypeMediaPlayer:
		extra = s.mediaPlayer(b, res)
	}

	s.addScripts(b, append(extra, res.Unmapped...))
	return b, nil
}

func (s *Synthesizer) base(d *device.Device, p Platform, objectID, name string) Entity {
	return Entity{
		Platform:    p,
		ObjectID:    objectID,
		Name:        name,
		UniqueID:    s.uniquePrefix + objectID,
		DeviceID:    d.ID,
		Controller:  d.ControllerReference,
		StorageName: d.StorageName,
		Icon:        d.Icon,
		Area:        d.Area,
		Actions:     make(map[string][]Step),
	}
}

func (b *Bundle) helper(h Helper) string {
	b.Helpers = append(b.Helpers, h)
	return h.EntityID()
}

func (b *Bundle) stateHelper() string {
	d := b.Device
	return b.helper(Helper{Platform: PlatformInputBoolean, ObjectID: d.StorageName + "_state", Name: d.Name + " State"})
}

// powerActions fills turn_on and turn_off. With only a toggle both send the
// toggle and the helper keeps track of which state the device is in.
func powerActions(e *Entity, res *detect.Result) {
	e.Actions["turn_on"] = []Step{Send(res.TurnOn()), SetState(e.StateHelper, "on")}
	e.Actions["turn_off"] = []Step{Send(res.TurnOff()), SetState(e.StateHelper, "off")}
}

func (s *Synthesizer) light(b *Bundle, res *detect.Result) []string {
	d := b.Device
	e := s.base(d, PlatformLight, d.StorageName, d.Name)
	e.StateHelper = b.stateHelper()
	powerActions(&e, res)

	if n := len(res.Brightness); n > 0 {
		e.BrightnessHelper = b.helper(Helper{
			Platform: PlatformInputNumber, ObjectID: d.StorageName + "_brightness",
			Name: d.Name + " Brightness", Min: 0, Max: 100, Step: 1,
		})
		for _, l := range res.Brightness {
			e.Brightness = append(e.Brightness, Level{Rank: l.Rank, Command: l.Command, Percentage: levelPercentages(n, l.Rank)})
		}
	}
	b.Entities = append(b.Entities, e)

	var extra []string
	for _, role := range []detect.Role{detect.RoleBrightnessUp, detect.RoleBrightnessDown} {
		if cmd, ok := res.Command(role); ok {
			extra = append(extra, cmd)
		}
	}
	return extra
}

func (s *Synthesizer) fan(b *Bundle, res *detect.Result) {
	d := b.Device
	e := s.base(d, PlatformFan, d.StorageName, d.Name)
	e.StateHelper = b.stateHelper()

	n := len(res.Speeds)
	if n > 0 {
		e.PercentageHelper = b.helper(Helper{
			Platform: PlatformInputNumber, ObjectID: d.StorageName + "_percentage",
			Name: d.Name + " Percentage", Min: 0, Max: 100, Step: 1,
		})
		for _, l := range res.Speeds {
			e.Speeds = append(e.Speeds, Level{Rank: l.Rank, Command: l.Command, Percentage: levelPercentages(n, l.Rank)})
		}
	}

	powerActions(&e, res)
	if e.PercentageHelper != "" {
		e.Actions["turn_off"] = append(e.Actions["turn_off"], SetState(e.PercentageHelper, "0"))
		// Turning on without a percentage resumes at the lowest speed when
		// that is what was sent.
		if res.TurnOn() == e.Speeds[0].Command {
			e.Actions["turn_on"] = append(e.Actions["turn_on"], SetState(e.PercentageHelper, strconv.Itoa(e.Speeds[0].Percentage)))
		}
	}

	dir := &Direction{
		Helper: b.helper(Helper{
			Platform: PlatformInputSelect, ObjectID: d.StorageName + "_direction",
			Name: d.Name + " Direction", Options: []string{"forward", "reverse"},
		}),
	}
	dir.Forward, _ = res.Command(detect.RoleDirectionForward)
	dir.Reverse, _ = res.Command(detect.RoleDirectionReverse)
	dir.Toggle, _ = res.Command(detect.RoleDirectionToggle)
	e.Direction = dir

	if cmd, ok := res.Command(detect.RoleOscillate); ok {
		e.OscillateCommand = cmd
		e.OscillateHelper = b.helper(Helper{
			Platform: PlatformInputBoolean, ObjectID: d.StorageName + "_oscillating",
			Name: d.Name + " Oscillating",
		})
	}
	b.Entities = append(b.Entities, e)
}

func (s *Synthesizer) switchEntity(b *Bundle, res *detect.Result) {
	d := b.Device
	e := s.base(d, PlatformSwitch, d.StorageName, d.Name)
	e.StateHelper = b.stateHelper()
	powerActions(&e, res)
	b.Entities = append(b.Entities, e)
}

func (s *Synthesizer) cover(b *Bundle, res *detect.Result) {
	d := b.Device
	e := s.base(d, PlatformCover, d.StorageName, d.Name)
	for role, action := range map[detect.Role]string{
		detect.RoleOpen:  "open_cover",
		detect.RoleClose: "close_cover",
		detect.RoleStop:  "stop_cover",
	} {
		if cmd, ok := res.Command(role); ok {
			e.Actions[action] = []Step{Send(cmd)}
		}
	}
	b.Entities = append(b.Entities, e)
}

// mediaActions maps roles to media player command names.
var mediaActions = map[detect.Role]string{
	detect.RolePlay:       "media_play",
	detect.RolePause:      "media_pause",
	detect.RolePlayPause:  "media_play_pause",
	detect.RoleStop:       "media_stop",
	detect.RoleNext:       "media_next_track",
	detect.RolePrevious:   "media_previous_track",
	detect.RoleVolumeUp:   "volume_up",
	detect.RoleVolumeDown: "volume_down",
	detect.RoleMute:       "volume_mute",
	detect.RoleSource:     "select_source",
}

// mediaTriggers have no media player command and become scripts.
var mediaTriggers = []detect.Role{
	detect.RoleChannelUp, detect.RoleChannelDown, detect.RoleRewind, detect.RoleFastForward,
}

func (s *Synthesizer) mediaPlayer(b *Bundle, res *detect.Result) []string {
	d := b.Device
	e := s.base(d, PlatformMediaPlayer, d.StorageName, d.Name)

	if res.HasPower() {
		power := s.base(d, PlatformSwitch, d.StorageName+"_power", d.Name+" Power")
		power.StateHelper = b.stateHelper()
		powerActions(&power, res)
		e.StateHelper = power.StateHelper
		e.Companion = power.ObjectID
		e.Actions["turn_on"] = power.Actions["turn_on"]
		e.Actions["turn_off"] = power.Actions["turn_off"]
		b.Entities = append(b.Entities, power)
	}

	for role, action := range mediaActions {
		if cmd, ok := res.Command(role); ok {
			e.Actions[action] = []Step{Send(cmd)}
		}
	}
	b.Entities = append(b.Entities, e)

	var extra []string
	for _, role := range mediaTriggers {
		if cmd, ok := res.Command(role); ok {
			extra = append(extra, cmd)
		}
	}
	return extra
}

// addScripts emits one stateless script per command.
func (s *Synthesizer) addScripts(b *Bundle, cmds []string) {
	d := b.Device
	used := make(map[string]bool)
	for _, cmd := range sortedUnique(cmds) {
		objectID := d.StorageName + "_" + device.GenerateStorageName(cmd)
		for i := 2; used[objectID]; i++ {
			objectID = fmt.Sprintf("%s_%s_%d", d.StorageName, device.GenerateStorageName(cmd), i)
		}
		used[objectID] = true

		e := s.base(d, PlatformScript, objectID, d.Name+" "+cmd)
		e.Actions["sequence"] = []Step{Send(cmd)}
		b.Entities = append(b.Entities, e)
	}
}

func sortedUnique(in []string) []string {
	out := slices.Clone(in)
	sort.Strings(out)
	return slices.Compact(out)
}
