package detect

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
)

// Role is a canonical entity capability.
type Role string

// Roles.
const (
	RoleTurnOn  Role = "turn_on"
	RoleTurnOff Role = "turn_off"
	RoleToggle  Role = "toggle"

	RoleDirectionForward Role = "direction_forward"
	RoleDirectionReverse Role = "direction_reverse"
	RoleDirectionToggle  Role = "direction_toggle"
	RoleOscillate        Role = "oscillate"

	RoleBrightnessUp   Role = "brightness_up"
	RoleBrightnessDown Role = "brightness_down"

	RolePlay        Role = "play"
	RolePause       Role = "pause"
	RolePlayPause   Role = "play_pause"
	RoleStop        Role = "stop"
	RoleNext        Role = "next"
	RolePrevious    Role = "previous"
	RoleRewind      Role = "rewind"
	RoleFastForward Role = "fast_forward"
	RoleVolumeUp    Role = "volume_up"
	RoleVolumeDown  Role = "volume_down"
	RoleMute        Role = "mute"
	RoleChannelUp   Role = "channel_up"
	RoleChannelDown Role = "channel_down"
	RoleSource      Role = "source"

	RoleOpen  Role = "open"
	RoleClose Role = "close"
)

var powerRoles = []Role{RoleTurnOn, RoleTurnOff, RoleToggle}

// mediaRoles count towards the media player minimum.
var mediaRoles = []Role{
	RolePlay, RolePause, RolePlayPause, RoleStop, RoleNext, RolePrevious,
	RoleRewind, RoleFastForward, RoleVolumeUp, RoleVolumeDown, RoleMute,
	RoleChannelUp, RoleChannelDown, RoleSource,
}

// typeRoles lists the roles each entity type can consume.
var typeRoles = map[device.EntityType][]Role{
	device.EntityTypeLight:  append([]Role{RoleBrightnessUp, RoleBrightnessDown}, powerRoles...),
	device.EntityTypeSwitch: powerRoles,
	device.EntityTypeFan: append([]Role{
		RoleDirectionForward, RoleDirectionReverse, RoleDirectionToggle, RoleOscillate,
	}, powerRoles...),
	device.EntityTypeCover:       {RoleOpen, RoleClose, RoleStop},
	device.EntityTypeMediaPlayer: append(append([]Role{}, mediaRoles...), powerRoles...),
}

// typeKeywords give a type a score bonus when they appear in the device or
// command names.
var typeKeywords = map[device.EntityType][]string{
	device.EntityTypeLight:       {"light", "lights", "lamp", "bulb", "led", "chandelier"},
	device.EntityTypeFan:         {"fan", "fans", "ventilator", "ventilador"},
	device.EntityTypeSwitch:      {"switch", "plug", "outlet", "socket", "relay"},
	device.EntityTypeCover:       {"cover", "blind", "blinds", "shade", "shades", "curtain", "curtains", "shutter", "shutters", "awning", "garage"},
	device.EntityTypeMediaPlayer: {"tv", "television", "receiver", "soundbar", "stereo", "speaker", "media", "projector", "amplifier", "amp", "radio", "player", "avr"},
}

// namedLevels weight named speed or brightness levels on one ordinal axis.
var namedLevels = map[string]float64{
	"lowest": 1, "min": 1, "minimum": 1,
	"low":    2,
	"medium": 3, "med": 3, "mid": 3, "middle": 3,
	"high":    4,
	"highest": 5, "max": 5, "maximum": 5,
	"turbo": 6, "boost": 6,
}

type featureKind int

const (
	featNone featureKind = iota
	featRole
	featSpeed      // explicitly a fan speed
	featBrightness // explicitly a brightness level
	featLevel      // a bare level; speed on a fan, brightness on a light
)

type feature struct {
	kind   featureKind
	role   Role
	weight float64
	named  bool // weight came from a level word, not a number
}

// tokenize lower-cases name, splits it on separators and at letter/digit
// boundaries ("speed1" becomes "speed", "1").
func tokenize(name string) []string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || unicode.IsSpace(r)
	})

	var tokens []string
	for _, f := range fields {
		start := 0
		runes := []rune(f)
		for i := 1; i < len(runes); i++ {
			if unicode.IsDigit(runes[i]) != unicode.IsDigit(runes[i-1]) {
				tokens = append(tokens, string(runes[start:i]))
				start = i
			}
		}
		tokens = append(tokens, string(runes[start:]))
	}
	return tokens
}

type tokenSet map[string]bool

func newTokenSet(tokens []string) tokenSet {
	s := make(tokenSet, len(tokens))
	for _, t := range tokens {
		s[t] = true
	}
	return s
}

func (s tokenSet) any(words ...string) bool {
	for _, w := range words {
		if s[w] {
			return true
		}
	}
	return false
}

// number returns the first numeric token.
func number(tokens []string) (float64, bool) {
	for _, t := range tokens {
		if n, err := strconv.Atoi(t); err == nil {
			return float64(n), true
		}
	}
	return 0, false
}

// namedLevel returns the weight of the first named level token.
func namedLevel(tokens []string) (float64, bool) {
	for _, t := range tokens {
		if w, ok := namedLevels[t]; ok {
			return w, true
		}
	}
	return 0, false
}

// classify maps one command name to the feature it expresses. Rules are
// checked most specific first.
func classify(tokens []string) feature {
	s := newTokenSet(tokens)
	role := func(r Role) feature { return feature{kind: featRole, role: r} }
	up := s.any("up", "plus", "increase", "inc")
	down := s.any("down", "minus", "decrease", "dec")

	switch {
	case s["play"] && s["pause"], s["playpause"]:
		return role(RolePlayPause)
	case s["fast"] && s["forward"], s.any("ff", "fastforward"):
		return role(RoleFastForward)
	case s.any("rewind", "rew"):
		return role(RoleRewind)
	case s["play"]:
		return role(RolePlay)
	case s["pause"]:
		return role(RolePause)
	case s.any("next", "skip"):
		return role(RoleNext)
	case s.any("previous", "prev"):
		return role(RolePrevious)
	case s.any("volume", "vol") && up:
		return role(RoleVolumeUp)
	case s.any("volume", "vol") && down:
		return role(RoleVolumeDown)
	case s["mute"]:
		return role(RoleMute)
	case s.any("channel", "ch") && up:
		return role(RoleChannelUp)
	case s.any("channel", "ch") && down:
		return role(RoleChannelDown)
	case s.any("source", "input"):
		return role(RoleSource)
	case s["open"]:
		return role(RoleOpen)
	case s["close"]:
		return role(RoleClose)
	case s["stop"]:
		return role(RoleStop)
	case s["forward"]:
		return role(RoleDirectionForward)
	case s["reverse"]:
		return role(RoleDirectionReverse)
	case s["direction"]:
		return role(RoleDirectionToggle)
	case s.any("oscillate", "oscillation", "oscillating", "swing"):
		return role(RoleOscillate)
	}

	if s.any("brightness", "bright", "brighter", "dim", "dimmer") {
		if n, ok := number(tokens); ok {
			return feature{kind: featBrightness, weight: n}
		}
		if w, ok := namedLevel(tokens); ok {
			return feature{kind: featBrightness, weight: w, named: true}
		}
		switch {
		case s["brighter"] || up:
			return role(RoleBrightnessUp)
		case s.any("dim", "dimmer") || down:
			return role(RoleBrightnessDown)
		}
	}

	if s["speed"] || s["fan"] {
		if n, ok := number(tokens); ok {
			return feature{kind: featSpeed, weight: n}
		}
	}
	if w, ok := namedLevel(tokens); ok {
		if s["speed"] {
			return feature{kind: featSpeed, weight: w, named: true}
		}
		return feature{kind: featLevel, weight: w, named: true}
	}

	switch {
	case s["on"] && s["off"], s["toggle"]:
		return role(RoleToggle)
	case s["on"]:
		return role(RoleTurnOn)
	case s["off"]:
		return role(RoleTurnOff)
	case s["power"]:
		return role(RoleToggle)
	}
	return feature{}
}
