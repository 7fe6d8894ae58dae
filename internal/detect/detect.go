// Package detect infers what kind of entity a device is from the names of
// its commands, and which command fulfils each capability.
//
// Detection is deterministic and independent of command order. Speed and
// brightness levels are ranked on an ordinal axis by level weight, so
// {speed_low, speed_high} ranks {1, 2} and adding speed_medium re-ranks to
// {1, 2, 3}. Level words and numbers share the axis; {speed_low, speed_2,
// speed_3} keeps all three.
package detect

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
)

// keywordBonus is added to a type's score when its keyword appears.
const keywordBonus = 2

// typePriority breaks score ties.
var typePriority = []device.EntityType{
	device.EntityTypeFan,
	device.EntityTypeCover,
	device.EntityTypeMediaPlayer,
	device.EntityTypeLight,
	device.EntityTypeSwitch,
}

// Level is one step of an ordinal axis.
type Level struct {
	Rank    int     `json:"rank"`
	Command string  `json:"command"`
	Weight  float64 `json:"weight"`

	named bool
}

// levelKey identifies a true duplicate level: speed_max next to
// speed_highest, or speed_1 next to fan_speed_1.
type levelKey struct {
	weight float64
	named  bool
}

// Result is the role map for one device.
type Result struct {
	EntityType device.EntityType `json:"entity_type"`
	Roles      map[Role]string   `json:"roles"`

	// Speeds and Brightness are ordered by rank, starting at 1.
	Speeds     []Level `json:"speeds,omitempty"`
	Brightness []Level `json:"brightness,omitempty"`

	// Unmapped commands fill no role of the entity type.
	Unmapped []string `json:"unmapped,omitempty"`

	score   int
	keyword bool
}

// Command returns the command fulfilling role.
func (r *Result) Command(role Role) (string, bool) {
	cmd, ok := r.Roles[role]
	return cmd, ok
}

// HasPower reports whether the entity can be switched on and off, either
// with a dedicated pair or a toggle.
func (r *Result) HasPower() bool {
	_, on := r.Roles[RoleTurnOn]
	_, off := r.Roles[RoleTurnOff]
	_, toggle := r.Roles[RoleToggle]
	return (on && off) || toggle
}

// TurnOff returns the command that turns the entity off: an explicit off
// command, else the toggle, else the lowest speed.
func (r *Result) TurnOff() string {
	if cmd, ok := r.Roles[RoleTurnOff]; ok {
		return cmd
	}
	if cmd, ok := r.Roles[RoleToggle]; ok {
		return cmd
	}
	if len(r.Speeds) > 0 {
		return r.Speeds[0].Command
	}
	return ""
}

// TurnOn returns the command that turns the entity on: an explicit on
// command, else the toggle, else the lowest speed.
func (r *Result) TurnOn() string {
	if cmd, ok := r.Roles[RoleTurnOn]; ok {
		return cmd
	}
	if cmd, ok := r.Roles[RoleToggle]; ok {
		return cmd
	}
	if len(r.Speeds) > 0 {
		return r.Speeds[0].Command
	}
	return ""
}

// Detect picks the entity type for a device. It returns ErrUnknown when no
// type reaches its minimum role set.
func Detect(deviceName string, commandNames []string) (*Result, error) {
	cmds := parse(commandNames)
	nameTokens := tokenize(deviceName)

	var best *Result
	for _, t := range typePriority {
		r := assign(t, cmds, nameTokens)
		if viable(r) != nil {
			continue
		}
		if best == nil || r.score > best.score {
			best = r
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %q %v", ErrUnknown, deviceName, sortedNames(commandNames))
	}
	return best, nil
}

// Classify builds the role map for a device with an explicit entity type.
// An auto type falls back to Detect. A type missing a required role fails
// with ErrValidation.
func Classify(deviceName string, commandNames []string, t device.EntityType) (*Result, error) {
	if t.IsAuto() {
		return Detect(deviceName, commandNames)
	}
	if _, ok := typeRoles[t]; !ok {
		return nil, fmt.Errorf("%w: %q", device.ErrInvalidEntityType, t)
	}
	r := assign(t, parse(commandNames), tokenize(deviceName))
	if err := viable(r); err != nil {
		return nil, fmt.Errorf("%q as %s: %w", deviceName, t, err)
	}
	return r, nil
}

type parsedCommand struct {
	name   string
	tokens []string
	feat   feature
}

// parse dedupes and orders commands so that on a collision the command with
// fewer tokens wins, then the lexicographically smaller name.
func parse(names []string) []parsedCommand {
	seen := make(map[string]bool, len(names))
	cmds := make([]parsedCommand, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		tokens := tokenize(n)
		cmds = append(cmds, parsedCommand{name: n, tokens: tokens, feat: classify(tokens)})
	}
	sort.Slice(cmds, func(i, j int) bool {
		if len(cmds[i].tokens) != len(cmds[j].tokens) {
			return len(cmds[i].tokens) < len(cmds[j].tokens)
		}
		return cmds[i].name < cmds[j].name
	})
	return cmds
}

func assign(t device.EntityType, cmds []parsedCommand, nameTokens []string) *Result {
	r := &Result{EntityType: t, Roles: make(map[Role]string)}
	allowed := typeRoles[t]
	speedLevels := make(map[levelKey]bool)
	brightLevels := make(map[levelKey]bool)

	for _, c := range cmds {
		f := c.feat
		claimed := false
		switch {
		case f.kind == featRole && slices.Contains(allowed, f.role):
			if _, taken := r.Roles[f.role]; !taken {
				r.Roles[f.role] = c.name
				claimed = true
			}
		case t == device.EntityTypeFan && (f.kind == featSpeed || f.kind == featLevel):
			if k := (levelKey{f.weight, f.named}); !speedLevels[k] {
				speedLevels[k] = true
				r.Speeds = append(r.Speeds, Level{Command: c.name, Weight: f.weight, named: f.named})
				claimed = true
			}
		case t == device.EntityTypeLight && (f.kind == featBrightness || f.kind == featLevel):
			if k := (levelKey{f.weight, f.named}); !brightLevels[k] {
				brightLevels[k] = true
				r.Brightness = append(r.Brightness, Level{Command: c.name, Weight: f.weight, named: f.named})
				claimed = true
			}
		}
		if !claimed {
			r.Unmapped = append(r.Unmapped, c.name)
		}
	}

	rank(r.Speeds)
	rank(r.Brightness)
	sort.Strings(r.Unmapped)

	r.keyword = hasKeyword(t, nameTokens, cmds)
	r.score = len(r.Roles) + len(r.Speeds) + len(r.Brightness)
	if r.keyword {
		r.score += keywordBonus
	}
	return r
}

// rank orders levels by weight, a level word before a number of the same
// weight, then name, and numbers them from 1.
func rank(levels []Level) {
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Weight != levels[j].Weight {
			return levels[i].Weight < levels[j].Weight
		}
		if levels[i].named != levels[j].named {
			return levels[i].named
		}
		return levels[i].Command < levels[j].Command
	})
	for i := range levels {
		levels[i].Rank = i + 1
	}
}

func hasKeyword(t device.EntityType, nameTokens []string, cmds []parsedCommand) bool {
	words := typeKeywords[t]
	for _, tok := range nameTokens {
		if slices.Contains(words, tok) {
			return true
		}
	}
	for _, c := range cmds {
		for _, tok := range c.tokens {
			if slices.Contains(words, tok) {
				return true
			}
		}
	}
	return false
}

// viable checks the minimum role set of r's entity type.
func viable(r *Result) error {
	var missing string
	switch r.EntityType {
	case device.EntityTypeLight, device.EntityTypeSwitch:
		if !r.HasPower() {
			missing = "turn_on and turn_off, or toggle"
		}
	case device.EntityTypeFan:
		if len(r.Speeds) == 0 && !(r.keyword && r.HasPower()) {
			missing = "a speed level, or power commands on a fan"
		}
	case device.EntityTypeCover:
		_, open := r.Roles[RoleOpen]
		_, closing := r.Roles[RoleClose]
		if !open || !closing {
			missing = "open and close"
		}
	case device.EntityTypeMediaPlayer:
		n := 0
		for _, role := range mediaRoles {
			if _, ok := r.Roles[role]; ok {
				n++
			}
		}
		if n < 2 && !(r.keyword && n >= 1) {
			missing = "two media commands"
		}
	default:
		missing = "a known entity type"
	}
	if missing != "" {
		return fmt.Errorf("%w: needs %s", ErrValidation, missing)
	}
	return nil
}

func sortedNames(names []string) []string {
	out := slices.Clone(names)
	sort.Strings(out)
	return slices.Compact(out)
}

// String describes the result for logs.
func (r *Result) String() string {
	roles := make([]string, 0, len(r.Roles))
	for role, cmd := range r.Roles {
		roles = append(roles, string(role)+"="+cmd)
	}
	sort.Strings(roles)
	return fmt.Sprintf("%s{%s speeds=%d brightness=%d unmapped=%d}",
		r.EntityType, strings.Join(roles, " "), len(r.Speeds), len(r.Brightness), len(r.Unmapped))
}
