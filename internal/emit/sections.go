package emit

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nerrad567/gray-logic-irlearn/internal/synth"
)

const maxBrightness = 255

func (e *Emitter) common(en synth.Entity) map[string]any {
	m := map[string]any{
		"friendly_name": en.Name,
		"unique_id":     en.UniqueID,
	}
	if en.Icon != "" {
		m["icon_template"] = en.Icon
	}
	return m
}

func isOn(helper string) string {
	return fmt.Sprintf("{{ is_state('%s', 'on') }}", helper)
}

func (e *Emitter) light(en synth.Entity) map[string]any {
	m := e.common(en)
	m["value_template"] = isOn(en.StateHelper)
	m["turn_on"] = e.steps(en, en.Actions["turn_on"])
	m["turn_off"] = e.steps(en, en.Actions["turn_off"])

	if len(en.Brightness) > 0 {
		// The helper holds 0-100; the light platform speaks 0-255.
		m["level_template"] = fmt.Sprintf(
			"{{ (states('%s') | float(0) * %d / 100) | round(0) | int }}", en.BrightnessHelper, maxBrightness)

		options := []any{map[string]any{
			"conditions": "{{ brightness | int == 0 }}",
			"sequence":   e.steps(en, en.Actions["turn_off"]),
		}}
		for _, l := range en.Brightness {
			steps := []synth.Step{synth.Send(l.Command), synth.SetState(en.StateHelper, "on"),
				synth.SetState(en.BrightnessHelper, strconv.Itoa(l.Percentage))}
			options = append(options, map[string]any{
				"conditions": fmt.Sprintf("{{ brightness | int <= %d }}", toBrightness(l.Percentage)),
				"sequence":   e.steps(en, steps),
			})
		}
		m["set_level"] = []any{map[string]any{"choose": options}}
	}
	return m
}

// toBrightness converts a 0-100 percentage to the 0-255 scale.
func toBrightness(pct int) int {
	return int(math.Round(float64(pct) * maxBrightness / 100))
}

func (e *Emitter) fan(en synth.Entity) map[string]any {
	m := e.common(en)
	m["value_template"] = isOn(en.StateHelper)
	m["turn_on"] = e.steps(en, en.Actions["turn_on"])
	m["turn_off"] = e.steps(en, en.Actions["turn_off"])

	if n := len(en.Speeds); n > 0 {
		m["speed_count"] = n
		m["percentage_template"] = fmt.Sprintf("{{ states('%s') | int(0) }}", en.PercentageHelper)

		options := []any{map[string]any{
			"conditions": "{{ percentage | int == 0 }}",
			"sequence":   e.steps(en, en.PercentageSteps(0)),
		}}
		for _, l := range en.Speeds {
			options = append(options, map[string]any{
				"conditions": fmt.Sprintf("{{ percentage | int <= %d }}", l.Percentage),
				"sequence":   e.steps(en, en.PercentageSteps(l.Percentage)),
			})
		}
		m["set_percentage"] = []any{map[string]any{"choose": options}}
	}

	if dir := en.Direction; dir != nil {
		m["direction_template"] = fmt.Sprintf("{{ states('%s') }}", dir.Helper)
		var seq []any
		switch {
		case dir.Toggle != "":
			seq = append(seq, e.step(en, synth.Send(dir.Toggle)))
		case dir.Forward != "" || dir.Reverse != "":
			var options []any
			for _, opt := range []struct{ value, cmd string }{{"forward", dir.Forward}, {"reverse", dir.Reverse}} {
				if opt.cmd == "" {
					continue
				}
				options = append(options, map[string]any{
					"conditions": fmt.Sprintf("{{ direction == '%s' }}", opt.value),
					"sequence":   e.steps(en, []synth.Step{synth.Send(opt.cmd)}),
				})
			}
			seq = append(seq, map[string]any{"choose": options})
		}
		seq = append(seq, e.step(en, synth.SetState(dir.Helper, "{{ direction }}")))
		m["set_direction"] = seq
	}

	if en.OscillateCommand != "" {
		m["oscillating_template"] = isOn(en.OscillateHelper)
		m["set_oscillating"] = []any{
			e.step(en, synth.Send(en.OscillateCommand)),
			map[string]any{
				"service": "input_boolean.turn_{{ 'on' if oscillating else 'off' }}",
				"target":  map[string]any{"entity_id": en.OscillateHelper},
			},
		}
	}
	return m
}

func (e *Emitter) switchEntity(en synth.Entity) map[string]any {
	m := e.common(en)
	m["value_template"] = isOn(en.StateHelper)
	m["turn_on"] = e.steps(en, en.Actions["turn_on"])
	m["turn_off"] = e.steps(en, en.Actions["turn_off"])
	return m
}

func (e *Emitter) cover(en synth.Entity) map[string]any {
	m := e.common(en)
	m["optimistic"] = true
	for _, action := range []string{"open_cover", "close_cover", "stop_cover"} {
		if steps, ok := en.Actions[action]; ok {
			m[action] = e.steps(en, steps)
		}
	}
	return m
}

func (e *Emitter) mediaPlayer(en synth.Entity) map[string]any {
	m := map[string]any{
		"platform":  "universal",
		"name":      en.Name,
		"unique_id": en.UniqueID,
	}
	if en.StateHelper != "" {
		m["state_template"] = fmt.Sprintf("{{ 'on' if is_state('%s', 'on') else 'off' }}", en.StateHelper)
	}
	commands := make(map[string]any, len(en.Actions))
	for action, steps := range en.Actions {
		commands[action] = e.steps(en, steps)
	}
	m["commands"] = commands
	return m
}

func (e *Emitter) script(en synth.Entity) map[string]any {
	m := map[string]any{
		"alias":    en.Name,
		"sequence": e.steps(en, en.Actions["sequence"]),
		"mode":     "queued",
	}
	if en.Icon != "" {
		m["icon"] = en.Icon
	}
	return m
}

func helperConfig(h synth.Helper) map[string]any {
	m := map[string]any{"name": h.Name}
	switch h.Platform {
	case synth.PlatformInputNumber:
		m["min"] = h.Min
		m["max"] = h.Max
		m["step"] = h.Step
		m["mode"] = "slider"
	case synth.PlatformInputSelect:
		m["options"] = h.Options
	}
	return m
}

func (e *Emitter) steps(en synth.Entity, steps []synth.Step) []any {
	out := make([]any, 0, len(steps))
	for _, s := range steps {
		out = append(out, e.step(en, s))
	}
	return out
}

// step renders one action step as a service call.
func (e *Emitter) step(en synth.Entity, s synth.Step) map[string]any {
	if s.Kind == synth.StepSend {
		return map[string]any{
			"service": "remote.send_command",
			"target":  map[string]any{"entity_id": e.controllerEntity(en.Controller)},
			"data": map[string]any{
				"device":  en.StorageName,
				"command": s.Command,
			},
		}
	}

	target := map[string]any{"entity_id": s.Helper}
	switch s.HelperPlatform() {
	case synth.PlatformInputNumber:
		return map[string]any{
			"service": "input_number.set_value",
			"target":  target,
			"data":    map[string]any{"value": scalar(s.Value)},
		}
	case synth.PlatformInputSelect:
		return map[string]any{
			"service": "input_select.select_option",
			"target":  target,
			"data":    map[string]any{"option": s.Value},
		}
	default:
		return map[string]any{
			"service": "input_boolean.turn_" + s.Value,
			"target":  target,
		}
	}
}

// scalar emits numeric values as numbers and templates as strings.
func scalar(v string) any {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return v
}
