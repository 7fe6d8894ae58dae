package synth

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-irlearn/internal/detect"
	"github.com/nerrad567/gray-logic-irlearn/internal/device"
)

func resolvedDevice(name, storage string, t device.EntityType, cmds ...string) *device.Device {
	d := &device.Device{
		ID:                  "dev-" + storage,
		Name:                name,
		StorageName:         storage,
		EntityType:          t,
		ControllerReference: "remote.living_room",
		Enabled:             true,
		Commands:            make(map[string]*device.CommandRecord),
	}
	for _, c := range cmds {
		d.Commands[c] = &device.CommandRecord{Name: c, Status: device.StatusResolved, Code: "CODE_" + c, CodeKind: device.CodeKindIR}
	}
	return d
}

func entityOf(t *testing.T, b *Bundle, p Platform) *Entity {
	t.Helper()
	for i := range b.Entities {
		if b.Entities[i].Platform == p {
			return &b.Entities[i]
		}
	}
	t.Fatalf("no %s entity in bundle", p)
	return nil
}

func sends(steps []Step) []string {
	var out []string
	for _, s := range steps {
		if s.Kind == StepSend {
			out = append(out, s.Command)
		}
	}
	return out
}

func TestSynthesize_CeilingFan(t *testing.T) {
	d := resolvedDevice("ceiling_fan", "ceiling_fan", device.EntityTypeAuto, "fan_speed_1", "fan_speed_2", "fan_off")
	b, err := New(Options{}).Synthesize(d)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Entities) != 1 {
		t.Fatalf("entities = %d, want 1", len(b.Entities))
	}
	fan := entityOf(t, b, PlatformFan)

	if got := sends(fan.Actions["turn_off"]); len(got) != 1 || got[0] != "fan_off" {
		t.Errorf("turn_off sends %v, want [fan_off]", got)
	}

	tests := []struct {
		pct  int
		want string
	}{
		{0, "fan_off"},
		{1, "fan_speed_1"},
		{50, "fan_speed_1"},
		{51, "fan_speed_2"},
		{100, "fan_speed_2"},
		{150, "fan_speed_2"},
	}
	for _, tt := range tests {
		got := sends(fan.PercentageSteps(tt.pct))
		if len(got) != 1 || got[0] != tt.want {
			t.Errorf("PercentageSteps(%d) sends %v, want [%s]", tt.pct, got, tt.want)
		}
	}

	if fan.Direction == nil || !fan.Direction.LocalOnly() {
		t.Errorf("Direction = %+v, want local-only axis", fan.Direction)
	}
	if fan.Speeds[0].Percentage != 50 || fan.Speeds[1].Percentage != 100 {
		t.Errorf("speed percentages = %+v", fan.Speeds)
	}
	if fan.UniqueID != "irlearn_ceiling_fan" {
		t.Errorf("UniqueID = %q", fan.UniqueID)
	}
}

func TestSynthesize_FanWithDirectionAndOscillation(t *testing.T) {
	d := resolvedDevice("Tower Fan", "tower_fan", device.EntityTypeAuto, "power", "speed_low", "speed_high", "reverse", "forward", "swing")
	b, err := New(Options{UniqueIDPrefix: "x_"}).Synthesize(d)
	if err != nil {
		t.Fatal(err)
	}
	fan := entityOf(t, b, PlatformFan)
	if fan.Direction.LocalOnly() || fan.Direction.Forward != "forward" || fan.Direction.Reverse != "reverse" {
		t.Errorf("Direction = %+v", fan.Direction)
	}
	if fan.OscillateCommand != "swing" || fan.OscillateHelper == "" {
		t.Errorf("oscillation = %q %q", fan.OscillateCommand, fan.OscillateHelper)
	}
	if got := sends(fan.Actions["turn_off"]); got[0] != "power" {
		t.Errorf("turn_off with toggle only sends %v", got)
	}
}

func TestSynthesize_BinaryLight(t *testing.T) {
	d := resolvedDevice("office_light", "office_light", device.EntityTypeAuto, "light_on", "light_off")
	b, err := New(Options{}).Synthesize(d)
	if err != nil {
		t.Fatal(err)
	}
	light := entityOf(t, b, PlatformLight)
	if len(light.Brightness) != 0 || light.BrightnessHelper != "" {
		t.Error("binary light has a brightness axis")
	}
	if got := sends(light.Actions["turn_on"]); got[0] != "light_on" {
		t.Errorf("turn_on sends %v", got)
	}
	if len(b.Helpers) != 1 || b.Helpers[0].EntityID() != "input_boolean.office_light_state" {
		t.Errorf("helpers = %+v", b.Helpers)
	}
}

func TestSynthesize_LightWithBrightness(t *testing.T) {
	d := resolvedDevice("Lamp", "lamp", device.EntityTypeAuto, "on", "off", "low", "medium", "high", "brighter")
	b, err := New(Options{}).Synthesize(d)
	if err != nil {
		t.Fatal(err)
	}
	light := entityOf(t, b, PlatformLight)
	if len(light.Brightness) != 3 || light.Brightness[2].Percentage != 100 || light.Brightness[0].Percentage != 33 {
		t.Errorf("Brightness = %+v", light.Brightness)
	}
	script := entityOf(t, b, PlatformScript)
	if script.ObjectID != "lamp_brighter" {
		t.Errorf("brightness trigger script = %q", script.ObjectID)
	}
}

func TestSynthesize_MediaPlayerCompanion(t *testing.T) {
	d := resolvedDevice("Living Room TV", "living_room_tv", device.EntityTypeAuto,
		"power", "volume_up", "volume_down", "mute", "channel_up", "netflix")
	b, err := New(Options{}).Synthesize(d)
	if err != nil {
		t.Fatal(err)
	}
	mp := entityOf(t, b, PlatformMediaPlayer)
	sw := entityOf(t, b, PlatformSwitch)
	if mp.Companion != sw.ObjectID || sw.ObjectID != "living_room_tv_power" {
		t.Errorf("companion = %q, switch = %q", mp.Companion, sw.ObjectID)
	}
	if mp.StateHelper != sw.StateHelper {
		t.Error("media player and companion switch track different state")
	}
	for _, action := range []string{"turn_on", "turn_off", "volume_up", "volume_down", "volume_mute"} {
		if _, ok := mp.Actions[action]; !ok {
			t.Errorf("missing media action %s", action)
		}
	}

	var scripts []string
	for _, e := range b.Entities {
		if e.Platform == PlatformScript {
			scripts = append(scripts, e.ObjectID)
		}
	}
	if len(scripts) != 2 || scripts[0] != "living_room_tv_channel_up" || scripts[1] != "living_room_tv_netflix" {
		t.Errorf("scripts = %v", scripts)
	}
}

func TestSynthesize_Cover(t *testing.T) {
	d := resolvedDevice("Blinds", "blinds", device.EntityTypeCover, "open", "close")
	b, err := New(Options{}).Synthesize(d)
	if err != nil {
		t.Fatal(err)
	}
	c := entityOf(t, b, PlatformCover)
	if _, ok := c.Actions["stop_cover"]; ok {
		t.Error("stop_cover without a stop command")
	}
	if len(b.Helpers) != 0 {
		t.Errorf("cover helpers = %+v", b.Helpers)
	}
}

func TestSynthesize_UnknownBecomesScripts(t *testing.T) {
	d := resolvedDevice("Gadget", "gadget", device.EntityTypeAuto, "up", "down")
	b, err := New(Options{}).Synthesize(d)
	if err != nil {
		t.Fatal(err)
	}
	if b.Detection != nil || len(b.Entities) != 2 {
		t.Fatalf("bundle = %+v", b)
	}
	for _, e := range b.Entities {
		if e.Platform != PlatformScript {
			t.Errorf("entity %s platform = %s", e.ObjectID, e.Platform)
		}
	}
}

func TestSynthesize_OnlyResolvedCommands(t *testing.T) {
	d := resolvedDevice("Plug", "plug", device.EntityTypeAuto, "on", "off")
	d.Commands["off"].Status = device.StatusPending
	d.Commands["off"].Code = ""

	b, err := New(Options{}).Synthesize(d)
	if err != nil {
		t.Fatal(err)
	}
	// "on" alone reaches no minimum role set.
	if b.Detection != nil || len(b.Entities) != 1 || b.Entities[0].Platform != PlatformScript {
		t.Errorf("bundle = %+v", b.Entities)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *device.Device)
		wantErr error
	}{
		{"missing controller", func(d *device.Device) { d.ControllerReference = "" }, ErrMissingController},
		{"disabled", func(d *device.Device) { d.Enabled = false }, ErrDisabled},
		{"explicit type missing role", func(d *device.Device) { d.EntityType = device.EntityTypeCover }, detect.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := resolvedDevice("Light", "light", device.EntityTypeAuto, "on", "off")
			tt.mutate(d)
			if _, err := New(Options{}).Synthesize(d); !errors.Is(err, tt.wantErr) {
				t.Errorf("Synthesize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
