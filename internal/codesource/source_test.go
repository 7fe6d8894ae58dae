package codesource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const pattern = "broadlink_remote_%s_codes"

func writeCodes(t *testing.T, dir, objectID, content string) string {
	t.Helper()
	path := filepath.Join(dir, "broadlink_remote_"+objectID+"_codes")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew_Pattern(t *testing.T) {
	if _, err := New(t.TempDir(), "codes.json"); err == nil {
		t.Errorf("New() accepted pattern without %%s")
	}
	if _, err := New(t.TempDir(), "%s_%s"); err == nil {
		t.Errorf("New() accepted pattern with two %%s")
	}
}

func TestFilePath(t *testing.T) {
	src, err := New("/store", pattern)
	if err != nil {
		t.Fatal(err)
	}
	got, err := src.FilePath("remote.living_room")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("/store", "broadlink_remote_living_room_codes"); got != want {
		t.Errorf("FilePath() = %q, want %q", got, want)
	}
	for _, bad := range []string{"", "remote.", "remote.../x", "remote.a/b"} {
		if _, err := src.FilePath(bad); !errors.Is(err, ErrInvalidController) {
			t.Errorf("FilePath(%q) error = %v, want ErrInvalidController", bad, err)
		}
	}
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	writeCodes(t, dir, "living_room", `{
  "version": 1,
  "data": {
    "ceiling_fan": {
      "fan_off": "JgBQAAAB",
      "light_toggle": ["AAA", "BBB"],
      "empty": ""
    }
  }
}`)
	src, err := New(dir, pattern)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		controller string
		storage    string
		command    string
		wantFound  bool
		wantCode   string
	}{
		{"single code", "remote.living_room", "ceiling_fan", "fan_off", true, "JgBQAAAB"},
		{"code list", "remote.living_room", "ceiling_fan", "light_toggle", true, `["AAA","BBB"]`},
		{"empty code", "remote.living_room", "ceiling_fan", "empty", false, ""},
		{"unknown command", "remote.living_room", "ceiling_fan", "fan_on", false, ""},
		{"unknown device", "remote.living_room", "tv", "power", false, ""},
		{"missing file", "remote.bedroom", "tv", "power", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := src.Lookup(tt.controller, tt.storage, tt.command)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if res.Found != tt.wantFound || res.Code != tt.wantCode {
				t.Errorf("Lookup() = %+v, want found=%v code=%q", res, tt.wantFound, tt.wantCode)
			}
		})
	}
}

func TestLookup_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeCodes(t, dir, "lr", `{"version":1,"data":{`)
	src, _ := New(dir, pattern)

	if _, err := src.Lookup("remote.lr", "fan", "off"); !errors.Is(err, ErrMalformed) {
		t.Errorf("Lookup() error = %v, want ErrMalformed", err)
	}
}

func TestLookup_SeesRewrites(t *testing.T) {
	dir := t.TempDir()
	path := writeCodes(t, dir, "lr", `{"version":1,"data":{"fan":{"off":"OLD"}}}`)
	src, _ := New(dir, pattern)

	first, err := src.Lookup("remote.lr", "fan", "off")
	if err != nil || first.Code != "OLD" {
		t.Fatalf("Lookup() = %+v, %v", first, err)
	}

	if err := os.WriteFile(path, []byte(`{"version":1,"data":{"fan":{"off":"NEWER"}}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	later := first.ModTime.Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	second, err := src.Lookup("remote.lr", "fan", "off")
	if err != nil {
		t.Fatal(err)
	}
	if second.Code != "NEWER" || !second.ModTime.After(first.ModTime) {
		t.Errorf("Lookup() after rewrite = %+v", second)
	}
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	writeCodes(t, dir, "lr", `{"version":1,"data":{"fan":{"off":"A","speed_1":"B"}}}`)
	src, _ := New(dir, pattern)

	names, err := src.Commands("remote.lr", "fan")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Errorf("Commands() = %v", names)
	}
}

func TestMatches(t *testing.T) {
	src, _ := New("/d", pattern)
	tests := map[string]bool{
		"broadlink_remote_lr_codes":     true,
		"/d/broadlink_remote_abc_codes": true,
		"broadlink_remote__codes":       false,
		"broadlink_remote_lr_codes.tmp": false,
		"core.config_entries":           false,
	}
	for name, want := range tests {
		if got := src.Matches(name); got != want {
			t.Errorf("Matches(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWatcher_DebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	src, _ := New(dir, pattern)
	w, err := NewWatcher(src, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	for i := 0; i < 5; i++ {
		writeCodes(t, dir, "lr", `{"version":1,"data":{}}`)
	}
	// unrelated files are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal")
	}

	select {
	case <-w.Changes():
		t.Error("burst produced more than one signal")
	case <-time.After(200 * time.Millisecond):
	}
}
