package codesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, dir string, debounce time.Duration) *Watcher {
	t.Helper()
	src, err := New(dir, pattern)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(src, debounce)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx) //nolint:errcheck // returns nil on cancel
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func TestNewWatcher_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "storage")
	startWatcher(t, dir, 0)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestWatcher_SignalsOnCodeFileWrite(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, 20*time.Millisecond)

	writeCodes(t, dir, "living_room", `{"version":1,"data":{}}`)

	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after writing a code file")
	}
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, 0)

	if err := os.WriteFile(filepath.Join(dir, "core.entity_registry"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-w.Changes():
		t.Fatal("signalled for a file outside the pattern")
	case <-time.After(200 * time.Millisecond):
	}
}
