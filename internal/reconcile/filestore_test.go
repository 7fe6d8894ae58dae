package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/codesource"
	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/store"
)

// Repeated captures of one key against a real store: only the newest capture
// may ever resolve.
func TestRepeatedCaptures_OnlyNewestResolves(t *testing.T) {
	ctx := context.Background()
	fs, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "devices.json"), CreateIfMissing: true})
	if err != nil {
		t.Fatal(err)
	}
	dev := &device.Device{
		ID:                  "dev-fan",
		Name:                "Ceiling Fan",
		StorageName:         "ceiling_fan",
		ControllerReference: "remote.living_room",
		Enabled:             true,
		Commands:            map[string]*device.CommandRecord{},
	}
	if err := fs.Create(ctx, dev); err != nil {
		t.Fatal(err)
	}

	src := &MockSource{}
	p, err := New(Options{Store: fs, Source: src})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	for _, id := range []string{"cap-1", "cap-2"} {
		if _, err := fs.PutPendingCommand(ctx, "dev-fan", "fan_off", device.CodeKindIR, id, now); err != nil {
			t.Fatal(err)
		}
		e := entry(id)
		e.CreatedAt = now
		if err := p.Register(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	// A stale writer racing the poller is rejected by the store.
	if err := fs.ResolveCommand(ctx, "dev-fan", "fan_off", "cap-1", "STALE", now); err == nil {
		t.Fatal("stale capture resolved")
	}

	src.set("ceiling_fan", "fan_off", codesource.Result{Code: "FRESH", Found: true})
	if _, err := p.CheckNow(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := fs.Get(ctx, "dev-fan")
	if err != nil {
		t.Fatal(err)
	}
	rec := got.Commands["fan_off"]
	if rec.Status != device.StatusResolved || rec.Code != "FRESH" || rec.CaptureID != "cap-2" {
		t.Errorf("record = %+v, want resolved FRESH under cap-2", rec)
	}

	// The resolved record is not touched by a later pass.
	src.set("ceiling_fan", "fan_off", codesource.Result{Code: "LATER", Found: true})
	if _, err := p.CheckNow(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ = fs.Get(ctx, "dev-fan")
	if got.Commands["fan_off"].Code != "FRESH" {
		t.Errorf("code changed to %q after resolution", got.Commands["fan_off"].Code)
	}
}
