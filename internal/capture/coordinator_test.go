package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/codesource"
	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/history"
	"github.com/nerrad567/gray-logic-irlearn/internal/reconcile"
	"github.com/nerrad567/gray-logic-irlearn/internal/teaching"
)

// MockStore is an in-memory device store.
type MockStore struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newMockStore(devs ...*device.Device) *MockStore {
	m := &MockStore{devices: make(map[string]*device.Device)}
	for _, d := range devs {
		m.devices[d.ID] = d
	}
	return m
}

func (m *MockStore) Get(_ context.Context, id string) (*device.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, device.ErrNotFound)
	}
	return d.DeepCopy(), nil
}

func (m *MockStore) PutPendingCommand(_ context.Context, deviceID, name string, kind device.CodeKind,
	captureID string, at time.Time) (*device.CommandRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return nil, device.ErrNotFound
	}
	rec := &device.CommandRecord{Name: name, Status: device.StatusPending, CodeKind: kind, CaptureID: captureID, LearnedAt: at}
	d.Commands[name] = rec
	return rec, nil
}

func (m *MockStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, id)
	return nil
}

func (m *MockStore) DeleteCommand(_ context.Context, deviceID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices[deviceID].Commands, name)
	return nil
}

// MockLearner returns canned errors for directives.
type MockLearner struct {
	mu        sync.Mutex
	learnErr  error
	deleteErr error
	block     bool
	learns    []teaching.LearnRequest
	deletes   []teaching.DeleteRequest
	onDelete  func(teaching.DeleteRequest)
}

func (m *MockLearner) Learn(ctx context.Context, req teaching.LearnRequest) error {
	m.mu.Lock()
	m.learns = append(m.learns, req)
	block, err := m.block, m.learnErr
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return fmt.Errorf("%w: learn directive", teaching.ErrAckTimeout)
	}
	return err
}

func (m *MockLearner) Delete(_ context.Context, req teaching.DeleteRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, req)
	if m.deleteErr == nil && m.onDelete != nil {
		m.onDelete(req)
	}
	return m.deleteErr
}

// MockPoller records registrations. When gate is set the first Register
// signals entered and waits for gate to close.
type MockPoller struct {
	mu         sync.Mutex
	registered []reconcile.PendingReconciliation
	forgotten  []reconcile.Key
	forgotDevs []string
	gate       chan struct{}
	entered    chan struct{}
	calls      int
}

func (m *MockPoller) Register(_ context.Context, e reconcile.PendingReconciliation) error {
	m.mu.Lock()
	m.calls++
	wait := m.gate != nil && m.calls == 1
	m.mu.Unlock()
	if wait {
		close(m.entered)
		<-m.gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, e)
	return nil
}

func (m *MockPoller) Forget(k reconcile.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgotten = append(m.forgotten, k)
}

func (m *MockPoller) ForgetDevice(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgotDevs = append(m.forgotDevs, id)
}

type MockSource struct{ code string }

func (m MockSource) Lookup(_, _, _ string) (codesource.Result, error) {
	return codesource.Result{Code: m.code, Found: m.code != ""}, nil
}

// MockCodeFile holds codes per command and drops them on delete directives.
type MockCodeFile struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *MockCodeFile) Lookup(_, _, command string) (codesource.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[command]
	return codesource.Result{Code: code, Found: ok}, nil
}

func (m *MockCodeFile) drop(req teaching.DeleteRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range req.Commands {
		delete(m.codes, c)
	}
}

type MockRecorder struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *MockRecorder) Record(_ context.Context, e *history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func fanDevice() *device.Device {
	return &device.Device{
		ID:                  "dev-fan",
		Name:                "Ceiling Fan",
		StorageName:         "ceiling_fan",
		ControllerReference: "remote.living_room",
		Enabled:             true,
		Commands: map[string]*device.CommandRecord{
			"fan_off": {Name: "fan_off", Status: device.StatusResolved, Code: "OLD", CodeKind: device.CodeKindIR},
		},
	}
}

type fixture struct {
	coord   *Coordinator
	store   *MockStore
	learner *MockLearner
	poller  *MockPoller
	history *MockRecorder
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		store:   newMockStore(fanDevice(), &device.Device{ID: "dev-orphan", Name: "Orphan", StorageName: "orphan", Commands: map[string]*device.CommandRecord{}}),
		learner: &MockLearner{},
		poller:  &MockPoller{},
		history: &MockRecorder{},
	}
	opts.Store = f.store
	opts.Learner = f.learner
	opts.Poller = f.poller
	opts.History = f.history
	opts.Now = func() time.Time { return t0 }
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.coord = c
	return f
}

func TestCapture_WritesPendingAndRegisters(t *testing.T) {
	f := newFixture(t, Options{Source: MockSource{code: "OLD"}, Deadline: 30 * time.Second})

	rec, err := f.coord.Capture(context.Background(), "dev-fan", "fan_off", "")
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if rec.Status != device.StatusPending || rec.Code != "" || rec.CodeKind != device.CodeKindIR {
		t.Errorf("record = %+v, want pending ir without code", rec)
	}

	if len(f.learner.learns) != 1 {
		t.Fatalf("learn directives = %d, want 1", len(f.learner.learns))
	}
	req := f.learner.learns[0]
	if req.Controller != "remote.living_room" || req.StorageName != "ceiling_fan" || req.Command != "fan_off" {
		t.Errorf("learn request = %+v", req)
	}

	if len(f.poller.registered) != 1 {
		t.Fatalf("registered = %d, want 1", len(f.poller.registered))
	}
	e := f.poller.registered[0]
	if e.CaptureID != rec.CaptureID || e.Baseline != "OLD" || !e.Deadline.Equal(t0.Add(30*time.Second)) {
		t.Errorf("pending entry = %+v", e)
	}
	if len(f.history.events) != 1 || f.history.events[0].Kind != history.EventCaptured {
		t.Errorf("history = %+v", f.history.events)
	}
}

func TestCapture_RelearnClearsStoredCode(t *testing.T) {
	file := &MockCodeFile{codes: map[string]string{"fan_off": "OLD", "fan_on": "ON"}}
	f := newFixture(t, Options{Source: file})
	f.learner.onDelete = file.drop

	if _, err := f.coord.Capture(context.Background(), "dev-fan", "fan_off", device.CodeKindIR); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	if len(f.learner.deletes) != 1 {
		t.Fatalf("delete directives = %d, want 1", len(f.learner.deletes))
	}
	del := f.learner.deletes[0]
	if del.StorageName != "ceiling_fan" || len(del.Commands) != 1 || del.Commands[0] != "fan_off" {
		t.Errorf("delete request = %+v, want only fan_off", del)
	}
	if len(f.learner.learns) != 1 {
		t.Fatalf("learn directives = %d, want 1", len(f.learner.learns))
	}
	if e := f.poller.registered[0]; e.Baseline != "" {
		t.Errorf("baseline = %q, want empty after clearing", e.Baseline)
	}
	if res, _ := file.Lookup("", "", "fan_on"); res.Code != "ON" {
		t.Error("clearing touched another command")
	}
}

func TestCapture_RelearnClearFailureKeepsBaseline(t *testing.T) {
	file := &MockCodeFile{codes: map[string]string{"fan_off": "OLD"}}
	f := newFixture(t, Options{Source: file})
	f.learner.deleteErr = teaching.ErrRejected

	if _, err := f.coord.Capture(context.Background(), "dev-fan", "fan_off", device.CodeKindIR); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if e := f.poller.registered[0]; e.Baseline != "OLD" {
		t.Errorf("baseline = %q, want OLD", e.Baseline)
	}
}

func TestCapture_FirstLearnSendsNoDelete(t *testing.T) {
	file := &MockCodeFile{codes: map[string]string{}}
	f := newFixture(t, Options{Source: file})

	if _, err := f.coord.Capture(context.Background(), "dev-fan", "fan_speed_1", device.CodeKindIR); err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if len(f.learner.deletes) != 0 {
		t.Errorf("delete directives = %d, want 0", len(f.learner.deletes))
	}
}

func TestCapture_SameKeyIsSerialised(t *testing.T) {
	f := newFixture(t, Options{})
	f.poller.gate = make(chan struct{})
	f.poller.entered = make(chan struct{})

	type result struct {
		rec *device.CommandRecord
		err error
	}
	ctx := context.Background()
	first := make(chan result, 1)
	go func() {
		rec, err := f.coord.Capture(ctx, "dev-fan", "fan_off", device.CodeKindIR)
		first <- result{rec, err}
	}()
	<-f.poller.entered

	second := make(chan result, 1)
	go func() {
		rec, err := f.coord.Capture(ctx, "dev-fan", "fan_off", device.CodeKindIR)
		second <- result{rec, err}
	}()

	// Give the second capture time to reach the store if it were not held.
	time.Sleep(50 * time.Millisecond)
	f.store.mu.Lock()
	midID := f.store.devices["dev-fan"].Commands["fan_off"].CaptureID
	f.store.mu.Unlock()
	close(f.poller.gate)

	var got []result
	for _, ch := range []chan result{first, second} {
		select {
		case r := <-ch:
			if r.err != nil {
				t.Fatalf("Capture() error = %v", r.err)
			}
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatal("Capture() did not return")
		}
	}

	if midID != got[0].rec.CaptureID {
		t.Errorf("store held capture %s while capture %s was registering", midID, got[0].rec.CaptureID)
	}

	f.poller.mu.Lock()
	defer f.poller.mu.Unlock()
	if len(f.poller.registered) != 2 {
		t.Fatalf("registered = %d, want 2", len(f.poller.registered))
	}
	if f.poller.registered[0].CaptureID != got[0].rec.CaptureID || f.poller.registered[1].CaptureID != got[1].rec.CaptureID {
		t.Errorf("registration order = [%s %s], want [%s %s]",
			f.poller.registered[0].CaptureID, f.poller.registered[1].CaptureID,
			got[0].rec.CaptureID, got[1].rec.CaptureID)
	}
	d, _ := f.store.Get(ctx, "dev-fan")
	if stored := d.Commands["fan_off"].CaptureID; stored != got[1].rec.CaptureID {
		t.Errorf("stored capture = %s, want newest %s", stored, got[1].rec.CaptureID)
	}
}

func TestCapture_DifferentKeysRunConcurrently(t *testing.T) {
	f := newFixture(t, Options{})
	f.poller.gate = make(chan struct{})
	f.poller.entered = make(chan struct{})
	defer close(f.poller.gate)

	ctx := context.Background()
	go func() {
		_, _ = f.coord.Capture(ctx, "dev-fan", "fan_off", device.CodeKindIR)
	}()
	<-f.poller.entered

	done := make(chan error, 1)
	go func() {
		_, err := f.coord.Capture(ctx, "dev-fan", "fan_on", device.CodeKindIR)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("capture of another command waited on fan_off")
	}
}

func TestCapture_Errors(t *testing.T) {
	tests := []struct {
		name     string
		deviceID string
		command  string
		opts     Options
		learnErr error
		wantErr  error
	}{
		{"unknown device", "nope", "fan_off", Options{}, nil, device.ErrNotFound},
		{"no controller", "dev-orphan", "power", Options{}, nil, ErrControllerNotFound},
		{"controller not allowed", "dev-fan", "fan_off", Options{Controllers: []string{"remote.bedroom"}}, nil, ErrControllerNotFound},
		{"controller unknown to teaching service", "dev-fan", "fan_off", Options{},
			fmt.Errorf("%w: x", teaching.ErrUnknownController), ErrControllerNotFound},
		{"rejected", "dev-fan", "fan_off", Options{}, fmt.Errorf("%w: busy", teaching.ErrRejected), ErrLearnRejected},
		{"ack timeout", "dev-fan", "fan_off", Options{}, fmt.Errorf("%w: learn", teaching.ErrAckTimeout), ErrLearnTimeout},
		{"bad command name", "dev-fan", "", Options{}, nil, device.ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts)
			f.learner.learnErr = tt.learnErr

			_, err := f.coord.Capture(context.Background(), tt.deviceID, tt.command, device.CodeKindIR)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Capture() error = %v, want %v", err, tt.wantErr)
			}
			if len(f.poller.registered) != 0 {
				t.Error("failed capture registered a pending entry")
			}
			if d, _ := f.store.Get(context.Background(), "dev-fan"); d.Commands["fan_off"].Status != device.StatusResolved {
				t.Error("failed capture modified the stored record")
			}
		})
	}
}

func TestCapture_ControllerNotFoundIsNotFound(t *testing.T) {
	if !errors.Is(ErrControllerNotFound, device.ErrNotFound) {
		t.Error("ErrControllerNotFound does not match device.ErrNotFound")
	}
}

func TestCapture_AckTimeout(t *testing.T) {
	f := newFixture(t, Options{AckTimeout: 20 * time.Millisecond})
	f.learner.block = true

	start := time.Now()
	_, err := f.coord.Capture(context.Background(), "dev-fan", "fan_speed_1", device.CodeKindRF)
	if !errors.Is(err, ErrLearnTimeout) {
		t.Fatalf("Capture() error = %v, want ErrLearnTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Capture() did not honour the ack timeout")
	}
	if d, _ := f.store.Get(context.Background(), "dev-fan"); d.Commands["fan_speed_1"] != nil {
		t.Error("record written despite timeout")
	}
}

func TestDeleteDevice(t *testing.T) {
	tests := []struct {
		name        string
		cascade     bool
		deleteErr   error
		wantErr     error
		wantDeleted bool
		wantDirs    int
	}{
		{"local only", false, nil, nil, true, 0},
		{"cascade", true, nil, nil, true, 1},
		{"cascade failure aborts", true, teaching.ErrRejected, ErrCascadeFailed, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, Options{})
			f.learner.deleteErr = tt.deleteErr

			err := f.coord.DeleteDevice(ctx, "dev-fan", tt.cascade)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DeleteDevice() = %v, want %v", err, tt.wantErr)
			}
			_, getErr := f.store.Get(ctx, "dev-fan")
			if deleted := errors.Is(getErr, device.ErrNotFound); deleted != tt.wantDeleted {
				t.Errorf("deleted = %v, want %v", deleted, tt.wantDeleted)
			}
			if len(f.learner.deletes) != tt.wantDirs {
				t.Errorf("delete directives = %d, want %d", len(f.learner.deletes), tt.wantDirs)
			}
			if tt.wantDeleted && (len(f.poller.forgotDevs) != 1 || f.poller.forgotDevs[0] != "dev-fan") {
				t.Errorf("ForgetDevice calls = %v", f.poller.forgotDevs)
			}
		})
	}
}

func TestDeleteCommand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	if err := f.coord.DeleteCommand(ctx, "dev-fan", "missing", false); !errors.Is(err, device.ErrNotFound) {
		t.Errorf("DeleteCommand(missing) = %v, want ErrNotFound", err)
	}

	if err := f.coord.DeleteCommand(ctx, "dev-fan", "fan_off", true); err != nil {
		t.Fatalf("DeleteCommand() = %v", err)
	}
	if len(f.learner.deletes) != 1 || f.learner.deletes[0].Commands[0] != "fan_off" {
		t.Errorf("delete directives = %+v", f.learner.deletes)
	}
	d, _ := f.store.Get(ctx, "dev-fan")
	if _, ok := d.Commands["fan_off"]; ok {
		t.Error("command still present")
	}
	if len(f.poller.forgotten) != 1 || f.poller.forgotten[0].Command != "fan_off" {
		t.Errorf("Forget calls = %v", f.poller.forgotten)
	}
}
