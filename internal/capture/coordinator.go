// Package capture starts command captures and deletes devices and commands.
//
// Capture sends a learn directive, waits only for the teaching service's
// acknowledgement, writes a pending record and hands the rest to the
// reconciliation poller. It never waits for the code itself.
package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/codesource"
	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/history"
	"github.com/nerrad567/gray-logic-irlearn/internal/reconcile"
	"github.com/nerrad567/gray-logic-irlearn/internal/teaching"
)

// Defaults.
const (
	DefaultAckTimeout = 10 * time.Second
	DefaultDeadline   = reconcile.DefaultDeadline
)

// Store is the subset of the durable store used by the Coordinator.
type Store interface {
	Get(ctx context.Context, id string) (*device.Device, error)
	PutPendingCommand(ctx context.Context, deviceID, name string, kind device.CodeKind,
		captureID string, requestedAt time.Time) (*device.CommandRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteCommand(ctx context.Context, deviceID, name string) error
}

// Learner sends learn and delete directives to the external teaching service.
type Learner interface {
	Learn(ctx context.Context, req teaching.LearnRequest) error
	Delete(ctx context.Context, req teaching.DeleteRequest) error
}

// Poller receives pending reconciliations.
type Poller interface {
	Register(ctx context.Context, entry reconcile.PendingReconciliation) error
	Forget(key reconcile.Key)
	ForgetDevice(deviceID string)
}

// CodeSource is read once per capture to record the baseline code.
type CodeSource interface {
	Lookup(controller, storageName, command string) (codesource.Result, error)
}

// Logger is the logging interface used by the Coordinator.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Options configures a Coordinator. Store, Learner and Poller are required.
type Options struct {
	Store   Store
	Learner Learner
	Poller  Poller
	Source  CodeSource // optional; without it the baseline is empty

	// Controllers is the allow-list of controller references. Empty allows
	// any controller.
	Controllers []string

	AckTimeout time.Duration
	Deadline   time.Duration

	History history.Recorder
	Logger  Logger
	Now     func() time.Time
}

// Coordinator runs captures and deletions.
type Coordinator struct {
	store       Store
	learner     Learner
	poller      Poller
	source      CodeSource
	controllers []string
	ackTimeout  time.Duration
	deadline    time.Duration
	history     history.Recorder
	logger      Logger
	now         func() time.Time

	// keys serialises captures and deletions of one (device, command) so the
	// store and the poller always agree on the newest capture.
	keys keyLocks
}

// New creates a Coordinator.
//
// Parameters:
//   - opts: Store, Learner and Poller are required. Zero AckTimeout and
//     Deadline take DefaultAckTimeout and DefaultDeadline; nil History and
//     Logger are replaced with no-ops.
//
// Returns:
//   - *Coordinator: ready to Capture; it owns no goroutines
//   - error: if a required dependency is missing
func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("capture: store is required")
	case opts.Learner == nil:
		return nil, errors.New("capture: learner is required")
	case opts.Poller == nil:
		return nil, errors.New("capture: poller is required")
	}

	c := &Coordinator{
		store:       opts.Store,
		learner:     opts.Learner,
		poller:      opts.Poller,
		source:      opts.Source,
		controllers: slices.Clone(opts.Controllers),
		ackTimeout:  opts.AckTimeout,
		deadline:    opts.Deadline,
		history:     opts.History,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if c.ackTimeout <= 0 {
		c.ackTimeout = DefaultAckTimeout
	}
	if c.deadline <= 0 {
		c.deadline = DefaultDeadline
	}
	if c.history == nil {
		c.history = history.NopRecorder{}
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Capture asks the device's controller to learn commandName and returns the
// pending record once the controller has acknowledged.
func (c *Coordinator) Capture(ctx context.Context, deviceID, commandName string, kind device.CodeKind) (*device.CommandRecord, error) {
	if err := device.ValidateCommandName(commandName); err != nil {
		return nil, err
	}
	kind, err := device.ParseCodeKind(string(kind))
	if err != nil {
		return nil, err
	}

	d, err := c.store.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if err := c.checkController(d); err != nil {
		return nil, err
	}

	unlock := c.keys.lock(reconcile.Key{DeviceID: d.ID, Command: commandName})
	defer unlock()

	baseline := c.baseline(d, commandName)
	if baseline != "" {
		baseline = c.clearStoredCode(ctx, d, commandName, baseline)
	}
	requestedAt := c.now()

	learnCtx, cancel := context.WithTimeout(ctx, c.ackTimeout)
	err = c.learner.Learn(learnCtx, teaching.LearnRequest{
		Controller:  d.ControllerReference,
		StorageName: d.StorageName,
		Command:     commandName,
		CodeKind:    kind,
	})
	cancel()
	if err != nil {
		return nil, c.learnError(ctx, d, commandName, err)
	}

	captureID := device.GenerateCaptureID()
	rec, err := c.store.PutPendingCommand(ctx, d.ID, commandName, kind, captureID, requestedAt)
	if err != nil {
		return nil, fmt.Errorf("storing pending %s/%s: %w", d.ID, commandName, err)
	}

	err = c.poller.Register(ctx, reconcile.PendingReconciliation{
		DeviceID:    d.ID,
		Command:     commandName,
		CaptureID:   captureID,
		Controller:  d.ControllerReference,
		StorageName: d.StorageName,
		Baseline:    baseline,
		CreatedAt:   requestedAt,
		Deadline:    requestedAt.Add(c.deadline),
	})
	if err != nil {
		return nil, fmt.Errorf("registering %s/%s: %w", d.ID, commandName, err)
	}

	c.logger.Info("capture started",
		"device_id", d.ID, "command", commandName, "controller", d.ControllerReference,
		"capture_id", captureID, "code_kind", kind)
	c.record(ctx, &history.Event{
		Kind:       history.EventCaptured,
		DeviceID:   d.ID,
		Command:    commandName,
		CaptureID:  captureID,
		Controller: d.ControllerReference,
	})
	return rec, nil
}

func (c *Coordinator) checkController(d *device.Device) error {
	if d.ControllerReference == "" {
		return fmt.Errorf("device %s has no controller: %w", d.ID, ErrControllerNotFound)
	}
	if len(c.controllers) > 0 && !slices.Contains(c.controllers, d.ControllerReference) {
		return fmt.Errorf("device %s controller %q: %w", d.ID, d.ControllerReference, ErrControllerNotFound)
	}
	return nil
}

func (c *Coordinator) baseline(d *device.Device, command string) string {
	if c.source == nil {
		return ""
	}
	res, err := c.source.Lookup(d.ControllerReference, d.StorageName, command)
	if err != nil {
		c.logger.Warn("reading baseline code failed",
			"device_id", d.ID, "command", command, "error", err)
		return ""
	}
	return res.Code
}

// clearStoredCode asks the teaching service to drop the code it already holds
// for a command about to be relearned, so the next code found is the new one
// even when the same button is pressed again. It returns the baseline that
// remains afterwards.
func (c *Coordinator) clearStoredCode(ctx context.Context, d *device.Device, command, baseline string) string {
	delCtx, cancel := context.WithTimeout(ctx, c.ackTimeout)
	err := c.learner.Delete(delCtx, teaching.DeleteRequest{
		Controller:  d.ControllerReference,
		StorageName: d.StorageName,
		Commands:    []string{command},
	})
	cancel()
	if err != nil {
		c.logger.Warn("clearing previous code before relearn failed",
			"device_id", d.ID, "command", command, "error", err)
		return baseline
	}
	return c.baseline(d, command)
}

func (c *Coordinator) learnError(ctx context.Context, d *device.Device, command string, err error) error {
	switch {
	case errors.Is(err, teaching.ErrUnknownController):
		return fmt.Errorf("device %s controller %q: %w", d.ID, d.ControllerReference, ErrControllerNotFound)
	case errors.Is(err, teaching.ErrAckTimeout),
		errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		c.logger.Warn("learn directive not acknowledged",
			"device_id", d.ID, "command", command, "timeout", c.ackTimeout)
		return fmt.Errorf("%s/%s after %s: %w", d.ID, command, c.ackTimeout, ErrLearnTimeout)
	case errors.Is(err, teaching.ErrRejected):
		return fmt.Errorf("%s/%s: %w: %w", d.ID, command, ErrLearnRejected, err)
	default:
		return fmt.Errorf("learning %s/%s: %w", d.ID, command, err)
	}
}

// DeleteDevice removes a device. With cascade the teaching service is first
// asked to drop the device's stored codes; if that fails nothing is deleted.
func (c *Coordinator) DeleteDevice(ctx context.Context, deviceID string, cascade bool) error {
	d, err := c.store.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if cascade {
		if err := c.cascade(ctx, d, d.CommandNames()); err != nil {
			return err
		}
	}
	if err := c.store.Delete(ctx, deviceID); err != nil {
		return err
	}
	c.poller.ForgetDevice(deviceID)

	c.logger.Info("device deleted", "device_id", deviceID, "cascade", cascade)
	c.record(ctx, &history.Event{
		Kind:       history.EventDeleted,
		DeviceID:   deviceID,
		Controller: d.ControllerReference,
		Detail:     cascadeDetail(cascade),
	})
	return nil
}

// DeleteCommand removes one command record, with the same cascade rule as
// DeleteDevice.
func (c *Coordinator) DeleteCommand(ctx context.Context, deviceID, commandName string, cascade bool) error {
	d, err := c.store.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if _, ok := d.Commands[commandName]; !ok {
		return fmt.Errorf("command %s/%s: %w", deviceID, commandName, device.ErrNotFound)
	}

	unlock := c.keys.lock(reconcile.Key{DeviceID: deviceID, Command: commandName})
	defer unlock()

	if cascade {
		if err := c.cascade(ctx, d, []string{commandName}); err != nil {
			return err
		}
	}
	if err := c.store.DeleteCommand(ctx, deviceID, commandName); err != nil {
		return err
	}
	c.poller.Forget(reconcile.Key{DeviceID: deviceID, Command: commandName})

	c.logger.Info("command deleted", "device_id", deviceID, "command", commandName, "cascade", cascade)
	c.record(ctx, &history.Event{
		Kind:       history.EventDeleted,
		DeviceID:   deviceID,
		Command:    commandName,
		Controller: d.ControllerReference,
		Detail:     cascadeDetail(cascade),
	})
	return nil
}

func (c *Coordinator) cascade(ctx context.Context, d *device.Device, commands []string) error {
	if len(commands) == 0 || d.ControllerReference == "" {
		return nil
	}
	delCtx, cancel := context.WithTimeout(ctx, c.ackTimeout)
	defer cancel()

	err := c.learner.Delete(delCtx, teaching.DeleteRequest{
		Controller:  d.ControllerReference,
		StorageName: d.StorageName,
		Commands:    commands,
	})
	if err != nil {
		return fmt.Errorf("device %s: %w: %w", d.ID, ErrCascadeFailed, err)
	}
	return nil
}

func cascadeDetail(cascade bool) string {
	if cascade {
		return "external codes deleted"
	}
	return ""
}

func (c *Coordinator) record(ctx context.Context, e *history.Event) {
	if err := c.history.Record(ctx, e); err != nil {
		c.logger.Warn("recording capture history failed", "event", e.Kind, "error", err)
	}
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyLocks hands out one mutex per key and frees it when unused.
type keyLocks struct {
	mu    sync.Mutex
	locks map[reconcile.Key]*keyLock
}

func (k *keyLocks) lock(key reconcile.Key) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[reconcile.Key]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
