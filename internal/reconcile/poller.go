package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/codesource"
	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/history"
	"github.com/nerrad567/gray-logic-irlearn/internal/store"
)

// DefaultInterval is the fixed polling interval.
const DefaultInterval = 2 * time.Second

// Store is the subset of the durable store the Poller writes to.
type Store interface {
	ResolveCommand(ctx context.Context, deviceID, name, captureID, code string, at time.Time) error
	FailCommand(ctx context.Context, deviceID, name, captureID, reason string, at time.Time) error
}

// CodeSource looks up learned codes.
type CodeSource interface {
	Lookup(controller, storageName, command string) (codesource.Result, error)
}

// Metrics receives capture outcomes. *influxdb.Client satisfies it.
type Metrics interface {
	WriteCaptureOutcome(deviceID, command, outcome string, latency time.Duration)
	WriteReconcilePass(checked, resolved, failed int, took time.Duration)
}

// Logger is the logging interface used by the Poller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Poller. Store and Source are required.
type Options struct {
	Store  Store
	Source CodeSource

	// Interval between fixed passes. Default: 2s.
	Interval time.Duration

	// Changes delivers debounced change notifications from the code
	// source. May be nil.
	Changes <-chan struct{}

	History history.Recorder // optional
	Metrics Metrics          // optional
	Logger  Logger           // optional

	// Now overrides the clock used for deadlines and timestamps.
	Now func() time.Time
}

type checkRequest struct {
	reply chan passReply
}

type passReply struct {
	result PassResult
	err    error
}

// Poller owns the working set of pending reconciliations.
type Poller struct {
	store    Store
	source   CodeSource
	interval time.Duration
	changes  <-chan struct{}
	history  history.Recorder
	metrics  Metrics
	logger   Logger
	now      func() time.Time

	mu      sync.Mutex
	pending map[Key]*PendingReconciliation

	// passMu serialises passes between Run and a direct CheckNow.
	passMu sync.Mutex

	rearm   chan struct{}
	checks  chan checkRequest
	running atomic.Bool
}

// New creates a Poller. Call Run to start it.
//
// Parameters:
//   - opts: Store and Source are required. A zero Interval uses the default
//     pass interval; nil History, Metrics and Logger become no-ops.
//
// Returns:
//   - *Poller: Poller with an empty working set
//   - error: If a required dependency is missing
func New(opts Options) (*Poller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("reconcile: store is required")
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("reconcile: code source is required")
	}
	p := &Poller{
		store:    opts.Store,
		source:   opts.Source,
		interval: opts.Interval,
		changes:  opts.Changes,
		history:  opts.History,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
		pending:  make(map[Key]*PendingReconciliation),
		rearm:    make(chan struct{}, 1),
		checks:   make(chan checkRequest),
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.history == nil {
		p.history = history.NopRecorder{}
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Register adds an entry to the working set. An existing entry for the same
// key is superseded. A zero Deadline gets DefaultDeadline from CreatedAt.
func (p *Poller) Register(ctx context.Context, entry PendingReconciliation) error {
	if err := entry.validate(); err != nil {
		return fmt.Errorf("%w: %s/%s", err, entry.DeviceID, entry.Command)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = p.now()
	}
	if entry.Deadline.IsZero() {
		entry.Deadline = entry.CreatedAt.Add(DefaultDeadline)
	}
	entry.Attempts = 0

	p.mu.Lock()
	old, superseded := p.pending[entry.Key()]
	e := entry
	p.pending[entry.Key()] = &e
	p.mu.Unlock()

	if superseded && old.CaptureID != entry.CaptureID {
		p.logger.Info("pending capture superseded",
			"device_id", old.DeviceID, "command", old.Command,
			"old_capture_id", old.CaptureID, "capture_id", entry.CaptureID)
		p.record(ctx, history.EventSuperseded, *old, "replaced by capture "+entry.CaptureID, 0)
		p.observe(*old, history.EventSuperseded, 0)
	}

	select {
	case p.rearm <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns a copy of the working set ordered by deadline.
func (p *Poller) Pending() []PendingReconciliation {
	p.mu.Lock()
	out := make([]PendingReconciliation, 0, len(p.pending))
	for _, e := range p.pending {
		out = append(out, *e)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].Command < out[j].Command
	})
	return out
}

// Forget drops any entry for key without touching the store. Used when the
// device or command is deleted.
func (p *Poller) Forget(key Key) {
	p.mu.Lock()
	delete(p.pending, key)
	p.mu.Unlock()
}

// ForgetDevice drops every entry belonging to deviceID.
func (p *Poller) ForgetDevice(deviceID string) {
	p.mu.Lock()
	for k := range p.pending {
		if k.DeviceID == deviceID {
			delete(p.pending, k)
		}
	}
	p.mu.Unlock()
}

// CheckNow runs a pass immediately and returns its result. When Run is
// active the pass executes on the Run goroutine.
func (p *Poller) CheckNow(ctx context.Context) (PassResult, error) {
	if !p.running.Load() {
		return p.pass(ctx)
	}

	req := checkRequest{reply: make(chan passReply, 1)}
	select {
	case p.checks <- req:
	case <-ctx.Done():
		return PassResult{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.result, r.err
	case <-ctx.Done():
		return PassResult{}, ctx.Err()
	}
}

// Run processes triggers until ctx is cancelled. It must be called once.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("reconcile: poller already running")
	}
	defer p.running.Store(false)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	deadline := time.NewTimer(time.Hour)
	deadline.Stop()
	defer deadline.Stop()

	p.logger.Info("reconciliation poller started", "interval", p.interval)

	for {
		p.armDeadline(deadline)

		select {
		case <-ctx.Done():
			p.logger.Info("reconciliation poller stopped", "pending", len(p.Pending()))
			return nil
		case <-ticker.C:
			p.runPass(ctx, "interval")
		case _, ok := <-p.changes:
			if !ok {
				p.changes = nil
				continue
			}
			p.runPass(ctx, "source_changed")
		case <-deadline.C:
			p.runPass(ctx, "deadline")
		case <-p.rearm:
		case req := <-p.checks:
			res, err := p.pass(ctx)
			req.reply <- passReply{result: res, err: err}
		}
	}
}

// armDeadline resets t to fire at the earliest pending deadline.
func (p *Poller) armDeadline(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}

	var earliest time.Time
	p.mu.Lock()
	for _, e := range p.pending {
		if earliest.IsZero() || e.Deadline.Before(earliest) {
			earliest = e.Deadline
		}
	}
	p.mu.Unlock()

	if earliest.IsZero() {
		return
	}
	wait := earliest.Sub(p.now())
	if wait < 0 {
		wait = 0
	}
	t.Reset(wait)
}

func (p *Poller) runPass(ctx context.Context, trigger string) {
	res, err := p.pass(ctx)
	if err != nil && ctx.Err() == nil {
		p.logger.Warn("reconciliation pass failed", "trigger", trigger, "error", err)
		return
	}
	if res.Resolved > 0 || res.Failed > 0 || res.Dropped > 0 {
		p.logger.Debug("reconciliation pass",
			"trigger", trigger, "checked", res.Checked, "resolved", res.Resolved,
			"failed", res.Failed, "dropped", res.Dropped, "remaining", res.Remaining)
	}
}

// pass checks every pending entry once.
func (p *Poller) pass(ctx context.Context) (PassResult, error) {
	p.passMu.Lock()
	defer p.passMu.Unlock()

	start := time.Now()
	var res PassResult

	for _, entry := range p.Pending() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++
		now := p.now()

		found, err := p.source.Lookup(entry.Controller, entry.StorageName, entry.Command)
		if err != nil {
			// A half-written or invalid file is retried on the next trigger.
			p.logger.Debug("code lookup failed",
				"device_id", entry.DeviceID, "command", entry.Command, "error", err)
		}

		switch {
		case err == nil && entry.matches(found):
			p.resolve(ctx, entry, found.Code, now, &res)
		case !now.Before(entry.Deadline):
			p.fail(ctx, entry, now, &res)
		default:
			p.touch(entry)
		}
	}

	p.mu.Lock()
	res.Remaining = len(p.pending)
	p.mu.Unlock()

	if p.metrics != nil && res.Checked > 0 {
		p.metrics.WriteReconcilePass(res.Checked, res.Resolved, res.Failed, time.Since(start))
	}
	return res, nil
}

func (p *Poller) resolve(ctx context.Context, entry PendingReconciliation, code string, now time.Time, res *PassResult) {
	err := p.store.ResolveCommand(ctx, entry.DeviceID, entry.Command, entry.CaptureID, code, now)
	if p.finish(entry, err, res) {
		return
	}
	latency := now.Sub(entry.CreatedAt)
	res.Resolved++
	p.logger.Info("command resolved",
		"device_id", entry.DeviceID, "command", entry.Command,
		"capture_id", entry.CaptureID, "latency", latency)
	p.record(ctx, history.EventResolved, entry, "", latency)
	p.observe(entry, history.EventResolved, latency)
}

func (p *Poller) fail(ctx context.Context, entry PendingReconciliation, now time.Time, res *PassResult) {
	reason := fmt.Sprintf("%v (%s)", ErrReconciliationTimeout, entry.Deadline.Sub(entry.CreatedAt).Round(time.Second))
	err := p.store.FailCommand(ctx, entry.DeviceID, entry.Command, entry.CaptureID, reason, now)
	if p.finish(entry, err, res) {
		return
	}
	res.Failed++
	p.logger.Warn("command capture timed out",
		"device_id", entry.DeviceID, "command", entry.Command,
		"capture_id", entry.CaptureID, "attempts", entry.Attempts)
	p.record(ctx, history.EventFailed, entry, reason, 0)
	p.observe(entry, history.EventFailed, 0)
}

// finish handles the store outcome of a resolve or fail. It returns true if
// the caller should stop (the entry was dropped or kept for retry).
func (p *Poller) finish(entry PendingReconciliation, err error, res *PassResult) bool {
	switch {
	case err == nil:
		p.remove(entry)
		return false
	case errors.Is(err, store.ErrStaleCapture), errors.Is(err, device.ErrNotFound):
		p.remove(entry)
		res.Dropped++
		p.logger.Debug("dropping stale pending capture",
			"device_id", entry.DeviceID, "command", entry.Command,
			"capture_id", entry.CaptureID, "reason", err)
		return true
	default:
		p.touch(entry)
		p.logger.Warn("store update failed, will retry",
			"device_id", entry.DeviceID, "command", entry.Command, "error", err)
		return true
	}
}

// remove deletes the entry only if it has not been superseded meanwhile.
func (p *Poller) remove(entry PendingReconciliation) {
	p.mu.Lock()
	if cur, ok := p.pending[entry.Key()]; ok && cur.CaptureID == entry.CaptureID {
		delete(p.pending, entry.Key())
	}
	p.mu.Unlock()
}

func (p *Poller) touch(entry PendingReconciliation) {
	p.mu.Lock()
	if cur, ok := p.pending[entry.Key()]; ok && cur.CaptureID == entry.CaptureID {
		cur.Attempts++
	}
	p.mu.Unlock()
}

func (p *Poller) record(ctx context.Context, kind history.EventKind, e PendingReconciliation, detail string, latency time.Duration) {
	err := p.history.Record(ctx, &history.Event{
		Kind:       kind,
		DeviceID:   e.DeviceID,
		Command:    e.Command,
		CaptureID:  e.CaptureID,
		Controller: e.Controller,
		Detail:     detail,
		Latency:    latency,
	})
	if err != nil {
		p.logger.Warn("recording capture history failed", "event", kind, "error", err)
	}
}

func (p *Poller) observe(e PendingReconciliation, kind history.EventKind, latency time.Duration) {
	if p.metrics != nil {
		p.metrics.WriteCaptureOutcome(e.DeviceID, e.Command, string(kind), latency)
	}
}
