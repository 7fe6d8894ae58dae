package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/history"
	"github.com/nerrad567/gray-logic-irlearn/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-irlearn/internal/reconcile"
)

// Router defaults.
const (
	DefaultWorkers = 4

	// DefaultTimeout bounds one request, including the learn ack wait.
	DefaultTimeout = 30 * time.Second
)

// MQTTClient is the subset of the MQTT client used here.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Capturer starts captures and deletes devices and commands.
type Capturer interface {
	Capture(ctx context.Context, deviceID, commandName string, kind device.CodeKind) (*device.CommandRecord, error)
	DeleteDevice(ctx context.Context, deviceID string, cascade bool) error
	DeleteCommand(ctx context.Context, deviceID, commandName string, cascade bool) error
}

// Reconciler exposes the reconciliation poller.
type Reconciler interface {
	CheckNow(ctx context.Context) (reconcile.PassResult, error)
	Pending() []reconcile.PendingReconciliation
}

// DeviceStore is the device CRUD used by the device actions.
type DeviceStore interface {
	DeviceLister
	Get(ctx context.Context, id string) (*device.Device, error)
	Create(ctx context.Context, d *device.Device) error
	UpdateDevice(ctx context.Context, id string, fn func(d *device.Device) error) error
}

// ConfigGenerator regenerates the configuration output.
type ConfigGenerator interface {
	Generate(ctx context.Context) (*GenerateSummary, error)
}

// HistoryReader pages the capture history.
type HistoryReader interface {
	List(ctx context.Context, f history.Filter) (*history.ListResult, error)
}

// Logger is the logging interface used by the router.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Router.
type Options struct {
	MQTT MQTTClient
	QoS  byte

	Capture    Capturer
	Reconciler Reconciler
	Store      DeviceStore

	// Generator and History are optional; their actions answer
	// ErrCodeUnavailable when unset.
	Generator ConfigGenerator
	History   HistoryReader

	// Workers caps concurrently handled requests. Requests beyond it are
	// answered with ErrCodeBusy.
	Workers int
	Timeout time.Duration

	Logger Logger
	Now    func() time.Time
}

type handlerFunc func(ctx context.Context, req Request) (any, error)

// Router answers control requests.
type Router struct {
	mqtt       MQTTClient
	qos        byte
	capture    Capturer
	reconciler Reconciler
	store      DeviceStore
	generator  ConfigGenerator
	history    HistoryReader
	timeout    time.Duration
	logger     Logger
	now        func() time.Time

	handlers map[string]handlerFunc
	sem      chan struct{}
	wg       sync.WaitGroup

	// mu orders request admission against Stop: once stopped is set no
	// worker is added to wg.
	mu      sync.Mutex
	ctx     context.Context //nolint:containedctx // request base context, set by Start
	cancel  context.CancelFunc
	stopped bool
}

// New creates a Router.
//
// Parameters:
//   - opts: MQTT, Capture, Reconciler and Store are required. Generator and
//     History are optional; their actions answer unavailable without them.
//
// Returns:
//   - *Router: Router ready for Start
//   - error: If a required dependency is missing
func New(opts Options) (*Router, error) {
	switch {
	case opts.MQTT == nil:
		return nil, errors.New("control: mqtt client is required")
	case opts.Capture == nil:
		return nil, errors.New("control: capturer is required")
	case opts.Reconciler == nil:
		return nil, errors.New("control: reconciler is required")
	case opts.Store == nil:
		return nil, errors.New("control: store is required")
	}

	r := &Router{
		mqtt:       opts.MQTT,
		qos:        opts.QoS,
		capture:    opts.Capture,
		reconciler: opts.Reconciler,
		store:      opts.Store,
		generator:  opts.Generator,
		history:    opts.History,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	r.sem = make(chan struct{}, workers)
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.logger == nil {
		r.logger = noopLogger{}
	}
	if r.now == nil {
		r.now = time.Now
	}

	r.handlers = map[string]handlerFunc{
		ActionCapture:       r.handleCapture,
		ActionCheckNow:      r.handleCheckNow,
		ActionPending:       r.handlePending,
		ActionGenerate:      r.handleGenerate,
		ActionDetect:        r.handleDetect,
		ActionDeviceCreate:  r.handleDeviceCreate,
		ActionDeviceUpdate:  r.handleDeviceUpdate,
		ActionDeviceGet:     r.handleDeviceGet,
		ActionDeviceList:    r.handleDeviceList,
		ActionDeviceDelete:  r.handleDeviceDelete,
		ActionCommandDelete: r.handleCommandDelete,
		ActionHistory:       r.handleHistory,
	}
	return r, nil
}

// Start subscribes to control requests. Requests in flight are cancelled
// when ctx ends.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.stopped = false
	r.mu.Unlock()

	if err := r.mqtt.Subscribe(mqtt.Topics{}.AllRequests(), r.qos, r.handleMessage); err != nil {
		return fmt.Errorf("subscribing to control requests: %w", err)
	}
	r.logger.Info("control plane started", "topic", mqtt.Topics{}.AllRequests())
	return nil
}

// Stop unsubscribes, cancels requests in flight and waits for them.
func (r *Router) Stop() error {
	err := r.mqtt.Unsubscribe(mqtt.Topics{}.AllRequests())

	r.mu.Lock()
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	return err
}

var errBusy = errors.New("too many requests in flight")

// admit reserves a worker slot and counts the request in wg. It returns the
// base context for the request.
func (r *Router) admit() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.ctx == nil || r.ctx.Err() != nil {
		return nil, fmt.Errorf("%w: control plane stopped", ErrUnavailable)
	}
	select {
	case r.sem <- struct{}{}:
	default:
		return nil, errBusy
	}
	r.wg.Add(1)
	return r.ctx, nil
}

// handleMessage runs on a paho goroutine. It never blocks on the request
// itself: work is handed to a worker or refused as busy.
func (r *Router) handleMessage(topic string, payload []byte) error {
	req, err := ParseRequest(payload)
	if err != nil {
		return err
	}
	action := mqtt.LastSegment(topic)

	base, err := r.admit()
	switch {
	case errors.Is(err, errBusy):
		r.replyError(req, ErrCodeBusy, err.Error())
		return nil
	case err != nil:
		r.reply(req, nil, err)
		return nil
	}

	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()

		ctx, cancel := context.WithTimeout(base, r.timeout)
		defer cancel()

		data, err := r.dispatch(ctx, action, req)
		r.reply(req, data, err)
	}()
	return nil
}

func (r *Router) dispatch(ctx context.Context, action string, req Request) (any, error) {
	h, ok := r.handlers[action]
	if !ok {
		return nil, errUnknownAction{action: action}
	}
	r.logger.Debug("control request", "request_id", req.RequestID, "action", action)
	return h(ctx, req)
}

type errUnknownAction struct{ action string }

func (e errUnknownAction) Error() string { return "unknown action: " + e.action }

func (r *Router) response(req Request, data any, err error) Response {
	resp := Response{RequestID: req.RequestID, Timestamp: r.now().UTC()}
	if err == nil {
		resp.Success = true
		resp.Data = data
		return resp
	}

	code := errorCode(err)
	var unknown errUnknownAction
	if errors.As(err, &unknown) {
		code = ErrCodeUnknownAction
	}
	resp.Error = &ResponseError{Code: code, Message: err.Error()}
	return resp
}

func (r *Router) reply(req Request, data any, err error) {
	resp := r.response(req, data, err)
	if resp.Error != nil && resp.Error.Code == ErrCodeInternal {
		r.logger.Warn("control request failed", "request_id", req.RequestID, "error", err)
	}
	r.publish(resp)
}

func (r *Router) replyError(req Request, code, message string) {
	r.publish(Response{
		RequestID: req.RequestID,
		Timestamp: r.now().UTC(),
		Error:     &ResponseError{Code: code, Message: message},
	})
}

func (r *Router) publish(resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		r.logger.Warn("encoding control response failed", "request_id", resp.RequestID, "error", err)
		return
	}
	if err := r.mqtt.Publish(mqtt.Topics{}.Response(resp.RequestID), payload, r.qos, false); err != nil {
		r.logger.Warn("publishing control response failed", "request_id", resp.RequestID, "error", err)
	}
}

// Handle dispatches one request synchronously and returns its response.
func (r *Router) Handle(ctx context.Context, action string, req Request) Response {
	data, err := r.dispatch(ctx, action, req)
	return r.response(req, data, err)
}
