package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/detect"
	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/emit"
	"github.com/nerrad567/gray-logic-irlearn/internal/history"
	"github.com/nerrad567/gray-logic-irlearn/internal/store"
)

func requireDeviceID(req Request) error {
	if req.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrBadRequest)
	}
	return nil
}

func requireCommand(req Request) error {
	if err := requireDeviceID(req); err != nil {
		return err
	}
	if req.Command == "" {
		return fmt.Errorf("%w: command is required", ErrBadRequest)
	}
	return nil
}

func (r *Router) handleCapture(ctx context.Context, req Request) (any, error) {
	if err := requireCommand(req); err != nil {
		return nil, err
	}
	kind, err := device.ParseCodeKind(req.CodeKind)
	if err != nil {
		return nil, err
	}
	return r.capture.Capture(ctx, req.DeviceID, req.Command, kind)
}

func (r *Router) handleCheckNow(ctx context.Context, _ Request) (any, error) {
	return r.reconciler.CheckNow(ctx)
}

// pendingView omits the baseline code.
type pendingView struct {
	DeviceID   string    `json:"device_id"`
	Command    string    `json:"command"`
	CaptureID  string    `json:"capture_id"`
	Controller string    `json:"controller"`
	CreatedAt  time.Time `json:"created_at"`
	Deadline   time.Time `json:"deadline"`
	Attempts   int       `json:"attempts"`
}

func (r *Router) handlePending(_ context.Context, req Request) (any, error) {
	entries := r.reconciler.Pending()
	out := make([]pendingView, 0, len(entries))
	for _, e := range entries {
		if req.DeviceID != "" && e.DeviceID != req.DeviceID {
			continue
		}
		out = append(out, pendingView{
			DeviceID:   e.DeviceID,
			Command:    e.Command,
			CaptureID:  e.CaptureID,
			Controller: e.Controller,
			CreatedAt:  e.CreatedAt,
			Deadline:   e.Deadline,
			Attempts:   e.Attempts,
		})
	}
	return map[string]any{"pending": out, "count": len(out)}, nil
}

// handleGenerate reports per-device failures as part of a successful
// response; only a run that produced no output fails.
func (r *Router) handleGenerate(ctx context.Context, _ Request) (any, error) {
	if r.generator == nil {
		return nil, fmt.Errorf("%w: generation", ErrUnavailable)
	}
	summary, err := r.generator.Generate(ctx)
	var partial *emit.PartialEmissionFailure
	if err != nil && !errors.As(err, &partial) {
		return nil, err
	}
	return summary, nil
}

// handleDetect previews how a device's resolved commands would be classified.
func (r *Router) handleDetect(ctx context.Context, req Request) (any, error) {
	if err := requireDeviceID(req); err != nil {
		return nil, err
	}
	d, err := r.store.Get(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}
	return detect.Classify(d.Name, d.ResolvedCommands(), d.EntityType)
}

func (r *Router) handleDeviceCreate(ctx context.Context, req Request) (any, error) {
	if req.Device == nil || req.Device.Name == nil {
		return nil, fmt.Errorf("%w: device.name is required", ErrBadRequest)
	}
	if err := device.ValidateName(*req.Device.Name); err != nil {
		return nil, err
	}

	d := &device.Device{
		ID:         device.GenerateID(),
		EntityType: device.EntityTypeAuto,
		Enabled:    true,
		Commands:   make(map[string]*device.CommandRecord),
	}
	req.Device.apply(d)
	d.StorageName = device.GenerateStorageName(d.Name)

	if err := r.store.Create(ctx, d); err != nil {
		return nil, err
	}
	r.logger.Info("device created", "device_id", d.ID, "storage_name", d.StorageName)
	return r.store.Get(ctx, d.ID)
}

func (r *Router) handleDeviceUpdate(ctx context.Context, req Request) (any, error) {
	if err := requireDeviceID(req); err != nil {
		return nil, err
	}
	if req.Device == nil {
		return nil, fmt.Errorf("%w: device is required", ErrBadRequest)
	}
	err := r.store.UpdateDevice(ctx, req.DeviceID, func(d *device.Device) error {
		req.Device.apply(d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.store.Get(ctx, req.DeviceID)
}

func (r *Router) handleDeviceGet(ctx context.Context, req Request) (any, error) {
	if err := requireDeviceID(req); err != nil {
		return nil, err
	}
	return r.store.Get(ctx, req.DeviceID)
}

func (r *Router) handleDeviceList(ctx context.Context, req Request) (any, error) {
	devices, err := r.store.List(ctx, store.Filter{
		ControllerReference: req.Controller,
		EntityType:          device.EntityType(req.EntityType),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"devices": devices, "count": len(devices)}, nil
}

func (r *Router) handleDeviceDelete(ctx context.Context, req Request) (any, error) {
	if err := requireDeviceID(req); err != nil {
		return nil, err
	}
	if err := r.capture.DeleteDevice(ctx, req.DeviceID, req.Cascade); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": req.DeviceID}, nil
}

func (r *Router) handleCommandDelete(ctx context.Context, req Request) (any, error) {
	if err := requireCommand(req); err != nil {
		return nil, err
	}
	if err := r.capture.DeleteCommand(ctx, req.DeviceID, req.Command, req.Cascade); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": req.Command, "device_id": req.DeviceID}, nil
}

func (r *Router) handleHistory(ctx context.Context, req Request) (any, error) {
	if r.history == nil {
		return nil, fmt.Errorf("%w: history", ErrUnavailable)
	}
	return r.history.List(ctx, history.Filter{
		DeviceID: req.DeviceID,
		Command:  req.Command,
		Kind:     history.EventKind(req.Kind),
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
}
