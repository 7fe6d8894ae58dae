package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/infrastructure/atomicfile"
)

// SnapshotVersion is the current persisted layout version.
const SnapshotVersion = 1

const (
	backupSuffix    = ".backup"
	dirPermissions  = 0o750
	filePermissions = 0o600
)

// Snapshot is the full persisted state.
type Snapshot struct {
	Version int                       `json:"version"`
	Devices map[string]*device.Device `json:"devices"`
}

// NewSnapshot returns an empty snapshot at the current version.
func NewSnapshot() *Snapshot {
	return &Snapshot{Version: SnapshotVersion, Devices: make(map[string]*device.Device)}
}

// Config configures a FileStore.
type Config struct {
	// Path is the primary snapshot file. The backup lives at Path+".backup".
	Path string

	// CreateIfMissing writes an empty snapshot when neither the primary nor
	// the backup exists. It never replaces a file that exists but is invalid.
	CreateIfMissing bool
}

// Filter narrows List results. Zero-value fields match everything.
type Filter struct {
	ControllerReference string
	EntityType          device.EntityType
}

// Logger is the logging interface used by the store.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// FileStore is the durable store. It is safe for concurrent use.
type FileStore struct {
	mu         sync.Mutex
	path       string
	backupPath string
	logger     Logger
	now        func() time.Time

	// writeFile and copyFile replace a file atomically. Tests swap them to
	// simulate interrupted writes.
	writeFile func(path string, data []byte, perm os.FileMode) error
	copyFile  func(src, dst string, perm os.FileMode) error
}

// Open prepares a file-backed store at cfg.Path.
//
// It performs the following setup:
//  1. Creates the store directory if it doesn't exist (0750)
//  2. With CreateIfMissing, writes an empty snapshot when neither the
//     primary nor the backup file exists
//
// An existing but unreadable file is never replaced here; the first Load
// promotes the backup or reports ErrStorageCorruption.
//
// Parameters:
//   - cfg: Store configuration; Path is required
//
// Returns:
//   - *FileStore: Store safe for concurrent use
//   - error: If the path is empty or the directory or first snapshot cannot be written
func Open(cfg Config) (*FileStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	s := &FileStore{
		path:       cfg.Path,
		backupPath: cfg.Path + backupSuffix,
		logger:     noopLogger{},
		now:        time.Now,
		writeFile:  atomicfile.WriteFile,
		copyFile:   atomicfile.Copy,
	}

	if cfg.CreateIfMissing && !exists(s.path) && !exists(s.backupPath) {
		if err := s.save(NewSnapshot()); err != nil {
			return nil, fmt.Errorf("initialising store: %w", err)
		}
	}
	return s, nil
}

// SetLogger sets the logger for backup promotion warnings.
func (s *FileStore) SetLogger(l Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l == nil {
		l = noopLogger{}
	}
	s.logger = l
}

// Path returns the primary snapshot path.
func (s *FileStore) Path() string { return s.path }

// Load returns the full snapshot, promoting the backup if the primary is
// unusable.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save replaces the persisted snapshot.
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(snap)
}

// Get returns a copy of one device.
func (s *FileStore) Get(ctx context.Context, id string) (*device.Device, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := snap.Devices[id]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", id, device.ErrNotFound)
	}
	return d.DeepCopy(), nil
}

// List returns copies of all devices matching the filter, sorted by name
// then ID.
func (s *FileStore) List(ctx context.Context, f Filter) ([]*device.Device, error) {
	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*device.Device, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		if f.ControllerReference != "" && d.ControllerReference != f.ControllerReference {
			continue
		}
		if f.EntityType != "" && d.EntityType != f.EntityType {
			continue
		}
		out = append(out, d.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Create inserts a new device. It fails with device.ErrDeviceExists if the
// ID or storage name is already taken.
func (s *FileStore) Create(ctx context.Context, d *device.Device) error {
	return s.update(ctx, func(snap *Snapshot) error {
		if _, ok := snap.Devices[d.ID]; ok {
			return fmt.Errorf("device %s: %w", d.ID, device.ErrDeviceExists)
		}
		for _, other := range snap.Devices {
			if other.StorageName == d.StorageName {
				return fmt.Errorf("storage name %q used by device %s: %w",
					d.StorageName, other.ID, device.ErrDeviceExists)
			}
		}
		now := s.now().UTC()
		cpy := d.DeepCopy()
		if cpy.CreatedAt.IsZero() {
			cpy.CreatedAt = now
		}
		cpy.UpdatedAt = now
		if err := device.ValidateDevice(cpy); err != nil {
			return err
		}
		snap.Devices[cpy.ID] = cpy
		return nil
	})
}

// UpdateDevice applies fn to the stored device under the store lock. fn sees
// the current command records, so a concurrent resolution is never lost.
// StorageName is fixed once a device exists.
func (s *FileStore) UpdateDevice(ctx context.Context, id string, fn func(d *device.Device) error) error {
	return s.mutateDevice(ctx, id, func(d *device.Device) error {
		storageName := d.StorageName
		if err := fn(d); err != nil {
			return err
		}
		d.StorageName = storageName
		return nil
	})
}

// Delete removes a device and all its command records.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	return s.update(ctx, func(snap *Snapshot) error {
		if _, ok := snap.Devices[id]; !ok {
			return fmt.Errorf("device %s: %w", id, device.ErrNotFound)
		}
		delete(snap.Devices, id)
		return nil
	})
}

// PutPendingCommand creates or replaces the record for (deviceID, name) with
// a pending record owned by captureID. Any previous code is discarded.
func (s *FileStore) PutPendingCommand(ctx context.Context, deviceID, name string,
	kind device.CodeKind, captureID string, requestedAt time.Time) (*device.CommandRecord, error) {
	rec := &device.CommandRecord{
		Name:      name,
		Status:    device.StatusPending,
		CodeKind:  kind,
		LearnedAt: requestedAt.UTC(),
		CaptureID: captureID,
	}
	if err := device.ValidateCommandRecord(rec); err != nil {
		return nil, err
	}

	err := s.mutateDevice(ctx, deviceID, func(d *device.Device) error {
		if d.Commands == nil {
			d.Commands = make(map[string]*device.CommandRecord)
		}
		r := *rec
		d.Commands[name] = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ResolveCommand stores code on a pending record. It only applies while the
// record is pending under captureID; otherwise ErrStaleCapture is returned.
func (s *FileStore) ResolveCommand(ctx context.Context, deviceID, name, captureID, code string, at time.Time) error {
	if code == "" {
		return fmt.Errorf("%w: empty code for %s/%s", device.ErrInvalidCommand, deviceID, name)
	}
	return s.mutatePending(ctx, deviceID, name, captureID, func(rec *device.CommandRecord) {
		rec.Status = device.StatusResolved
		rec.Code = code
		rec.LearnedAt = at.UTC()
		rec.Error = ""
	})
}

// FailCommand marks a pending record as failed with reason, under the same
// guard as ResolveCommand.
func (s *FileStore) FailCommand(ctx context.Context, deviceID, name, captureID, reason string, at time.Time) error {
	return s.mutatePending(ctx, deviceID, name, captureID, func(rec *device.CommandRecord) {
		rec.Status = device.StatusFailed
		rec.Code = ""
		rec.Error = reason
	})
}

// DeleteCommand removes one command record.
func (s *FileStore) DeleteCommand(ctx context.Context, deviceID, name string) error {
	return s.mutateDevice(ctx, deviceID, func(d *device.Device) error {
		if _, ok := d.Commands[name]; !ok {
			return fmt.Errorf("command %s/%s: %w", deviceID, name, device.ErrNotFound)
		}
		delete(d.Commands, name)
		return nil
	})
}

func (s *FileStore) mutatePending(ctx context.Context, deviceID, name, captureID string,
	fn func(rec *device.CommandRecord)) error {
	return s.mutateDevice(ctx, deviceID, func(d *device.Device) error {
		rec, ok := d.Commands[name]
		if !ok {
			return fmt.Errorf("command %s/%s: %w", deviceID, name, device.ErrNotFound)
		}
		if rec.Status != device.StatusPending || rec.CaptureID != captureID {
			return fmt.Errorf("command %s/%s (capture %s): %w", deviceID, name, captureID, ErrStaleCapture)
		}
		fn(rec)
		return nil
	})
}

func (s *FileStore) mutateDevice(ctx context.Context, deviceID string, fn func(d *device.Device) error) error {
	return s.update(ctx, func(snap *Snapshot) error {
		d, ok := snap.Devices[deviceID]
		if !ok {
			return fmt.Errorf("device %s: %w", deviceID, device.ErrNotFound)
		}
		if err := fn(d); err != nil {
			return err
		}
		d.UpdatedAt = s.now().UTC()
		return device.ValidateDevice(d)
	})
}

// update runs one load-modify-save cycle under the store lock. If fn fails
// nothing is written.
func (s *FileStore) update(ctx context.Context, fn func(snap *Snapshot) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(snap); err != nil {
		return err
	}
	return s.save(snap)
}

func (s *FileStore) load() (*Snapshot, error) {
	snap, primaryErr := readSnapshot(s.path)
	if primaryErr == nil {
		return snap, nil
	}

	snap, err := readSnapshot(s.backupPath)
	if err != nil {
		return nil, fmt.Errorf("%w: primary: %v; backup: %v", ErrStorageCorruption, primaryErr, err)
	}

	s.logger.Warn("primary store file unusable, promoting backup",
		"path", s.path,
		"error", primaryErr,
	)
	if err := s.copyFile(s.backupPath, s.path, filePermissions); err != nil {
		return nil, fmt.Errorf("promoting backup: %w", err)
	}
	return snap, nil
}

func (s *FileStore) save(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidSnapshot)
	}
	snap.Version = SnapshotVersion
	if snap.Devices == nil {
		snap.Devices = make(map[string]*device.Device)
	}
	for id, d := range snap.Devices {
		if d == nil || d.ID != id {
			return fmt.Errorf("%w: device key %q does not match record", ErrInvalidSnapshot, id)
		}
		if err := device.ValidateDevice(d); err != nil {
			return err
		}
	}

	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := validateRaw(data); err != nil {
		return err
	}

	// Only a valid primary is worth keeping as the backup.
	if prev, err := os.ReadFile(s.path); err == nil {
		if _, derr := decodeSnapshot(prev); derr == nil {
			if err := s.writeFile(s.backupPath, prev, filePermissions); err != nil {
				return fmt.Errorf("writing backup: %w", err)
			}
		}
	}

	if err := s.writeFile(s.path, data, filePermissions); err != nil {
		return fmt.Errorf("writing store: %w", err)
	}
	return nil
}

func readSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from operator config
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	if err := validateRaw(data); err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if snap.Devices == nil {
		snap.Devices = make(map[string]*device.Device)
	}
	for id, d := range snap.Devices {
		if d.ID != id {
			return nil, fmt.Errorf("%w: device key %q holds id %q", ErrInvalidSnapshot, id, d.ID)
		}
		if d.Commands == nil {
			d.Commands = make(map[string]*device.CommandRecord)
		}
		if err := device.ValidateDevice(d); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	}
	return &snap, nil
}

// encodeSnapshot renders indented JSON. encoding/json sorts map keys, so the
// output is deterministic for a given snapshot.
func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
