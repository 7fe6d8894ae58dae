// Package history records the capture lifecycle (captured, resolved, failed,
// superseded, deleted) and entity generation runs in SQLite, so operators can
// see why a command ended up in the state it is in.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventKind is a capture lifecycle transition.
type EventKind string

// Event kinds.
const (
	EventCaptured   EventKind = "captured"
	EventResolved   EventKind = "resolved"
	EventFailed     EventKind = "failed"
	EventSuperseded EventKind = "superseded"
	EventDeleted    EventKind = "deleted"
)

// Event is one row of the capture history.
type Event struct {
	ID         string        `json:"id"`
	Kind       EventKind     `json:"event"`
	DeviceID   string        `json:"device_id"`
	Command    string        `json:"command,omitempty"`
	CaptureID  string        `json:"capture_id,omitempty"`
	Controller string        `json:"controller,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Latency    time.Duration `json:"latency,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// EmissionRun summarises one entity generation.
type EmissionRun struct {
	ID           string    `json:"id"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	OutputDir    string    `json:"output_dir,omitempty"`
	Detail       string    `json:"detail,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Filter controls which events List returns.
type Filter struct {
	DeviceID string
	Command  string
	Kind     EventKind
	Limit    int // default 50, max 500
	Offset   int
}

// ListResult contains a page of events.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Recorder is what the pipeline needs: a place to append events.
type Recorder interface {
	Record(ctx context.Context, e *Event) error
}

// NopRecorder discards events.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, *Event) error { return nil }

// SQLiteRepository stores history in the capture_events and emission_runs
// tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an already-migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts an event. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Event) error {
	if e.DeviceID == "" || e.Kind == "" {
		return errors.New("history: event needs a kind and a device id")
	}
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var latency any
	if e.Latency > 0 {
		latency = e.Latency.Milliseconds()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO capture_events (id, event, device_id, command, capture_id, controller, detail, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.DeviceID, e.Command,
		nullableString(e.CaptureID), nullableString(e.Controller), nullableString(e.Detail),
		latency, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting capture event: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.Command != "" {
		conditions = append(conditions, "command = ?")
		args = append(args, filter.Command)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, string(filter.Kind))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM capture_events " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting capture events: %w", err)
	}

	query := "SELECT id, event, device_id, command, capture_id, controller, detail, latency_ms, created_at " + //nolint:gosec // as above
		"FROM capture_events " + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying capture events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var kind, createdAt string
		var captureID, controller, detail sql.NullString
		var latency sql.NullInt64

		if err := rows.Scan(&e.ID, &kind, &e.DeviceID, &e.Command,
			&captureID, &controller, &detail, &latency, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning capture event: %w", err)
		}
		e.Kind = EventKind(kind)
		e.CaptureID = captureID.String
		e.Controller = controller.String
		e.Detail = detail.String
		if latency.Valid {
			e.Latency = time.Duration(latency.Int64) * time.Millisecond
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing capture event timestamp %q: %w", createdAt, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating capture events: %w", err)
	}

	return &ListResult{Events: events, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// RecordEmission stores a generation run summary.
func (r *SQLiteRepository) RecordEmission(ctx context.Context, run *EmissionRun) error {
	if run.ID == "" {
		run.ID = "emit-" + uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO emission_runs (id, success_count, failure_count, output_dir, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.SuccessCount, run.FailureCount,
		nullableString(run.OutputDir), nullableString(run.Detail),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting emission run: %w", err)
	}
	return nil
}

// LastEmission returns the most recent generation run, or nil if none.
func (r *SQLiteRepository) LastEmission(ctx context.Context) (*EmissionRun, error) {
	var run EmissionRun
	var outputDir, detail sql.NullString
	var createdAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, success_count, failure_count, output_dir, detail, created_at
		 FROM emission_runs ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&run.ID, &run.SuccessCount, &run.FailureCount, &outputDir, &detail, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying emission runs: %w", err)
	}
	run.OutputDir = outputDir.String
	run.Detail = detail.String
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing emission timestamp %q: %w", createdAt, err)
	}
	return &run, nil
}
