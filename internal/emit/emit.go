// Package emit renders synthesised entities as YAML configuration
// documents, one per platform section, and writes them atomically.
//
// All entities of one platform share a single section. Output is
// deterministic: regenerating from the same devices yields identical bytes
// apart from the timestamp in each document's header line.
package emit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-irlearn/internal/device"
	"github.com/nerrad567/gray-logic-irlearn/internal/infrastructure/atomicfile"
	"github.com/nerrad567/gray-logic-irlearn/internal/synth"
)

const (
	defaultRemotePrefix = "remote."
	filePermissions     = 0o644
	dirPermissions      = 0o750
)

// Options configures an Emitter.
type Options struct {
	// RemoteEntityPrefix is added to controller references without a
	// domain. Default "remote.".
	RemoteEntityPrefix string

	UniqueIDPrefix string
	Now            func() time.Time
}

// Document is one rendered platform section.
type Document struct {
	Section  synth.Platform
	Filename string
	Content  []byte
}

// Result is the outcome of a generation run.
type Result struct {
	Documents    []Document
	SuccessCount int
	Failures     []DeviceFailure
	GeneratedAt  time.Time
}

// Emitter generates configuration documents from devices.
type Emitter struct {
	synth        *synth.Synthesizer
	remotePrefix string
	now          func() time.Time
}

// New creates an Emitter.
func New(opts Options) *Emitter {
	e := &Emitter{
		synth:        synth.New(synth.Options{UniqueIDPrefix: opts.UniqueIDPrefix}),
		remotePrefix: opts.RemoteEntityPrefix,
		now:          opts.Now,
	}
	if e.remotePrefix == "" {
		e.remotePrefix = defaultRemotePrefix
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Generate synthesises every enabled device and renders all sections.
// Devices that fail are left out and reported both in Result.Failures and
// as a *PartialEmissionFailure error; the documents are still returned.
func (e *Emitter) Generate(ctx context.Context, devices []*device.Device) (*Result, error) {
	sorted := make([]*device.Device, 0, len(devices))
	for _, d := range devices {
		if d != nil && d.Enabled {
			sorted = append(sorted, d)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StorageName != sorted[j].StorageName {
			return sorted[i].StorageName < sorted[j].StorageName
		}
		return sorted[i].ID < sorted[j].ID
	})

	res := &Result{GeneratedAt: e.now().UTC()}
	sections := newSectionSet()

	for _, d := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := e.synth.Synthesize(d)
		if err == nil {
			err = sections.add(b)
		}
		if err != nil {
			res.Failures = append(res.Failures, DeviceFailure{DeviceID: d.ID, Name: d.Name, Err: err, Reason: err.Error()})
			continue
		}
		res.SuccessCount++
	}

	for _, p := range synth.Platforms() {
		doc, err := e.render(p, sections, res.GeneratedAt)
		if err != nil {
			return nil, fmt.Errorf("rendering %s: %w", p, err)
		}
		res.Documents = append(res.Documents, doc)
	}

	if len(res.Failures) > 0 {
		return res, &PartialEmissionFailure{Failures: res.Failures, SuccessCount: res.SuccessCount}
	}
	return res, nil
}

// WriteFiles writes each document atomically into dir.
func WriteFiles(dir string, docs []Document) error {
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	var errs []error
	for _, doc := range docs {
		path := filepath.Join(dir, doc.Filename)
		if err := atomicfile.WriteFile(path, doc.Content, filePermissions); err != nil {
			errs = append(errs, fmt.Errorf("writing %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// sectionSet collects entities and helpers per platform and rejects
// object ID collisions between devices.
type sectionSet struct {
	entities map[synth.Platform][]synth.Entity
	helpers  map[synth.Platform][]synth.Helper
	owners   map[string]string // entity ID -> device ID
}

func newSectionSet() *sectionSet {
	return &sectionSet{
		entities: make(map[synth.Platform][]synth.Entity),
		helpers:  make(map[synth.Platform][]synth.Helper),
		owners:   make(map[string]string),
	}
}

func (s *sectionSet) add(b *synth.Bundle) error {
	ids := make([]string, 0, len(b.Entities)+len(b.Helpers))
	for _, en := range b.Entities {
		ids = append(ids, string(en.Platform)+"."+en.ObjectID)
	}
	for _, h := range b.Helpers {
		ids = append(ids, h.EntityID())
	}
	for _, id := range ids {
		if owner, ok := s.owners[id]; ok {
			return fmt.Errorf("%w: %s already used by device %s", ErrDuplicateObjectID, id, owner)
		}
	}

	for _, id := range ids {
		s.owners[id] = b.Device.ID
	}
	for _, en := range b.Entities {
		s.entities[en.Platform] = append(s.entities[en.Platform], en)
	}
	for _, h := range b.Helpers {
		s.helpers[h.Platform] = append(s.helpers[h.Platform], h)
	}
	return nil
}

func (e *Emitter) render(p synth.Platform, s *sectionSet, at time.Time) (Document, error) {
	entities := s.entities[p]
	sort.Slice(entities, func(i, j int) bool { return entities[i].ObjectID < entities[j].ObjectID })
	helpers := s.helpers[p]
	sort.Slice(helpers, func(i, j int) bool { return helpers[i].ObjectID < helpers[j].ObjectID })

	var body any
	switch p {
	case synth.PlatformLight:
		body = e.templateSection("lights", entities, e.light)
	case synth.PlatformFan:
		body = e.templateSection("fans", entities, e.fan)
	case synth.PlatformSwitch:
		body = e.templateSection("switches", entities, e.switchEntity)
	case synth.PlatformCover:
		body = e.templateSection("covers", entities, e.cover)
	case synth.PlatformMediaPlayer:
		list := make([]any, 0, len(entities))
		for _, en := range entities {
			list = append(list, e.mediaPlayer(en))
		}
		body = list
	case synth.PlatformScript:
		m := make(map[string]any, len(entities))
		for _, en := range entities {
			m[en.ObjectID] = e.script(en)
		}
		body = m
	default:
		m := make(map[string]any, len(helpers))
		for _, h := range helpers {
			m[h.ObjectID] = helperConfig(h)
		}
		body = m
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Generated by irlearn at %s. Manual changes will be overwritten.\n", at.Format(time.RFC3339))
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{string(p): body}); err != nil {
		return Document{}, err
	}
	if err := enc.Close(); err != nil {
		return Document{}, err
	}
	return Document{Section: p, Filename: string(p) + ".yaml", Content: buf.Bytes()}, nil
}

// templateSection groups every entity of a platform under one template
// platform entry.
func (e *Emitter) templateSection(key string, entities []synth.Entity, fn func(synth.Entity) map[string]any) []any {
	if len(entities) == 0 {
		return []any{}
	}
	m := make(map[string]any, len(entities))
	for _, en := range entities {
		m[en.ObjectID] = fn(en)
	}
	return []any{map[string]any{"platform": "template", key: m}}
}

func (e *Emitter) controllerEntity(controller string) string {
	if strings.Contains(controller, ".") {
		return controller
	}
	return e.remotePrefix + controller
}
