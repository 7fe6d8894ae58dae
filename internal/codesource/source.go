package codesource

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Result is the outcome of a code lookup.
type Result struct {
	// Code is the stored code. A list of codes (toggle pairs) is returned
	// as its JSON array text.
	Code  string
	Found bool

	// ModTime is the modification time of the controller's file, zero if
	// the file does not exist.
	ModTime time.Time
}

type codeFile struct {
	Version int                                   `json:"version"`
	Data    map[string]map[string]json.RawMessage `json:"data"`
}

type cachedFile struct {
	modTime time.Time
	size    int64
	doc     *codeFile
}

// Source reads code files from a directory. Parsed files are cached until
// their size or modification time changes.
type Source struct {
	dir    string
	prefix string
	suffix string

	mu    sync.Mutex
	cache map[string]cachedFile
}

// New creates a Source for dir. pattern must contain exactly one %s, which
// is replaced by the controller's object ID.
func New(dir, pattern string) (*Source, error) {
	prefix, suffix, ok := strings.Cut(pattern, "%s")
	if !ok || strings.Contains(suffix, "%s") {
		return nil, fmt.Errorf("codesource: file pattern %q must contain exactly one %%s", pattern)
	}
	return &Source{
		dir:    dir,
		prefix: prefix,
		suffix: suffix,
		cache:  make(map[string]cachedFile),
	}, nil
}

// Dir returns the watched directory.
func (s *Source) Dir() string { return s.dir }

// FilePath returns the file holding a controller's codes. A controller
// reference "remote.living_room" maps to object ID "living_room".
func (s *Source) FilePath(controller string) (string, error) {
	objectID := ObjectID(controller)
	if objectID == "" || strings.ContainsAny(objectID, `/\`) || objectID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidController, controller)
	}
	return filepath.Join(s.dir, s.prefix+objectID+s.suffix), nil
}

// ObjectID strips the domain from an entity-style reference.
func ObjectID(controller string) string {
	if _, after, ok := strings.Cut(controller, "."); ok {
		return after
	}
	return controller
}

// Matches reports whether a file name in the directory is a code file.
func (s *Source) Matches(name string) bool {
	base := filepath.Base(name)
	return len(base) > len(s.prefix)+len(s.suffix) &&
		strings.HasPrefix(base, s.prefix) && strings.HasSuffix(base, s.suffix)
}

// Lookup returns the code stored for (controller, storageName, command).
// A missing file or entry is not an error.
func (s *Source) Lookup(controller, storageName, command string) (Result, error) {
	path, err := s.FilePath(controller)
	if err != nil {
		return Result{}, err
	}

	doc, modTime, err := s.read(path)
	if err != nil {
		return Result{}, err
	}
	res := Result{ModTime: modTime}
	if doc == nil {
		return res, nil
	}

	raw, ok := doc.Data[storageName][command]
	if !ok {
		return res, nil
	}
	code, err := decodeCode(raw)
	if err != nil {
		return res, fmt.Errorf("%w: %s %s/%s: %v", ErrMalformed, path, storageName, command, err)
	}
	if code == "" {
		return res, nil
	}
	res.Code = code
	res.Found = true
	return res, nil
}

// Commands lists the command names stored for a device.
func (s *Source) Commands(controller, storageName string) ([]string, error) {
	path, err := s.FilePath(controller)
	if err != nil {
		return nil, err
	}
	doc, _, err := s.read(path)
	if err != nil || doc == nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.Data[storageName]))
	for name := range doc.Data[storageName] {
		names = append(names, name)
	}
	return names, nil
}

func (s *Source) read(path string) (*codeFile, time.Time, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("stat %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache[path]; ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.doc, c.modTime, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path built from configured dir
	if errors.Is(err, fs.ErrNotExist) {
		delete(s.cache, path)
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var doc codeFile
	if err := json.Unmarshal(data, &doc); err != nil {
		// The writer may be mid-write; the next change notification retries.
		return nil, info.ModTime(), fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	s.cache[path] = cachedFile{modTime: info.ModTime(), size: info.Size(), doc: &doc}
	return &doc, info.ModTime(), nil
}

func decodeCode(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", nil
	}
	out, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
