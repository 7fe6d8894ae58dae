package codesource

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Logger is the logging interface used by the watcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Watcher signals when code files in the source directory change. Bursts of
// events (write, chmod, rename from an atomic save) collapse into a single
// signal once the directory has been quiet for the debounce window.
type Watcher struct {
	source   *Source
	watcher  *fsnotify.Watcher
	debounce time.Duration
	changes  chan struct{}
	logger   Logger
}

// NewWatcher starts watching the source directory.
//
// It performs the following setup:
//  1. Creates the directory if missing, so the watch is armed before the
//     first code is learned
//  2. Adds an fsnotify watch on the directory
//
// Events are filtered and debounced once Run is called.
//
// Parameters:
//   - src: Source whose directory and file pattern are watched
//   - debounce: Quiet period before a change is signalled
//
// Returns:
//   - *Watcher: Armed watcher; call Run to deliver changes
//   - error: If the directory cannot be created or watched
func NewWatcher(src *Source, debounce time.Duration) (*Watcher, error) {
	if err := os.MkdirAll(src.Dir(), 0o750); err != nil {
		return nil, fmt.Errorf("creating code source directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fw.Add(src.Dir()); err != nil {
		fw.Close() //nolint:errcheck,gosec // already failing
		return nil, fmt.Errorf("watching %s: %w", src.Dir(), err)
	}
	return &Watcher{
		source:   src,
		watcher:  fw,
		debounce: debounce,
		changes:  make(chan struct{}, 1),
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger. Call before Run.
func (w *Watcher) SetLogger(l Logger) {
	if l != nil {
		w.logger = l
	}
}

// Changes delivers one value per debounced burst. Signals are coalesced: a
// slow reader sees at most one pending signal.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run processes filesystem events until ctx is cancelled, then closes the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close() //nolint:errcheck // shutdown

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("code source watcher error", "error", err)

		case evt, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(evt) {
				continue
			}
			w.logger.Debug("code source changed", "path", evt.Name, "op", evt.Op.String())
			if w.debounce <= 0 {
				w.signal()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.signal()
		}
	}
}

func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	return w.source.Matches(evt.Name)
}

func (w *Watcher) signal() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}
