// ABOUTME: Watcher tails a growing log file into a never-truncated buffer
// ABOUTME: Detects fatal and completion markers on every poll and on Close

package logwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = time.Second

var (
	fatalPattern      = regexp.MustCompile(`\[Fastbot\].+Internal\serror\n([\s\S]*)`)
	completionPattern = regexp.MustCompile(`.+Monkey\sis\sover!\n([\s\S]+Dropped.+)`)
)

// ErrAlreadyStarted is returned by Start on a running watcher.
var ErrAlreadyStarted = errors.New("log watcher already started")

// FatalError carries the body following the agent's internal-error banner.
type FatalError struct {
	Body string
}

func (e *FatalError) Error() string {
	return "exploration agent reported an internal error:\n" + e.Body
}

// Options configures a Watcher.
type Options struct {
	PollInterval time.Duration
	// OnFatal is invoked once, from the watcher goroutine, when the fatal
	// marker is detected. Defaults to logging the error and exiting with
	// status 1.
	OnFatal func(error)
	Logger  *slog.Logger
}

// Watcher tails one log file.
type Watcher struct {
	path     string
	interval time.Duration
	onFatal  func(error)
	logger   *slog.Logger

	mu       sync.Mutex
	buffer   strings.Builder
	offset   int64
	fatal    *FatalError
	summary  string
	fired    bool
	started  bool
	closed   bool
	done     chan struct{}
	finished chan struct{}
}

// New creates a watcher for path. The file need not exist yet.
func New(path string, opts Options) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "logwatch")

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	onFatal := opts.OnFatal
	if onFatal == nil {
		onFatal = func(err error) {
			logger.Error("=== EXPLORATION AGENT FAILED ===", "error", err)
			os.Exit(1)
		}
	}

	return &Watcher{
		path:     path,
		interval: interval,
		onFatal:  onFatal,
		logger:   logger,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Start launches the tailing goroutine. It stops when ctx is cancelled or
// Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	notify, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
		notify = nil
	} else if err := notify.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("cannot watch log directory, falling back to polling",
			"dir", filepath.Dir(w.path), "error", err)
		_ = notify.Close()
		notify = nil
	}

	w.logger.Info("watching exploration log", "path", w.path, "poll_interval", w.interval)
	go w.run(ctx, notify)
	return nil
}

func (w *Watcher) run(ctx context.Context, notify *fsnotify.Watcher) {
	defer close(w.finished)

	var events <-chan fsnotify.Event
	var errs <-chan error
	if notify != nil {
		defer notify.Close()
		events = notify.Events
		errs = notify.Errors
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.poll()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == target && ev.Has(fsnotify.Write|fsnotify.Create) {
				w.poll()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Debug("fsnotify error", "error", err)
		}
	}
}

// poll scans once and fires the fatal hook the first time the marker shows.
func (w *Watcher) poll() {
	fatal := w.scan()
	if fatal == nil {
		return
	}
	w.mu.Lock()
	first := !w.fired
	w.fired = true
	w.mu.Unlock()
	if first {
		w.onFatal(fatal)
	}
}

// scan reads bytes appended since the last read and parses the buffer.
func (w *Watcher) scan() *FatalError {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.readLocked(); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("reading exploration log", "path", w.path, "error", err)
	}
	w.parseLocked()
	return w.fatal
}

func (w *Watcher) readLocked() error {
	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < w.offset {
		// File was replaced; start over without discarding the buffer.
		w.offset = 0
	}
	if _, err := f.Seek(w.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(f)
	w.offset += int64(len(data))
	w.buffer.Write(data)
	if err != nil {
		return fmt.Errorf("read from offset %d: %w", w.offset, err)
	}
	return nil
}

func (w *Watcher) parseLocked() {
	buf := w.buffer.String()

	if w.fatal == nil {
		if m := fatalPattern.FindStringSubmatch(buf); m != nil {
			if body := strings.TrimSpace(m[1]); body != "" {
				w.fatal = &FatalError{Body: body}
			}
		}
	}

	if w.summary == "" {
		if m := completionPattern.FindStringSubmatch(buf); m != nil {
			if body := strings.TrimSpace(m[1]); body != "" {
				w.summary = body
				w.logger.Info("=== EXPLORATION AGENT FINISHED ===", "summary", body)
			}
		}
	}
}

// Summary returns the completion statistics, or "" if not seen yet.
func (w *Watcher) Summary() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.summary
}

// Err returns the fatal error detected so far, if any.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fatal == nil {
		return nil
	}
	return w.fatal
}

// Close stops the goroutine and runs one final scan. It returns the
// *FatalError if the fatal marker is present in the log. Safe to call more
// than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
	started := w.started
	w.mu.Unlock()

	if started {
		<-w.finished
	}

	if fatal := w.scan(); fatal != nil {
		return fatal
	}
	return nil
}
