// ABOUTME: Coordinator periodically drains remote artifacts and screenshots
// ABOUTME: Pull-then-delete per file, cooperative stop with a bounded wait

package artifact

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"sync"
	"time"
)

// Kind distinguishes the two synced sets.
type Kind string

// Artifact kinds.
const (
	KindArtifact   Kind = "artifact"
	KindScreenshot Kind = "screenshot"
)

// ScreenshotDir is the subdirectory holding screenshots, remotely and locally.
const ScreenshotDir = "screenshots"

// Sync interval bounds and default stop wait.
const (
	MinInterval        = 10 * time.Second
	MaxInterval        = 60 * time.Second
	DefaultStopTimeout = 5 * time.Second
)

// ErrNotStarted is returned by operations that need the remote directory.
var ErrNotStarted = errors.New("sync coordinator not started")

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("sync coordinator already started")

// ClampInterval derives the sync interval from the agent's profiling
// period, bounded to [MinInterval, MaxInterval].
func ClampInterval(profilePeriod time.Duration) time.Duration {
	if profilePeriod < MinInterval {
		return MinInterval
	}
	if profilePeriod > MaxInterval {
		return MaxInterval
	}
	return profilePeriod
}

// Recorder observes per-file outcomes. Implemented by the metrics package.
type Recorder interface {
	ArtifactSynced(kind string)
	ArtifactSyncFailed(kind string)
}

// Options configures a Coordinator.
type Options struct {
	// LocalDir receives artifacts; screenshots go to LocalDir/screenshots.
	LocalDir string
	// Interval between cycles, used as given; MinInterval when zero.
	// Callers derive it from the profiling period with ClampInterval.
	Interval    time.Duration
	StopTimeout time.Duration
	Recorder    Recorder
	Logger      *slog.Logger
}

// Coordinator owns the background sync goroutine.
type Coordinator struct {
	transport   Transport
	localDir    string
	interval    time.Duration
	stopTimeout time.Duration
	recorder    Recorder
	logger      *slog.Logger

	artifacts   *syncedSet
	screenshots *syncedSet

	mu        sync.Mutex
	remoteDir string
	started   bool
	stopped   bool
	stop      chan struct{}
	finished  chan struct{}
}

// NewCoordinator creates a stopped coordinator.
func NewCoordinator(transport Transport, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = MinInterval
	}
	stopTimeout := opts.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Coordinator{
		transport:   transport,
		localDir:    opts.LocalDir,
		interval:    interval,
		stopTimeout: stopTimeout,
		recorder:    opts.Recorder,
		logger:      logger.With("component", "sync"),
		artifacts:   newSyncedSet(),
		screenshots: newSyncedSet(),
		stop:        make(chan struct{}),
		finished:    make(chan struct{}),
	}
}

// Seed marks ids as already transferred, e.g. after a restart.
func (c *Coordinator) Seed(kind Kind, ids ...string) {
	set := c.set(kind)
	for _, id := range ids {
		set.Mark(id)
	}
}

// Synced returns the transferred identifiers of kind, sorted.
func (c *Coordinator) Synced(kind Kind) []string {
	return c.set(kind).List()
}

func (c *Coordinator) set(kind Kind) *syncedSet {
	if kind == KindScreenshot {
		return c.screenshots
	}
	return c.artifacts
}

// Start records the session output directory and launches the goroutine.
func (c *Coordinator) Start(ctx context.Context, remoteDir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	c.remoteDir = remoteDir

	c.logger.Info("=== ARTIFACT SYNC STARTED ===",
		"remote_dir", remoteDir,
		"local_dir", c.localDir,
		"interval", c.interval,
	)
	go c.run(ctx)
	return nil
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.finished)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Cooperative stop point at the top of every cycle.
		select {
		case <-c.stop:
			return
		default:
		}
		c.SyncOnce(ctx)
	}
}

// SyncOnce runs one cycle over both kinds and returns the number of files
// pulled. Failures are logged per file and retried next cycle.
func (c *Coordinator) SyncOnce(ctx context.Context) int {
	c.mu.Lock()
	remoteDir := c.remoteDir
	c.mu.Unlock()
	if remoteDir == "" {
		return 0
	}

	n := c.syncKind(ctx, KindArtifact, remoteDir, c.localDir, IsArtifact)
	n += c.syncKind(ctx, KindScreenshot,
		path.Join(remoteDir, ScreenshotDir),
		filepath.Join(c.localDir, ScreenshotDir),
		IsScreenshot)
	if n > 0 {
		c.logger.Debug("sync cycle complete", "pulled", n)
	}
	return n
}

func (c *Coordinator) syncKind(ctx context.Context, kind Kind, remoteDir, localDir string, filter Filter) int {
	set := c.set(kind)

	files, err := c.transport.List(ctx, remoteDir, filter)
	if errors.Is(err, ErrRemoteMissing) {
		return 0
	}
	if err != nil {
		c.logger.Warn("listing remote files failed", "kind", kind, "dir", remoteDir, "error", err)
		return 0
	}

	pulled := 0
	for _, remote := range files {
		if ctx.Err() != nil {
			return pulled
		}
		if set.Check(remote) {
			continue
		}

		local := filepath.Join(localDir, path.Base(remote))
		if err := c.transport.Pull(ctx, remote, local); err != nil {
			c.logger.Warn("pulling remote file failed", "kind", kind, "remote", remote, "error", err)
			c.recordFailure(kind)
			continue
		}
		set.Mark(remote)
		pulled++
		c.recordSynced(kind)

		if err := c.transport.Delete(ctx, remote); err != nil {
			c.logger.Warn("deleting remote copy failed", "kind", kind, "remote", remote, "error", err)
		}
	}
	return pulled
}

func (c *Coordinator) recordSynced(kind Kind) {
	if c.recorder != nil {
		c.recorder.ArtifactSynced(string(kind))
	}
}

func (c *Coordinator) recordFailure(kind Kind) {
	if c.recorder != nil {
		c.recorder.ArtifactSyncFailed(string(kind))
	}
}

// Stop signals the goroutine and waits up to the configured stop timeout.
// It reports whether the goroutine exited in time; a timeout is logged as a
// warning. Safe to call more than once and before Start.
func (c *Coordinator) Stop() bool {
	return c.StopWithin(c.stopTimeout)
}

// StopWithin is Stop with an explicit bound.
func (c *Coordinator) StopWithin(timeout time.Duration) bool {
	c.mu.Lock()
	if !c.stopped {
		c.stopped = true
		close(c.stop)
	}
	started := c.started
	c.mu.Unlock()

	if !started {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.finished:
		c.logger.Info("artifact sync stopped",
			"artifacts", c.artifacts.Len(),
			"screenshots", c.screenshots.Len(),
		)
		return true
	case <-timer.C:
		c.logger.Warn("artifact sync did not stop in time", "timeout", timeout)
		return false
	}
}

// PullFinal copies the whole remote output directory into the local
// directory. Called once after Stop during termination.
func (c *Coordinator) PullFinal(ctx context.Context) error {
	c.mu.Lock()
	remoteDir := c.remoteDir
	c.mu.Unlock()
	if remoteDir == "" {
		return ErrNotStarted
	}
	c.logger.Info("pulling remaining artifacts", "remote_dir", remoteDir)
	return c.transport.PullDir(ctx, remoteDir, c.localDir)
}
