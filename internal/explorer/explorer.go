// ABOUTME: Explorer wires configuration into a scheduler and its collaborators
// ABOUTME: Records the run in history and serves the status API alongside it

package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-explore/internal/agent"
	"github.com/2389/coven-explore/internal/artifact"
	"github.com/2389/coven-explore/internal/config"
	"github.com/2389/coven-explore/internal/driver"
	"github.com/2389/coven-explore/internal/logwatch"
	"github.com/2389/coven-explore/internal/metrics"
	"github.com/2389/coven-explore/internal/property"
	"github.com/2389/coven-explore/internal/result"
	"github.com/2389/coven-explore/internal/scheduler"
	"github.com/2389/coven-explore/internal/store"
)

// ErrNoSuite is returned by New when no property suite is supplied.
var ErrNoSuite = errors.New("no property suite")

// LogStampLayout names the per-run output directory.
const LogStampLayout = "2006010215_04_05"

// Options carries the collaborators that cannot come from configuration.
type Options struct {
	Suite *property.Suite
	// DeviceFactory creates the live device handed to each property
	// execution. Nil hands out read-only views of the current snapshot.
	DeviceFactory driver.DeviceFactory
	// Store overrides database.path.
	Store store.Store
	// Transport overrides sync.transport.
	Transport artifact.Transport
	// OnFatal overrides the log watcher's abort-the-process default.
	OnFatal func(error)
	Logger  *slog.Logger
}

// Explorer owns every component of one run.
type Explorer struct {
	config *config.Config
	logger *slog.Logger

	runID    string
	seed     int64
	logStamp string
	localDir string

	registry   *property.Registry
	aggregator *result.Aggregator
	metrics    *metrics.Recorder
	watcher    *logwatch.Watcher
	syncer     *artifact.Coordinator
	scheduler  *scheduler.Scheduler
	store      store.Store

	httpServer *http.Server

	mu         sync.Mutex
	statusAddr string
	ran        bool
}

// New builds an explorer from cfg. The configuration must already be
// validated.
func New(cfg *config.Config, opts Options) (*Explorer, error) {
	if opts.Suite == nil {
		return nil, ErrNoSuite
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Explorer{
		config:   cfg,
		logger:   logger.With("component", "explorer"),
		runID:    uuid.New().String(),
		seed:     cfg.Exploration.Seed,
		logStamp: time.Now().Format(LogStampLayout),
		metrics:  metrics.NewRecorder(),
	}
	if e.seed == 0 {
		e.seed = rand.Int64N(1<<62) + 1
	}
	e.localDir = filepath.Join(cfg.Output.Dir, "output_"+e.logStamp)
	if err := os.MkdirAll(e.localDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	// Properties
	e.registry = property.NewRegistry(logger)
	props, err := e.registry.Discover(opts.Suite)
	if err != nil {
		// Malformed or duplicate cases are skipped; the rest still run.
		e.logger.Warn("property discovery reported problems", "error", err)
	}

	// Driver
	widgets, err := driver.ParseSelectors(cfg.Block.Widgets)
	if err != nil {
		return nil, fmt.Errorf("parsing block.widgets: %w", err)
	}
	trees, err := driver.ParseSelectors(cfg.Block.Trees)
	if err != nil {
		return nil, fmt.Errorf("parsing block.trees: %w", err)
	}
	drv := driver.NewSnapshotDriver(widgets, trees)
	if opts.DeviceFactory != nil {
		drv = driver.NewHierarchyDriver(opts.DeviceFactory, widgets, trees)
	}

	// Agent
	client := agent.NewClient(cfg.Agent.URL, logger, agent.WithTimeout(cfg.Agent.RequestTimeout))

	// Log watcher
	e.watcher = logwatch.New(resolvePath(cfg.Output.Dir, cfg.LogWatcher.Path), logwatch.Options{
		PollInterval: cfg.LogWatcher.PollInterval,
		OnFatal:      opts.OnFatal,
		Logger:       logger,
	})

	// Artifact sync
	transport := opts.Transport
	if transport == nil {
		transport = newTransport(cfg.Sync)
	}
	e.syncer = artifact.NewCoordinator(transport, artifact.Options{
		LocalDir:    e.localDir,
		Interval:    artifact.ClampInterval(cfg.Exploration.ProfilePeriod),
		StopTimeout: cfg.Sync.StopTimeout,
		Recorder:    e.metrics,
		Logger:      logger,
	})

	e.aggregator = result.NewAggregator(cfg.ResultPath())

	// Run history
	e.store = opts.Store
	if e.store == nil && cfg.Database.Path != "" {
		e.store, err = initStore(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
	}

	deps := scheduler.Deps{
		Properties: props,
		Aggregator: e.aggregator,
		Agent:      client,
		Driver:     drv,
		Watcher:    e.watcher,
		Syncer:     e.syncer,
		Recorder:   e.metrics,
		Logger:     logger,
	}
	if e.store != nil {
		deps.Journal = &journal{store: e.store, runID: e.runID}
	}

	e.scheduler, err = scheduler.New(scheduler.Config{
		StepBudget:        cfg.Exploration.MaxSteps,
		HandshakeAttempts: cfg.Agent.HandshakeAttempts,
		HandshakeInterval: cfg.Agent.HandshakeInterval,
		Init: agent.InitOptions{
			PackageNames:    cfg.Exploration.PackageNames,
			TakeScreenshots: cfg.Exploration.TakeScreenshots,
			LogStamp:        e.logStamp,
			RunningMinutes:  cfg.Exploration.RunningMinutes,
			ThrottleMillis:  cfg.Exploration.Throttle.Milliseconds(),
			ProfilePeriod:   int(cfg.Exploration.ProfilePeriod / time.Second),
		},
		Seed: e.seed,
	}, deps)
	if err != nil {
		e.closeStore()
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	// Status API
	if cfg.Status.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /health", e.handleHealth)
		mux.HandleFunc("GET /ready", e.handleReady)
		mux.Handle("GET /metrics", e.metrics.Handler())
		mux.HandleFunc("GET /api/results", e.handleResults)
		mux.HandleFunc("GET /api/session", e.handleSession)
		e.httpServer = &http.Server{
			Addr:              cfg.Status.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return e, nil
}

// initStore opens the SQLite history database, creating its directory.
func initStore(path string) (store.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

func newTransport(cfg config.SyncConfig) artifact.Transport {
	if cfg.Transport == config.TransportDir {
		return artifact.NewDirTransport()
	}
	return artifact.NewADBTransport(cfg.ADBPath, cfg.Serial, artifact.ExecRunner)
}

// resolvePath anchors relative paths at dir.
func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// RunID identifies this run in the history store.
func (e *Explorer) RunID() string { return e.runID }

// Seed is the selection seed in effect, generated when not configured.
func (e *Explorer) Seed() int64 { return e.seed }

// LocalDir receives pulled artifacts.
func (e *Explorer) LocalDir() string { return e.localDir }

// Properties lists the registered property names.
func (e *Explorer) Properties() []string { return e.registry.Names() }

// StatusAddr is the bound status server address once Run has started it.
func (e *Explorer) StatusAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusAddr
}

// Run executes the session and blocks until it terminates. Cancelling ctx
// terminates the session with reason interrupted. The returned error is
// non-nil for a Fatal outcome or a status server failure.
func (e *Explorer) Run(ctx context.Context) (scheduler.Outcome, error) {
	e.mu.Lock()
	if e.ran {
		e.mu.Unlock()
		return scheduler.Outcome{}, errors.New("explorer already ran")
	}
	e.ran = true
	e.mu.Unlock()

	var ln net.Listener
	if e.httpServer != nil {
		var err error
		ln, err = net.Listen("tcp", e.httpServer.Addr)
		if err != nil {
			return scheduler.Outcome{}, fmt.Errorf("listening on status address: %w", err)
		}
		e.mu.Lock()
		e.statusAddr = ln.Addr().String()
		e.mu.Unlock()
	}

	startedAt := time.Now()
	if e.store != nil {
		run := &store.Run{
			ID:         e.runID,
			Status:     store.RunStatusRunning,
			Seed:       e.seed,
			Packages:   e.config.Exploration.PackageNames,
			ResultFile: e.aggregator.Path(),
			StartedAt:  startedAt,
		}
		if err := e.store.CreateRun(ctx, run); err != nil {
			e.logger.Warn("recording run start failed", "run_id", e.runID, "error", err)
		}
	}

	e.logger.Info("=== RUN STARTED ===",
		"run_id", e.runID,
		"seed", e.seed,
		"properties", e.registry.Len(),
		"output_dir", e.localDir,
	)

	g, gctx := errgroup.WithContext(ctx)
	if ln != nil {
		g.Go(func() error {
			e.logger.Info("status server listening", "addr", ln.Addr().String())
			if err := e.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}

	var (
		outcome scheduler.Outcome
		runErr  error
	)
	g.Go(func() error {
		defer e.shutdownHTTP()
		outcome, runErr = e.scheduler.Run(gctx)
		return nil
	})
	serveErr := g.Wait()

	e.finishRun(ctx, outcome, runErr)

	if runErr != nil {
		return outcome, runErr
	}
	return outcome, serveErr
}

// finishRun stores the final counters and outcome in the history.
func (e *Explorer) finishRun(ctx context.Context, out scheduler.Outcome, runErr error) {
	if e.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	finishedAt := time.Now()
	run := &store.Run{
		ID:         e.runID,
		Status:     store.RunStatusFinished,
		Steps:      e.scheduler.Session().StepIndex,
		FinishedAt: &finishedAt,
	}
	switch out.Kind {
	case scheduler.OutcomeFatal:
		run.Status = store.RunStatusFatal
		if runErr != nil {
			run.Error = runErr.Error()
		}
	case scheduler.OutcomeTerminated:
		run.Reason = string(out.Reason)
	default:
		run.Reason = out.String()
	}

	if err := e.store.SavePropertyStats(sctx, e.runID, e.aggregator.Snapshot()); err != nil {
		e.logger.Warn("saving property stats failed", "run_id", e.runID, "error", err)
	}
	if err := e.store.FinishRun(sctx, run); err != nil {
		e.logger.Warn("recording run end failed", "run_id", e.runID, "error", err)
	}
}

func (e *Explorer) shutdownHTTP() {
	if e.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.httpServer.Shutdown(ctx); err != nil {
		e.logger.Warn("status server shutdown failed", "error", err)
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (e *Explorer) closeStore() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// Shutdown stops the status server and releases the history store. It is
// safe to call after Run returns.
func (e *Explorer) Shutdown(ctx context.Context) error {
	var errs []error
	if e.httpServer != nil {
		errs = appendCloseError(errs, "status shutdown", e.httpServer.Shutdown(ctx))
	}
	if e.store != nil {
		errs = appendCloseError(errs, "store close", e.store.Close())
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// journal records script events in the run history.
type journal struct {
	store store.Store
	runID string
}

func (j *journal) RecordScriptEvent(ctx context.Context, step int, name, phase string) error {
	return j.store.AppendScriptEvent(ctx, &store.ScriptEvent{
		ID:        uuid.New().String(),
		RunID:     j.runID,
		Step:      step,
		Property:  name,
		Phase:     phase,
		CreatedAt: time.Now(),
	})
}
