// ABOUTME: Exploration scheduler: step, evaluate, select, execute, record, terminate
// ABOUTME: Single goroutine owns counters; background units are stopped deterministically

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/2389/coven-explore/internal/agent"
	"github.com/2389/coven-explore/internal/driver"
	"github.com/2389/coven-explore/internal/property"
	"github.com/2389/coven-explore/internal/result"
)

// DefaultTeardownTimeout bounds the agent stop and final pull when the run
// context is already cancelled.
const DefaultTeardownTimeout = 30 * time.Second

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("scheduler dependency missing")

// Agent is the remote exploration agent.
type Agent interface {
	WaitAlive(ctx context.Context, attempts int, interval time.Duration) error
	Init(ctx context.Context, opts agent.InitOptions) (string, error)
	Step(ctx context.Context, req agent.StepRequest) (string, error)
	Stop(ctx context.Context) error
	LogScript(ctx context.Context, ev agent.ScriptEvent) error
}

// Watcher tails the agent's log. Close runs a final scan and returns the
// fatal error found, if any.
type Watcher interface {
	Start(ctx context.Context) error
	Close() error
}

// Syncer drains remote artifacts in the background.
type Syncer interface {
	Start(ctx context.Context, remoteDir string) error
	Stop() bool
	PullFinal(ctx context.Context) error
}

// Recorder observes the loop. Implemented by the metrics package.
type Recorder interface {
	StepCompleted()
	PreconditionSatisfied(name string)
	PreconditionErrored(name string)
	PropertyFinished(name, outcome string)
}

// Journal persists script events. Implemented on top of the run history.
type Journal interface {
	RecordScriptEvent(ctx context.Context, step int, name, phase string) error
}

// Config holds the session parameters.
type Config struct {
	// StepBudget caps the number of steps; 0 means unbounded.
	StepBudget        int
	HandshakeAttempts int
	HandshakeInterval time.Duration
	Init              agent.InitOptions
	// Seed makes property selection reproducible; 0 picks a random seed.
	Seed            int64
	TeardownTimeout time.Duration
}

// Deps are the collaborators of a Scheduler. Agent, Driver and Aggregator
// are required.
type Deps struct {
	Properties map[string]*property.Property
	Aggregator *result.Aggregator
	Agent      Agent
	Driver     driver.Driver
	Watcher    Watcher
	Syncer     Syncer
	Recorder   Recorder
	Journal    Journal
	Logger     *slog.Logger
}

// LastExecutedEvent is the most recent property transition.
type LastExecutedEvent struct {
	Name  string
	Phase agent.Phase
}

// Session is the scheduler-owned run state.
type Session struct {
	StepIndex  int
	StepBudget int
	Terminated bool
	Reason     TerminationReason
	RemoteDir  string
	Last       LastExecutedEvent
	Executions int
}

// Scheduler runs one exploration session. It is not reusable.
type Scheduler struct {
	cfg     Config
	props   []*property.Property
	agg     *result.Aggregator
	agent   Agent
	drv     driver.Driver
	watcher Watcher
	syncer  Syncer
	rec     Recorder
	journal Journal
	rng     *rand.Rand
	logger  *slog.Logger

	alive bool

	mu      sync.RWMutex
	state   State
	session Session
}

// New creates a scheduler. Properties are evaluated in name order so a
// fixed seed reproduces the same selections.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Agent == nil || deps.Driver == nil || deps.Aggregator == nil {
		return nil, ErrMissingDependency
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeAttempts <= 0 {
		cfg.HandshakeAttempts = agent.DefaultHandshakeAttempts
	}
	if cfg.HandshakeInterval <= 0 {
		cfg.HandshakeInterval = agent.DefaultHandshakeInterval
	}
	if cfg.TeardownTimeout <= 0 {
		cfg.TeardownTimeout = DefaultTeardownTimeout
	}

	props := make([]*property.Property, 0, len(deps.Properties))
	for _, p := range deps.Properties {
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })

	seed := uint64(cfg.Seed)
	if cfg.Seed == 0 {
		seed = rand.Uint64()
	}

	return &Scheduler{
		cfg:     cfg,
		props:   props,
		agg:     deps.Aggregator,
		agent:   deps.Agent,
		drv:     deps.Driver,
		watcher: deps.Watcher,
		syncer:  deps.Syncer,
		rec:     deps.Recorder,
		journal: deps.Journal,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		logger:  logger.With("component", "scheduler"),
		session: Session{StepBudget: cfg.StepBudget},
	}, nil
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Session returns a copy of the session state.
func (s *Scheduler) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Scheduler) updateSession(fn func(*Session)) {
	s.mu.Lock()
	fn(&s.session)
	s.mu.Unlock()
}

// Run executes the session until it terminates. The returned error is
// non-nil only for a Fatal outcome.
func (s *Scheduler) Run(ctx context.Context) (Outcome, error) {
	s.setState(StateInit)
	for _, p := range s.props {
		s.agg.Register(p.Name)
	}
	s.flush()

	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			return s.terminate(ctx, fatal(fmt.Errorf("start log watcher: %w", err)))
		}
	}

	if err := s.agent.WaitAlive(ctx, s.cfg.HandshakeAttempts, s.cfg.HandshakeInterval); err != nil {
		if ctx.Err() != nil {
			return s.terminate(ctx, terminated(ReasonInterrupted))
		}
		return s.terminate(ctx, fatal(err))
	}
	s.alive = true

	remoteDir, err := s.agent.Init(ctx, s.cfg.Init)
	if err != nil {
		return s.terminate(ctx, fatal(fmt.Errorf("init exploration session: %w", err)))
	}
	s.updateSession(func(sess *Session) { sess.RemoteDir = remoteDir })

	if s.syncer != nil {
		if err := s.syncer.Start(ctx, remoteDir); err != nil {
			s.logger.Warn("artifact sync not started", "error", err)
		}
	}

	s.logger.Info("=== EXPLORATION STARTED ===",
		"properties", len(s.props),
		"step_budget", budgetString(s.cfg.StepBudget),
		"remote_dir", remoteDir,
	)

	for {
		if ctx.Err() != nil {
			return s.terminate(ctx, terminated(ReasonInterrupted))
		}
		if s.cfg.StepBudget > 0 && s.Session().StepIndex >= s.cfg.StepBudget {
			return s.terminate(ctx, terminated(ReasonStepBudget))
		}
		if end := s.round(ctx); end != nil {
			return s.terminate(ctx, *end)
		}
	}
}

// round runs one STEPPING..RECORDING pass. A non-nil result ends the session.
func (s *Scheduler) round(ctx context.Context) *Outcome {
	s.setState(StateStepping)
	var step int
	s.updateSession(func(sess *Session) {
		sess.StepIndex++
		step = sess.StepIndex
	})

	blocks, err := s.drv.BlockLists(ctx)
	if err != nil {
		s.logger.Warn("computing block lists failed", "step", step, "error", err)
		blocks = driver.BlockLists{}
	}

	raw, err := s.agent.Step(ctx, agent.StepRequest{
		Step:         step,
		BlockWidgets: nonNil(blocks.Widgets),
		BlockTrees:   nonNil(blocks.Trees),
	})
	switch {
	case errors.Is(err, agent.ErrSessionEnded):
		s.logger.Info("exploration time is up", "step", step)
		out := terminated(ReasonRemoteTimeout)
		return &out
	case err != nil && ctx.Err() != nil:
		out := terminated(ReasonInterrupted)
		return &out
	case err != nil:
		out := fatal(fmt.Errorf("step %d: %w", step, err))
		return &out
	}
	if s.rec != nil {
		s.rec.StepCompleted()
	}

	s.setState(StateEvaluating)
	eligible := s.evaluate(driver.Snapshot{Step: step, Hierarchy: raw})
	s.logger.Debug("preconditions evaluated", "step", step, "eligible", len(eligible))
	if len(eligible) == 0 {
		return nil
	}

	s.setState(StateSelecting)
	chosen := s.selectProperty(eligible)
	if chosen == nil {
		s.setState(StateRecording)
		s.flush()
		return nil
	}

	s.setState(StateExecuting)
	out := s.execute(ctx, step, chosen)

	s.setState(StateRecording)
	s.flush()
	s.emit(ctx, step)
	s.logger.Info("property executed", "step", step, "property", chosen.Name, "outcome", out.Kind.String())
	return nil
}

// evaluate returns the eligible properties for snap in name order.
func (s *Scheduler) evaluate(snap driver.Snapshot) []*property.Property {
	checker, err := s.drv.StaticChecker(snap)
	if err != nil {
		s.logger.Warn("snapshot cannot be checked, no property is eligible", "step", snap.Step, "error", err)
		return nil
	}

	var eligible []*property.Property
	for _, p := range s.props {
		if p.Exhausted(s.agg.Get(p.Name).Executed) {
			continue
		}
		ok, err := p.Eligible(checker)
		if err != nil {
			s.logger.Warn("precondition raised, property not eligible", "property", p.Name, "error", err)
			if s.rec != nil {
				s.rec.PreconditionErrored(p.Name)
			}
			continue
		}
		if ok {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

// selectProperty counts every eligible property as satisfied, draws p in
// [0, 1) and picks uniformly among properties with weight >= p.
func (s *Scheduler) selectProperty(eligible []*property.Property) *property.Property {
	for _, p := range eligible {
		s.agg.AddPrecondSatisfied(p.Name)
		if s.rec != nil {
			s.rec.PreconditionSatisfied(p.Name)
		}
	}

	draw := s.rng.Float64()
	candidates := eligible[:0:0]
	for _, p := range eligible {
		if p.Weight >= draw {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		s.logger.Debug("no property passed the probability draw", "draw", draw, "eligible", len(eligible))
		return nil
	}
	chosen := candidates[s.rng.IntN(len(candidates))]
	s.logger.Debug("property selected",
		"name", chosen.Name,
		"weight", chosen.Weight,
		"draw", draw,
		"candidates", len(candidates),
	)
	return chosen
}

// execute runs p on a fresh device and records the outcome.
func (s *Scheduler) execute(ctx context.Context, step int, p *property.Property) Outcome {
	s.mark(ctx, step, p.Name, agent.PhaseStart)
	s.agg.AddExecuted(p.Name)
	s.updateSession(func(sess *Session) { sess.Executions++ })

	var err error
	dev, derr := s.drv.ScriptDriver(ctx)
	if derr != nil {
		err = fmt.Errorf("create device: %w", derr)
	} else {
		err = p.Run(ctx, dev)
	}

	out := Outcome{Kind: OutcomePass, Property: p.Name, Err: err}
	phase := agent.PhasePass
	switch {
	case err == nil:
	case property.IsAssertion(err):
		out.Kind = OutcomeFail
		phase = agent.PhaseFail
		s.agg.AddFail(p.Name)
		s.logger.Warn("property failed", "property", p.Name, "step", step, "error", err)
	default:
		out.Kind = OutcomeError
		phase = agent.PhaseError
		s.agg.AddError(p.Name)
		s.logger.Error("property errored", "property", p.Name, "step", step, "error", err)
	}

	s.updateSession(func(sess *Session) { sess.Last = LastExecutedEvent{Name: p.Name, Phase: phase} })
	if s.rec != nil {
		s.rec.PropertyFinished(p.Name, out.Kind.String())
	}
	return out
}

// mark records a start transition and echoes it to the agent.
func (s *Scheduler) mark(ctx context.Context, step int, name string, phase agent.Phase) {
	s.updateSession(func(sess *Session) { sess.Last = LastExecutedEvent{Name: name, Phase: phase} })
	s.emit(ctx, step)
}

// emit sends the last executed event to the agent and the journal. Both
// are best-effort.
func (s *Scheduler) emit(ctx context.Context, step int) {
	last := s.Session().Last
	if last.Name == "" {
		return
	}
	_ = s.agent.LogScript(ctx, agent.ScriptEvent{Name: last.Name, Phase: last.Phase})
	if s.journal != nil {
		if err := s.journal.RecordScriptEvent(ctx, step, last.Name, string(last.Phase)); err != nil {
			s.logger.Warn("recording script event failed", "property", last.Name, "error", err)
		}
	}
}

func (s *Scheduler) flush() {
	if err := s.agg.Flush(); err != nil {
		s.logger.Warn("persisting results failed", "path", s.agg.Path(), "error", err)
	}
}

// terminate runs the teardown sequence and returns the final outcome.
func (s *Scheduler) terminate(ctx context.Context, out Outcome) (Outcome, error) {
	s.setState(StateTerminated)
	s.updateSession(func(sess *Session) {
		sess.Terminated = true
		if out.Kind == OutcomeTerminated {
			sess.Reason = out.Reason
		}
	})

	// Teardown still runs when the caller cancelled ctx.
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TeardownTimeout)
	defer cancel()

	if s.alive {
		if err := s.agent.Stop(tctx); err != nil {
			s.logger.Warn("stopping exploration agent failed", "error", err)
		}
	}

	s.flush()

	remoteDir := s.Session().RemoteDir
	if s.syncer != nil {
		s.syncer.Stop()
		if remoteDir != "" {
			if err := s.syncer.PullFinal(tctx); err != nil {
				s.logger.Warn("final artifact pull failed", "remote_dir", remoteDir, "error", err)
			}
		}
	}

	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			out = fatal(err)
		}
	}

	sess := s.Session()
	totals := s.agg.Totals()
	s.logger.Info("=== EXPLORATION FINISHED ===",
		"outcome", out.String(),
		"steps", sess.StepIndex,
		"executed", totals.Executed,
		"fail", totals.Fail,
		"error", totals.Error,
	)

	if out.Kind == OutcomeFatal {
		return out, out.Err
	}
	return out, nil
}

func budgetString(n int) string {
	if n <= 0 {
		return "unbounded"
	}
	return fmt.Sprintf("%d", n)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
