// ABOUTME: In-process fakes for the scheduler's collaborators
// ABOUTME: Record calls in order so teardown sequencing can be asserted

package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/coven-explore/internal/agent"
	"github.com/2389/coven-explore/internal/driver"
	"github.com/2389/coven-explore/internal/property"
	"github.com/2389/coven-explore/internal/result"
)

const (
	loginScreen = `<hierarchy rotation="0"><node index="0" text="Login" class="android.widget.Button" clickable="true" enabled="true"/></hierarchy>`
	homeScreen  = `<hierarchy rotation="0"><node index="0" text="Home" class="android.widget.TextView" enabled="true"/></hierarchy>`
)

// callLog is shared by the fakes to record the global call order.
type callLog []string

func (l *callLog) add(s string) { *l = append(*l, s) }

type fakeAgent struct {
	calls *callLog

	aliveErr error
	initDir  string
	initErr  error
	// screen returns the hierarchy for a step.
	screen func(step int) string
	// endAfter makes steps beyond it report ErrSessionEnded; 0 disables.
	endAfter int
	stepErr  error

	lastStep  int
	requests  []agent.StepRequest
	events    []agent.ScriptEvent
	stops     int
	stopCtxOK bool
}

func (a *fakeAgent) WaitAlive(ctx context.Context, attempts int, interval time.Duration) error {
	a.calls.add("agent.ping")
	if a.aliveErr != nil {
		return a.aliveErr
	}
	return ctx.Err()
}

func (a *fakeAgent) Init(ctx context.Context, opts agent.InitOptions) (string, error) {
	a.calls.add("agent.init")
	if a.initErr != nil {
		return "", a.initErr
	}
	if a.initDir == "" {
		return "/sdcard/output_test", nil
	}
	return a.initDir, nil
}

func (a *fakeAgent) Step(ctx context.Context, req agent.StepRequest) (string, error) {
	a.requests = append(a.requests, req)
	if a.stepErr != nil {
		return "", a.stepErr
	}
	if a.endAfter > 0 && req.Step > a.endAfter {
		return "", agent.ErrSessionEnded
	}
	a.lastStep = req.Step
	if a.screen == nil {
		return loginScreen, nil
	}
	return a.screen(req.Step), nil
}

func (a *fakeAgent) Stop(ctx context.Context) error {
	a.calls.add("agent.stop")
	a.stops++
	a.stopCtxOK = ctx.Err() == nil
	return nil
}

func (a *fakeAgent) LogScript(ctx context.Context, ev agent.ScriptEvent) error {
	a.events = append(a.events, ev)
	return nil
}

type fakeWatcher struct {
	calls    *callLog
	started  int
	closed   int
	closeErr error
}

func (w *fakeWatcher) Start(ctx context.Context) error {
	w.calls.add("watcher.start")
	w.started++
	return nil
}

func (w *fakeWatcher) Close() error {
	w.calls.add("watcher.close")
	w.closed++
	return w.closeErr
}

type fakeSyncer struct {
	calls      *callLog
	remoteDir  string
	starts     int
	stops      int
	finalPulls int
}

func (s *fakeSyncer) Start(ctx context.Context, remoteDir string) error {
	s.calls.add("syncer.start")
	s.starts++
	s.remoteDir = remoteDir
	return nil
}

func (s *fakeSyncer) Stop() bool {
	s.calls.add("syncer.stop")
	s.stops++
	return true
}

func (s *fakeSyncer) PullFinal(ctx context.Context) error {
	s.calls.add("syncer.pull")
	s.finalPulls++
	return nil
}

type fakeDevice struct{ id int }

func (d *fakeDevice) Hierarchy(ctx context.Context) (*driver.Hierarchy, error) {
	return driver.ParseHierarchy(loginScreen)
}

func (d *fakeDevice) Perform(ctx context.Context, action driver.Action) error { return nil }

type fakeRecorder struct {
	steps     int
	satisfied map[string]int
	errored   map[string]int
	finished  map[string][]string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		satisfied: map[string]int{},
		errored:   map[string]int{},
		finished:  map[string][]string{},
	}
}

func (r *fakeRecorder) StepCompleted()                    { r.steps++ }
func (r *fakeRecorder) PreconditionSatisfied(name string) { r.satisfied[name]++ }
func (r *fakeRecorder) PreconditionErrored(name string)   { r.errored[name]++ }
func (r *fakeRecorder) PropertyFinished(name, outcome string) {
	r.finished[name] = append(r.finished[name], outcome)
}

type journalEntry struct {
	step        int
	name, phase string
}

type fakeJournal struct{ entries []journalEntry }

func (j *fakeJournal) RecordScriptEvent(ctx context.Context, step int, name, phase string) error {
	j.entries = append(j.entries, journalEntry{step, name, phase})
	return nil
}

// harness bundles a scheduler with its fakes.
type harness struct {
	calls    *callLog
	agent    *fakeAgent
	watcher  *fakeWatcher
	syncer   *fakeSyncer
	recorder *fakeRecorder
	journal  *fakeJournal
	agg      *result.Aggregator
	devices  int
	sched    *Scheduler
	// logs holds the scheduler's JSON debug log.
	logs *bytes.Buffer
}

func newHarness(t *testing.T, cfg Config, props ...*property.Property) *harness {
	t.Helper()
	calls := &callLog{}
	h := &harness{
		calls:    calls,
		agent:    &fakeAgent{calls: calls},
		watcher:  &fakeWatcher{calls: calls},
		syncer:   &fakeSyncer{calls: calls},
		recorder: newFakeRecorder(),
		journal:  &fakeJournal{},
		agg:      result.NewAggregator(filepath.Join(t.TempDir(), "result.json")),
		logs:     &bytes.Buffer{},
	}

	blockWidgets, err := driver.ParseSelectors([]string{"resourceId=com.example:id/logout"})
	require.NoError(t, err)
	drv := driver.NewHierarchyDriver(func(ctx context.Context) (driver.Device, error) {
		h.devices++
		return &fakeDevice{id: h.devices}, nil
	}, blockWidgets, nil)

	byName := make(map[string]*property.Property, len(props))
	for _, p := range props {
		byName[p.Name] = p
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}

	sched, err := New(cfg, Deps{
		Properties: byName,
		Aggregator: h.agg,
		Agent:      h.agent,
		Driver:     drv,
		Watcher:    h.watcher,
		Syncer:     h.syncer,
		Recorder:   h.recorder,
		Journal:    h.journal,
		Logger:     slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	require.NoError(t, err)
	h.sched = sched
	return h
}

var errBoom = errors.New("boom")

func onScreen(text string) property.Precondition {
	return func(c driver.Checker) (bool, error) {
		return c.Exists(driver.Selector{Text: text}), nil
	}
}

func passing(context.Context, driver.Device) error { return nil }
