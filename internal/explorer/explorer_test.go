// ABOUTME: Tests for Explorer wiring, run history and status handlers
// ABOUTME: Drives a full session against an httptest agent and a mounted remote dir

package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-explore/internal/config"
	"github.com/2389/coven-explore/internal/driver"
	"github.com/2389/coven-explore/internal/logwatch"
	"github.com/2389/coven-explore/internal/property"
	"github.com/2389/coven-explore/internal/result"
	"github.com/2389/coven-explore/internal/scheduler"
	"github.com/2389/coven-explore/internal/store"
)

const loginScreen = `<hierarchy rotation="0"><node index="0" text="Login" class="android.widget.Button" clickable="true" enabled="true"/></hierarchy>`

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAgent serves the exploration agent endpoints.
type fakeAgent struct {
	remoteDir string

	mu     sync.Mutex
	steps  int
	stops  int
	events []string
}

func (a *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch r.URL.Path {
	case "/ping":
		_, _ = w.Write([]byte(`{"result": "pong"}`))
	case "/init":
		resp, _ := json.Marshal(map[string]string{"result": a.remoteDir})
		_, _ = w.Write(resp)
	case "/step":
		a.steps++
		resp, _ := json.Marshal(map[string]string{"result": loginScreen})
		_, _ = w.Write(resp)
	case "/stop":
		a.stops++
		_, _ = w.Write([]byte(`{"result": "stopped"}`))
	case "/logScript":
		var ev struct {
			Name  string `json:"name"`
			State string `json:"state"`
		}
		_ = json.NewDecoder(r.Body).Decode(&ev)
		a.events = append(a.events, ev.Name+":"+ev.State)
		_, _ = w.Write([]byte(`{"result": "ok"}`))
	default:
		http.NotFound(w, r)
	}
}

func (a *fakeAgent) counts() (steps, stops int, events []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.steps, a.stops, append([]string(nil), a.events...)
}

type fakeDevice struct{}

func (fakeDevice) Hierarchy(ctx context.Context) (*driver.Hierarchy, error) {
	return driver.ParseHierarchy(loginScreen)
}

func (fakeDevice) Perform(ctx context.Context, action driver.Action) error { return nil }

func deviceFactory(ctx context.Context) (driver.Device, error) { return fakeDevice{}, nil }

func loginSuite(body property.Body) *property.Suite {
	onLogin := func(c driver.Checker) (bool, error) {
		return c.Exists(driver.Selector{Text: "Login"}), nil
	}
	return property.NewSuite("app",
		property.NewCase("app", "LoginTest", "test_login", body, property.WithPrecondition(onLogin)),
	)
}

type harness struct {
	cfg       *config.Config
	agent     *fakeAgent
	store     *store.MockStore
	remoteDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	remoteDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(remoteDir, "steps.log"), []byte("step 1\n"), 0644))

	fa := &fakeAgent{remoteDir: remoteDir}
	srv := httptest.NewServer(fa)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Agent.URL = srv.URL
	cfg.Agent.HandshakeAttempts = 1
	cfg.Exploration.PackageNames = []string{"com.example.app"}
	cfg.Exploration.MaxSteps = 3
	cfg.Exploration.Seed = 7
	cfg.Output.Dir = t.TempDir()
	cfg.Sync.Transport = config.TransportDir
	require.NoError(t, cfg.Validate())

	return &harness{cfg: cfg, agent: fa, store: store.NewMockStore(), remoteDir: remoteDir}
}

func (h *harness) explorer(t *testing.T, suite *property.Suite, onFatal func(error)) *Explorer {
	t.Helper()
	if onFatal == nil {
		onFatal = func(error) {}
	}
	e, err := New(h.cfg, Options{
		Suite:         suite,
		DeviceFactory: deviceFactory,
		Store:         h.store,
		OnFatal:       onFatal,
		Logger:        testLogger(),
	})
	require.NoError(t, err)
	return e
}

func TestNew_RequiresSuite(t *testing.T) {
	_, err := New(config.Default(), Options{Logger: testLogger()})
	assert.ErrorIs(t, err, ErrNoSuite)
}

func TestNew_RejectsBadBlockSelector(t *testing.T) {
	h := newHarness(t)
	h.cfg.Block.Widgets = []string{"bogus"}
	_, err := New(h.cfg, Options{Suite: loginSuite(nil), Logger: testLogger()})
	assert.Error(t, err)
}

func TestRun_StepBudgetRecordsHistory(t *testing.T) {
	h := newHarness(t)
	e := h.explorer(t, loginSuite(func(ctx context.Context, d driver.Device) error { return nil }), nil)
	assert.Equal(t, []string{"app.LoginTest.test_login"}, e.Properties())
	assert.Equal(t, int64(7), e.Seed())

	out, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeTerminated, out.Kind)
	assert.Equal(t, scheduler.ReasonStepBudget, out.Reason)

	// Agent saw the whole session.
	steps, stops, events := h.agent.counts()
	assert.Equal(t, 3, steps)
	assert.Equal(t, 1, stops)
	require.Len(t, events, 6)
	assert.Equal(t, "app.LoginTest.test_login:start", events[0])
	assert.Equal(t, "app.LoginTest.test_login:pass", events[1])

	// Result file on disk.
	table, err := result.Load(h.cfg.ResultPath())
	require.NoError(t, err)
	assert.Equal(t, result.Counters{PrecondSatisfied: 3, Executed: 3}, table["app.LoginTest.test_login"])

	// Run history.
	ctx := context.Background()
	run, err := h.store.GetRun(ctx, e.RunID())
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusFinished, run.Status)
	assert.Equal(t, string(scheduler.ReasonStepBudget), run.Reason)
	assert.Equal(t, 3, run.Steps)
	assert.Equal(t, int64(7), run.Seed)
	require.NotNil(t, run.FinishedAt)

	stats, err := h.store.GetPropertyStats(ctx, e.RunID())
	require.NoError(t, err)
	assert.Equal(t, 3, stats["app.LoginTest.test_login"].Executed)

	journaled, err := h.store.ListScriptEvents(ctx, e.RunID())
	require.NoError(t, err)
	assert.Len(t, journaled, 6)
	assert.Equal(t, 1, journaled[0].Step)

	// Remote artifacts were pulled.
	_, err = os.Stat(filepath.Join(e.LocalDir(), "steps.log"))
	assert.NoError(t, err)

	require.NoError(t, e.Shutdown(ctx))
}

func TestRun_FailingPropertyCounted(t *testing.T) {
	h := newHarness(t)
	e := h.explorer(t, loginSuite(func(ctx context.Context, d driver.Device) error {
		return property.Failf("login button vanished")
	}), nil)

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	table, err := result.Load(h.cfg.ResultPath())
	require.NoError(t, err)
	c := table["app.LoginTest.test_login"]
	assert.Equal(t, 3, c.Executed)
	assert.Equal(t, 3, c.Fail)
	assert.Equal(t, 0, c.Error)
	_, _, events := h.agent.counts()
	assert.Contains(t, events, "app.LoginTest.test_login:fail")
}

func TestRun_FatalLogMarksRunFatal(t *testing.T) {
	h := newHarness(t)
	logPath := filepath.Join(h.cfg.Output.Dir, h.cfg.LogWatcher.Path)
	require.NoError(t, os.WriteFile(logPath,
		[]byte("[Fastbot] *** Internal error\nnative crash in agent\n"), 0644))

	e := h.explorer(t, loginSuite(func(ctx context.Context, d driver.Device) error { return nil }), nil)

	out, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, scheduler.OutcomeFatal, out.Kind)
	var fe *logwatch.FatalError
	assert.True(t, errors.As(err, &fe))

	run, gerr := h.store.GetRun(context.Background(), e.RunID())
	require.NoError(t, gerr)
	assert.Equal(t, store.RunStatusFatal, run.Status)
	assert.Contains(t, run.Error, "native crash")
}

func TestRun_CancelledContextInterrupts(t *testing.T) {
	h := newHarness(t)
	h.cfg.Exploration.MaxSteps = 0
	ctx, cancel := context.WithCancel(context.Background())
	e := h.explorer(t, loginSuite(func(ctx context.Context, d driver.Device) error {
		cancel()
		return nil
	}), nil)

	out, err := e.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.OutcomeTerminated, out.Kind)
	assert.Equal(t, scheduler.ReasonInterrupted, out.Reason)
	_, stops, _ := h.agent.counts()
	assert.Equal(t, 1, stops)

	run, gerr := h.store.GetRun(context.Background(), e.RunID())
	require.NoError(t, gerr)
	assert.Equal(t, string(scheduler.ReasonInterrupted), run.Reason)
}

func TestRun_OnlyOnce(t *testing.T) {
	h := newHarness(t)
	e := h.explorer(t, loginSuite(func(ctx context.Context, d driver.Device) error { return nil }), nil)
	_, err := e.Run(context.Background())
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_StatusServerStartsAndStops(t *testing.T) {
	h := newHarness(t)
	h.cfg.Status.HTTPAddr = "127.0.0.1:0"
	e := h.explorer(t, loginSuite(func(ctx context.Context, d driver.Device) error { return nil }), nil)

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	addr := e.StatusAddr()
	require.NotEmpty(t, addr)

	_, err = http.Get("http://" + addr + "/health")
	assert.Error(t, err, "status server should be closed after the run")
}

func TestStatusHandlers(t *testing.T) {
	h := newHarness(t)
	e := h.explorer(t, loginSuite(func(ctx context.Context, d driver.Device) error { return nil }), nil)

	get := func(handler http.HandlerFunc) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		return rec
	}

	t.Run("health", func(t *testing.T) {
		rec := get(e.handleHealth)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("not ready before handshake", func(t *testing.T) {
		rec := get(e.handleReady)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("no results before first flush", func(t *testing.T) {
		rec := get(e.handleResults)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	_, err := e.Run(context.Background())
	require.NoError(t, err)

	t.Run("results from file", func(t *testing.T) {
		rec := get(e.handleResults)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var table map[string]result.Counters
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
		assert.Equal(t, 3, table["app.LoginTest.test_login"].Executed)
	})

	t.Run("not ready after termination", func(t *testing.T) {
		rec := get(e.handleReady)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "step-budget-reached"))
	})

	t.Run("session", func(t *testing.T) {
		rec := get(e.handleSession)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp sessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, e.RunID(), resp.RunID)
		assert.Equal(t, "TERMINATED", resp.State)
		assert.Equal(t, 3, resp.Step)
		assert.Equal(t, 3, resp.Executions)
		assert.True(t, resp.Terminated)
		assert.Equal(t, h.remoteDir, resp.RemoteDir)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "coven_explore_steps_total 3")
	})
}

func TestJournal_AppendsEvents(t *testing.T) {
	ms := store.NewMockStore()
	ctx := context.Background()
	require.NoError(t, ms.CreateRun(ctx, &store.Run{ID: "run-1", Status: store.RunStatusRunning}))

	j := &journal{store: ms, runID: "run-1"}
	require.NoError(t, j.RecordScriptEvent(ctx, 4, "a.B.c", "start"))

	events, err := ms.ListScriptEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 4, events[0].Step)
	assert.Equal(t, "a.B.c", events[0].Property)
	assert.NotEmpty(t, events[0].ID)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "fastbot.log"), resolvePath("out", "fastbot.log"))
	assert.Equal(t, "/var/log/fastbot.log", resolvePath("out", "/var/log/fastbot.log"))
}
