// ABOUTME: Tests for coven-explore commands that work without an agent
// ABOUTME: Exercises init, merge, packs, history, run pack checks and the log handler

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-explore/internal/builtins"
	"github.com/2389/coven-explore/internal/config"
	"github.com/2389/coven-explore/internal/result"
	"github.com/2389/coven-explore/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitWritesLoadableConfig(t *testing.T) {
	for _, name := range []string{"explore.yaml", "explore.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			out, err := execute(t, "init", "--config", path)
			require.NoError(t, err)
			assert.Contains(t, out, "Wrote "+path)

			cfg, err := config.Load(path)
			require.NoError(t, err)
			assert.Equal(t, []string{"com.example.app"}, cfg.Exploration.PackageNames)
			assert.Equal(t, 2*time.Second, cfg.Agent.HandshakeInterval)
			assert.NoError(t, cfg.Validate())

			_, err = execute(t, "init", "--config", path)
			assert.Error(t, err, "refuses to overwrite")
			_, err = execute(t, "init", "--config", path, "--force")
			assert.NoError(t, err)
		})
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")
	require.NoError(t, result.Write(a, map[string]result.Counters{
		"app.T.login": {PrecondSatisfied: 4, Executed: 2, Fail: 1},
	}))
	require.NoError(t, result.Write(b, map[string]result.Counters{
		"app.T.login":  {PrecondSatisfied: 1, Executed: 1, Error: 1},
		"app.T.logout": {PrecondSatisfied: 3},
	}))

	t.Run("stdout", func(t *testing.T) {
		out, err := execute(t, "merge", a, b)
		require.NoError(t, err)
		var table map[string]result.Counters
		require.NoError(t, json.Unmarshal([]byte(out), &table))
		assert.Equal(t, result.Counters{PrecondSatisfied: 5, Executed: 3, Fail: 1, Error: 1}, table["app.T.login"])
		assert.Equal(t, 3, table["app.T.logout"].PrecondSatisfied)
	})

	t.Run("file", func(t *testing.T) {
		merged := filepath.Join(dir, "merged.json")
		out, err := execute(t, "merge", "-o", merged, a, b)
		require.NoError(t, err)
		assert.Contains(t, out, "app.T.logout")

		table, err := result.Load(merged)
		require.NoError(t, err)
		assert.Len(t, table, 2)
	})

	t.Run("needs a file", func(t *testing.T) {
		_, err := execute(t, "merge")
		assert.Error(t, err)
	})
}

func TestPacks(t *testing.T) {
	out, err := execute(t, "packs")
	require.NoError(t, err)
	assert.Contains(t, out, "builtin:system")
	assert.Contains(t, out, "builtin:permissions")
	assert.Contains(t, out, "builtin.System.crash_dialog")
	assert.Contains(t, out, "builtin.Permissions.grant_runtime_permission")
	assert.Contains(t, out, "p=0.80")
}

func TestRunRejectsLiveDevicePack(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "explore.yaml")
	cfg := config.Default()
	cfg.Exploration.PackageNames = []string{"com.example.app"}
	cfg.Output.Dir = filepath.Join(dir, "output")
	data, err := cfg.Marshal(cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, data, 0644))

	_, err = execute(t, "run", "--config", cfgPath, "--pack", builtins.PermissionsPackID)
	assert.ErrorIs(t, err, builtins.ErrLiveDevice)
	assert.NoDirExists(t, cfg.Output.Dir, "nothing is started for a rejected pack")
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	cfgPath := filepath.Join(dir, "explore.yaml")
	cfg := config.Default()
	cfg.Exploration.PackageNames = []string{"com.example.app"}
	cfg.Database.Path = dbPath
	data, err := cfg.Marshal(cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, data, 0644))

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)
	finished := time.Now()
	require.NoError(t, s.CreateRun(ctx, &store.Run{
		ID: "run-abc", Status: store.RunStatusRunning, Seed: 42,
		Packages: []string{"com.example.app"}, ResultFile: "output/result.json", StartedAt: started,
	}))
	require.NoError(t, s.SavePropertyStats(ctx, "run-abc", map[string]result.Counters{
		"builtin.System.crash_dialog": {PrecondSatisfied: 2, Executed: 2, Fail: 2},
	}))
	require.NoError(t, s.FinishRun(ctx, &store.Run{
		ID: "run-abc", Status: store.RunStatusFinished, Reason: "remote-timeout", Steps: 120, FinishedAt: &finished,
	}))
	require.NoError(t, s.Close())

	out, err := execute(t, "history", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "run-abc")
	assert.Contains(t, out, "remote-timeout")

	out, err = execute(t, "history", "--config", cfgPath, "run-abc")
	require.NoError(t, err)
	assert.Contains(t, out, "builtin.System.crash_dialog")
	assert.Contains(t, out, "steps:    120")

	_, err = execute(t, "history", "--config", cfgPath, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHistoryDisabled(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "explore.yaml")
	cfg := config.Default()
	cfg.Exploration.PackageNames = []string{"com.example.app"}
	data, err := cfg.Marshal(cfgPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, data, 0644))

	_, err = execute(t, "history", "--config", cfgPath)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestSetupLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
		logger.Info("hidden")
		logger.With("component", "scheduler").Warn("shown", "step", 3)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "shown", rec["msg"])
		assert.Equal(t, "scheduler", rec["component"])
		assert.EqualValues(t, 3, rec["step"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)
		assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
		logger.With("component", "sync").Debug("pulled", "file", "steps.log")
		assert.Contains(t, buf.String(), "pulled")
		assert.Contains(t, buf.String(), "steps.log")
		assert.Contains(t, buf.String(), "sync")
	})
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "coven-explore dev")
}
