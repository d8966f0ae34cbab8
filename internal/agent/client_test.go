// ABOUTME: Tests for the exploration agent HTTP client
// ABOUTME: Runs against httptest servers standing in for the agent

package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_StepSendsBlockListsAndParsesResult(t *testing.T) {
	var got StepRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/step", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result": "<hierarchy rotation=\"0\"/>", "coverage": 0.4}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", nil)
	xml, err := c.Step(context.Background(), StepRequest{
		Step:         7,
		BlockWidgets: []string{"resourceId=com.example:id/logout"},
		BlockTrees:   []string{},
	})
	require.NoError(t, err)
	assert.Equal(t, `<hierarchy rotation="0"/>`, xml)
	assert.Equal(t, 7, got.Step)
	assert.Equal(t, []string{"resourceId=com.example:id/logout"}, got.BlockWidgets)
}

func TestClient_StepMissingResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Step(context.Background(), StepRequest{})
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestClient_StepAfterAgentExit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, nil).Step(context.Background(), StepRequest{Step: 1})
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Step(context.Background(), StepRequest{})
	require.ErrorIs(t, err, ErrBadResponse)
	assert.Contains(t, err.Error(), "503")
	assert.NotErrorIs(t, err, ErrSessionEnded)
}

func TestClient_Init(t *testing.T) {
	var got InitOptions
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/init", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result": "/sdcard/output_2025"}`))
	}))
	defer srv.Close()

	dir, err := NewClient(srv.URL, nil).Init(context.Background(), InitOptions{
		PackageNames:    []string{"it.feio.android.omninotes.alpha"},
		TakeScreenshots: true,
		LogStamp:        "2025",
		RunningMinutes:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, "/sdcard/output_2025", dir)
	assert.True(t, got.TakeScreenshots)
	assert.Equal(t, 10, got.RunningMinutes)
}

func TestClient_InitWithoutDir(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": ""}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Init(context.Background(), InitOptions{})
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestClient_StopUsesGet(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_, _ = w.Write([]byte(`{"result": "stopped"}`))
	}))
	defer srv.Close()

	require.NoError(t, NewClient(srv.URL, nil).Stop(context.Background()))
	assert.Equal(t, http.MethodGet, method)
	assert.Equal(t, "/stop", path)
}

func TestClient_StopToleratesEndedSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	assert.NoError(t, NewClient(url, nil).Stop(context.Background()))
}

func TestClient_LogScript(t *testing.T) {
	var got ScriptEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/logScript", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"result": "ok"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, nil).LogScript(context.Background(), ScriptEvent{Name: "notes.Drawer.test_open", Phase: PhaseFail})
	require.NoError(t, err)
	assert.Equal(t, "notes.Drawer.test_open", got.Name)
	assert.Equal(t, PhaseFail, got.Phase)
}

func TestClient_WaitAlive(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"result": "pong"}`))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, nil).WaitAlive(context.Background(), 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_WaitAliveGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "starting", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, nil).WaitAlive(context.Background(), 3, time.Millisecond)
	assert.ErrorIs(t, err, ErrAgentUnreachable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_WaitAliveCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "starting", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewClient(srv.URL, nil).WaitAlive(ctx, 10, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
