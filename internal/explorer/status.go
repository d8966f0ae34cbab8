// ABOUTME: Status API handlers: liveness, readiness, persisted results, session
// ABOUTME: Results are read back from the result file, never from live counters

package explorer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/2389/coven-explore/internal/result"
	"github.com/2389/coven-explore/internal/scheduler"
)

// handleHealth returns 200 OK if the server is alive.
func (e *Explorer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the session is exploring.
func (e *Explorer) handleReady(w http.ResponseWriter, r *http.Request) {
	state := e.scheduler.State()
	sess := e.scheduler.Session()
	if state == scheduler.StateTerminated {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "terminated (%s)", sess.Reason)
		return
	}
	if sess.RemoteDir == "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("waiting for exploration agent"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (step %d)", sess.StepIndex)
}

// handleResults serves the last flushed result table.
func (e *Explorer) handleResults(w http.ResponseWriter, r *http.Request) {
	table, err := result.Load(e.aggregator.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "no results yet", http.StatusNotFound)
			return
		}
		e.logger.Error("reading result file", "path", e.aggregator.Path(), "error", err)
		http.Error(w, "result file unreadable", http.StatusInternalServerError)
		return
	}
	data, err := result.Encode(table)
	if err != nil {
		http.Error(w, "encoding results", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

type sessionResponse struct {
	RunID      string `json:"run_id"`
	Seed       int64  `json:"seed"`
	State      string `json:"state"`
	Step       int    `json:"step"`
	StepBudget int    `json:"step_budget"`
	Terminated bool   `json:"terminated"`
	Reason     string `json:"reason,omitempty"`
	RemoteDir  string `json:"remote_dir,omitempty"`
	LastName   string `json:"last_property,omitempty"`
	LastPhase  string `json:"last_phase,omitempty"`
	Executions int    `json:"executions"`
}

// handleSession reports the scheduler's run state.
func (e *Explorer) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := e.scheduler.Session()
	resp := sessionResponse{
		RunID:      e.runID,
		Seed:       e.seed,
		State:      e.scheduler.State().String(),
		Step:       sess.StepIndex,
		StepBudget: sess.StepBudget,
		Terminated: sess.Terminated,
		Reason:     string(sess.Reason),
		RemoteDir:  sess.RemoteDir,
		LastName:   sess.Last.Name,
		LastPhase:  string(sess.Last.Phase),
		Executions: sess.Executions,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		e.logger.Warn("encoding session response", "error", err)
	}
}
