// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/2389/coven-explore/internal/result"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	stats  map[string]map[string]result.Counters // keyed by run ID
	events map[string][]*ScriptEvent             // keyed by run ID
	closed bool
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		runs:   make(map[string]*Run),
		stats:  make(map[string]map[string]result.Counters),
		events: make(map[string][]*ScriptEvent),
	}
}

// CreateRun stores a new run.
func (m *MockStore) CreateRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("inserting run: duplicate id %s", run.ID)
	}
	// Make a copy to avoid external modification
	r := *run
	m.runs[r.ID] = &r
	return nil
}

// FinishRun updates the end state of a run.
func (m *MockStore) FinishRun(ctx context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.runs[run.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = run.Status
	existing.Reason = run.Reason
	existing.Error = run.Error
	existing.Steps = run.Steps
	existing.FinishedAt = run.FinishedAt
	return nil
}

// GetRun retrieves a run by ID.
func (m *MockStore) GetRun(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListRuns returns the most recent runs first.
func (m *MockStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		cp := *r
		runs = append(runs, &cp)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// SavePropertyStats replaces the counters of a run.
func (m *MockStore) SavePropertyStats(ctx context.Context, runID string, stats map[string]result.Counters) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[runID]; !ok {
		return ErrNotFound
	}
	cp := make(map[string]result.Counters, len(stats))
	for k, v := range stats {
		cp[k] = v
	}
	m.stats[runID] = cp
	return nil
}

// GetPropertyStats returns the counters of a run.
func (m *MockStore) GetPropertyStats(ctx context.Context, runID string) (map[string]result.Counters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]result.Counters, len(m.stats[runID]))
	for k, v := range m.stats[runID] {
		out[k] = v
	}
	return out, nil
}

// AppendScriptEvent records a property transition.
func (m *MockStore) AppendScriptEvent(ctx context.Context, ev *ScriptEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[ev.RunID]; !ok {
		return ErrNotFound
	}
	e := *ev
	m.events[ev.RunID] = append(m.events[ev.RunID], &e)
	return nil
}

// ListScriptEvents returns the events of a run in recording order.
func (m *MockStore) ListScriptEvents(ctx context.Context, runID string) ([]*ScriptEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ScriptEvent, 0, len(m.events[runID]))
	for _, e := range m.events[runID] {
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Compile-time check that MockStore implements Store
var _ Store = (*MockStore)(nil)
