// ABOUTME: Store interface and data types for exploration run history
// ABOUTME: Defines Run, ScriptEvent and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/coven-explore/internal/result"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Run status values
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFatal    = "fatal"
)

// Run is one exploration session
type Run struct {
	ID         string
	Status     string
	Reason     string // termination reason for finished runs
	Error      string // failure for fatal runs
	Steps      int
	Seed       int64
	Packages   []string
	ResultFile string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ScriptEvent is one property transition inside a run
type ScriptEvent struct {
	ID        string
	RunID     string
	Step      int
	Property  string
	Phase     string
	CreatedAt time.Time
}

// Store defines the persistence operations for run history
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	SavePropertyStats(ctx context.Context, runID string, stats map[string]result.Counters) error
	GetPropertyStats(ctx context.Context, runID string) (map[string]result.Counters, error)

	AppendScriptEvent(ctx context.Context, ev *ScriptEvent) error
	ListScriptEvents(ctx context.Context, runID string) ([]*ScriptEvent, error)

	Close() error
}
