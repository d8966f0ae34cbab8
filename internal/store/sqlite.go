// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides run, property stats and script event persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-explore/internal/result"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// PRAGMAs below are per connection
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			status      TEXT NOT NULL,
			reason      TEXT,
			error       TEXT,
			steps       INTEGER NOT NULL DEFAULT 0,
			seed        INTEGER NOT NULL DEFAULT 0,
			packages    TEXT NOT NULL DEFAULT '',
			result_file TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			finished_at TEXT,

			CHECK (status IN ('running', 'finished', 'fatal'))
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

		CREATE TABLE IF NOT EXISTS property_stats (
			run_id            TEXT NOT NULL,
			property          TEXT NOT NULL,
			precond_satisfied INTEGER NOT NULL,
			executed          INTEGER NOT NULL,
			fail              INTEGER NOT NULL,
			error             INTEGER NOT NULL,

			PRIMARY KEY (run_id, property),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS script_events (
			id         TEXT PRIMARY KEY,
			run_id     TEXT NOT NULL,
			step       INTEGER NOT NULL,
			property   TEXT NOT NULL,
			phase      TEXT NOT NULL,
			created_at TEXT NOT NULL,

			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
			CHECK (phase IN ('start', 'pass', 'fail', 'error'))
		);

		CREATE INDEX IF NOT EXISTS idx_script_events_run ON script_events(run_id, step);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateRun inserts a new run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, status, reason, error, steps, seed, packages, result_file, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		nullString(run.Reason),
		nullString(run.Error),
		run.Steps,
		run.Seed,
		strings.Join(run.Packages, ","),
		run.ResultFile,
		run.StartedAt.UTC().Format(time.RFC3339),
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	s.logger.Debug("created run", "id", run.ID, "packages", run.Packages)
	return nil
}

// FinishRun records the end state of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE runs
		SET status = ?, reason = ?, error = ?, steps = ?, finished_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		run.Status,
		nullString(run.Reason),
		nullString(run.Error),
		run.Steps,
		nullTime(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("finished run", "id", run.ID, "status", run.Status, "reason", run.Reason)
	return nil
}

const runColumns = `id, status, reason, error, steps, seed, packages, result_file, started_at, finished_at`

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}

	return runs, nil
}

// SavePropertyStats replaces the stored counters of a run.
func (s *SQLiteStore) SavePropertyStats(ctx context.Context, runID string, stats map[string]result.Counters) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM property_stats WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clearing property stats: %w", err)
	}

	query := `
		INSERT INTO property_stats (run_id, property, precond_satisfied, executed, fail, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for name, c := range stats {
		if _, err := tx.ExecContext(ctx, query, runID, name, c.PrecondSatisfied, c.Executed, c.Fail, c.Error); err != nil {
			return fmt.Errorf("inserting stats for %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing property stats: %w", err)
	}

	s.logger.Debug("saved property stats", "run_id", runID, "properties", len(stats))
	return nil
}

// GetPropertyStats returns the stored counters of a run.
func (s *SQLiteStore) GetPropertyStats(ctx context.Context, runID string) (map[string]result.Counters, error) {
	query := `
		SELECT property, precond_satisfied, executed, fail, error
		FROM property_stats
		WHERE run_id = ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying property stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[string]result.Counters)
	for rows.Next() {
		var name string
		var c result.Counters
		if err := rows.Scan(&name, &c.PrecondSatisfied, &c.Executed, &c.Fail, &c.Error); err != nil {
			return nil, fmt.Errorf("scanning property stats: %w", err)
		}
		stats[name] = c
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating property stats: %w", err)
	}

	return stats, nil
}

// AppendScriptEvent records a property transition.
func (s *SQLiteStore) AppendScriptEvent(ctx context.Context, ev *ScriptEvent) error {
	query := `
		INSERT INTO script_events (id, run_id, step, property, phase, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID,
		ev.RunID,
		ev.Step,
		ev.Property,
		ev.Phase,
		ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting script event: %w", err)
	}
	return nil
}

// ListScriptEvents returns the events of a run in recording order.
func (s *SQLiteStore) ListScriptEvents(ctx context.Context, runID string) ([]*ScriptEvent, error) {
	query := `
		SELECT id, run_id, step, property, phase, created_at
		FROM script_events
		WHERE run_id = ?
		ORDER BY step ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("querying script events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*ScriptEvent
	for rows.Next() {
		var ev ScriptEvent
		var createdAt string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Step, &ev.Property, &ev.Phase, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning script event: %w", err)
		}
		ev.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		events = append(events, &ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating script events: %w", err)
	}

	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var reason, errMsg, finishedAt sql.NullString
	var packages, startedAt string

	err := row.Scan(
		&run.ID,
		&run.Status,
		&reason,
		&errMsg,
		&run.Steps,
		&run.Seed,
		&packages,
		&run.ResultFile,
		&startedAt,
		&finishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	run.Reason = reason.String
	run.Error = errMsg.String
	if packages != "" {
		run.Packages = strings.Split(packages, ",")
	}

	run.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		run.FinishedAt = &t
	}

	return &run, nil
}

// nullString returns nil for empty strings so they are stored as NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
