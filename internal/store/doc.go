// Package store provides persistent run history for coven-explore using SQLite.
//
// # Architecture
//
// Store is the interface the explorer depends on. SQLiteStore implements it
// on modernc.org/sqlite; MockStore is an in-memory implementation for tests.
//
// # Data Models
//
//   - Run: one exploration session with its start and end, termination
//     reason, step count and result file
//   - Property stats: the counters of every property at the end of a run
//   - ScriptEvent: a property transition (start, pass, fail, error) at a
//     given step, recorded while the run is in progress
//
// # Schema
//
// Tables are created on open. Timestamps are stored as RFC 3339 text in
// UTC. Deleting a run cascades to its stats and events.
//
// # Concurrency
//
// SQLite runs in WAL mode with foreign keys enabled. The scheduler writes
// events from its own goroutine while the status server reads runs.
package store
