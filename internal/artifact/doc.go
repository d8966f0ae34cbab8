// ABOUTME: Package artifact drains remote exploration artifacts into local storage
// ABOUTME: Provides the Transport contract, directory and adb transports, and the sync Coordinator

// Package artifact moves files produced on the device side (result files,
// step logs, screenshots) into the local output directory while exploration
// is running.
//
// The Coordinator runs in its own goroutine. Every cycle it lists the
// session output directory and its screenshots subdirectory, pulls each
// file it has not pulled before, and deletes the remote copy only after the
// local write succeeded. Identifiers of transferred files are kept in two
// synced sets, one per kind, so a file is never pulled twice. Failures are
// per file: they are logged and the file is retried next cycle.
//
// Stopping is cooperative. Stop signals the goroutine, which observes the
// signal at the top of its next cycle, and waits a bounded time for it to
// exit. A timeout is a warning, never an error.
package artifact
