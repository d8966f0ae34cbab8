// ABOUTME: Package scheduler runs the exploration loop that interleaves random steps with properties
// ABOUTME: Owns the session state machine, the result counters and the background units' lifecycle

// Package scheduler drives one exploration session.
//
// Each round asks the remote agent for one random step, evaluates every
// property's preconditions against the returned UI snapshot, narrows the
// eligible set with a single random draw against the probability weights,
// and runs at most one property on a fresh device. Counters are persisted
// after every round that changed them.
//
// The session moves through INIT, STEPPING, EVALUATING, SELECTING,
// EXECUTING and RECORDING until the step budget is spent, the agent ends
// the session, or the context is cancelled. Termination always runs the
// same teardown: stop the agent, flush counters, stop artifact sync, pull
// the remaining artifacts once, and close the log watcher.
//
// Properties never run concurrently. The scheduler goroutine is the only
// writer of the result counters.
package scheduler
