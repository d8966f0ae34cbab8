// Package explorer assembles one exploration run: it builds the agent
// client, hierarchy driver, log watcher, artifact sync coordinator, result
// aggregator, run history and metrics from configuration, hands them to the
// scheduler and serves a small status API while the session runs.
package explorer
