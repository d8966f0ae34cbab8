// ABOUTME: Package logwatch tails the exploration agent's log for fatal and completion banners
// ABOUTME: Polls by byte offset and wakes early on filesystem write notifications

// Package logwatch watches the append-only log written by the remote
// exploration agent. An internal-error banner followed by a body is fatal
// and terminates the owning process through a configurable hook; an
// end-of-session banner followed by summary statistics is logged.
package logwatch
