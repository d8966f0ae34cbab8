// ABOUTME: Package agent is the HTTP client for the remote exploration agent
// ABOUTME: Covers handshake, session init, stepping, stop and script telemetry

// Package agent talks to the exploration agent running next to the app
// under test.
//
// # Overview
//
// The agent is a UI fuzzer that performs one random interaction per step
// and returns the resulting UI hierarchy. The scheduler drives it through a
// small HTTP surface:
//
//	GET  /ping       liveness probe used by the handshake
//	POST /init       start a session, returns the remote output directory
//	POST /step       perform one step, returns the UI hierarchy
//	POST /stop       end the session
//	POST /logScript  record the last property event in the agent's log
//
// Every response is a JSON object carrying a "result" field. Fields are
// read with gjson so extra fields added by newer agents are ignored.
//
// # Session end
//
// The agent shuts its HTTP server down when its running time is over. A
// connection failure on Step is therefore the normal end of a session and
// is reported as ErrSessionEnded, not as a transport error.
//
// # Handshake
//
// WaitAlive pings the agent a bounded number of times with a fixed pause
// between attempts and returns ErrAgentUnreachable when every attempt
// failed.
package agent
