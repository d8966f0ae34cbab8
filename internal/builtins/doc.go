// Package builtins provides built-in property packs.
//
// # Overview
//
// Built-in properties are oracles that hold for any Android application
// under exploration. They let a run find crashes and hangs without any
// application-specific property code.
//
// # Packs
//
// System Pack (builtin:system) - works on read-only snapshots:
//
//   - anr_dialog: fails when an "isn't responding" dialog is showing
//   - crash_dialog: fails when a "has stopped" or "keeps stopping" dialog is showing
//
// Permissions Pack (builtin:permissions) - needs a live device:
//
//   - grant_runtime_permission: taps "Allow" on a runtime permission
//     prompt and checks that the prompt goes away
//
// # Usage
//
// Build a suite from pack IDs:
//
//	suite, err := builtins.Suite("builtin:system")
//
// The suite can be merged with application suites through Suite.AddSuite.
package builtins
