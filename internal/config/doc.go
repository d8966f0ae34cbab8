// Package config handles configuration loading for coven-explore.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Fields missing from the file keep the values from Default, and
// the result is validated before use.
//
// # Configuration File
//
// The format follows the file extension: .toml is decoded with
// BurntSushi/toml, anything else as YAML. `coven-explore init` writes the
// defaults to a new file.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	sync:
//	  serial: "${ANDROID_SERIAL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	agent:
//	  handshake_interval: "2s"
//	  request_timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Exploration agent:
//
//	agent:
//	  url: "http://localhost:8090"
//	  handshake_attempts: 10
//	  handshake_interval: "2s"
//
// Session:
//
//	exploration:
//	  package_names: ["it.feio.android.omninotes.alpha"]
//	  max_steps: 0            # 0 runs until the agent ends the session
//	  running_minutes: 10
//	  throttle: "200ms"
//	  profile_period: "25s"   # also sets the artifact sync interval, clamped to [10s, 60s]
//	  take_screenshots: false
//	  seed: 0                 # 0 picks a random seed
//
// Output and artifacts:
//
//	output:
//	  dir: "output"
//	  result_file: "result.json"
//	sync:
//	  transport: "adb"        # adb, dir
//	  serial: "emulator-5554"
//	  stop_timeout: "5s"
//
// Agent log:
//
//	log_watcher:
//	  path: "fastbot.log"
//	  poll_interval: "1s"
//
// Blocked UI:
//
//	block:
//	  widgets: ["resource-id=com.example:id/logout"]
//	  trees: ["class=android.webkit.WebView"]
//
// Optional services:
//
//	database:
//	  path: "history.db"      # empty disables run history
//	status:
//	  http_addr: ":9464"      # empty disables the status server
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - agent URL scheme and host
//   - at least one package name
//   - duration format validity
//   - transport, log level and log format values
//   - block selectors
//
// # Usage
//
//	cfg, err := config.Load("explore.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
