// ABOUTME: Configuration loading and parsing for coven-explore
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-explore/internal/driver"
)

// Config represents the complete coven-explore configuration
type Config struct {
	Agent       AgentConfig       `yaml:"agent" toml:"agent"`
	Exploration ExplorationConfig `yaml:"exploration" toml:"exploration"`
	Output      OutputConfig      `yaml:"output" toml:"output"`
	LogWatcher  LogWatcherConfig  `yaml:"log_watcher" toml:"log_watcher"`
	Sync        SyncConfig        `yaml:"sync" toml:"sync"`
	Block       BlockConfig       `yaml:"block" toml:"block"`
	Database    DatabaseConfig    `yaml:"database" toml:"database"`
	Status      StatusConfig      `yaml:"status" toml:"status"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// AgentConfig holds the remote exploration agent endpoint and handshake timing
type AgentConfig struct {
	URL               string        `yaml:"url" toml:"url"`
	HandshakeAttempts int           `yaml:"handshake_attempts" toml:"handshake_attempts"`
	HandshakeInterval time.Duration `yaml:"-" toml:"-"`
	RequestTimeout    time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	HandshakeIntervalRaw string `yaml:"handshake_interval" toml:"handshake_interval"`
	RequestTimeoutRaw    string `yaml:"request_timeout" toml:"request_timeout"`
}

// ExplorationConfig holds the session parameters
type ExplorationConfig struct {
	// MaxSteps caps exploration steps; 0 runs until the agent ends the session.
	MaxSteps        int           `yaml:"max_steps" toml:"max_steps"`
	PackageNames    []string      `yaml:"package_names" toml:"package_names"`
	RunningMinutes  int           `yaml:"running_minutes" toml:"running_minutes"`
	TakeScreenshots bool          `yaml:"take_screenshots" toml:"take_screenshots"`
	Seed            int64         `yaml:"seed" toml:"seed"`
	Throttle        time.Duration `yaml:"-" toml:"-"`
	ProfilePeriod   time.Duration `yaml:"-" toml:"-"`

	ThrottleRaw      string `yaml:"throttle" toml:"throttle"`
	ProfilePeriodRaw string `yaml:"profile_period" toml:"profile_period"`
}

// OutputConfig holds where results and pulled artifacts are written
type OutputConfig struct {
	Dir        string `yaml:"dir" toml:"dir"`
	ResultFile string `yaml:"result_file" toml:"result_file"`
}

// LogWatcherConfig holds the agent log tailing configuration
type LogWatcherConfig struct {
	Path         string        `yaml:"path" toml:"path"`
	PollInterval time.Duration `yaml:"-" toml:"-"`

	PollIntervalRaw string `yaml:"poll_interval" toml:"poll_interval"`
}

// SyncConfig holds artifact transport configuration
type SyncConfig struct {
	Transport   string        `yaml:"transport" toml:"transport"` // "adb" or "dir"
	ADBPath     string        `yaml:"adb_path" toml:"adb_path"`
	Serial      string        `yaml:"serial" toml:"serial"`
	StopTimeout time.Duration `yaml:"-" toml:"-"`

	StopTimeoutRaw string `yaml:"stop_timeout" toml:"stop_timeout"`
}

// BlockConfig holds selectors the agent must never interact with
type BlockConfig struct {
	Widgets []string `yaml:"widgets" toml:"widgets"`
	Trees   []string `yaml:"trees" toml:"trees"`
}

// DatabaseConfig holds run history configuration. An empty path disables history.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// StatusConfig holds the status server address. Empty disables the server.
type StatusConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Transport names.
const (
	TransportADB = "adb"
	TransportDir = "dir"
)

// Default returns a configuration that runs against a local agent.
func Default() *Config {
	cfg := &Config{
		Agent: AgentConfig{
			URL:                  "http://localhost:8090",
			HandshakeAttempts:    10,
			HandshakeIntervalRaw: "2s",
			RequestTimeoutRaw:    "30s",
		},
		Exploration: ExplorationConfig{
			RunningMinutes:   10,
			ThrottleRaw:      "200ms",
			ProfilePeriodRaw: "25s",
		},
		Output: OutputConfig{
			Dir:        "output",
			ResultFile: "result.json",
		},
		LogWatcher: LogWatcherConfig{
			Path:            "fastbot.log",
			PollIntervalRaw: "1s",
		},
		Sync: SyncConfig{
			Transport:      TransportADB,
			StopTimeoutRaw: "5s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
	// Default raw values always parse.
	_ = parseDurations(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Unset fields keep the values from Default.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Marshal encodes c in the format implied by path's extension.
func (c *Config) Marshal(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return nil, fmt.Errorf("encoding toml: %w", err)
		}
		return buf.Bytes(), nil
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return data, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ResultPath returns the result file location, relative to the output
// directory unless absolute.
func (c *Config) ResultPath() string {
	if filepath.IsAbs(c.Output.ResultFile) {
		return c.Output.ResultFile
	}
	return filepath.Join(c.Output.Dir, c.Output.ResultFile)
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Agent.URL == "" {
		return fmt.Errorf("agent.url is required")
	}
	u, err := url.Parse(c.Agent.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("agent.url must be an http(s) URL, got %q", c.Agent.URL)
	}
	if c.Agent.HandshakeAttempts <= 0 {
		return fmt.Errorf("agent.handshake_attempts must be positive")
	}

	if len(c.Exploration.PackageNames) == 0 {
		return fmt.Errorf("exploration.package_names needs at least one package")
	}
	if c.Exploration.MaxSteps < 0 {
		return fmt.Errorf("exploration.max_steps must not be negative")
	}
	if c.Exploration.RunningMinutes < 0 {
		return fmt.Errorf("exploration.running_minutes must not be negative")
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Output.ResultFile == "" {
		return fmt.Errorf("output.result_file is required")
	}
	if c.LogWatcher.Path == "" {
		return fmt.Errorf("log_watcher.path is required")
	}

	switch c.Sync.Transport {
	case TransportADB, TransportDir:
	default:
		return fmt.Errorf("sync.transport must be %q or %q, got %q", TransportADB, TransportDir, c.Sync.Transport)
	}

	if _, err := driver.ParseSelectors(c.Block.Widgets); err != nil {
		return fmt.Errorf("block.widgets: %w", err)
	}
	if _, err := driver.ParseSelectors(c.Block.Trees); err != nil {
		return fmt.Errorf("block.trees: %w", err)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"agent.handshake_interval", cfg.Agent.HandshakeIntervalRaw, &cfg.Agent.HandshakeInterval},
		{"agent.request_timeout", cfg.Agent.RequestTimeoutRaw, &cfg.Agent.RequestTimeout},
		{"exploration.throttle", cfg.Exploration.ThrottleRaw, &cfg.Exploration.Throttle},
		{"exploration.profile_period", cfg.Exploration.ProfilePeriodRaw, &cfg.Exploration.ProfilePeriod},
		{"log_watcher.poll_interval", cfg.LogWatcher.PollIntervalRaw, &cfg.LogWatcher.PollInterval},
		{"sync.stop_timeout", cfg.Sync.StopTimeoutRaw, &cfg.Sync.StopTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("parsing %s %q: must not be negative", f.name, f.raw)
		}
		*f.dst = d
	}

	return nil
}
