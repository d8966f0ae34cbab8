// ABOUTME: Entry point for coven-explore, the property-based UI exploration runner
// ABOUTME: Resolves the config path and hands off to the cobra command tree

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                                      _
  ___ _____   _____ _ __         _____  ___ __  | | ___  _ __ ___
 / __/ _ \ \ / / _ \ '_ \ _____ / _ \ \/ / '_ \ | |/ _ \| '__/ _ \
| (_| (_) \ V /  __/ | | |_____|  __/>  <| |_) || | (_) | | |  __/
 \___\___/ \_/ \___|_| |_|      \___/_/\_\ .__/ |_|\___/|_|  \___|
                                         |_|
`

// getConfigPath returns the path to the explorer config file.
// Priority: COVEN_EXPLORE_CONFIG env var > XDG_CONFIG_HOME/coven/explore.yaml > ~/.config/coven/explore.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COVEN_EXPLORE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "explore.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coven", "explore.yaml")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
