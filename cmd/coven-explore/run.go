// ABOUTME: run command: loads config, builds the explorer and prints the outcome
// ABOUTME: SIGINT/SIGTERM cancel the run, which terminates with reason interrupted

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-explore/internal/builtins"
	"github.com/2389/coven-explore/internal/config"
	"github.com/2389/coven-explore/internal/explorer"
	"github.com/2389/coven-explore/internal/scheduler"
)

func runExplore(ctx context.Context, configPath string, ro runOptions, seedSet bool) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if ro.agentURL != "" {
		cfg.Agent.URL = ro.agentURL
	}
	if ro.maxSteps > 0 {
		cfg.Exploration.MaxSteps = ro.maxSteps
	}
	if seedSet {
		cfg.Exploration.Seed = ro.seed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)

	// The CLI drives no live UI transport, so executions get snapshot devices.
	if err := builtins.CheckDevice(false, ro.packs...); err != nil {
		return err
	}
	suite, err := builtins.Suite(ro.packs...)
	if err != nil {
		return err
	}

	exp, err := explorer.New(cfg, explorer.Options{Suite: suite, Logger: logger})
	if err != nil {
		return fmt.Errorf("creating explorer: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Agent:     %s\n", cfg.Agent.URL)
	green.Print("    ▶ ")
	fmt.Printf("Packages:  %v\n", cfg.Exploration.PackageNames)
	green.Print("    ▶ ")
	fmt.Printf("Output:    %s\n", exp.LocalDir())
	green.Print("    ▶ ")
	fmt.Printf("Seed:      %d\n", exp.Seed())
	if cfg.Status.HTTPAddr != "" {
		green.Print("    ▶ ")
		fmt.Printf("Status:    http://%s\n", cfg.Status.HTTPAddr)
	}
	fmt.Println()

	out, runErr := exp.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}

	printOutcome(out)
	fmt.Printf("    results: %s\n", cfg.ResultPath())
	fmt.Printf("    run id:  %s\n", exp.RunID())
	return runErr
}

func printOutcome(out scheduler.Outcome) {
	fmt.Println()
	switch out.Kind {
	case scheduler.OutcomeFatal:
		color.New(color.FgRed, color.Bold).Printf("    ✗ %s\n", out)
	case scheduler.OutcomeTerminated:
		color.New(color.FgGreen).Printf("    ✓ %s\n", out)
	default:
		color.New(color.FgYellow).Printf("    • %s\n", out)
	}
}
