// ABOUTME: Cobra command tree: run, init, merge, history, health, packs, version
// ABOUTME: Flags are bound per command; the config path is a persistent flag

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/coven-explore/internal/builtins"
)

type runOptions struct {
	packs    []string
	maxSteps int
	seed     int64
	agentURL string
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "coven-explore",
		Short: "Property-based UI exploration driven by a remote fuzzing agent",
		Long: `coven-explore drives a remote exploration agent step by step, checks
registered properties against every UI snapshot and records how often each
one was eligible, executed, failed or errored.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(), "config file (.yaml or .toml)")

	// --- Exploration ---
	var ro runOptions
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one exploration session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplore(cmd.Context(), configPath, ro, cmd.Flags().Changed("seed"))
		},
	}
	runCmd.Flags().StringSliceVarP(&ro.packs, "pack", "p", []string{builtins.SystemPackID}, "built-in property packs to load")
	runCmd.Flags().IntVar(&ro.maxSteps, "max-steps", 0, "override exploration.max_steps")
	runCmd.Flags().Int64Var(&ro.seed, "seed", 0, "override exploration.seed")
	runCmd.Flags().StringVar(&ro.agentURL, "agent", "", "override agent.url")

	// --- Setup ---
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.OutOrStdout(), configPath, force)
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	// --- Results ---
	var mergeOut string
	mergeCmd := &cobra.Command{
		Use:   "merge [result.json...]",
		Short: "Sum the counters of several result files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.OutOrStdout(), mergeOut, args)
		},
	}
	mergeCmd.Flags().StringVarP(&mergeOut, "output", "o", "", "write the merged table here instead of stdout")

	var limit int
	historyCmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs, or show one run's property counters",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd.Context(), cmd.OutOrStdout(), configPath, limit, args)
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running explorer's status server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), cmd.OutOrStdout(), configPath)
		},
	}

	packsCmd := &cobra.Command{
		Use:   "packs",
		Short: "List built-in property packs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runPacks(cmd.OutOrStdout())
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "coven-explore "+version)
		},
	}

	rootCmd.AddCommand(runCmd, initCmd, mergeCmd, historyCmd, healthCmd, packsCmd, versionCmd)
	return rootCmd
}
