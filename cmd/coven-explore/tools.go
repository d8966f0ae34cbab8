// ABOUTME: init, merge, history, health and packs commands
// ABOUTME: Tables are rendered with tabwriter the same way for every command

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-explore/internal/builtins"
	"github.com/2389/coven-explore/internal/config"
	"github.com/2389/coven-explore/internal/property"
	"github.com/2389/coven-explore/internal/result"
	"github.com/2389/coven-explore/internal/store"
)

// ErrNoHistory is returned when database.path is empty.
var ErrNoHistory = errors.New("run history disabled: database.path is empty")

func runInit(out io.Writer, configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	cfg := config.Default()
	cfg.Exploration.PackageNames = []string{"com.example.app"}
	cfg.Database.Path = filepath.Join("output", "history.db")
	cfg.Status.HTTPAddr = "localhost:8091"

	data, err := cfg.Marshal(configPath)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(out, "Wrote %s\n", configPath)
	fmt.Fprintln(out, "Edit exploration.package_names before the first run.")
	return nil
}

func runMerge(out io.Writer, outputPath string, paths []string) error {
	table, err := result.Merge(paths...)
	if err != nil {
		return err
	}
	if outputPath != "" {
		if err := result.Write(outputPath, table); err != nil {
			return fmt.Errorf("writing merged results: %w", err)
		}
		fmt.Fprintf(out, "Merged %d files into %s\n", len(paths), outputPath)
		printCounters(out, table)
		return nil
	}
	data, err := result.Encode(table)
	if err != nil {
		return err
	}
	_, err = out.Write(append(data, '\n'))
	return err
}

func openHistory(configPath string) (store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Path == "" {
		return nil, ErrNoHistory
	}
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return s, nil
}

func runHistory(ctx context.Context, out io.Writer, configPath string, limit int, args []string) error {
	s, err := openHistory(configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) == 1 {
		return showRun(ctx, out, s, args[0])
	}
	return listRuns(ctx, out, s, limit)
}

func listRuns(ctx context.Context, out io.Writer, s store.Store, limit int) error {
	runs, err := s.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Fprintln(out)
	cyan.Fprintln(out, "  Runs")
	cyan.Fprintln(out, "  ----")

	if len(runs) == 0 {
		fmt.Fprintln(out, "  (no runs)")
		fmt.Fprintln(out)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSTATUS\tREASON\tSTEPS\tSEED\tSTARTED")
	fmt.Fprintln(w, "  --\t------\t------\t-----\t----\t-------")
	for _, r := range runs {
		reason := r.Reason
		if r.Status == store.RunStatusFatal {
			reason = truncate(firstLine(r.Error), 40)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%d\t%d\t%s\n",
			truncate(r.ID, 12), r.Status, reason, r.Steps, r.Seed, r.StartedAt.Local().Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Fprintln(out)
	return nil
}

func showRun(ctx context.Context, out io.Writer, s store.Store, id string) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}
	stats, err := s.GetPropertyStats(ctx, id)
	if err != nil {
		return fmt.Errorf("run %s stats: %w", id, err)
	}

	fmt.Fprintf(out, "\n  Run %s\n", run.ID)
	fmt.Fprintf(out, "  status:   %s\n", run.Status)
	if run.Reason != "" {
		fmt.Fprintf(out, "  reason:   %s\n", run.Reason)
	}
	if run.Error != "" {
		fmt.Fprintf(out, "  error:    %s\n", firstLine(run.Error))
	}
	fmt.Fprintf(out, "  steps:    %d\n", run.Steps)
	fmt.Fprintf(out, "  seed:     %d\n", run.Seed)
	fmt.Fprintf(out, "  packages: %s\n", strings.Join(run.Packages, ", "))
	fmt.Fprintf(out, "  results:  %s\n", run.ResultFile)
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "  duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	printCounters(out, stats)
	return nil
}

// printCounters renders a result table sorted by property name.
func printCounters(out io.Writer, table map[string]result.Counters) {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PROPERTY\tSATISFIED\tEXECUTED\tFAIL\tERROR")
	fmt.Fprintln(w, "  --------\t---------\t--------\t----\t-----")
	for _, name := range names {
		c := table[name]
		fmt.Fprintf(w, "  %s\t%d\t%d\t%d\t%d\n", name, c.PrecondSatisfied, c.Executed, c.Fail, c.Error)
	}
	w.Flush()
	fmt.Fprintln(out)
}

func runHealth(ctx context.Context, out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Status.HTTPAddr == "" {
		return fmt.Errorf("status.http_addr is not configured")
	}

	url := fmt.Sprintf("http://%s/ready", cfg.Status.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: %s", strings.TrimSpace(string(body)))
	}
	fmt.Fprintln(out, strings.TrimSpace(string(body)))
	return nil
}

func runPacks(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PACK\tDEVICE\tDESCRIPTION")
	for _, p := range builtins.Packs() {
		device := "snapshot"
		if p.LiveDevice {
			device = "live"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", p.ID, device, p.Description)

		reg := property.NewRegistry(slog.New(slog.DiscardHandler))
		if _, err := reg.Discover(p.Suite()); err != nil {
			fmt.Fprintf(w, "    ! %s\t\t\n", firstLine(err.Error()))
		}
		for _, prop := range reg.Properties() {
			tries := "unbounded"
			if prop.MaxTries > 0 {
				tries = fmt.Sprintf("max %d", prop.MaxTries)
			}
			fmt.Fprintf(w, "    %s\tp=%.2f\t%s\n", prop.Name, prop.Weight, tries)
		}
	}
	w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
