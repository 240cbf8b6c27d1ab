// benchfarm runs a filesystem-backed benchmark job farm.
//
// The farm executes shell-script job descriptors one at a time from a
// spool directory, builds upstream tool revisions, runs query suites
// against them and records the timings as CSV. "benchfarm serve" runs
// the long-lived server (HTTP API, poll loop, cron scheduler); the
// remaining subcommands operate on the same directories directly, so
// an operator on the farm host never needs the API to enqueue, cancel
// or inspect work.
//
// All commands read their configuration from FARM_* environment
// variables and from the farm.yaml named by FARM_CONFIG.
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/project"
	"github.com/benchfarm/benchfarm/internal/server"
)

var rootCmd = &cobra.Command{
	Use:     "benchfarm",
	Short:   "filesystem-backed benchmark job farm",
	Version: core.Version,
}

func init() {
	rootCmd.AddCommand(getServeCommand())
	rootCmd.AddCommand(getEnqueueCommand())
	rootCmd.AddCommand(getQueueCommand())
	rootCmd.AddCommand(getCancelCommand())
	rootCmd.AddCommand(getBuildCommand())
	rootCmd.AddCommand(getBenchCommand())
	rootCmd.AddCommand(getResultsCommand())
	rootCmd.SilenceUsage = true
}

func main() {
	// Logs go to stderr so command output (tables, job names, CSV paths)
	// stays pipeable. The serve command re-points logging at stdout.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}

// loadFarmConfig reads the farm.yaml named by cfg. A missing file is
// not fatal: the farm still queues and runs ad-hoc jobs, it just has no
// projects or schedules.
func loadFarmConfig(cfg server.Config) (*project.Config, error) {
	pcfg, err := project.Load(cfg.ConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("no farm config found, projects and schedules disabled", "path", cfg.ConfigPath)
		return &project.Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	return pcfg, nil
}

// farmWorkDir resolves the effective work dir. The farm.yaml setting
// wins over the environment so one file can move the whole farm.
func farmWorkDir(cfg server.Config, pcfg *project.Config) string {
	if pcfg.WorkDir != "" {
		return pcfg.WorkDir
	}
	return cfg.WorkDir
}
