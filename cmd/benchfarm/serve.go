package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchfarm/benchfarm/internal/bench"
	"github.com/benchfarm/benchfarm/internal/build"
	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/metrics"
	"github.com/benchfarm/benchfarm/internal/poller"
	"github.com/benchfarm/benchfarm/internal/runner"
	"github.com/benchfarm/benchfarm/internal/scheduler"
	"github.com/benchfarm/benchfarm/internal/server"
	"github.com/benchfarm/benchfarm/internal/store"
)

func getServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the farm server: HTTP API, poll loop and scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := server.LoadConfig()
	pcfg, err := loadFarmConfig(cfg)
	if err != nil {
		return fmt.Errorf("load farm config: %w", err)
	}
	workDir := farmWorkDir(cfg, pcfg)

	st, err := store.NewDirStore(cfg.JobsDir)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}

	// Initialize Prometheus build info metric
	metrics.Init(core.Version)

	// Start the poll loop. Jobs it launches get their own process group
	// and survive shutdown; only the loop itself is tied to this context.
	pollCtx, pollCancel := context.WithCancel(context.Background())
	defer pollCancel()
	pollDone := make(chan struct{})
	p := poller.New(poller.Options{
		Store:      st,
		Launcher:   &runner.OSLauncher{},
		Interval:   cfg.PollInterval,
		WorkDir:    workDir,
		ScriptPath: st.ScriptPath,
	})
	go func() {
		defer close(pollDone)
		if err := p.Run(pollCtx); err != nil {
			// The store is the system of record; without it the farm
			// cannot do anything useful.
			slog.Error("poller failed", "error", err)
			os.Exit(1)
		}
	}()

	// Start background scheduler
	sched, err := scheduler.New(st, pcfg.Schedules, core.SystemClock(), 0)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// Create HTTP server
	router := server.NewRouter(server.Deps{
		Store:   st,
		Builds:  build.NewManager(workDir, nil),
		Results: bench.NewResultStore(cfg.ResultsDir),
		Config:  pcfg,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("farm server listening",
			"port", cfg.Port,
			"jobs_dir", cfg.JobsDir,
			"work_dir", workDir,
			"version", core.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Stop polling. A job already running keeps going in its own process
	// group; its start marker makes the next incarnation wait for it
	// instead of double-running.
	pollCancel()
	select {
	case <-pollDone:
	case <-time.After(cfg.ShutdownTimeout):
		slog.Warn("job still running at shutdown, leaving it to finish")
	}

	slog.Info("server stopped")
	return nil
}
