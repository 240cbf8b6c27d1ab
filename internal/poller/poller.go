// Package poller drives the job store.
//
// The poller repeatedly lists pending descriptors and executes them one
// at a time, oldest first. A pass works through every descriptor found
// at its start; submissions that land mid-pass wait for the next pass.
// Only an empty pass sleeps, so a busy farm re-lists immediately and a
// quiet one wakes about once per interval.
//
// Exactly one job runs at a time on the whole machine. Start markers
// are how that invariant survives restarts: a live marker left by a
// previous incarnation blocks the pass, a stale one is dropped and its
// job runs again from scratch.
package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/metrics"
	"github.com/benchfarm/benchfarm/internal/runner"
	"github.com/benchfarm/benchfarm/internal/store"
)

// DefaultInterval is the idle sleep between empty passes.
const DefaultInterval = time.Second

// Options configures a Poller. Store and Launcher are required; the
// rest default to production behavior.
type Options struct {
	Store    store.Store
	Launcher runner.Launcher
	// Clock supplies time and interruptible sleep.
	Clock core.Clock
	// Interval is the idle sleep after a pass that ran nothing.
	Interval time.Duration
	// WorkDir is the working directory handed to job processes.
	WorkDir string
	// ScriptPath resolves a job name to the descriptor path given to the
	// launcher. Production wiring passes the store's resolver.
	ScriptPath func(name string) string
	// Stdout and Stderr receive job process output.
	Stdout io.Writer
	Stderr io.Writer
	// Alive probes whether a recorded pid still exists.
	Alive func(pid int) bool
}

// Poller owns the poll loop. Create with New, run with Run.
type Poller struct {
	store      store.Store
	launcher   runner.Launcher
	clock      core.Clock
	interval   time.Duration
	workDir    string
	scriptPath func(string) string
	stdout     io.Writer
	stderr     io.Writer
	alive      func(int) bool
}

func New(opts Options) *Poller {
	p := &Poller{
		store:      opts.Store,
		launcher:   opts.Launcher,
		clock:      opts.Clock,
		interval:   opts.Interval,
		workDir:    opts.WorkDir,
		scriptPath: opts.ScriptPath,
		stdout:     opts.Stdout,
		stderr:     opts.Stderr,
		alive:      opts.Alive,
	}
	if p.clock == nil {
		p.clock = core.SystemClock()
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.scriptPath == nil {
		p.scriptPath = func(name string) string { return name }
	}
	if p.stdout == nil {
		p.stdout = os.Stdout
	}
	if p.stderr == nil {
		p.stderr = os.Stderr
	}
	if p.alive == nil {
		p.alive = runner.Alive
	}
	return p
}

// Run polls until the context is cancelled. It returns nil on a clean
// stop and an error only when the store itself breaks; the supervisor
// is expected to restart the process in that case.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("poller started", "interval", p.interval.String())
	for {
		if ctx.Err() != nil {
			slog.Info("poller stopped")
			return nil
		}
		ran, err := p.Pass(ctx)
		if err != nil {
			slog.Error("poll pass failed", "error", err)
			return err
		}
		if !ran {
			if !p.clock.Sleep(ctx, p.interval) {
				slog.Info("poller stopped")
				return nil
			}
		}
	}
}

// Pass executes every descriptor pending at the moment of listing, in
// FIFO order, and reports whether any job reached a terminal state.
func (p *Poller) Pass(ctx context.Context) (bool, error) {
	jobs, err := p.store.ListPending(ctx)
	if err != nil {
		return false, fmt.Errorf("list pending jobs: %w", err)
	}
	metrics.PendingJobs.Set(float64(len(jobs)))

	if p.blockedByMarkers(ctx, jobs) {
		metrics.PollPasses.WithLabelValues("empty").Inc()
		return false, nil
	}

	ran := false
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if p.runOne(ctx, job.Name) {
			ran = true
		}
	}
	kind := "empty"
	if ran {
		kind = "busy"
	}
	metrics.PollPasses.WithLabelValues(kind).Inc()
	return ran, nil
}

// blockedByMarkers inspects start markers left in the store. A marker
// whose pid is alive means another process owns the machine right now,
// so the entire pass idles rather than breaking the one-job invariant.
// Markers with dead pids are dropped; their jobs rerun from scratch.
func (p *Poller) blockedByMarkers(ctx context.Context, jobs []*core.Job) bool {
	blocked := false
	for _, job := range jobs {
		if job.Started == nil {
			continue
		}
		if p.alive(job.Started.PID) {
			slog.Warn("job claimed by a live process, idling",
				"job", job.Name,
				"pid", job.Started.PID,
				"started_at", job.Started.StartedAt)
			blocked = true
			continue
		}
		slog.Warn("dropping stale start marker",
			"job", job.Name,
			"pid", job.Started.PID,
			"started_at", job.Started.StartedAt)
		if err := p.store.DropMark(ctx, job.Name); err != nil {
			slog.Error("failed to drop stale start marker", "job", job.Name, "error", err)
			blocked = true
		}
	}
	return blocked
}

// runOne takes a single job from pending to done. It reports whether
// the job reached a terminal state; a descriptor that vanished between
// listing and its turn is skipped without noise.
func (p *Poller) runOne(ctx context.Context, name string) bool {
	if _, err := p.store.Get(ctx, name); err != nil {
		slog.Debug("job vanished before its turn", "job", name)
		return false
	}

	handle, err := p.launcher.Launch(ctx, runner.Spec{
		Path:   p.scriptPath(name),
		Dir:    p.workDir,
		Stdout: p.stdout,
		Stderr: p.stderr,
	})
	if err != nil {
		// A descriptor that cannot even start is terminal. Leaving it
		// pending would relaunch it every pass forever.
		slog.Error("failed to launch job", "job", name, "error", err)
		p.finish(ctx, name, runner.Result{ExitCode: -1, Err: err})
		return true
	}

	mark := core.StartMark{PID: handle.PID(), StartedAt: core.FormatTime(p.clock.Now())}
	if err := p.store.Claim(ctx, name, mark); err != nil {
		// The descriptor can vanish in the launch window. The process
		// already runs; completion will record the cancellation.
		slog.Warn("failed to claim job", "job", name, "error", err)
	}
	slog.Info("job started", "job", name, "pid", mark.PID)

	p.finish(ctx, name, handle.Wait())
	return true
}

// finish drives the store transition for a terminal job and records the
// outcome. Cancellation detected by the store overrides the process
// result: a job whose descriptor was deleted mid-run never counts as
// succeeded or failed.
func (p *Poller) finish(ctx context.Context, name string, res runner.Result) {
	cancelled, err := p.store.Complete(ctx, name)
	if err != nil {
		slog.Error("failed to complete job", "job", name, "error", err)
		return
	}
	outcome := res.Outcome()
	if cancelled {
		outcome = "cancelled"
	}
	metrics.JobsCompleted.WithLabelValues(outcome).Inc()
	metrics.JobDuration.Observe(res.Runtime.Seconds())

	attrs := []any{
		"job", name,
		"outcome", outcome,
		"exit_code", res.ExitCode,
		"runtime", res.Runtime.String(),
	}
	if res.Signaled {
		attrs = append(attrs, "signal", res.Signal)
	}
	switch outcome {
	case "succeeded":
		slog.Info("job completed", attrs...)
	case "cancelled":
		slog.Info("job cancelled while running", attrs...)
	default:
		slog.Warn("job completed", attrs...)
	}
}
