// Package runner spawns job descriptors as operating system processes.
//
// Every job runs in its own process group so that signals aimed at a job
// reach the whole tree it spawned, not just the top-level shell. The
// Launcher interface keeps the poller independent of os/exec, which is
// what lets poller tests substitute a fake process runtime.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DefaultShell interprets job descriptors. Descriptors carry no shebang,
// mirroring how operators invoke them by hand.
const DefaultShell = "bash"

// Spec describes one job process to launch.
type Spec struct {
	// Path is the job descriptor to execute.
	Path string
	// Dir is the working directory for the process. Empty means the
	// poller's own working directory.
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string
	// Stdout and Stderr receive the process output. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the terminal state of a job process.
type Result struct {
	// ExitCode is the process exit status, or -1 when the process was
	// terminated by a signal or never produced a status.
	ExitCode int
	// Signaled is true when a signal terminated the process.
	Signaled bool
	// Signal names the terminating signal when Signaled is set.
	Signal string
	// Runtime is the wall-clock duration from launch to exit.
	Runtime time.Duration
	// Err records a wait-layer failure, not a job failure.
	Err error
}

// Outcome classifies a result for logs and metrics.
func (r Result) Outcome() string {
	switch {
	case r.Signaled:
		return "killed"
	case r.ExitCode == 0 && r.Err == nil:
		return "succeeded"
	default:
		return "failed"
	}
}

// Handle is a launched, not yet reaped job process.
type Handle interface {
	// PID is the process group leader's id.
	PID() int
	// Wait blocks until the process exits and reaps it. Call at most once.
	Wait() Result
}

// Launcher starts job processes.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
}

// OSLauncher runs descriptors under a shell in a fresh process group.
type OSLauncher struct {
	// Shell overrides DefaultShell when set.
	Shell string
}

func (l *OSLauncher) shell() string {
	if l != nil && l.Shell != "" {
		return l.Shell
	}
	return DefaultShell
}

// Launch starts the descriptor and returns once the process exists.
// The context gates the launch only: a running job deliberately outlives
// poller shutdown and is stopped through SignalGroup instead.
func (l *OSLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(l.shell(), spec.Path)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	// Fresh process group so group-wide signals reach every descendant.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}
	return &osHandle{cmd: cmd, started: time.Now()}, nil
}

type osHandle struct {
	cmd     *exec.Cmd
	started time.Time
}

func (h *osHandle) PID() int {
	return h.cmd.Process.Pid
}

func (h *osHandle) Wait() Result {
	err := h.cmd.Wait()
	res := Result{Runtime: time.Since(h.started)}
	if err == nil {
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			res.ExitCode = -1
			res.Signaled = true
			res.Signal = ws.Signal().String()
			return res
		}
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	res.ExitCode = -1
	res.Err = err
	return res
}

// Alive reports whether a process with the given pid exists. EPERM counts
// as alive: the process is there, we just may not own it.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// SignalGroup delivers sig to the whole process group led by pid.
func SignalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid process group id %d", pid)
	}
	return syscall.Kill(-pid, sig)
}
