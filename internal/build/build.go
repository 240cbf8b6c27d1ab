// Package build keeps a directory of tool binaries, one per upstream
// revision.
//
// Ensure discovers commits on the tracked branch, builds every revision
// that has no binary yet, and files the results under
// builds/<tool>@<revision>@<commit-unix-time>. Building is spread over a
// small pool of worker-owned git checkouts so a slow compiler saturates
// the machine without two builds ever sharing a working tree.
package build

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benchfarm/benchfarm/internal/metrics"
	"github.com/benchfarm/benchfarm/internal/project"
)

// A Build is one built tool binary.
type Build struct {
	Tool      string    `json:"tool"`
	Revision  string    `json:"revision"`
	Committed time.Time `json:"committed"`
	Path      string    `json:"path"`
}

// Name returns the on-disk name, tool@revision@commit-unix-time.
func (b Build) Name() string {
	return fmt.Sprintf("%s@%s@%d", b.Tool, b.Revision, b.Committed.Unix())
}

// ParseBuildName inverts Build.Name.
func ParseBuildName(name string) (Build, error) {
	parts := strings.Split(name, "@")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Build{}, fmt.Errorf("bad build name %q", name)
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Build{}, fmt.Errorf("bad build name %q: %v", name, err)
	}
	return Build{
		Tool:      parts[0],
		Revision:  parts[1],
		Committed: time.Unix(ts, 0).UTC(),
	}, nil
}

// Manager owns the checkouts and builds directories under the work dir.
type Manager struct {
	workDir string
	exec    Executor
}

// NewManager returns a Manager rooted at workDir. A nil exec runs real
// commands.
func NewManager(workDir string, exec Executor) *Manager {
	if exec == nil {
		exec = &OSExecutor{}
	}
	return &Manager{workDir: workDir, exec: exec}
}

func (m *Manager) buildsDir() string {
	return filepath.Join(m.workDir, "builds")
}

func (m *Manager) primaryDir(proj string) string {
	return filepath.Join(m.workDir, "checkouts", proj, "primary")
}

func (m *Manager) checkoutDir(proj string, slot int) string {
	return filepath.Join(m.workDir, "checkouts", proj, fmt.Sprintf("co-%d", slot))
}

// BuildPath returns where the named build's binary lives.
func (m *Manager) BuildPath(name string) string {
	return filepath.Join(m.buildsDir(), name)
}

// Ensure brings the builds directory up to date with upstream: it
// fetches the project repo, discovers revisions since the configured
// bound, and builds each one that has no binary yet. It returns the
// builds produced by this call, oldest revision first.
func (m *Manager) Ensure(ctx context.Context, p *project.Project) ([]Build, error) {
	if err := os.MkdirAll(m.buildsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create builds dir: %w", err)
	}

	primary, err := m.syncPrimary(ctx, p)
	if err != nil {
		return nil, err
	}
	revs, err := m.discover(ctx, p, primary)
	if err != nil {
		return nil, err
	}

	var todo []revision
	for _, rev := range revs {
		name := Build{Tool: p.Tool, Revision: rev.short(), Committed: rev.committed}.Name()
		if _, err := os.Stat(m.BuildPath(name)); err == nil {
			metrics.BuildsCompleted.WithLabelValues("skipped").Inc()
			continue
		}
		todo = append(todo, rev)
	}
	slog.Info("build sweep",
		"project", p.Name,
		"revisions", len(revs),
		"missing", len(todo))
	if len(todo) == 0 {
		return nil, nil
	}

	workers := p.Checkouts
	if workers > len(todo) {
		workers = len(todo)
	}

	jobs := make(chan revision)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var built []Build
	var errs []error
	for slot := 0; slot < workers; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			for rev := range jobs {
				b, err := m.buildOne(ctx, p, primary, slot, rev)
				mu.Lock()
				if err != nil {
					slog.Error("build failed", "project", p.Name, "revision", rev.short(), "error", err)
					metrics.BuildsCompleted.WithLabelValues("failed").Inc()
					errs = append(errs, err)
				} else {
					metrics.BuildsCompleted.WithLabelValues("ok").Inc()
					built = append(built, b)
				}
				mu.Unlock()
			}
		}(slot)
	}

feed:
	for _, rev := range todo {
		select {
		case jobs <- rev:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	sort.Slice(built, func(i, j int) bool {
		return built[i].Committed.Before(built[j].Committed)
	})
	return built, cmp.Or(errs...)
}

func (m *Manager) buildOne(ctx context.Context, p *project.Project, primary string, slot int, rev revision) (Build, error) {
	dir := m.checkoutDir(p.Name, slot)
	if err := m.syncCheckout(ctx, primary, dir, rev); err != nil {
		return Build{}, err
	}

	start := time.Now()
	buildDir := filepath.Join(dir, p.Build.Dir)
	if _, err := m.exec.Run(ctx, buildDir, p.Build.Command...); err != nil {
		return Build{}, fmt.Errorf("build %s at %s: %w", p.Tool, rev.short(), err)
	}

	b := Build{Tool: p.Tool, Revision: rev.short(), Committed: rev.committed}
	b.Path = m.BuildPath(b.Name())
	artifact := filepath.Join(dir, p.Build.Artifact)
	if err := installBinary(artifact, b.Path); err != nil {
		return Build{}, fmt.Errorf("install %s: %w", b.Name(), err)
	}
	slog.Info("build completed",
		"project", p.Name,
		"revision", rev.short(),
		"build", b.Name(),
		"runtime", time.Since(start).String())
	return b, nil
}

// installBinary copies the artifact into place through a hidden temp
// file so a concurrent List never sees a half-written binary.
func installBinary(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// List returns every build for the named tool, oldest commit first. An
// empty tool matches all builds.
func (m *Manager) List(tool string) ([]Build, error) {
	entries, err := os.ReadDir(m.buildsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read builds dir: %w", err)
	}

	var builds []Build
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		b, err := ParseBuildName(entry.Name())
		if err != nil {
			continue
		}
		if tool != "" && b.Tool != tool {
			continue
		}
		b.Path = m.BuildPath(entry.Name())
		builds = append(builds, b)
	}
	sort.Slice(builds, func(i, j int) bool {
		if !builds[i].Committed.Equal(builds[j].Committed) {
			return builds[i].Committed.Before(builds[j].Committed)
		}
		return builds[i].Revision < builds[j].Revision
	})
	return builds, nil
}

// Latest returns the newest build for the tool, or false when none exist.
func (m *Manager) Latest(tool string) (Build, bool, error) {
	builds, err := m.List(tool)
	if err != nil || len(builds) == 0 {
		return Build{}, false, err
	}
	return builds[len(builds)-1], true, nil
}
