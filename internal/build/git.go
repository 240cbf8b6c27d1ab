// Git interactions for the build manager.

package build

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benchfarm/benchfarm/internal/project"
)

// A revision is one upstream commit discovered for building.
type revision struct {
	hash      string
	committed time.Time
}

func (r revision) short() string {
	if len(r.hash) > 12 {
		return r.hash[:12]
	}
	return r.hash
}

// syncPrimary clones the project repo on first use and fetches upstream
// afterwards. The primary clone is the single network touchpoint; worker
// checkouts clone from it locally.
func (m *Manager) syncPrimary(ctx context.Context, p *project.Project) (string, error) {
	dir := m.primaryDir(p.Name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if _, err := m.exec.Run(ctx, m.workDir, "git", "clone", "--quiet", p.Repo, dir); err != nil {
			return "", fmt.Errorf("clone %s: %w", p.Repo, err)
		}
		return dir, nil
	}
	if _, err := m.exec.Run(ctx, dir, "git", "fetch", "--quiet", "origin"); err != nil {
		return "", fmt.Errorf("fetch %s: %w", p.Name, err)
	}
	return dir, nil
}

// discover lists commits on origin/<branch> newer than the project's
// since bound, oldest first.
func (m *Manager) discover(ctx context.Context, p *project.Project, primary string) ([]revision, error) {
	cmd := []string{"git", "--no-pager", "log"}
	if p.Since != "" {
		cmd = append(cmd, "--since="+p.Since)
	}
	cmd = append(cmd, "--pretty=format:%H %ct", "--reverse", "origin/"+p.Branch)

	out, err := m.exec.Run(ctx, primary, cmd...)
	if err != nil {
		return nil, fmt.Errorf("list revisions for %s: %w", p.Name, err)
	}
	return parseRevisions(out)
}

func parseRevisions(out string) ([]revision, error) {
	var revs []revision
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 || len(fields[0]) < 12 {
			return nil, fmt.Errorf("bad revision line %q", line)
		}
		ts, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad commit timestamp in %q", line)
		}
		revs = append(revs, revision{hash: fields[0], committed: time.Unix(ts, 0).UTC()})
	}
	return revs, nil
}

// syncCheckout prepares the worker-owned clone in dir and moves it to
// rev. Each worker holds exactly one checkout dir for its whole life,
// so two builds never share a working tree.
func (m *Manager) syncCheckout(ctx context.Context, primary, dir string, rev revision) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if _, err := m.exec.Run(ctx, m.workDir, "git", "clone", "--quiet", primary, dir); err != nil {
			return fmt.Errorf("clone checkout: %w", err)
		}
	}
	if _, err := m.exec.Run(ctx, dir, "git", "fetch", "--quiet", "origin"); err != nil {
		return fmt.Errorf("fetch checkout: %w", err)
	}
	if _, err := m.exec.Run(ctx, dir, "git", "checkout", "--quiet", "--detach", rev.hash); err != nil {
		return fmt.Errorf("checkout %s: %w", rev.short(), err)
	}
	return nil
}
