package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benchfarm/benchfarm/internal/project"
)

var (
	rev1 = strings.Repeat("1", 40)
	rev2 = strings.Repeat("2", 40)
)

// fakeExec simulates git and the build toolchain on the real temp
// filesystem: clones create directories, builds write an artifact whose
// content is the revision checked out in that working tree.
type fakeExec struct {
	mu       sync.Mutex
	cmds     [][]string
	logOut   string
	checkout map[string]string
	artifact string
	failRevs map[string]bool
}

func newFakeExec(logOut string) *fakeExec {
	return &fakeExec{
		logOut:   logOut,
		checkout: make(map[string]string),
		artifact: filepath.Join("bin", "dfcli"),
		failRevs: make(map[string]bool),
	}
}

func (f *fakeExec) Run(_ context.Context, dir string, cmd ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, append([]string{dir}, cmd...))

	switch {
	case cmd[0] == "git" && cmd[1] == "clone":
		return "", os.MkdirAll(cmd[len(cmd)-1], 0o755)
	case cmd[0] == "git" && cmd[1] == "fetch":
		return "", nil
	case cmd[0] == "git" && cmd[1] == "checkout":
		f.checkout[dir] = cmd[len(cmd)-1]
		return "", nil
	case cmd[0] == "git":
		// Revision discovery.
		return f.logOut, nil
	case cmd[0] == "fakebuild":
		rev := f.checkout[dir]
		if f.failRevs[rev] {
			return "", fmt.Errorf("compile error at %s", rev)
		}
		path := filepath.Join(dir, f.artifact)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return "", os.WriteFile(path, []byte(rev), 0o644)
	}
	return "", fmt.Errorf("unexpected command %v", cmd)
}

func (f *fakeExec) buildCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, cmd := range f.cmds {
		if len(cmd) > 1 && cmd[1] == "fakebuild" {
			n++
		}
	}
	return n
}

func testProject() *project.Project {
	return &project.Project{
		Name:   "df",
		Repo:   "https://example.com/df.git",
		Branch: "main",
		Tool:   "dfcli",
		Build: project.Build{
			Command:  []string{"fakebuild"},
			Artifact: filepath.Join("bin", "dfcli"),
		},
		Checkouts: 2,
		Since:     "2026-01-01",
	}
}

func TestEnsureBuildsMissingRevisions(t *testing.T) {
	exec := newFakeExec(rev1 + " 1000\n" + rev2 + " 2000\n")
	m := NewManager(t.TempDir(), exec)

	built, err := m.Ensure(context.Background(), testProject())
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if len(built) != 2 {
		t.Fatalf("built %d revisions, want 2", len(built))
	}
	if built[0].Revision != rev1[:12] || built[1].Revision != rev2[:12] {
		t.Errorf("built = %v, want oldest first", built)
	}
	if want := "dfcli@" + rev1[:12] + "@1000"; built[0].Name() != want {
		t.Errorf("Name() = %q, want %q", built[0].Name(), want)
	}

	for _, b := range built {
		data, err := os.ReadFile(b.Path)
		if err != nil {
			t.Fatalf("read %s: %v", b.Path, err)
		}
		if !strings.HasPrefix(string(data), b.Revision) {
			t.Errorf("binary %s holds %q, want the %s build", b.Name(), data, b.Revision)
		}
		info, err := os.Stat(b.Path)
		if err != nil {
			t.Fatalf("stat %s: %v", b.Path, err)
		}
		if info.Mode()&0o111 == 0 {
			t.Errorf("binary %s not executable", b.Name())
		}
	}
}

func TestEnsureSkipsExistingBuilds(t *testing.T) {
	exec := newFakeExec(rev1 + " 1000\n" + rev2 + " 2000\n")
	m := NewManager(t.TempDir(), exec)
	ctx := context.Background()

	if _, err := m.Ensure(ctx, testProject()); err != nil {
		t.Fatalf("first Ensure() error: %v", err)
	}
	built, err := m.Ensure(ctx, testProject())
	if err != nil {
		t.Fatalf("second Ensure() error: %v", err)
	}
	if len(built) != 0 {
		t.Errorf("second sweep built %v, want nothing", built)
	}
	if got := exec.buildCount(); got != 2 {
		t.Errorf("build commands = %d, want 2", got)
	}
}

func TestEnsureKeepsGoingPastFailures(t *testing.T) {
	exec := newFakeExec(rev1 + " 1000\n" + rev2 + " 2000\n")
	exec.failRevs[rev1] = true
	m := NewManager(t.TempDir(), exec)

	built, err := m.Ensure(context.Background(), testProject())
	if err == nil {
		t.Fatal("Ensure() expected error for failed build")
	}
	if len(built) != 1 || built[0].Revision != rev2[:12] {
		t.Errorf("built = %v, want just the healthy revision", built)
	}
}

func TestEnsureNoRevisions(t *testing.T) {
	m := NewManager(t.TempDir(), newFakeExec(""))
	built, err := m.Ensure(context.Background(), testProject())
	if err != nil {
		t.Fatalf("Ensure() error: %v", err)
	}
	if built != nil {
		t.Errorf("built = %v, want nil", built)
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	buildsDir := filepath.Join(m.workDir, "builds")
	if err := os.MkdirAll(buildsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{
		"dfcli@aaaaaaaaaaaa@2000",
		"dfcli@bbbbbbbbbbbb@1000",
		"other@cccccccccccc@1500",
		"not-a-build",
		".dfcli@tmp@1.tmp-x",
	} {
		if err := os.WriteFile(filepath.Join(buildsDir, name), []byte("x"), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	builds, err := m.List("dfcli")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(builds) != 2 {
		t.Fatalf("List() = %v, want 2 builds", builds)
	}
	if builds[0].Revision != "bbbbbbbbbbbb" || builds[1].Revision != "aaaaaaaaaaaa" {
		t.Errorf("List() order = %v, want oldest commit first", builds)
	}

	all, err := m.List("")
	if err != nil {
		t.Fatalf("List(all) error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(all) = %d builds, want 3", len(all))
	}

	latest, ok, err := m.Latest("dfcli")
	if err != nil || !ok {
		t.Fatalf("Latest() = %v, %v", ok, err)
	}
	if latest.Revision != "aaaaaaaaaaaa" {
		t.Errorf("Latest() = %v", latest)
	}
}

func TestListEmptyDir(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	builds, err := m.List("dfcli")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if builds != nil {
		t.Errorf("List() = %v, want nil", builds)
	}
	if _, ok, err := m.Latest("dfcli"); ok || err != nil {
		t.Errorf("Latest() = %v, %v, want absent", ok, err)
	}
}

func TestParseBuildName(t *testing.T) {
	b, err := ParseBuildName("dfcli@abcdef123456@1700000000")
	if err != nil {
		t.Fatalf("ParseBuildName() error: %v", err)
	}
	if b.Tool != "dfcli" || b.Revision != "abcdef123456" {
		t.Errorf("parsed = %+v", b)
	}
	if !b.Committed.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("committed = %v", b.Committed)
	}

	for _, bad := range []string{"", "dfcli", "dfcli@rev", "dfcli@rev@notanum", "@rev@100", "a@@100"} {
		if _, err := ParseBuildName(bad); err == nil {
			t.Errorf("ParseBuildName(%q) expected error", bad)
		}
	}
}

func TestParseRevisions(t *testing.T) {
	revs, err := parseRevisions(rev1 + " 1000\n\n" + rev2 + " 2000\n")
	if err != nil {
		t.Fatalf("parseRevisions() error: %v", err)
	}
	if len(revs) != 2 || revs[0].short() != rev1[:12] {
		t.Errorf("revs = %v", revs)
	}
	if !revs[1].committed.Equal(time.Unix(2000, 0)) {
		t.Errorf("committed = %v", revs[1].committed)
	}

	for _, bad := range []string{"tooshort 100", rev1 + " notanum", rev1} {
		if _, err := parseRevisions(bad); err == nil {
			t.Errorf("parseRevisions(%q) expected error", bad)
		}
	}
}
