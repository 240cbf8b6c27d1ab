// Package bench runs query suites against built tool binaries and
// files the timings.
//
// A suite is a directory of .sql files. For each query the harness
// writes a throwaway script of the suite prelude followed by the query
// repeated N times, hands it to the tool with -f, and reads one timing
// per executed statement back out of the tool's stdout. When a prelude
// is present its timing is recorded as table_creation rather than
// query, so dataset registration cost stays separable from query cost.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/benchfarm/benchfarm/internal/build"
	"github.com/benchfarm/benchfarm/internal/project"
)

// Harness executes suites. The executor seam keeps tests free of real
// tool binaries.
type Harness struct {
	workDir string
	exec    build.Executor
	cores   int
}

// NewHarness returns a Harness rooted at workDir. A nil exec runs real
// commands.
func NewHarness(workDir string, exec build.Executor) *Harness {
	if exec == nil {
		exec = &build.OSExecutor{}
	}
	return &Harness{workDir: workDir, exec: exec, cores: runtime.NumCPU()}
}

// RunSpec names one benchmark: a binary, a suite, and the revision the
// binary was built from.
type RunSpec struct {
	Binary       string
	Suite        *project.Suite
	QueriesDir   string
	Revision     string
	RevisionTime string
}

// Run executes every query in the suite and returns the collected rows.
// A query that fails or yields no timings is logged and skipped; Run
// errors only when the suite produced nothing at all.
func (h *Harness) Run(ctx context.Context, spec RunSpec) ([]Row, error) {
	queries, err := listQueries(spec.QueriesDir)
	if err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries in %s", spec.QueriesDir)
	}

	startedAt := time.Now().UTC().Format(StampFormat)
	var rows []Row
	for _, query := range queries {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		qrows, err := h.runQuery(ctx, spec, query, startedAt)
		if err != nil {
			slog.Warn("query failed", "suite", spec.Suite.Name, "query", query, "error", err)
			continue
		}
		rows = append(rows, qrows...)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("suite %s produced no timings", spec.Suite.Name)
	}
	return rows, nil
}

func (h *Harness) runQuery(ctx context.Context, spec RunSpec, query, startedAt string) ([]Row, error) {
	content, err := os.ReadFile(filepath.Join(spec.QueriesDir, query+".sql"))
	if err != nil {
		return nil, err
	}

	script, err := h.writeScript(spec.Suite, string(content))
	if err != nil {
		return nil, err
	}
	defer os.Remove(script)

	cmd := make([]string, 0, len(spec.Suite.Args)+3)
	cmd = append(cmd, spec.Binary)
	cmd = append(cmd, spec.Suite.Args...)
	cmd = append(cmd, "-f", script)

	start := time.Now()
	out, err := h.exec.Run(ctx, h.workDir, cmd...)
	if err != nil {
		return nil, err
	}
	timings := ParseTimings(out)
	if len(timings) == 0 {
		return nil, fmt.Errorf("no timings in output")
	}
	slog.Info("query completed",
		"suite", spec.Suite.Name,
		"query", query,
		"timings", len(timings),
		"elapsed", time.Since(start).String())

	rows := make([]Row, 0, len(timings))
	for i, timing := range timings {
		kind := "query"
		if i == 0 && spec.Suite.Prelude != "" {
			kind = "table_creation"
		}
		rows = append(rows, Row{
			Benchmark:    spec.Suite.Name,
			Query:        query,
			Type:         kind,
			Seconds:      timing,
			RunAt:        startedAt,
			Revision:     spec.Revision,
			RevisionTime: spec.RevisionTime,
			Cores:        h.cores,
		})
	}
	return rows, nil
}

// writeScript composes the throwaway script: prelude once, then the
// query repeated Runs times.
func (h *Harness) writeScript(suite *project.Suite, query string) (string, error) {
	dir := filepath.Join(h.workDir, "tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "script-*.sql")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if suite.Prelude != "" {
		sb.WriteString(suite.Prelude)
		if !strings.HasSuffix(suite.Prelude, "\n") {
			sb.WriteString("\n")
		}
	}
	runs := suite.Runs
	if runs <= 0 {
		runs = 1
	}
	for i := 0; i < runs; i++ {
		sb.WriteString(query)
		if !strings.HasSuffix(query, "\n") {
			sb.WriteString("\n")
		}
	}

	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// listQueries returns the query names in dir, the .sql files with the
// extension stripped, sorted by name.
func listQueries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read queries dir: %w", err)
	}
	var queries []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasPrefix(name, ".") {
			continue
		}
		queries = append(queries, strings.TrimSuffix(name, ".sql"))
	}
	sort.Strings(queries)
	return queries, nil
}
