package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benchfarm/benchfarm/internal/bench"
	"github.com/benchfarm/benchfarm/internal/build"
	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/server"
)

func getBenchCommand() *cobra.Command {
	var (
		revision string
		force    bool
	)
	c := &cobra.Command{
		Use:   "bench <project> <suite>",
		Short: "run a query suite against a built revision",
		Long: `Run a query suite against a built tool revision and append the
timings to the suite's result file.

Without --revision the newest build of the project's tool is used. A
revision that already has rows recorded for the suite is skipped
unless --force is set.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, args[0], args[1], revision, force)
		},
	}
	c.Flags().StringVar(&revision, "revision", "", "git revision to benchmark, defaults to the newest build")
	c.Flags().BoolVar(&force, "force", false, "re-run even if the revision already has results")
	return c
}

func runBench(cmd *cobra.Command, projectName, suiteName, revision string, force bool) error {
	cfg := server.LoadConfig()
	pcfg, err := loadFarmConfig(cfg)
	if err != nil {
		return err
	}
	p, ok := pcfg.Project(projectName)
	if !ok {
		return core.NewNotFoundError("project", projectName)
	}
	s, ok := p.Suite(suiteName)
	if !ok {
		return core.NewNotFoundError("suite", suiteName)
	}
	workDir := farmWorkDir(cfg, pcfg)

	b, err := pickBuild(build.NewManager(workDir, nil), p.Tool, revision)
	if err != nil {
		return err
	}

	results := bench.NewResultStore(cfg.ResultsDir)
	if !force {
		ran, err := results.RevisionRan(s.Name, b.Revision)
		if err != nil {
			return err
		}
		if ran {
			fmt.Printf("revision %s already benchmarked for %s, use --force to re-run\n", b.Revision, s.Name)
			return nil
		}
	}

	queries := s.Queries
	if !filepath.IsAbs(queries) {
		queries = filepath.Join(workDir, queries)
	}
	rows, err := bench.NewHarness(workDir, nil).Run(cmd.Context(), bench.RunSpec{
		Binary:       b.Path,
		Suite:        s,
		QueriesDir:   queries,
		Revision:     b.Revision,
		RevisionTime: b.Committed.UTC().Format(bench.StampFormat),
	})
	if err != nil {
		return err
	}
	if err := results.Append(s.Name, rows); err != nil {
		return err
	}
	fmt.Printf("recorded %d rows for %s at %s\n", len(rows), s.Name, b.Revision)
	return nil
}

// pickBuild selects the build to benchmark: the newest one, or the one
// matching the requested revision prefix.
func pickBuild(mgr *build.Manager, tool, revision string) (build.Build, error) {
	if revision == "" {
		b, ok, err := mgr.Latest(tool)
		if err != nil {
			return build.Build{}, err
		}
		if !ok {
			return build.Build{}, fmt.Errorf("no builds of %s yet, run \"benchfarm build\" first", tool)
		}
		return b, nil
	}
	builds, err := mgr.List(tool)
	if err != nil {
		return build.Build{}, err
	}
	for _, b := range builds {
		if strings.HasPrefix(b.Revision, revision) {
			return b, nil
		}
	}
	return build.Build{}, fmt.Errorf("no build of %s at revision %s", tool, revision)
}
