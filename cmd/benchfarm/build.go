package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchfarm/benchfarm/internal/build"
	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/server"
)

func getBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build <project>",
		Short: "fetch a project and build its missing revisions",
		Long: `Fetch a project's repository and build every discovered revision
that has no binary in the builds directory yet.

This is the command that build sweep jobs enqueued through the API
run; it can also be invoked by hand on the farm host.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.LoadConfig()
			pcfg, err := loadFarmConfig(cfg)
			if err != nil {
				return err
			}
			p, ok := pcfg.Project(args[0])
			if !ok {
				return core.NewNotFoundError("project", args[0])
			}

			mgr := build.NewManager(farmWorkDir(cfg, pcfg), nil)
			builds, err := mgr.Ensure(cmd.Context(), p)
			// Ensure reports the builds that worked even when later
			// revisions failed; print those before surfacing the error.
			for _, b := range builds {
				fmt.Println("built", b.Name())
			}
			return err
		},
	}
}
