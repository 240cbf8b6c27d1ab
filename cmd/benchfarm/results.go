package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/benchfarm/benchfarm/internal/bench"
	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/server"
)

func getResultsCommand() *cobra.Command {
	var revision string
	c := &cobra.Command{
		Use:   "results [suite]",
		Short: "list result suites or summarize one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := bench.NewResultStore(server.LoadConfig().ResultsDir)
			if len(args) == 0 {
				suites, err := results.Suites()
				if err != nil {
					return err
				}
				for _, suite := range suites {
					fmt.Println(suite)
				}
				return nil
			}

			suite := args[0]
			rows, err := results.Load(suite)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return core.NewNotFoundError("results", suite)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "QUERY\tRUNS\tMIN\tMEAN")
			for _, q := range bench.Summarize(rows, revision) {
				fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.3f\n", q.Query, q.Runs, q.MinSeconds, q.MeanSeconds)
			}
			return tw.Flush()
		},
	}
	c.Flags().StringVar(&revision, "revision", "", "limit the summary to one git revision")
	return c
}
