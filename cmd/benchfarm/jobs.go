package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchfarm/benchfarm/internal/core"
	"github.com/benchfarm/benchfarm/internal/runner"
	"github.com/benchfarm/benchfarm/internal/server"
	"github.com/benchfarm/benchfarm/internal/store"
)

func getEnqueueCommand() *cobra.Command {
	var (
		command string
		file    string
		meta    []string
	)
	c := &cobra.Command{
		Use:   "enqueue [name]",
		Short: "add a job to the queue",
		Long: `Add a job to the queue.

The job payload is either a single command (--command) or a shell
script read from a file (--file, "-" for stdin). Without a name the
job gets a generated one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := core.EnqueueRequest{Command: command}
			if len(args) == 1 {
				req.Name = args[0]
			}
			if file != "" {
				var (
					data []byte
					err  error
				)
				if file == "-" {
					data, err = io.ReadAll(os.Stdin)
				} else {
					data, err = os.ReadFile(file)
				}
				if err != nil {
					return err
				}
				req.Script = string(data)
			}
			var err error
			req.Meta, err = parseMeta(meta)
			if err != nil {
				return err
			}

			name, script, ferr := core.NewDescriptor(&req)
			if ferr != nil {
				return ferr
			}
			st, err := store.NewDirStore(server.LoadConfig().JobsDir)
			if err != nil {
				return err
			}
			if _, err := st.Put(cmd.Context(), name, script); err != nil {
				return err
			}
			fmt.Println("enqueued", name)
			return nil
		},
	}
	c.Flags().StringVarP(&command, "command", "c", "", "command to run")
	c.Flags().StringVarP(&file, "file", "f", "", "file holding the job script, - for stdin")
	c.Flags().StringArrayVarP(&meta, "meta", "m", nil, "metadata as key=value, repeatable")
	return c
}

func getQueueCommand() *cobra.Command {
	var state string
	c := &cobra.Command{
		Use:   "queue",
		Short: "list jobs in the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.NewDirStore(server.LoadConfig().JobsDir)
			if err != nil {
				return err
			}
			var jobs []*core.Job
			switch state {
			case "", "pending":
				jobs, err = st.ListPending(cmd.Context())
			case "done":
				jobs, err = st.ListDone(cmd.Context())
			case "all":
				jobs, err = st.ListPending(cmd.Context())
				if err == nil {
					var done []*core.Job
					done, err = st.ListDone(cmd.Context())
					jobs = append(jobs, done...)
				}
			default:
				return fmt.Errorf("unknown state %q, want pending, done or all", state)
			}
			if err != nil {
				return err
			}

			now := time.Now()
			tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTATUS\tENQUEUED\tPID\tAGE\tMETA")
			for _, job := range jobs {
				pid, age := "-", "-"
				if job.Started != nil {
					pid = fmt.Sprintf("%d", job.Started.PID)
					age = job.Started.Age(now).Truncate(time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					job.Name, job.Status, job.EnqueuedAt, pid, age, describeJob(job))
			}
			return tw.Flush()
		},
	}
	c.Flags().StringVar(&state, "state", "pending", "pending, done or all")
	return c
}

func getCancelCommand() *cobra.Command {
	var kill bool
	c := &cobra.Command{
		Use:   "cancel <name>",
		Short: "cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			st, err := store.NewDirStore(server.LoadConfig().JobsDir)
			if err != nil {
				return err
			}
			job, err := st.Get(cmd.Context(), name)
			if err != nil {
				return err
			}
			if job.Status == core.StatusDone {
				return core.NewConflictError(fmt.Sprintf("Job '%s' is already done.", name), nil)
			}

			// Read the marker before removing the descriptor; the pid is
			// gone from the listing afterwards.
			mark, err := st.Mark(cmd.Context(), name)
			if err != nil {
				return err
			}
			if err := st.Remove(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Println("cancelled", name)

			if kill && mark != nil && mark.PID > 0 {
				if err := runner.SignalGroup(mark.PID, syscall.SIGTERM); err != nil {
					slog.Warn("failed to signal job process group", "job", name, "pid", mark.PID, "error", err)
				} else {
					fmt.Println("killed process group", mark.PID)
				}
			}
			if mark != nil && !runner.Alive(mark.PID) {
				// A marker whose process is gone has no worker left to
				// clean it up.
				if err := st.DropMark(cmd.Context(), name); err != nil {
					slog.Warn("failed to drop start marker", "job", name, "error", err)
				}
			}
			return nil
		},
	}
	c.Flags().BoolVar(&kill, "kill", false, "also SIGTERM the running job's process group")
	return c
}

// describeJob renders a job's metadata, and the benchmarks its script
// requests, as one listing cell.
func describeJob(job *core.Job) string {
	keys := make([]string, 0, len(job.Meta))
	for k := range job.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+"="+job.Meta[k])
	}
	if len(job.Benchmarks) > 0 {
		parts = append(parts, "benchmarks="+strings.Join(job.Benchmarks, ","))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

// parseMeta turns repeated key=value flags into a metadata map.
func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid meta %q, want key=value", pair)
		}
		meta[key] = value
	}
	return meta, nil
}
