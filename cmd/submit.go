package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/fdlab/fdlab/core/runner"
	"github.com/fdlab/fdlab/core/sched"
	"github.com/fdlab/fdlab/core/trace"
	"github.com/fdlab/fdlab/core/workflow"
)

// submitCmd runs a workflow through the scheduler.
var submitCmd = &cobra.Command{
	Use:   "submit WORKFLOW.yaml",
	Short: "Run a workflow's tasks under the cluster's resource limits.",
	Long: `Submit every task of a workflow to the scheduler. Tasks run as
local processes once their dependencies complete and their
resource requests fit the configured capacity.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		capacity, partitions, err := configuration.Cluster.Limits()
		if err != nil {
			return err
		}

		w, err := workflow.Load(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}

		traceName := fmt.Sprintf("%s-%s.json", w.Name, time.Now().UTC().Format(time.RFC3339Nano))
		logFd, err := configuration.CreateTraceLog(traceName)
		if err != nil {
			return err
		}
		defer logFd.Close()
		recorder := trace.NewRecorder(logFd)

		scheduler, err := sched.New(sched.Options{
			Capacity:        capacity,
			Partitions:      partitions,
			Backfill:        configuration.Cluster.Backfill,
			MaxStartsPerSec: configuration.Cluster.MaxStartsPerSec,
			Executor: &sched.RunnerExecutor{
				Runner:       runner.New(recorder),
				AppendOutput: configuration.Cluster.OpenMode == "append",
			},
			Recorder: recorder,
		})
		if err != nil {
			return err
		}

		scheduler.Start(cmd.Context())
		results, err := workflow.Execute(cmd.Context(), w, scheduler)
		scheduler.Drain()
		if err != nil {
			return err
		}

		failed := 0
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 8, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "TASK\tSTATE\tEXIT\tELAPSED")
		for _, r := range results {
			if r.Skipped {
				fmt.Fprintf(tw, "%s\tSKIPPED\t-\t-\n", r.Task.Name)
				failed++
				continue
			}
			elapsed := r.Result.End.Sub(r.Result.Start).Round(time.Millisecond)
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Task.Name, r.Result.State, r.Result.ExitCode, elapsed)
			if r.Failed() {
				failed++
			}
		}
		tw.Flush()

		if failed > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d tasks did not complete\n", failed, len(results))
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
}
