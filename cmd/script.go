package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/fdlab/fdlab/core/workflow"
)

// scriptCmd renders workflow tasks as batch submission scripts.
var scriptCmd = &cobra.Command{
	Use:   "script WORKFLOW.yaml [TASK]",
	Short: "Render a workflow's tasks as batch submission scripts.",
	Long: `Print the submission script each task would become on a real
cluster, resource directives included. Name a task to render just
that one.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		w, err := workflow.Load(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}

		tasks := w.Tasks
		if len(args) == 2 {
			task := w.Task(args[1])
			if task == nil {
				return fmt.Errorf("no task named %q in workflow %s", args[1], w.Name)
			}
			tasks = []workflow.Task{*task}
		}

		for i := range tasks {
			if i > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			script, err := workflow.Script(w, &tasks[i])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), script)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scriptCmd)
}
