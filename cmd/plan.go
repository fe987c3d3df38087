package cmd

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/fdlab/fdlab/core/workflow"
)

// planCmd simulates a workflow without running anything.
var planCmd = &cobra.Command{
	Use:   "plan WORKFLOW.yaml",
	Short: "Show when each task would start under the cluster's capacity.",
	Long: `Simulate the schedule a workflow would get if every task ran for
exactly its declared wall time. Nothing is executed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}
		capacity, _, err := configuration.Cluster.Limits()
		if err != nil {
			return err
		}

		w, err := workflow.Load(afero.NewOsFs(), args[0])
		if err != nil {
			return err
		}

		entries, err := workflow.Simulate(w, capacity, configuration.Cluster.Backfill)
		if err != nil {
			return err
		}
		workflow.RenderPlan(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
