package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fdlab/fdlab/core/trace"
)

var tracesJSON bool

var tracesCmd = &cobra.Command{
	Use:     "traces",
	Aliases: []string{"trace"},
	Short:   "Explore recorded descriptor and scheduling traces.",
}

var tracesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded trace logs.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}
		names, err := configuration.ListTraceLogs()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var tracesShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a trace log as a readable table.",
	Long: `Print a recorded trace. The table shows each descriptor operation
in order, then counts how often every path was actually opened,
which is where redirection and duplication differ.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}
		fd, err := configuration.OpenTraceLog(args[0])
		if err != nil {
			return err
		}
		defer fd.Close()

		events, err := trace.ReadAll(fd)
		if err != nil {
			return err
		}

		if tracesJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		}

		colored := false
		if f, ok := cmd.OutOrStdout().(*os.File); ok {
			colored = term.IsTerminal(int(f.Fd()))
		}
		trace.Render(cmd.OutOrStdout(), events, colored)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tracesCmd)
	tracesCmd.AddCommand(tracesListCmd)
	tracesCmd.AddCommand(tracesShowCmd)

	tracesShowCmd.Flags().BoolVar(&tracesJSON, "json", false, "Print raw JSON events instead of the table.")
}
