package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fdlab/fdlab/core/redirect"
	"github.com/fdlab/fdlab/core/runner"
	"github.com/fdlab/fdlab/core/trace"
)

var (
	runShowTrace bool
	runJSONTrace bool
	runUsePTY    bool
)

// runCmd executes one command line with its redirections applied.
var runCmd = &cobra.Command{
	Use:   "run 'COMMAND [>FILE] [2>&1] ...'",
	Short: "Run a command line, applying any redirections it contains.",
	Long: `Run a command line the way a shell would, opening and duplicating
descriptors before the command starts. Quote the line so your own
shell doesn't claim the redirections first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		line := strings.Join(args, " ")

		var out io.Writer = io.Discard
		if runJSONTrace {
			out = cmd.ErrOrStderr()
		}
		var events []trace.Event
		recorder := trace.NewRecorder(out)
		recorder.SetHook(func(ev trace.Event) {
			events = append(events, ev)
		})

		run := runner.New(recorder)

		var code int
		var err error
		if runUsePTY {
			code, err = runLinePTY(cmd.Context(), run, line)
		} else {
			code, err = run.Run(cmd.Context(), line)
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
		}

		if runShowTrace {
			colored := false
			if fd, ok := cmd.ErrOrStderr().(*os.File); ok {
				colored = term.IsTerminal(int(fd.Fd()))
			}
			fmt.Fprintln(cmd.ErrOrStderr())
			trace.Render(cmd.ErrOrStderr(), events, colored)
		}

		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func runLinePTY(ctx context.Context, run *runner.Runner, line string) (int, error) {
	tokens, err := shlex.Split(line, true)
	if err != nil {
		return 2, err
	}
	argv, plan, err := redirect.Parse(tokens)
	if err != nil {
		return 2, err
	}
	if len(plan) > 0 {
		return 2, fmt.Errorf("redirections don't combine with --pty; the terminal owns the descriptors")
	}
	if len(argv) == 0 {
		return 0, nil
	}
	return run.RunPTY(ctx, argv)
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runShowTrace, "trace", false, "Print a descriptor activity table after the command exits.")
	runCmd.Flags().BoolVar(&runJSONTrace, "json", false, "Stream raw trace events to stderr as JSON lines.")
	runCmd.Flags().BoolVar(&runUsePTY, "pty", false, "Run the command on a pseudo-terminal.")
}
