package cmd

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fdlab/fdlab/core/runner"
	"github.com/fdlab/fdlab/core/shell"
	"github.com/fdlab/fdlab/core/trace"
)

// shellCmd starts an interactive shell on the local terminal.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell with descriptor tracing.",
	Long: `An interactive shell where every command's descriptor setup is
recorded. Use the trace builtin to inspect what the session opened
and duplicated.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		traceName := fmt.Sprintf("%s.json", time.Now().UTC().Format(time.RFC3339Nano))
		logFd, err := configuration.CreateTraceLog(traceName)
		if err != nil {
			return err
		}
		defer logFd.Close()

		recorder := trace.NewRecorder(logFd)
		run := runner.New(recorder)

		username := os.Getenv("USER")
		if u, err := user.Current(); err == nil {
			username = u.Username
		}

		isTerminal := term.IsTerminal(int(os.Stdin.Fd()))
		sh, err := shell.New(configuration, run, shell.Options{
			User:       username,
			IsTerminal: isTerminal,
			Width: func() int {
				w, _, err := term.GetSize(int(os.Stdout.Fd()))
				if err != nil {
					return 80
				}
				return w
			},
		})
		if err != nil {
			return err
		}
		defer sh.Close()

		return sh.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
