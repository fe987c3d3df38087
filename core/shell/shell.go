package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/abiosoft/readline"
	"github.com/anmitsu/go-shlex"

	"github.com/fdlab/fdlab/core/config"
	"github.com/fdlab/fdlab/core/runner"
	"github.com/fdlab/fdlab/core/trace"
)

const DefaultPrompt = `\u@\h:\w\$ `

// Shell is an interactive line-at-a-time frontend over a Runner. Each
// command's descriptor activity is captured so the session can be
// inspected with the trace builtin.
type Shell struct {
	Config   *config.Configuration
	Runner   *runner.Runner
	Readline *readline.Instance

	user     string
	terminal bool
	stdout   io.Writer
	stderr   io.Writer
	lastExit int

	mu      sync.Mutex
	tracing bool
	history []string
	session []trace.Event
}

// Options configure where the shell reads and writes. The zero value
// attaches to the process stdio.
type Options struct {
	Stdin          io.Reader
	Stdout, Stderr io.Writer
	// User shows up in the prompt.
	User string
	// IsTerminal enables line editing and colored trace output.
	IsTerminal bool
	// Width reports the terminal width, for redraws on resize.
	Width func() int
}

// New builds a shell around run. The runner's Recorder is hooked so
// the session sees every descriptor event the runner emits.
func New(cfg *config.Configuration, run *runner.Runner, opts Options) (*Shell, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.User == "" {
		opts.User = "lab"
	}

	rlCfg := &readline.Config{
		Stdin:  readline.NewCancelableStdin(opts.Stdin),
		Stdout: opts.Stdout,
		Stderr: opts.Stderr,
		FuncIsTerminal: func() bool {
			return opts.IsTerminal
		},
	}
	if opts.Width != nil {
		rlCfg.FuncGetWidth = opts.Width
	}
	if err := rlCfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return nil, err
	}

	s := &Shell{
		Config:   cfg,
		Runner:   run,
		Readline: rl,
		user:     opts.User,
		terminal: opts.IsTerminal,
		stdout:   opts.Stdout,
		stderr:   opts.Stderr,
		tracing:  true,
	}

	if run.Recorder != nil {
		run.Recorder.SetHook(s.observe)
	}

	return s, nil
}

func (s *Shell) observe(ev trace.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracing {
		s.session = append(s.session, ev)
	}
}

// Prompt expands the configured prompt string. The escapes follow the
// usual shell conventions: \u user, \h host, \w working directory,
// \$ prompt character.
func (s *Shell) Prompt() string {
	prompt := s.Config.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	prompt = strings.ReplaceAll(prompt, `\u`, s.user)
	prompt = strings.ReplaceAll(prompt, `\h`, s.Config.Hostname)

	wd := s.Runner.Dir
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if wd == home {
			wd = "~"
		} else if strings.HasPrefix(wd, home+string(filepath.Separator)) {
			wd = "~" + strings.TrimPrefix(wd, home)
		}
	}
	prompt = strings.ReplaceAll(prompt, `\w`, wd)
	prompt = strings.ReplaceAll(prompt, `\$`, "$")

	return prompt
}

// Run reads and executes commands until EOF or the exit builtin. The
// context cancels any command in flight.
func (s *Shell) Run(ctx context.Context) error {
	for {
		s.Readline.SetPrompt(s.Prompt())
		line, err := s.Readline.Readline()

		switch {
		case err == io.EOF:
			return nil

		case err == readline.ErrInterrupt:
			continue

		case err != nil:
			return err

		case strings.TrimSpace(line) == "":
			continue
		}

		line = os.ExpandEnv(line)

		tokens, err := shlex.Split(line, true)
		if err != nil {
			fmt.Fprintln(s.stderr, "syntax error: unexpected end of file")
			s.lastExit = 2
			continue
		}
		if len(tokens) == 0 {
			continue
		}

		s.remember(line)

		if builtin, ok := AllBuiltins[tokens[0]]; ok {
			s.lastExit = builtin.Main(s, tokens)
			if tokens[0] == "exit" {
				return nil
			}
			continue
		}

		code, err := s.Runner.Run(ctx, line)
		if err != nil {
			fmt.Fprintf(s.stderr, "%s: %v\n", tokens[0], err)
		}
		s.lastExit = code
	}
}

// Stdout is where builtins write normal output.
func (s *Shell) Stdout() io.Writer { return s.stdout }

// Stderr is where builtins write errors.
func (s *Shell) Stderr() io.Writer { return s.stderr }

// LastExit is the status of the most recent command.
func (s *Shell) LastExit() int {
	return s.lastExit
}

func (s *Shell) remember(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, line)
}

// Close releases the line editor.
func (s *Shell) Close() error {
	return s.Readline.Close()
}
