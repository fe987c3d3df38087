package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pborman/getopt/v2"

	"github.com/fdlab/fdlab/core/trace"
)

// AllBuiltins holds every registered shell builtin.
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// Cd changes the runner's working directory, which is also the base
// for relative redirection targets.
func Cd(s *Shell, args []string) int {
	var dest string
	switch len(args) {
	case 1:
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(s.Stderr(), "%s: %v\n", args[0], err)
			return 1
		}
		dest = home
	case 2:
		dest = args[1]
	default:
		fmt.Fprintf(s.Stderr(), "%s: too many arguments\n", args[0])
		return 1
	}

	if !filepath.IsAbs(dest) {
		dest = filepath.Join(s.Runner.Dir, dest)
	}
	info, err := os.Stat(dest)
	if err != nil {
		fmt.Fprintf(s.Stderr(), "%s: %s: no such file or directory\n", args[0], args[len(args)-1])
		return 1
	}
	if !info.IsDir() {
		fmt.Fprintf(s.Stderr(), "%s: %s: not a directory\n", args[0], args[len(args)-1])
		return 1
	}
	s.Runner.Dir = filepath.Clean(dest)
	return 0
}

// Pwd prints the runner's working directory.
func Pwd(s *Shell, args []string) int {
	fmt.Fprintln(s.Stdout(), s.Runner.Dir)
	return 0
}

// Exit quits the shell.
func Exit(s *Shell, args []string) int {
	return s.lastExit
}

func History(s *Shell, args []string) int {
	opts := getopt.New()
	clear := opts.Bool('c', "clear the history by deleting all entries")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.Stderr()
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "Display or manipulate the history list.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		return 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if *clear {
		s.history = nil
		return 0
	}
	for i, line := range s.history {
		fmt.Fprintf(s.Stdout(), "% 5d  %s\n", i+1, line)
	}
	return 0
}

// Trace controls session descriptor tracing.
func Trace(s *Shell, args []string) int {
	usage := func() int {
		fmt.Fprintln(s.Stderr(), "usage: trace on|off|show|clear")
		fmt.Fprintln(s.Stderr(), "Record and inspect descriptor activity for this session.")
		return 1
	}
	if len(args) != 2 {
		return usage()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch args[1] {
	case "on":
		s.tracing = true
	case "off":
		s.tracing = false
	case "clear":
		s.session = nil
	case "show":
		if len(s.session) == 0 {
			fmt.Fprintln(s.Stdout(), "trace: no events recorded")
			return 0
		}
		trace.Render(s.Stdout(), s.session, s.terminal)
	default:
		return usage()
	}
	return 0
}

func Help(s *Shell, args []string) int {
	w := s.Stdout()
	fmt.Fprintln(w, "Shell builtins. Anything else runs as a command,")
	fmt.Fprintln(w, "with redirections applied before it starts.")
	fmt.Fprintln(w)

	var builtins []string
	for k := range AllBuiltins {
		builtins = append(builtins, k)
	}
	sort.Strings(builtins)
	fmt.Fprintln(w, strings.Join(builtins, "\n"))
	return 0
}

func init() {
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["pwd"] = ShellBuiltinFunc(Pwd)
	AllBuiltins["history"] = ShellBuiltinFunc(History)
	AllBuiltins["trace"] = ShellBuiltinFunc(Trace)
	AllBuiltins["help"] = ShellBuiltinFunc(Help)
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
}
