//go:build !windows

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/fdlab/fdlab/core/trace"
)

// RunPTY runs argv attached to a fresh pseudo-terminal, mirroring it
// onto the runner's terminal. Redirection plans don't mix with a PTY
// (every standard stream is the terminal); callers should reject that
// combination before getting here.
func (r *Runner) RunPTY(ctx context.Context, argv []string) (int, error) {
	stdinFile, inOK := r.Stdin.(*os.File)
	stdoutFile, outOK := r.Stdout.(*os.File)
	if !inOK || !outOK {
		return 1, errors.New("pty mode needs a real terminal")
	}
	if !term.IsTerminal(int(stdinFile.Fd())) {
		return 1, errors.New("stdin is not a terminal")
	}

	execPath, err := exec.LookPath(argv[0])
	if err != nil {
		return 127, fmt.Errorf("%s: command not found", argv[0])
	}

	cmd := exec.CommandContext(ctx, execPath, argv[1:]...)
	cmd.Args = argv
	cmd.Dir = r.Dir
	cmd.Env = r.Env

	r.record(trace.Event{Op: trace.OpExec, Argv: argv})

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return 1, err
	}
	defer ptmx.Close()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			_ = pty.InheritSize(stdinFile, ptmx)
		}
	}()
	winch <- syscall.SIGWINCH

	oldState, err := term.MakeRaw(int(stdinFile.Fd()))
	if err != nil {
		return 1, err
	}
	defer term.Restore(int(stdinFile.Fd()), oldState)

	go func() {
		_, _ = io.Copy(ptmx, stdinFile)
	}()
	_, _ = io.Copy(stdoutFile, ptmx)

	code := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			return 1, err
		}
	}
	r.record(trace.Event{Op: trace.OpExit, Exit: code})
	return code, nil
}
