// Package runner launches child processes under a redirection plan and
// records every descriptor operation to the trace log.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/anmitsu/go-shlex"

	"github.com/fdlab/fdlab/core/redirect"
	"github.com/fdlab/fdlab/core/trace"
)

// ErrNotFound is returned when the command isn't on PATH.
var ErrNotFound = exec.ErrNotFound

// Runner executes command lines. The zero value is not usable; call
// New.
type Runner struct {
	// Stdin, Stdout and Stderr are the descriptors the child inherits
	// when a plan doesn't redirect them. When they are *os.File (the
	// local terminal) high descriptors and true dup(2) are available;
	// plain streams (an SSH session) still work for fds 0-2.
	Stdin          io.Reader
	Stdout, Stderr io.Writer

	// Dir is the working directory for children and the base for
	// relative redirection targets.
	Dir string

	// Env is the child environment; nil means inherit.
	Env []string

	// Recorder receives descriptor and process events. May be nil.
	Recorder *trace.Recorder
}

// New returns a Runner attached to the parent's stdio and working
// directory.
func New(recorder *trace.Recorder) *Runner {
	wd, _ := os.Getwd()
	return &Runner{
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Dir:      wd,
		Recorder: recorder,
	}
}

// Run tokenizes and executes a single command line, applying any
// redirections it contains. It returns the child's exit status.
func (r *Runner) Run(ctx context.Context, line string) (int, error) {
	tokens, err := shlex.Split(line, true)
	if err != nil {
		return 2, fmt.Errorf("syntax error: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	argv, plan, err := redirect.Parse(tokens)
	if err != nil {
		return 2, err
	}
	if len(argv) == 0 {
		return 2, errors.New("missing command")
	}
	return r.RunArgv(ctx, argv, plan)
}

// RunArgv executes argv under the given plan.
func (r *Runner) RunArgv(ctx context.Context, argv []string, plan redirect.Plan) (int, error) {
	execPath, err := exec.LookPath(argv[0])
	if err != nil {
		r.record(trace.Event{Op: trace.OpExit, Exit: 127, Error: err.Error(), Argv: argv})
		return 127, fmt.Errorf("%s: command not found", argv[0])
	}

	table := redirect.Table{
		0: wrapReader(r.Stdin),
		1: wrapWriter(r.Stdout),
		2: wrapWriter(r.Stderr),
	}

	created, err := plan.Apply(&system{dir: r.Dir}, table, func(a redirect.Action) {
		ev := trace.Event{Op: a.Op.String(), FD: a.FD}
		switch a.Op {
		case redirect.OpOpen:
			ev.Path = a.Path
			ev.Flags = a.FlagString()
		case redirect.OpDup:
			ev.From = a.From
		}
		r.record(ev)
	})
	if err != nil {
		return 1, err
	}
	defer func() {
		for _, h := range created {
			h.Close()
		}
	}()

	cmd := exec.CommandContext(ctx, execPath, argv[1:]...)
	cmd.Args = argv
	cmd.Dir = r.Dir
	cmd.Env = r.Env
	cmd.Stdin = tableReader(table, 0)
	cmd.Stdout = tableWriter(table, 1)
	cmd.Stderr = tableWriter(table, 2)

	extra, cleanup, err := extraFiles(table, plan.MaxFD())
	if err != nil {
		return 1, err
	}
	defer cleanup()
	cmd.ExtraFiles = extra

	r.record(trace.Event{Op: trace.OpExec, Argv: argv})
	runErr := cmd.Run()

	code := 0
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		code = -1
		runErr = ctx.Err()
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
			runErr = nil
		} else {
			code = 126
		}
	}

	ev := trace.Event{Op: trace.OpExit, Exit: code}
	if runErr != nil {
		ev.Error = runErr.Error()
	}
	r.record(ev)
	return code, runErr
}

func (r *Runner) record(ev trace.Event) {
	if r.Recorder == nil {
		return
	}
	if err := r.Recorder.Record(ev); err != nil {
		fmt.Fprintf(os.Stderr, "trace: %v\n", err)
	}
}

// extraFiles builds the contiguous *os.File list os/exec wants for
// descriptors 3 and up. Untouched slots in the middle are padded with
// /dev/null so the plan's slot numbers survive into the child.
func extraFiles(table redirect.Table, maxFD int) ([]*os.File, func(), error) {
	var pads []*os.File
	cleanup := func() {
		for _, f := range pads {
			f.Close()
		}
	}

	if maxFD < 3 {
		return nil, cleanup, nil
	}

	out := make([]*os.File, 0, maxFD-2)
	for fd := 3; fd <= maxFD; fd++ {
		h, ok := table[fd]
		if !ok {
			null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
			if err != nil {
				cleanup()
				return nil, func() {}, err
			}
			pads = append(pads, null)
			out = append(out, null)
			continue
		}
		fh, ok := h.(*fileHandle)
		if !ok {
			cleanup()
			return nil, func() {}, fmt.Errorf("descriptor %d: only real files may sit above stderr", fd)
		}
		out = append(out, fh.file)
	}
	return out, cleanup, nil
}

func tableReader(table redirect.Table, fd int) io.Reader {
	switch h := table[fd].(type) {
	case *fileHandle:
		return h.file
	case *streamHandle:
		return h.r
	default:
		return nil
	}
}

func tableWriter(table redirect.Table, fd int) io.Writer {
	switch h := table[fd].(type) {
	case *fileHandle:
		return h.file
	case *streamHandle:
		return h.w
	default:
		return nil
	}
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
