package sched

import (
	"context"
	"os"

	"github.com/fdlab/fdlab/core/redirect"
	"github.com/fdlab/fdlab/core/runner"
)

// RunnerExecutor executes jobs as local child processes with their
// stdout/stderr redirected to the job's declared targets.
type RunnerExecutor struct {
	Runner *runner.Runner
	// AppendOutput opens job logs in append mode instead of
	// truncating, like a batch system's open-mode=append option.
	AppendOutput bool
}

var _ Executor = (*RunnerExecutor)(nil)

func (e *RunnerExecutor) Exec(ctx context.Context, job *Job) (int, error) {
	plan := append(OutputPlan(job, e.AppendOutput), job.Plan...)
	return e.Runner.RunArgv(ctx, job.Argv, plan)
}

// OutputPlan builds the redirection plan for a job's log targets.
// When the job declares only an Output, stderr joins it with a dup, so
// the log file sees exactly one open no matter how chatty the job is.
func OutputPlan(job *Job, appendMode bool) redirect.Plan {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}

	var plan redirect.Plan
	if job.Output != "" {
		plan = append(plan, redirect.Action{Op: redirect.OpOpen, FD: 1, Path: job.Output, Flags: flags})
		if job.Error == "" {
			plan = append(plan, redirect.Action{Op: redirect.OpDup, FD: 2, From: 1})
		}
	}
	if job.Error != "" {
		plan = append(plan, redirect.Action{Op: redirect.OpOpen, FD: 2, Path: job.Error, Flags: flags})
	}
	return plan
}
