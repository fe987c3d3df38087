package workflow

import (
	"fmt"
	"strings"

	"github.com/fdlab/fdlab/core/sched"
)

// scriptDirectivePrefix is the comment prefix cluster batch systems
// scan submission scripts for.
const scriptDirectivePrefix = "#SBATCH"

// Script renders a task as a standalone batch submission script, the
// form the workflow would take on a real cluster.
func Script(w *Workflow, t *Task) (string, error) {
	job, err := t.Job()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	directive := func(format string, args ...interface{}) {
		b.WriteString(scriptDirectivePrefix)
		b.WriteString(" ")
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\n")
	}

	directive("--job-name=%s", t.Name)
	if t.Partition != "" {
		directive("--partition=%s", t.Partition)
	}
	cpus := job.CPUs
	if cpus <= 0 {
		cpus = 1
	}
	directive("--cpus-per-task=%d", cpus)
	if t.Mem != "" {
		directive("--mem=%s", t.Mem)
	}
	if job.WallTime > 0 {
		directive("--time=%s", sched.FormatWallTime(job.WallTime))
	}
	directive("--output=%s", job.Output)
	if job.Error != "" {
		directive("--error=%s", job.Error)
	}
	if len(t.After) > 0 {
		directive("--dependency=afterok:%s", strings.Join(t.After, ":"))
	}

	b.WriteString("\n")
	b.WriteString(t.Run)
	b.WriteString("\n")
	return b.String(), nil
}
