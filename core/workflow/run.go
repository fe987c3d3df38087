package workflow

import (
	"context"
	"fmt"

	"github.com/fdlab/fdlab/core/sched"
)

// TaskResult is the outcome of one task in an executed workflow.
type TaskResult struct {
	Task *Task
	// Result is zero-valued when the task was skipped.
	Result sched.Result
	// Skipped is set when an upstream task failed and this one never
	// ran.
	Skipped    bool
	SkipReason string
}

// Failed reports whether the task should block its dependents.
func (r TaskResult) Failed() bool {
	return r.Skipped || r.Result.State != sched.StateCompleted
}

// Execute runs the workflow through the scheduler: tasks are submitted
// as their dependencies complete, and dependents of a failed task are
// skipped. Results are returned in file order.
func Execute(ctx context.Context, w *Workflow, scheduler *sched.Scheduler) ([]TaskResult, error) {
	dag, err := BuildDAG(w)
	if err != nil {
		return nil, err
	}

	jobs := make(map[string]*sched.Job, len(w.Tasks))
	for i := range w.Tasks {
		job, err := w.Tasks[i].Job()
		if err != nil {
			return nil, err
		}
		jobs[w.Tasks[i].Name] = job
	}

	type completion struct {
		name   string
		result sched.Result
	}

	depsLeft := make(map[string]int, len(w.Tasks))
	for i := range w.Tasks {
		depsLeft[w.Tasks[i].Name] = len(dag.Dependencies(w.Tasks[i].Name))
	}

	results := make(map[string]TaskResult, len(w.Tasks))
	completions := make(chan completion)
	outstanding := 0

	submit := func(name string) {
		ch, err := scheduler.Submit(jobs[name])
		if err != nil {
			// Treat a rejected submission like a failure so dependents
			// are skipped, not stranded.
			go func() {
				completions <- completion{name: name, result: sched.Result{
					Job:   jobs[name],
					State: sched.StateFailed,
					Err:   err,
				}}
			}()
			outstanding++
			return
		}
		go func() {
			completions <- completion{name: name, result: <-ch}
		}()
		outstanding++
	}

	skip := func(name, reason string) {
		for _, downstream := range dag.TransitiveDependents(name) {
			if _, seen := results[downstream]; seen {
				continue
			}
			results[downstream] = TaskResult{
				Task:       w.Task(downstream),
				Skipped:    true,
				SkipReason: reason,
			}
		}
	}

	for i := range w.Tasks {
		if depsLeft[w.Tasks[i].Name] == 0 {
			submit(w.Tasks[i].Name)
		}
	}

	for outstanding > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case c := <-completions:
			outstanding--
			results[c.name] = TaskResult{Task: w.Task(c.name), Result: c.result}

			if c.result.State != sched.StateCompleted {
				skip(c.name, fmt.Sprintf("dependency %s %s", c.name, c.result.State))
				continue
			}
			for _, dependent := range dag.Dependents(c.name) {
				if _, skipped := results[dependent]; skipped {
					continue
				}
				depsLeft[dependent]--
				if depsLeft[dependent] == 0 {
					submit(dependent)
				}
			}
		}
	}

	out := make([]TaskResult, 0, len(w.Tasks))
	for i := range w.Tasks {
		out = append(out, results[w.Tasks[i].Name])
	}
	return out, nil
}
