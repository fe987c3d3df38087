package workflow

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fdlab/fdlab/core/sched"
)

// PlanEntry is one row of a simulated schedule.
type PlanEntry struct {
	Task      string
	Partition string
	CPUs      int
	Start     time.Duration
	End       time.Duration
}

// defaultSimTime stands in for tasks that declare no wall time; the
// simulation needs every job to take some definite amount of it.
const defaultSimTime = time.Hour

// Simulate computes the schedule the cluster would produce if every
// task ran for exactly its declared wall time. Admission follows the
// scheduler's rules: FIFO in dependency-ready order, optionally with
// backfill. The result is deterministic for a given workflow and
// capacity.
func Simulate(w *Workflow, capacity sched.Capacity, backfill bool) ([]PlanEntry, error) {
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
		if job.CPUs <= 0 {
			job.CPUs = 1
		}
		if job.WallTime == 0 {
			job.WallTime = defaultSimTime
		}
		if job.CPUs > capacity.CPUs || job.Memory > capacity.Memory {
			return nil, fmt.Errorf("task %s can never fit the cluster capacity", w.Tasks[i].Name)
		}
		jobs[w.Tasks[i].Name] = job
	}

	depsLeft := make(map[string]int, len(w.Tasks))
	var queue []string
	for _, name := range dag.Order() {
		depsLeft[name] = len(dag.Dependencies(name))
		if depsLeft[name] == 0 {
			queue = append(queue, name)
		}
	}

	type runningJob struct {
		name string
		end  time.Duration
	}

	free := capacity
	var clock time.Duration
	var running []runningJob
	var out []PlanEntry

	fits := func(name string) bool {
		j := jobs[name]
		return j.CPUs <= free.CPUs && j.Memory <= free.Memory
	}
	pick := func() int {
		if len(queue) == 0 {
			return -1
		}
		if fits(queue[0]) {
			return 0
		}
		if !backfill {
			return -1
		}
		for i := 1; i < len(queue); i++ {
			if fits(queue[i]) {
				return i
			}
		}
		return -1
	}

	for len(out) < len(w.Tasks) {
		for {
			idx := pick()
			if idx < 0 {
				break
			}
			name := queue[idx]
			queue = append(queue[:idx], queue[idx+1:]...)
			j := jobs[name]
			free.CPUs -= j.CPUs
			free.Memory -= j.Memory
			end := clock + j.WallTime
			running = append(running, runningJob{name: name, end: end})
			out = append(out, PlanEntry{
				Task:      name,
				Partition: j.Partition,
				CPUs:      j.CPUs,
				Start:     clock,
				End:       end,
			})
		}

		if len(running) == 0 {
			if len(queue) > 0 {
				return nil, fmt.Errorf("task %s cannot be scheduled", queue[0])
			}
			break
		}

		// Advance to the earliest completion; finish everything due
		// then, releasing capacity and unlocking dependents in stable
		// order.
		sort.SliceStable(running, func(i, j int) bool { return running[i].end < running[j].end })
		clock = running[0].end
		for len(running) > 0 && running[0].end == clock {
			finished := running[0]
			running = running[1:]
			j := jobs[finished.name]
			free.CPUs += j.CPUs
			free.Memory += j.Memory
			for _, dependent := range dag.Dependents(finished.name) {
				depsLeft[dependent]--
				if depsLeft[dependent] == 0 {
					queue = append(queue, dependent)
				}
			}
		}
	}

	return out, nil
}

// RenderPlan writes the simulated schedule as a table.
func RenderPlan(w io.Writer, entries []PlanEntry) {
	tw := tabwriter.NewWriter(w, 8, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tPARTITION\tCPUS\tSTART\tEND")
	for _, e := range entries {
		partition := e.Partition
		if partition == "" {
			partition = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			e.Task, partition, e.CPUs,
			sched.FormatWallTime(e.Start), sched.FormatWallTime(e.End))
	}
	tw.Flush()
}
