package workflow

import (
	"fmt"
)

// DAG is the validated dependency graph of a workflow. Task order is
// kept stable relative to the file so plans and runs are
// deterministic.
type DAG struct {
	order      []string
	deps       map[string][]string
	dependents map[string][]string
}

// BuildDAG validates the task graph: every `after` reference must
// name a known task, no task may depend on itself and cycles are
// rejected. The returned DAG lists tasks in a topological order that
// preserves file order among independent tasks.
func BuildDAG(w *Workflow) (*DAG, error) {
	d := &DAG{
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}

	known := make(map[string]bool, len(w.Tasks))
	for i := range w.Tasks {
		known[w.Tasks[i].Name] = true
	}

	inDegree := make(map[string]int, len(w.Tasks))
	for i := range w.Tasks {
		t := &w.Tasks[i]
		inDegree[t.Name] = 0
		for _, dep := range t.After {
			if dep == t.Name {
				return nil, fmt.Errorf("task %s depends on itself", t.Name)
			}
			if !known[dep] {
				return nil, fmt.Errorf("task %s depends on unknown task %q", t.Name, dep)
			}
			d.deps[t.Name] = append(d.deps[t.Name], dep)
			d.dependents[dep] = append(d.dependents[dep], t.Name)
			inDegree[t.Name]++
		}
	}

	// Kahn's algorithm; the ready list is scanned in file order so the
	// result is stable.
	remaining := make(map[string]int, len(inDegree))
	for k, v := range inDegree {
		remaining[k] = v
	}
	done := make(map[string]bool, len(w.Tasks))
	for len(d.order) < len(w.Tasks) {
		progressed := false
		for i := range w.Tasks {
			name := w.Tasks[i].Name
			if done[name] || remaining[name] != 0 {
				continue
			}
			done[name] = true
			d.order = append(d.order, name)
			for _, dep := range d.dependents[name] {
				remaining[dep]--
			}
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("workflow %s: dependency cycle", w.Name)
		}
	}

	return d, nil
}

// Order returns all task names in topological order.
func (d *DAG) Order() []string {
	return append([]string(nil), d.order...)
}

// Dependencies returns the direct prerequisites of a task.
func (d *DAG) Dependencies(name string) []string {
	return d.deps[name]
}

// Dependents returns the tasks that directly wait on name.
func (d *DAG) Dependents(name string) []string {
	return d.dependents[name]
}

// TransitiveDependents returns every task downstream of name.
func (d *DAG) TransitiveDependents(name string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(n string) {
		for _, dep := range d.dependents[n] {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
				walk(dep)
			}
		}
	}
	walk(name)
	return out
}
