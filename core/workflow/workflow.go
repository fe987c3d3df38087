// Package workflow loads task-graph definitions, turns their tasks
// into schedulable jobs, and renders them as plans or batch scripts.
package workflow

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/anmitsu/go-shlex"
	"github.com/c2h5oh/datasize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"

	"github.com/fdlab/fdlab/core/redirect"
	"github.com/fdlab/fdlab/core/sched"
)

// Workflow is a YAML file of named tasks with resource requests and
// dependencies.
type Workflow struct {
	Name  string `json:"name" validate:"required"`
	Tasks []Task `json:"tasks" validate:"required,min=1,unique=Name,dive"`
}

// Task declares one command plus the resources it needs, in the style
// of a cluster submission block.
type Task struct {
	Name string `json:"name" validate:"required"`
	// Run is the command line; it may carry its own redirections.
	Run string `json:"run" validate:"required"`

	CPUs int `json:"cpus" validate:"gte=0"`
	// Mem is a byte quantity string like "4GB".
	Mem string `json:"mem"`
	// Time is a wall-time limit like "01:30:00".
	Time      string `json:"time"`
	Partition string `json:"partition"`

	// Output and Error are the job's log targets. Output defaults to
	// "<name>.out"; when Error is unset stderr shares Output.
	Output string `json:"output"`
	Error  string `json:"error"`

	// After lists tasks that must complete first.
	After []string `json:"after"`
}

// Load reads and validates a workflow file, including its task graph.
func Load(fs afero.Fs, path string) (*Workflow, error) {
	contents, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	var out Workflow
	if err := yaml.UnmarshalStrict(contents, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate checks field constraints, that every task converts to a
// job, and that the dependency graph is acyclic.
func (w *Workflow) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})
	if err := validate.Struct(w); err != nil {
		return err
	}

	for i := range w.Tasks {
		if _, err := w.Tasks[i].Job(); err != nil {
			return err
		}
	}

	_, err := BuildDAG(w)
	return err
}

// Task returns the named task, or nil.
func (w *Workflow) Task(name string) *Task {
	for i := range w.Tasks {
		if w.Tasks[i].Name == name {
			return &w.Tasks[i]
		}
	}
	return nil
}

// Job converts the task declaration into a schedulable job.
func (t *Task) Job() (*sched.Job, error) {
	tokens, err := shlex.Split(t.Run, true)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.Name, err)
	}
	argv, plan, err := redirect.Parse(tokens)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", t.Name, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("task %s: empty command", t.Name)
	}

	job := &sched.Job{
		Name:      t.Name,
		Argv:      argv,
		Plan:      plan,
		CPUs:      t.CPUs,
		Partition: t.Partition,
		Output:    t.Output,
		Error:     t.Error,
	}
	if job.Output == "" {
		job.Output = t.Name + ".out"
	}

	if t.Mem != "" {
		var mem datasize.ByteSize
		if err := mem.UnmarshalText([]byte(t.Mem)); err != nil {
			return nil, fmt.Errorf("task %s: mem %q: %w", t.Name, t.Mem, err)
		}
		job.Memory = mem.Bytes()
	}

	if t.Time != "" {
		wallTime, err := sched.ParseWallTime(t.Time)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", t.Name, err)
		}
		job.WallTime = wallTime
	}

	return job, nil
}
