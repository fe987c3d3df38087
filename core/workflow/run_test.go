package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdlab/fdlab/core/sched"
)

// orderExecutor records job start order and fails the jobs it's told
// to fail.
type orderExecutor struct {
	mu      sync.Mutex
	started []string
	fail    map[string]bool
}

func (e *orderExecutor) Exec(ctx context.Context, job *sched.Job) (int, error) {
	e.mu.Lock()
	e.started = append(e.started, job.Name)
	fail := e.fail[job.Name]
	e.mu.Unlock()
	if fail {
		return 1, fmt.Errorf("job %s failed", job.Name)
	}
	return 0, nil
}

func (e *orderExecutor) order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.started...)
}

func newTestScheduler(t *testing.T, exec sched.Executor) *sched.Scheduler {
	t.Helper()
	s, err := sched.New(sched.Options{
		Capacity: sched.Capacity{CPUs: 8, Memory: 16 << 30},
		Backfill: true,
		Executor: exec,
	})
	require.NoError(t, err)
	return s
}

func TestExecuteRespectsDependencies(t *testing.T) {
	w := loadAlign(t)
	exec := &orderExecutor{}
	s := newTestScheduler(t, exec)
	s.Start(context.Background())
	defer s.Drain()

	results, err := Execute(context.Background(), w, s)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.False(t, r.Failed(), "task %s", r.Task.Name)
		assert.Equal(t, sched.StateCompleted, r.Result.State)
	}
	assert.Equal(t, []string{"trim", "map", "stats"}, exec.order())
}

func TestExecuteSkipsDependentsOfFailure(t *testing.T) {
	w := loadAlign(t)
	exec := &orderExecutor{fail: map[string]bool{"map": true}}
	s := newTestScheduler(t, exec)
	s.Start(context.Background())
	defer s.Drain()

	results, err := Execute(context.Background(), w, s)
	require.NoError(t, err)

	byName := make(map[string]TaskResult)
	for _, r := range results {
		byName[r.Task.Name] = r
	}

	assert.Equal(t, sched.StateCompleted, byName["trim"].Result.State)
	assert.Equal(t, sched.StateFailed, byName["map"].Result.State)
	assert.True(t, byName["stats"].Skipped)
	assert.Contains(t, byName["stats"].SkipReason, "map")
	assert.NotContains(t, exec.order(), "stats")
}

func TestExecuteSkipsDependentsOfRejection(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "w.yaml", []byte(`name: big
tasks:
  - name: huge
    run: solve everything
    cpus: 64
  - name: report
    run: report
    after: [huge]
`), 0644))
	w, err := Load(fs, "w.yaml")
	require.NoError(t, err)

	exec := &orderExecutor{}
	s := newTestScheduler(t, exec)
	s.Start(context.Background())
	defer s.Drain()

	results, err := Execute(context.Background(), w, s)
	require.NoError(t, err)

	byName := make(map[string]TaskResult)
	for _, r := range results {
		byName[r.Task.Name] = r
	}
	assert.Equal(t, sched.StateFailed, byName["huge"].Result.State)
	assert.Error(t, byName["huge"].Result.Err)
	assert.True(t, byName["report"].Skipped)
	assert.Empty(t, exec.order())
}
