package workflow

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdlab/fdlab/core/sched"
)

func goldenTester(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)
}

func TestSimulate(t *testing.T) {
	w := loadAlign(t)

	entries, err := Simulate(w, sched.Capacity{CPUs: 8, Memory: 16 << 30}, true)
	require.NoError(t, err)

	assert.Equal(t, []PlanEntry{
		{Task: "trim", Partition: "short", CPUs: 2, Start: 0, End: 30 * time.Minute},
		{Task: "map", Partition: "long", CPUs: 4, Start: 30 * time.Minute, End: 150 * time.Minute},
		{Task: "stats", CPUs: 1, Start: 150 * time.Minute, End: 210 * time.Minute},
	}, entries)
}

func TestSimulateBackfill(t *testing.T) {
	w := mkWorkflow(
		Task{Name: "wide", Run: "true", CPUs: 4, Time: "02:00:00"},
		Task{Name: "tall", Run: "true", CPUs: 3, Time: "01:00:00"},
		Task{Name: "slim", Run: "true", CPUs: 1, Time: "01:00:00"},
	)
	capacity := sched.Capacity{CPUs: 5, Memory: 16 << 30}

	// Without backfill slim waits behind tall even though it fits.
	entries, err := Simulate(w, capacity, false)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, entries[2].Start, "slim should queue behind tall")

	entries, err = Simulate(w, capacity, true)
	require.NoError(t, err)
	byTask := make(map[string]PlanEntry)
	for _, e := range entries {
		byTask[e.Task] = e
	}
	assert.Equal(t, time.Duration(0), byTask["slim"].Start, "slim should backfill alongside wide")
	assert.Equal(t, 2*time.Hour, byTask["tall"].Start)
}

func TestSimulateNeverFits(t *testing.T) {
	w := mkWorkflow(Task{Name: "huge", Run: "true", CPUs: 128})

	_, err := Simulate(w, sched.Capacity{CPUs: 8, Memory: 16 << 30}, true)
	assert.ErrorContains(t, err, "huge")
}

func TestRenderPlan(t *testing.T) {
	w := loadAlign(t)

	entries, err := Simulate(w, sched.Capacity{CPUs: 8, Memory: 16 << 30}, true)
	require.NoError(t, err)

	var buf bytes.Buffer
	RenderPlan(&buf, entries)
	goldenTester(t).Assert(t, "align", buf.Bytes())
}
