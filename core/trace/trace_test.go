package trace

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock() func() time.Time {
	// Go's reference timestamp with a different value in each position.
	ts := time.Date(2006, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestRecordReadRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewRecorder(buf)
	r.SetTimeSource(fixedClock())

	assert.NoError(t, r.Record(Event{Op: OpOpen, FD: 1, Path: "out", Flags: "w|create|trunc"}))
	assert.NoError(t, r.Record(Event{Op: OpDup, FD: 2, From: 1}))
	assert.NoError(t, r.Record(Event{Op: OpExit, Exit: 3}))

	events, err := ReadAll(buf)
	assert.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, OpOpen, events[0].Op)
	assert.Equal(t, "out", events[0].Path)
	assert.Equal(t, 1, events[1].From)
	assert.Equal(t, 3, events[2].Exit)
	assert.Equal(t, fixedClock()(), events[0].Time)
}

func TestRecordHook(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewRecorder(buf)
	r.SetTimeSource(fixedClock())

	var seen []Event
	r.SetHook(func(ev Event) { seen = append(seen, ev) })

	assert.NoError(t, r.Record(Event{Op: OpExec, Argv: []string{"echo", "hi"}}))
	assert.Len(t, seen, 1)
	assert.Equal(t, OpExec, seen[0].Op)
}

func TestReadBadInput(t *testing.T) {
	_, err := ReadAll(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestRenderSummary(t *testing.T) {
	ts := fixedClock()()
	events := []Event{
		{Time: ts, Op: OpExec, Argv: []string{"cmd"}},
		{Time: ts, Op: OpOpen, FD: 1, Path: "out", Flags: "w|create|trunc"},
		{Time: ts, Op: OpOpen, FD: 1, Path: "out", Flags: "w|create|trunc"},
		{Time: ts, Op: OpDup, FD: 2, From: 1},
		{Time: ts, Op: OpExit, Exit: 0},
	}

	buf := &bytes.Buffer{}
	Render(buf, events, false)
	got := buf.String()

	assert.Contains(t, got, "out: 2 opens")
	assert.Contains(t, got, "duplicated descriptors: 1 (no opens issued)")
	assert.Contains(t, got, "shares fd 1")
	assert.Contains(t, got, "status 0")
}

func TestRenderEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	Render(buf, nil, false)
	assert.Empty(t, buf.String())
}
