package redirect

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name   string
		tokens []string
		argv   []string
		plan   Plan
	}{
		{
			name:   "no redirections",
			tokens: []string{"echo", "hello", "world"},
			argv:   []string{"echo", "hello", "world"},
		},
		{
			name:   "fused truncate",
			tokens: []string{"echo", "hi", ">out.txt"},
			argv:   []string{"echo", "hi"},
			plan: Plan{
				{Op: OpOpen, FD: 1, Path: "out.txt", Flags: os.O_WRONLY | os.O_CREATE | os.O_TRUNC},
			},
		},
		{
			name:   "split truncate",
			tokens: []string{"echo", "hi", ">", "out.txt"},
			argv:   []string{"echo", "hi"},
			plan: Plan{
				{Op: OpOpen, FD: 1, Path: "out.txt", Flags: os.O_WRONLY | os.O_CREATE | os.O_TRUNC},
			},
		},
		{
			name:   "append",
			tokens: []string{"date", ">>log"},
			argv:   []string{"date"},
			plan: Plan{
				{Op: OpOpen, FD: 1, Path: "log", Flags: os.O_WRONLY | os.O_CREATE | os.O_APPEND},
			},
		},
		{
			name:   "stderr to file",
			tokens: []string{"make", "2>err"},
			argv:   []string{"make"},
			plan: Plan{
				{Op: OpOpen, FD: 2, Path: "err", Flags: os.O_WRONLY | os.O_CREATE | os.O_TRUNC},
			},
		},
		{
			name:   "stdin",
			tokens: []string{"wc", "-l", "<data"},
			argv:   []string{"wc", "-l"},
			plan: Plan{
				{Op: OpOpen, FD: 0, Path: "data", Flags: os.O_RDONLY},
			},
		},
		{
			name:   "dup stderr onto stdout",
			tokens: []string{"make", "2>&1"},
			argv:   []string{"make"},
			plan: Plan{
				{Op: OpDup, FD: 2, From: 1},
			},
		},
		{
			name:   "dup input",
			tokens: []string{"cmd", "<&3"},
			argv:   []string{"cmd"},
			plan: Plan{
				{Op: OpDup, FD: 0, From: 3},
			},
		},
		{
			name:   "close",
			tokens: []string{"cmd", "2>&-"},
			argv:   []string{"cmd"},
			plan: Plan{
				{Op: OpClose, FD: 2},
			},
		},
		{
			name:   "both streams",
			tokens: []string{"make", "&>build.log"},
			argv:   []string{"make"},
			plan: Plan{
				{Op: OpOpen, FD: 1, Path: "build.log", Flags: os.O_WRONLY | os.O_CREATE | os.O_TRUNC},
				{Op: OpDup, FD: 2, From: 1},
			},
		},
		{
			name:   "both streams csh style",
			tokens: []string{"make", ">&build.log"},
			argv:   []string{"make"},
			plan: Plan{
				{Op: OpOpen, FD: 1, Path: "build.log", Flags: os.O_WRONLY | os.O_CREATE | os.O_TRUNC},
				{Op: OpDup, FD: 2, From: 1},
			},
		},
		{
			name:   "order preserved",
			tokens: []string{"cmd", ">f", "2>&1"},
			argv:   []string{"cmd"},
			plan: Plan{
				{Op: OpOpen, FD: 1, Path: "f", Flags: os.O_WRONLY | os.O_CREATE | os.O_TRUNC},
				{Op: OpDup, FD: 2, From: 1},
			},
		},
		{
			name:   "order preserved reversed",
			tokens: []string{"cmd", "2>&1", ">f"},
			argv:   []string{"cmd"},
			plan: Plan{
				{Op: OpDup, FD: 2, From: 1},
				{Op: OpOpen, FD: 1, Path: "f", Flags: os.O_WRONLY | os.O_CREATE | os.O_TRUNC},
			},
		},
		{
			name:   "high descriptor",
			tokens: []string{"cmd", "5>scratch"},
			argv:   []string{"cmd"},
			plan: Plan{
				{Op: OpOpen, FD: 5, Path: "scratch", Flags: os.O_WRONLY | os.O_CREATE | os.O_TRUNC},
			},
		},
		{
			name:   "numeric word is not a redirection",
			tokens: []string{"echo", "12"},
			argv:   []string{"echo", "12"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			argv, plan, err := Parse(tc.tokens)
			assert.NoError(t, err)
			assert.Equal(t, tc.argv, argv)
			assert.Equal(t, tc.plan, plan)
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		tokens []string
	}{
		{"missing target", []string{"echo", ">"}},
		{"missing append target", []string{"echo", ">>"}},
		{"bad input dup", []string{"cmd", "<&x"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.tokens)
			assert.Error(t, err)
		})
	}
}

func TestPlanMaxFD(t *testing.T) {
	assert.Equal(t, -1, Plan{}.MaxFD())

	_, plan, err := Parse([]string{"cmd", "7>x", "2>&1"})
	assert.NoError(t, err)
	assert.Equal(t, 7, plan.MaxFD())
}

func TestActionString(t *testing.T) {
	_, plan, err := Parse([]string{"cmd", ">out", "2>&1"})
	assert.NoError(t, err)
	assert.Equal(t, "open out (w|create|trunc) -> fd 1", plan[0].String())
	assert.Equal(t, "dup fd 1 -> fd 2", plan[1].String())
}
