// Package sched admits jobs against a fixed cluster capacity and runs
// them. Jobs declare the resources they need up front, the way batch
// systems have them declared in submission scripts; the scheduler's
// whole job is deciding which of them may run at the same time.
package sched

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fdlab/fdlab/core/redirect"
)

// Job is one unit of work with its resource request.
type Job struct {
	Name string
	Argv []string

	// CPUs requested; zero means one.
	CPUs int
	// Memory requested, in bytes. Zero means no reservation.
	Memory uint64
	// WallTime is the declared time limit. The job is killed and
	// marked TIMEOUT when it runs over. Zero means unlimited.
	WallTime time.Duration
	// Partition to run in; empty selects the default partition.
	Partition string

	// Output and Error are redirection targets for the job's stdout
	// and stderr. When only Output is set, stderr joins it by
	// descriptor duplication, so the target is opened exactly once.
	Output string
	Error  string

	// Plan carries redirections written inline in the job's command
	// line. It is applied after the Output/Error targets, the way a
	// batch script's own redirections land on top of the job log.
	Plan redirect.Plan
}

// State of a finished (or rejected) job.
type State int

const (
	StateCompleted State = iota
	StateFailed
	StateTimeout
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateTimeout:
		return "TIMEOUT"
	case StateCanceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Result is delivered once per submitted job.
type Result struct {
	Job      *Job
	State    State
	ExitCode int
	Start    time.Time
	End      time.Time
	Err      error
}

// Capacity is an amount of schedulable resource.
type Capacity struct {
	CPUs   int
	Memory uint64
}

func (c Capacity) fits(j *Job) bool {
	return j.CPUs <= c.CPUs && j.Memory <= c.Memory
}

// Partition is a named slice of the cluster with per-job limits.
type Partition struct {
	Name      string
	MaxCPUs   int
	MaxMemory uint64
	// MaxTime of zero means unlimited.
	MaxTime time.Duration
	Default bool
}

// ParseWallTime parses batch-system wall time syntax: "minutes",
// "MM:SS", "HH:MM:SS", "D-HH", "D-HH:MM" and "D-HH:MM:SS".
func ParseWallTime(s string) (time.Duration, error) {
	bad := func() (time.Duration, error) {
		return 0, fmt.Errorf("invalid wall time %q", s)
	}

	var days int64
	rest := s
	if i := strings.IndexByte(s, '-'); i >= 0 {
		var err error
		days, err = strconv.ParseInt(s[:i], 10, 32)
		if err != nil || days < 0 {
			return bad()
		}
		rest = s[i+1:]
	}

	parts := strings.Split(rest, ":")
	nums := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 32)
		if err != nil || n < 0 {
			return bad()
		}
		nums[i] = n
	}

	var d time.Duration
	hadDays := strings.IndexByte(s, '-') >= 0
	switch {
	case hadDays && len(nums) == 1: // D-HH
		d = time.Duration(nums[0]) * time.Hour
	case hadDays && len(nums) == 2: // D-HH:MM
		d = time.Duration(nums[0])*time.Hour + time.Duration(nums[1])*time.Minute
	case hadDays && len(nums) == 3: // D-HH:MM:SS
		d = time.Duration(nums[0])*time.Hour + time.Duration(nums[1])*time.Minute + time.Duration(nums[2])*time.Second
	case len(nums) == 1: // minutes
		d = time.Duration(nums[0]) * time.Minute
	case len(nums) == 2: // MM:SS
		d = time.Duration(nums[0])*time.Minute + time.Duration(nums[1])*time.Second
	case len(nums) == 3: // HH:MM:SS
		d = time.Duration(nums[0])*time.Hour + time.Duration(nums[1])*time.Minute + time.Duration(nums[2])*time.Second
	default:
		return bad()
	}

	return time.Duration(days)*24*time.Hour + d, nil
}

// FormatWallTime renders a duration in HH:MM:SS (or D-HH:MM:SS) form.
func FormatWallTime(d time.Duration) string {
	total := int64(d / time.Second)
	days := total / 86400
	total %= 86400
	h, m, s := total/3600, (total%3600)/60, total%60
	if days > 0 {
		return fmt.Sprintf("%d-%02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
