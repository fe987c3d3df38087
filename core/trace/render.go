package trace

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var (
	colorOpen = color.New(color.FgRed, color.Bold)
	colorDup  = color.New(color.FgGreen, color.Bold)
	colorExec = color.New(color.FgCyan)
)

// Render writes a human-readable table of events followed by a
// per-target summary of how many times each path was opened versus
// shared by duplication. The summary is where the lesson shows up:
// a target redirected with a dup operator is opened once no matter how
// many commands write to it.
func Render(w io.Writer, events []Event, colored bool) {
	sprintf := func(c *color.Color, format string, a ...interface{}) string {
		if colored {
			return c.Sprintf(format, a...)
		}
		return fmt.Sprintf(format, a...)
	}

	tw := tabwriter.NewWriter(w, 8, 8, 2, ' ', 0)
	opens := make(map[string]int)
	dups := 0

	for _, ev := range events {
		switch ev.Op {
		case OpOpen:
			opens[ev.Path]++
			fmt.Fprintf(tw, "%s\t%s\tfd %d\t%s (%s)\n",
				ev.Time.Format("15:04:05.000"), sprintf(colorOpen, "open"), ev.FD, ev.Path, ev.Flags)
		case OpDup:
			dups++
			fmt.Fprintf(tw, "%s\t%s\tfd %d\tshares fd %d\n",
				ev.Time.Format("15:04:05.000"), sprintf(colorDup, "dup"), ev.FD, ev.From)
		case OpClose:
			fmt.Fprintf(tw, "%s\tclose\tfd %d\t\n", ev.Time.Format("15:04:05.000"), ev.FD)
		case OpExec:
			fmt.Fprintf(tw, "%s\t%s\t\t%s\n",
				ev.Time.Format("15:04:05.000"), sprintf(colorExec, "exec"), strings.Join(ev.Argv, " "))
		case OpExit:
			fmt.Fprintf(tw, "%s\texit\t\tstatus %d\n", ev.Time.Format("15:04:05.000"), ev.Exit)
		case OpSubmit, OpStart, OpDone, OpTimeout, OpRejected:
			detail := ev.Job
			if ev.Error != "" {
				detail += ": " + ev.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t\t%s\n", ev.Time.Format("15:04:05.000"), ev.Op, detail)
		}
	}
	tw.Flush()

	if len(opens) == 0 && dups == 0 {
		return
	}

	fmt.Fprintln(w)
	var paths []string
	for p := range opens {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		n := opens[p]
		noun := "opens"
		if n == 1 {
			noun = "open"
		}
		fmt.Fprintf(w, "%s: %d %s\n", p, n, noun)
	}
	if dups > 0 {
		fmt.Fprintf(w, "duplicated descriptors: %d (no opens issued)\n", dups)
	}
}
