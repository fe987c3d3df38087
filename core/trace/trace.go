// Package trace is the standardized event log for the workbench. Every
// descriptor operation the runner performs, and every scheduling
// decision, lands here as one JSON object per line so sessions can be
// inspected and replayed after the fact.
package trace

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Op values for Event.Op.
const (
	OpOpen     = "open"
	OpDup      = "dup"
	OpClose    = "close"
	OpExec     = "exec"
	OpExit     = "exit"
	OpSubmit   = "submit"
	OpStart    = "start"
	OpDone     = "done"
	OpTimeout  = "timeout"
	OpRejected = "rejected"
)

// Event is a single log line. Fields are omitted when they don't apply
// to the operation.
type Event struct {
	Time  time.Time `json:"time"`
	Op    string    `json:"op"`
	FD    int       `json:"fd,omitempty"`
	Path  string    `json:"path,omitempty"`
	Flags string    `json:"flags,omitempty"`
	From  int       `json:"from,omitempty"`
	Argv  []string  `json:"argv,omitempty"`
	Exit  int       `json:"exit,omitempty"`
	Job   string    `json:"job,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Recorder writes newline-delimited JSON events. Safe for concurrent
// use.
type Recorder struct {
	mu   sync.Mutex
	out  io.Writer
	now  func() time.Time
	hook func(Event)
}

// NewRecorder creates a Recorder writing to out.
func NewRecorder(out io.Writer) *Recorder {
	return &Recorder{out: out, now: time.Now}
}

// SetTimeSource overrides the clock, for deterministic tests.
func (r *Recorder) SetTimeSource(now func() time.Time) {
	r.now = now
}

// SetHook registers a callback invoked with every recorded event after
// it is written. The shell uses this to keep a session transcript in
// memory.
func (r *Recorder) SetHook(hook func(Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

// Record stamps and writes the event.
func (r *Recorder) Record(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Time.IsZero() {
		ev.Time = r.now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := r.out.Write(data); err != nil {
		return err
	}
	if r.hook != nil {
		r.hook(ev)
	}
	return nil
}

// Read parses a newline-delimited JSON event log, invoking handler for
// each entry.
func Read(r io.Reader, handler func(Event) error) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var ev Event
		if err := decoder.Decode(&ev); err != nil {
			return err
		}
		if err := handler(ev); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll slurps an event log into memory.
func ReadAll(r io.Reader) ([]Event, error) {
	var out []Event
	err := Read(r, func(ev Event) error {
		out = append(out, ev)
		return nil
	})
	return out, err
}
