package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/ratelimit"

	"github.com/fdlab/fdlab/core/trace"
)

// Executor runs an admitted job and reports its exit status. The
// context carries the job's wall-time deadline.
type Executor interface {
	Exec(ctx context.Context, job *Job) (int, error)
}

// Options configure a Scheduler.
type Options struct {
	Capacity   Capacity
	Partitions []Partition
	// Backfill lets a later job start ahead of the queue head when the
	// head doesn't fit but the later job does.
	Backfill bool
	// MaxStartsPerSec throttles job launches. Zero means unthrottled.
	MaxStartsPerSec float64

	Executor Executor
	// Recorder receives job lifecycle events. May be nil.
	Recorder *trace.Recorder
}

// ErrClosed is returned by Submit after Drain.
var ErrClosed = errors.New("scheduler closed")

// Scheduler decides which submitted jobs may run concurrently, never
// letting the sum of admitted requests exceed the configured capacity.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	opts       Options
	partitions map[string]Partition
	defaultP   string

	free    Capacity
	queue   []*entry
	running int
	closed  bool

	bucket *ratelimit.Bucket
}

type entry struct {
	job    *Job
	result chan Result
}

// New creates a Scheduler. It does not start dispatching until Start.
func New(opts Options) (*Scheduler, error) {
	if opts.Executor == nil {
		return nil, errors.New("sched: executor is required")
	}
	if opts.Capacity.CPUs <= 0 {
		return nil, errors.New("sched: capacity needs at least one cpu")
	}

	s := &Scheduler{
		opts:       opts,
		partitions: make(map[string]Partition),
		free:       opts.Capacity,
	}
	s.cond = sync.NewCond(&s.mu)

	for _, p := range opts.Partitions {
		s.partitions[p.Name] = p
		if p.Default {
			s.defaultP = p.Name
		}
	}

	if opts.MaxStartsPerSec > 0 {
		burst := int64(opts.MaxStartsPerSec)
		if burst < 1 {
			burst = 1
		}
		s.bucket = ratelimit.NewBucketWithRate(opts.MaxStartsPerSec, burst)
	}
	return s, nil
}

// Submit queues a job. Validation failures (unknown partition, request
// over partition or cluster limits) reject immediately; otherwise the
// returned channel delivers exactly one Result.
func (s *Scheduler) Submit(job *Job) (<-chan Result, error) {
	if job.CPUs <= 0 {
		job.CPUs = 1
	}

	if err := s.admissible(job); err != nil {
		s.record(trace.Event{Op: trace.OpRejected, Job: job.Name, Error: err.Error()})
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	e := &entry{job: job, result: make(chan Result, 1)}
	s.queue = append(s.queue, e)
	s.record(trace.Event{Op: trace.OpSubmit, Job: job.Name})
	s.cond.Broadcast()
	return e.result, nil
}

// admissible checks the job against partition and cluster limits.
func (s *Scheduler) admissible(job *Job) error {
	if len(s.partitions) > 0 {
		if job.Partition == "" {
			job.Partition = s.defaultP
		}
		p, ok := s.partitions[job.Partition]
		if !ok {
			return fmt.Errorf("unknown partition %q", job.Partition)
		}
		if job.CPUs > p.MaxCPUs {
			return fmt.Errorf("job %s requests %d cpus, partition %s allows %d", job.Name, job.CPUs, p.Name, p.MaxCPUs)
		}
		if p.MaxMemory > 0 && job.Memory > p.MaxMemory {
			return fmt.Errorf("job %s memory request exceeds partition %s limit", job.Name, p.Name)
		}
		if p.MaxTime > 0 && job.WallTime > p.MaxTime {
			return fmt.Errorf("job %s wall time %s exceeds partition %s limit %s",
				job.Name, FormatWallTime(job.WallTime), p.Name, FormatWallTime(p.MaxTime))
		}
		if p.MaxTime > 0 && job.WallTime == 0 {
			job.WallTime = p.MaxTime
		}
	}

	if !s.opts.Capacity.fits(job) {
		return fmt.Errorf("job %s can never fit the cluster capacity", job.Name)
	}
	return nil
}

// Start launches the dispatch loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.cond.Broadcast()
	}()
	go s.dispatch(ctx)
}

// Drain closes the intake and blocks until every queued and running
// job has finished.
func (s *Scheduler) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	for len(s.queue) > 0 || s.running > 0 {
		s.cond.Wait()
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if ctx.Err() != nil {
			for _, e := range s.queue {
				e.result <- Result{Job: e.job, State: StateCanceled, Err: ctx.Err()}
			}
			s.queue = nil
			s.cond.Broadcast()
			return
		}

		idx := s.pickLocked()
		if idx < 0 {
			if s.closed && len(s.queue) == 0 && s.running == 0 {
				return
			}
			s.cond.Wait()
			continue
		}

		e := s.queue[idx]
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		s.free.CPUs -= e.job.CPUs
		s.free.Memory -= e.job.Memory
		s.running++

		s.mu.Unlock()
		if s.bucket != nil {
			s.bucket.Wait(1)
		}
		go s.runJob(ctx, e)
		s.mu.Lock()
	}
}

// pickLocked selects the next admissible queue index: the head when it
// fits, or with backfill the first job that fits the idle capacity.
func (s *Scheduler) pickLocked() int {
	if len(s.queue) == 0 {
		return -1
	}
	if s.free.fits(s.queue[0].job) {
		return 0
	}
	if !s.opts.Backfill {
		return -1
	}
	for i, e := range s.queue[1:] {
		if s.free.fits(e.job) {
			return i + 1
		}
	}
	return -1
}

func (s *Scheduler) runJob(ctx context.Context, e *entry) {
	job := e.job
	s.record(trace.Event{Op: trace.OpStart, Job: job.Name})

	jobCtx := ctx
	var cancel context.CancelFunc
	if job.WallTime > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, job.WallTime)
		defer cancel()
	}

	start := time.Now()
	code, err := s.opts.Executor.Exec(jobCtx, job)
	end := time.Now()

	result := Result{Job: job, ExitCode: code, Start: start, End: end, Err: err}
	switch {
	case jobCtx.Err() != nil && ctx.Err() == nil:
		result.State = StateTimeout
		s.record(trace.Event{Op: trace.OpTimeout, Job: job.Name, Error: fmt.Sprintf("wall time %s exceeded", FormatWallTime(job.WallTime))})
	case ctx.Err() != nil:
		result.State = StateCanceled
	case err != nil || code != 0:
		result.State = StateFailed
		s.record(trace.Event{Op: trace.OpDone, Job: job.Name, Exit: code, Error: errString(err)})
	default:
		result.State = StateCompleted
		s.record(trace.Event{Op: trace.OpDone, Job: job.Name, Exit: code})
	}

	s.mu.Lock()
	s.free.CPUs += job.CPUs
	s.free.Memory += job.Memory
	s.running--
	s.cond.Broadcast()
	s.mu.Unlock()

	e.result <- result
}

func (s *Scheduler) record(ev trace.Event) {
	if s.opts.Recorder != nil {
		_ = s.opts.Recorder.Record(ev)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
