// Package scheduler runs named background jobs on fixed schedules.
//
// Each job has its own timer loop. A firing that arrives while the previous
// run of the same job is still in progress is skipped; different jobs run
// concurrently. Errors and panics are contained at the job boundary and
// logged with the job name, so one failing job never stops the others.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownJob is returned when a job name is not registered.
	ErrUnknownJob = errors.New("scheduler: unknown job")
	// ErrJobRunning is returned when a trigger overlaps a run in progress.
	ErrJobRunning = errors.New("scheduler: job already running")
	// ErrStarted is returned by Start and Register once the scheduler runs.
	ErrStarted = errors.New("scheduler: already started")
	// ErrStopped is returned by triggers and Start once Stop has begun.
	ErrStopped = errors.New("scheduler: stopped")
)

// JobFunc is the body of a job. It should return promptly once ctx ends.
type JobFunc func(ctx context.Context) error

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	Skipped   int       `json:"skipped"`
	LastStart time.Time `json:"last_start,omitempty"`
	LastEnd   time.Time `json:"last_end,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

type job struct {
	name     string
	schedule Schedule
	fn       JobFunc

	// Guarded by Scheduler.mu.
	status JobStatus
}

// Scheduler owns a set of jobs and their timer loops.
type Scheduler struct {
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	jobs    map[string]*job
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool

	loops sync.WaitGroup
	runs  sync.WaitGroup
}

// New creates a stopped scheduler. If logger is nil, output is discarded.
func New(logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Scheduler{
		logger: logger,
		now:    time.Now,
		jobs:   make(map[string]*job),
	}
}

// Register adds a job. Names must be unique and registration must happen
// before Start.
func (s *Scheduler) Register(name string, schedule Schedule, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("scheduler: job %q registered twice", name)
	}
	s.jobs[name] = &job{
		name:     name,
		schedule: schedule,
		fn:       fn,
		status:   JobStatus{Name: name, Schedule: schedule.String()},
	}
	return nil
}

// Start launches one timer loop per job and returns immediately. The loops
// and any job they start end when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, j := range s.jobs {
		s.loops.Add(1)
		go s.loop(j)
	}
	s.logger.Printf("Scheduler started with %d jobs", len(s.jobs))
	return nil
}

// Stop cancels every loop and waits for in-flight runs to return. Once Stop
// has been called RunNow refuses new work.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if !s.started {
		s.mu.Unlock()
		s.runs.Wait()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.loops.Wait()
	s.runs.Wait()
	s.logger.Println("Scheduler stopped")
}

// RunNow fires name once in the background, subject to the same overlap
// rule as scheduled firings. Before Start the run uses a background context.
// After Stop it returns ErrStopped.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStopped, name)
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.claimLocked(j) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	s.runs.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.runs.Done()
		s.execute(ctx, j)
	}()
	return nil
}

// Run executes name in the calling goroutine and returns its error. It
// honours the overlap rule like RunNow.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !s.claimLocked(j) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	s.mu.Unlock()

	return s.execute(ctx, j)
}

// Status returns every job's status, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.status)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// loop waits for each scheduled firing of j until the scheduler stops.
func (s *Scheduler) loop(j *job) {
	defer s.loops.Done()

	next := j.schedule.Next(s.now())
	for {
		s.mu.Lock()
		j.status.NextRun = next
		ctx := s.ctx
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.fire(ctx, j)

		// Schedule from the planned time so intervals do not drift, but never
		// fire a backlog after a long pause.
		next = j.schedule.Next(next)
		if now := s.now(); next.Before(now) {
			next = j.schedule.Next(now)
		}
	}
}

// fire starts a run of j unless one is already in progress.
func (s *Scheduler) fire(ctx context.Context, j *job) {
	s.mu.Lock()
	if !s.claimLocked(j) {
		s.mu.Unlock()
		s.logger.Printf("Skipping %s: previous run still in progress", j.name)
		return
	}
	s.runs.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.runs.Done()
		s.execute(ctx, j)
	}()
}

// claimLocked marks j running. It reports false, and counts a skip, when j
// is already running. s.mu must be held.
func (s *Scheduler) claimLocked(j *job) bool {
	if j.status.Running {
		j.status.Skipped++
		return false
	}
	j.status.Running = true
	j.status.LastStart = s.now()
	return true
}

// execute runs a claimed job, recovering panics, and records the outcome.
func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	start := s.now()
	s.logger.Printf("Running %s", j.name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Printf("ERROR: job %s panicked: %v\n%s", j.name, r, debug.Stack())
		} else if err != nil {
			s.logger.Printf("ERROR: job %s failed: %v", j.name, err)
		} else {
			s.logger.Printf("Finished %s in %s", j.name, s.now().Sub(start).Round(time.Millisecond))
		}

		s.mu.Lock()
		j.status.Running = false
		j.status.Runs++
		j.status.LastEnd = s.now()
		j.status.LastError = ""
		if err != nil {
			j.status.Failures++
			j.status.LastError = err.Error()
		}
		s.mu.Unlock()
	}()

	return j.fn(ctx)
}
