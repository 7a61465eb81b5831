// Package scheduler implements the Periodic Job Scheduler: registration
// of named recurring jobs, single-flight execution, and anchored
// (non-drifting) cadences. The scheduler performs no network or
// storage I/O itself; each handler owns its own side effects.
package scheduler

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/chainsignal/core/clock"
	"github.com/chainsignal/core/observability"
)

// Handler is the closure a scheduled job invokes on each tick.
type Handler func(ctx context.Context) error

// job is one registered scheduled job's full runtime state.
type job struct {
	name     string
	interval time.Duration
	handler  Handler

	mu      sync.Mutex
	running bool
	lastRun time.Time

	cancel context.CancelFunc
	stopped chan struct{}
}

// JobStatus answers getStatus() for a single job.
type JobStatus struct {
	Running bool
	LastRun time.Time
}

// Scheduler owns the job table. It is safe for concurrent use.
type Scheduler struct {
	clk clock.Clock

	mu   sync.RWMutex
	jobs map[string]*job
}

func New(clk clock.Clock) *Scheduler {
	return &Scheduler{clk: clk, jobs: make(map[string]*job)}
}

// Register records a job under name, intervalMs. A duplicate name
// replaces the existing registration; if that job was started, it is
// stopped first so the old goroutine never outlives its replacement.
func (s *Scheduler) Register(name string, interval time.Duration, handler Handler) {
	s.mu.Lock()
	existing, had := s.jobs[name]
	s.mu.Unlock()

	if had {
		s.stopJobInternal(existing)
	}

	s.mu.Lock()
	s.jobs[name] = &job{name: name, interval: interval, handler: handler}
	s.mu.Unlock()
}

// StartAll starts every registered job.
func (s *Scheduler) StartAll(ctx context.Context) {
	s.mu.RLock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.RUnlock()

	for _, name := range names {
		s.StartJob(ctx, name)
	}
}

// StartJob invokes the named job's handler immediately once, then
// every interval, anchored to start_time + k*interval so overruns
// never cause cadence drift.
func (s *Scheduler) StartJob(ctx context.Context, name string) {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return
	}

	j.mu.Lock()
	if j.cancel != nil {
		j.mu.Unlock()
		return // already started
	}
	loopCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.stopped = make(chan struct{})
	j.mu.Unlock()

	go s.runLoop(loopCtx, j)
}

// StopAll cancels every scheduled wake-up. In-flight handlers complete
// normally.
func (s *Scheduler) StopAll() {
	s.mu.RLock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()

	for _, j := range jobs {
		s.stopJobInternal(j)
	}
}

// StopJob cancels the named job's scheduled wake-ups.
func (s *Scheduler) StopJob(name string) {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.stopJobInternal(j)
}

func (s *Scheduler) stopJobInternal(j *job) {
	j.mu.Lock()
	cancel := j.cancel
	stopped := j.stopped
	j.cancel = nil
	j.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (s *Scheduler) runLoop(ctx context.Context, j *job) {
	defer close(j.stopped)

	anchor := s.clk.Now()
	s.attempt(ctx, j)

	var tick int64 = 1
	for {
		// Ticks whose instant passed while the handler was running are
		// dropped, not run late, so an overrun never queues work.
		for now := s.clk.Now(); j.interval > 0 && !anchor.Add(time.Duration(tick)*j.interval).After(now); tick++ {
			logTick(j.name, "dropped")
			observability.SchedulerTickTotal.WithLabelValues(j.name, "dropped").Inc()
		}
		next := anchor.Add(time.Duration(tick) * j.interval)
		wait := next.Sub(s.clk.Now())
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.attempt(ctx, j)
			tick++
		}
	}
}

// attempt enforces the single-flight latch: if the previous invocation
// has not returned, this tick is dropped and logged, never queued.
func (s *Scheduler) attempt(ctx context.Context, j *job) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		logTick(j.name, "dropped")
		observability.SchedulerTickTotal.WithLabelValues(j.name, "dropped").Inc()
		return
	}
	j.running = true
	j.mu.Unlock()

	start := s.clk.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: job %q panicked: %v", j.name, r)
			outcome = "panic"
		}
		observability.SchedulerJobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
		observability.SchedulerTickTotal.WithLabelValues(j.name, outcome).Inc()
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	if err := j.handler(ctx); err != nil {
		log.Printf("scheduler: job %q failed: %v", j.name, err)
		outcome = "error"
		return
	}

	j.mu.Lock()
	j.lastRun = s.clk.Now()
	j.mu.Unlock()
}

func logTick(name, outcome string) {
	b, _ := json.Marshal(map[string]string{"job": name, "tick": outcome})
	log.Println(string(b))
}

// GetStatus exposes {jobName: {running, lastRun}} for diagnostics.
func (s *Scheduler) GetStatus() map[string]JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]JobStatus, len(s.jobs))
	for name, j := range s.jobs {
		j.mu.Lock()
		out[name] = JobStatus{Running: j.running, LastRun: j.lastRun}
		j.mu.Unlock()
	}
	return out
}
