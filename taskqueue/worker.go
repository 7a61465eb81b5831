package taskqueue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chainsignal/core/executor"
	"github.com/chainsignal/core/observability"
	"github.com/chainsignal/core/store"
)

// pollFallback bounds how long the Worker can go between lease
// attempts when no Enqueue signal arrives in the meantime.
const pollFallback = 2 * time.Second

// SyncRunner is the subset of the Executor the Worker depends on.
// executor.Executor satisfies this directly; the interface exists so
// the Worker can be tested against a stub without a real Registry or
// Dispatcher.
type SyncRunner interface {
	RunSync(ctx context.Context, taskType store.TaskType, payload map[string]string) (*executor.Result, error)
}

// State is the Worker's lifecycle.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateDraining State = "draining"
)

// Worker is the single long-lived loop that leases queued tasks and
// runs them through the Executor's sync path.
type Worker struct {
	queue  *Queue
	runner SyncRunner

	mu    sync.Mutex
	state State

	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(queue *Queue, runner SyncRunner) *Worker {
	return &Worker{queue: queue, runner: runner, state: StateStopped}
}

// Start launches the worker loop if it isn't already running.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.state == StateRunning {
		w.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.state = StateRunning
	w.done = make(chan struct{})
	w.mu.Unlock()

	observability.WorkerRunning.Set(1)
	go w.loop(loopCtx)
}

// Stop transitions to draining, waits for the in-flight task (if any)
// to finish, then stopped.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return
	}
	w.state = StateDraining
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()
	observability.WorkerRunning.Set(0)
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(pollFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.queue.wake:
			w.drainOnce(ctx)
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

// drainOnce leases and runs tasks until the queue reports no further
// leasable candidate.
func (w *Worker) drainOnce(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		task, err := w.queue.lease(ctx)
		if err != nil {
			log.Printf("taskqueue: lease attempt failed: %v", err)
			return
		}
		if task == nil {
			return
		}
		w.run(ctx, task)
	}
}

func (w *Worker) run(ctx context.Context, task *store.Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("taskqueue: task %s panicked: %v", task.ID, r)
		}
	}()

	res, err := w.runner.RunSync(ctx, task.Type, task.Payload)
	if err != nil {
		log.Printf("taskqueue: task %s sync run errored: %v", task.ID, err)
		w.retryOrFail(ctx, task, err.Error(), "remote_error")
		return
	}

	if res.OK {
		task.Status = store.StatusDone
		task.Result = res.Data
		task.CompletedAt = time.Now()
		if err := w.queue.backing.UpdateTask(ctx, task); err != nil {
			log.Printf("taskqueue: task %s completion write failed: %v", task.ID, err)
		}
		return
	}

	w.retryOrFail(ctx, task, res.Error, string(res.ErrorCode))
}

func (w *Worker) retryOrFail(ctx context.Context, task *store.Task, errMsg, errCode string) {
	task.Attempts++
	if task.Attempts < task.MaxAttempts {
		task.Status = store.StatusQueued
		task.StartedAt = time.Time{}
		task.Error = errMsg
		task.ErrorCode = errCode
		if err := w.queue.backing.UpdateTask(ctx, task); err != nil {
			log.Printf("taskqueue: task %s requeue write failed: %v", task.ID, err)
		}
		observability.TaskRetries.Inc()
		w.queue.signal()
		w.queue.publishDepth(ctx)
		return
	}

	task.Status = store.StatusFailed
	task.Error = errMsg
	task.ErrorCode = errCode
	task.CompletedAt = time.Now()
	if err := w.queue.backing.UpdateTask(ctx, task); err != nil {
		log.Printf("taskqueue: task %s failure write failed: %v", task.ID, err)
	}
}
