// Package taskqueue implements the durable queue and its Worker: the
// async path of the execution core. Ordering and atomic leasing are
// delegated to the store; this package owns only the in-memory
// wake-up signal and the lease/retry state machine.
package taskqueue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/chainsignal/core/observability"
	"github.com/chainsignal/core/store"
)

// Queue is a thin, store-backed FIFO-by-priority view used by the
// Worker. It adds no state of its own beyond a wake-up channel so a
// freshly enqueued task doesn't wait out the poll fallback.
type Queue struct {
	backing store.Store
	wake    chan struct{}
}

func NewQueue(backing store.Store) *Queue {
	return &Queue{backing: backing, wake: make(chan struct{}, 1)}
}

// Enqueue creates a queued task record and nudges the Worker.
func (q *Queue) Enqueue(ctx context.Context, taskType store.TaskType, payload map[string]string, accountID string, priority store.Priority, maxAttempts int) (string, error) {
	task := &store.Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Status:      store.StatusQueued,
		AccountID:   accountID,
	}
	if err := q.backing.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("taskqueue: enqueue: %w", err)
	}
	q.signal()
	q.publishDepth(ctx)
	return task.ID, nil
}

// priorityLabel names a priority for the queue depth gauge; unrecognized
// values fall back to their raw integer so a future priority tier still
// shows up rather than vanishing into "normal".
func priorityLabel(p store.Priority) string {
	switch p {
	case store.PriorityHigh:
		return "high"
	case store.PriorityNormal:
		return "normal"
	case store.PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("%d", int(p))
	}
}

// publishDepth recomputes the queue depth gauge per priority from the
// store's own queued-task list, so it reflects reality across every
// process sharing this store rather than drifting via local increments.
func (q *Queue) publishDepth(ctx context.Context) {
	tasks, err := q.backing.ListQueuedTasks(ctx)
	if err != nil {
		return
	}
	counts := make(map[store.Priority]int)
	for _, t := range tasks {
		counts[t.Priority]++
	}
	for _, p := range []store.Priority{store.PriorityHigh, store.PriorityNormal, store.PriorityLow} {
		observability.TaskQueueDepth.WithLabelValues(priorityLabel(p)).Set(float64(counts[p]))
	}
}

// GetTaskStatus answers getTaskStatus(): the current record, and the
// result only when the task has reached a terminal done state.
func (q *Queue) GetTaskStatus(ctx context.Context, taskID string) (task *store.Task, found bool, err error) {
	t, err := q.backing.GetTask(ctx, taskID)
	if err != nil {
		return nil, false, err
	}
	if t == nil {
		return nil, false, nil
	}
	return t, true, nil
}

// lease attempts to atomically transition exactly one queued task to
// running, returning nil if no candidate is currently leasable.
func (q *Queue) lease(ctx context.Context) (*store.Task, error) {
	candidates, err := q.backing.ListQueuedTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: listing queued tasks: %w", err)
	}

	for _, t := range candidates {
		ok, err := q.backing.CompareAndSetStatus(ctx, t.ID, store.StatusQueued, store.StatusRunning)
		if err != nil {
			return nil, fmt.Errorf("taskqueue: leasing task %s: %w", t.ID, err)
		}
		if ok {
			leased, err := q.backing.GetTask(ctx, t.ID)
			if err != nil {
				return nil, err
			}
			q.publishDepth(ctx)
			return leased, nil
		}
		// Lost the race to another worker; try the next candidate.
	}
	return nil, nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
