package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get-style lookups that find nothing. It
// mirrors the teacher's convention of returning (nil, nil) for the
// in-memory/Redis backends but gives callers a sentinel to check for
// explicitly where that convention is inconvenient (e.g. CAS-style
// updates against Postgres).
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract shared by the Slot Registry,
// Executor, and durable task Queue. Postgres is the durable backend;
// Redis and an in-memory map are provided for fast paths and tests.
type Store interface {
	// Slots
	ListEnabledSlots(ctx context.Context) ([]*Slot, error)
	GetSlot(ctx context.Context, id string) (*Slot, error)
	UpsertSlot(ctx context.Context, s *Slot) error
	// WriteBackSlot persists only the four mutable counters/health
	// fields in one update, per spec.md §9 "Slot mutation via DB
	// write-back".
	WriteBackSlot(ctx context.Context, id string, usedInWindow int, windowStart time.Time, cooldownUntil time.Time, health Health) error

	// Accounts
	ListEnabledAccounts(ctx context.Context) ([]*Account, error)
	GetAccount(ctx context.Context, id string) (*Account, error)
	UpsertAccount(ctx context.Context, a *Account) error
	// ListAllAccounts returns every account regardless of enabled state,
	// for housekeeping jobs that sweep disabled accounts.
	ListAllAccounts(ctx context.Context) ([]*Account, error)
	DeleteAccount(ctx context.Context, id string) error

	// Tasks
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	// ListQueuedTasks returns candidate tasks for the worker to try to
	// lease, ordered by (priority desc, createdAt asc).
	ListQueuedTasks(ctx context.Context) ([]*Task, error)
	// CompareAndSetStatus atomically transitions a task's status iff its
	// current status equals from. This is the CAS primitive the durable
	// queue uses for exactly-once dequeue under concurrent workers.
	CompareAndSetStatus(ctx context.Context, id string, from, to TaskStatus) (bool, error)
	// ListAllTasks returns every task regardless of status, for
	// housekeeping jobs that purge completed work or requeue tasks stuck
	// in running past a staleness threshold.
	ListAllTasks(ctx context.Context) ([]*Task, error)
	DeleteTask(ctx context.Context, id string) error
}
