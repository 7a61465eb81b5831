// Package executor implements the Rate-Limited Parser Execution Core's
// synchronous and asynchronous dispatch paths: account/slot selection,
// the per-slot cooldown policy, and the administrative counter reset.
package executor

import "github.com/chainsignal/core/dispatch"

// ErrorCode extends dispatch.ErrorCode with the executor- and
// queue-level faults that occur before a dispatch is ever attempted.
type ErrorCode string

const (
	ErrNoActiveAccount     ErrorCode = "no_active_account"
	ErrNoAvailableSlot     ErrorCode = "no_available_slot"
	ErrTaskNotFound        ErrorCode = "task_not_found"
	ErrMaxAttemptsExceeded ErrorCode = "max_attempts_exceeded"

	ErrSlotRateLimited     ErrorCode = ErrorCode(dispatch.ErrSlotRateLimited)
	ErrRemoteTimeout       ErrorCode = ErrorCode(dispatch.ErrRemoteTimeout)
	ErrRemoteError         ErrorCode = ErrorCode(dispatch.ErrRemoteError)
	ErrProxyNotImplemented ErrorCode = ErrorCode(dispatch.ErrProxyNotImplemented)
	ErrUnknownKind         ErrorCode = ErrorCode(dispatch.ErrUnknownKind)
)

// Meta carries identifiers and timing for a successful execution.
type Meta struct {
	AccountID  string
	InstanceID string
	TaskID     string
	DurationMs int64
}

// Result is the value returned by the sync path and surfaced by task
// status lookups once a queued task completes.
type Result struct {
	OK        bool
	Data      map[string]interface{}
	Error     string
	ErrorCode ErrorCode
	Meta      Meta
}

// CapacityInfo answers getCapacityInfo().
type CapacityInfo struct {
	TotalCapacity    int
	UsedThisHour     int
	AvailableThisHour int
	ActiveInstances  int
	InCooldown       int
	RateLimited      int
}

// Status answers getStatus().
type Status struct {
	WorkerRunning  bool
	Capacity       CapacityInfo
	LastSync       string
	AccountsCount  int
	InstancesCount int
	Runtime        string
}
