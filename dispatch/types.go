// Package dispatch sends a task to a slot's runtime adapter and
// normalizes the response into a stable product shape.
package dispatch

// ErrorCode is the closed set of dispatch-level failures. Executor and
// Queue propagate these unchanged in ExecutionResult.ErrorCode.
type ErrorCode string

const (
	ErrSlotRateLimited     ErrorCode = "slot_rate_limited"
	ErrRemoteTimeout       ErrorCode = "remote_timeout"
	ErrRemoteError         ErrorCode = "remote_error"
	ErrProxyNotImplemented ErrorCode = "proxy_not_implemented"
	ErrUnknownKind         ErrorCode = "unknown_kind"
)

// Status is the normalized outcome of a dispatch attempt, distinct from
// ErrorCode: a dispatch can succeed at the transport level yet still
// report a partial or aborted fetch.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusAborted Status = "aborted"
)

// Meta carries identifiers and timing for a successful dispatch.
type Meta struct {
	AccountID  string
	InstanceID string
	TaskID     string
	DurationMs int64
}

// Result is the normalized value returned by Dispatch. On success, Data
// holds the normalized fields (fetched, riskScore, durationMs, aborted,
// status); on failure, Error and ErrorCode are populated.
type Result struct {
	OK        bool
	Data      map[string]interface{}
	Error     string
	ErrorCode ErrorCode
	Meta      Meta
}
