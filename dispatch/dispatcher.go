package dispatch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chainsignal/core/observability"
	"github.com/chainsignal/core/store"
)

const defaultTimeout = 30 * time.Second

// Dispatcher sends one task to one slot's runtime and normalizes the
// response. It caches an adapter per (slot id, kind) so repeated
// dispatches to the same slot reuse the resolved runtime; the cache is invalidated
// whenever the Slot Registry resyncs, since a slot's kind or base URL
// may have changed underneath it.
type Dispatcher struct {
	httpClient    *http.Client
	timeout       time.Duration
	localParser   string
	sessionSource func() string

	mu    sync.Mutex
	cache map[string]adapter
}

// Option configures optional Dispatcher fields at construction.
type Option func(*Dispatcher)

// WithLocalParserBaseURL overrides the default local-parser endpoint.
func WithLocalParserBaseURL(base string) Option {
	return func(d *Dispatcher) { d.localParser = base }
}

// WithSessionSource injects the upstream system-scoped session lookup
// used by the local_parser adapter.
func WithSessionSource(f func() string) Option {
	return func(d *Dispatcher) { d.sessionSource = f }
}

// WithTimeout overrides the default 30s per-request deadline. Intended
// for tests; production callers should rely on the default.
func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.timeout = d
		disp.httpClient = &http.Client{Timeout: d}
	}
}

// NewDispatcher constructs a Dispatcher with the standard 30s deadline.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		httpClient: &http.Client{Timeout: defaultTimeout},
		timeout:    defaultTimeout,
		cache:      make(map[string]adapter),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InvalidateCache drops all cached adapters. Call this whenever the
// Slot Registry publishes a new snapshot.
func (d *Dispatcher) InvalidateCache() {
	d.mu.Lock()
	d.cache = make(map[string]adapter)
	d.mu.Unlock()
}

// cacheKey incorporates both the slot id and its current kind, so a
// slot whose Kind changes between registry resyncs (e.g.
// remote_worker -> proxy) misses the cache instead of keeping the
// stale adapter for its old kind.
func cacheKey(slot *store.Slot) string {
	return slot.ID + "|" + string(slot.Kind)
}

func (d *Dispatcher) adapterFor(slot *store.Slot) (adapter, ErrorCode) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := cacheKey(slot)
	if a, ok := d.cache[key]; ok {
		return a, ""
	}

	var a adapter
	switch slot.Kind {
	case store.KindRemoteWorker:
		a = remoteWorkerAdapter{}
	case store.KindLocalParser:
		a = localParserAdapter{baseURL: d.localParser, sessionSource: d.sessionSource}
	case store.KindProxy:
		a = proxyAdapter{}
	default:
		return nil, ErrUnknownKind
	}

	d.cache[key] = a
	return a, ""
}

// Dispatch sends task to slot's runtime adapter under a hard per-request
// deadline, returning the normalized Result. Dispatch never returns a Go
// error for a dispatch-level failure; failures are represented as
// Result{OK: false, ErrorCode: ...} so the Executor can apply its
// cooldown policy uniformly.
func (d *Dispatcher) Dispatch(ctx context.Context, slot *store.Slot, task *store.Task) *Result {
	a, unknown := d.adapterFor(slot)
	if unknown != "" {
		observability.TaskDispatchTotal.WithLabelValues(string(task.Type), string(unknown)).Inc()
		return &Result{OK: false, Error: "slot kind is unrecognized", ErrorCode: unknown}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.do(ctx, slot, task, d.httpClient)
	elapsed := time.Since(start)
	observability.TaskDispatchDuration.Observe(elapsed.Seconds())

	meta := Meta{
		AccountID:  task.AccountID,
		InstanceID: slot.ID,
		TaskID:     task.ID,
		DurationMs: elapsed.Milliseconds(),
	}

	if err != nil {
		code := classify(err)
		observability.TaskDispatchTotal.WithLabelValues(string(task.Type), string(code)).Inc()
		return &Result{OK: false, Error: err.Error(), ErrorCode: code, Meta: meta}
	}

	observability.TaskDispatchTotal.WithLabelValues(string(task.Type), "ok").Inc()
	data := normalize(raw, elapsed)
	return &Result{OK: true, Data: data, Meta: meta}
}

func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, errRateLimited):
		return ErrSlotRateLimited
	case errors.Is(err, errProxyTargetUnreachable):
		return ErrProxyNotImplemented
	case isTimeout(err):
		return ErrRemoteTimeout
	default:
		return ErrRemoteError
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
