package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainsignal/core/clock"
	"github.com/chainsignal/core/dispatch"
	"github.com/chainsignal/core/observability"
	"github.com/chainsignal/core/selector"
	"github.com/chainsignal/core/slotpool"
	"github.com/chainsignal/core/store"
)

const (
	minRateLimitCooldown  = 5 * time.Minute
	baseTimeoutCooldown   = 60 * time.Second
	maxTimeoutCooldown    = 15 * time.Minute
	remoteErrorCooldown   = 30 * time.Second
	proxyMissingCooldown  = 5 * time.Minute
)

// Executor ties the Slot Registry, Selector, and Dispatcher together
// into the sync and async execution paths described by the execution
// core. A single Executor instance owns the in-memory per-slot
// serialization mutex and the consecutive-timeout counters used by the
// cooldown policy.
type Executor struct {
	backing    store.Store
	registry   *slotpool.Registry
	dispatcher *dispatch.Dispatcher
	clk        clock.Clock

	slotMu sync.Mutex
	locks  map[string]*sync.Mutex

	timeoutMu   sync.Mutex
	timeouts    map[string]int
}

// New constructs an Executor. The queue/worker that backs the async
// path is wired in separately by whatever assembles the process (see
// taskqueue.NewWorker), since Executor only needs to satisfy
// taskqueue.SyncRunner for that wiring to work.
func New(backing store.Store, registry *slotpool.Registry, dispatcher *dispatch.Dispatcher, clk clock.Clock) *Executor {
	return &Executor{
		backing:    backing,
		registry:   registry,
		dispatcher: dispatcher,
		clk:        clk,
		locks:      make(map[string]*sync.Mutex),
		timeouts:   make(map[string]int),
	}
}

func (e *Executor) lockFor(slotID string) *sync.Mutex {
	e.slotMu.Lock()
	defer e.slotMu.Unlock()
	m, ok := e.locks[slotID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[slotID] = m
	}
	return m
}

// RunSync implements taskqueue.SyncRunner: it is the full sync
// execution path, reused unchanged by the Worker for leased tasks.
func (e *Executor) RunSync(ctx context.Context, taskType store.TaskType, payload map[string]string) (*Result, error) {
	accounts, err := e.backing.ListEnabledAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("executor: listing accounts: %w", err)
	}
	if len(accounts) == 0 {
		return &Result{OK: false, Error: "no enabled account configured", ErrorCode: ErrNoActiveAccount}, nil
	}
	account := accounts[0]

	snapshot := e.registry.Snapshot(ctx)
	now := e.clk.Now()

	reset := selector.ApplyHourlyReset(now, snapshot)
	for _, s := range reset {
		if err := e.registry.WriteBack(ctx, s.ID, s.UsedInWindow, s.WindowStart, s.CooldownUntil, s.Health); err != nil {
			return nil, fmt.Errorf("executor: writing back hourly reset for slot %s: %w", s.ID, err)
		}
	}

	slot, err := selector.Select(now, snapshot)
	if err != nil {
		reason := err.(selector.NoSlotReason)
		observability.NoAvailableSlotTotal.WithLabelValues(dominantNoSlotReason(reason)).Inc()
		return &Result{
			OK:        false,
			Error:     fmt.Sprintf("no slot available: %s", reason.Error()),
			ErrorCode: ErrNoAvailableSlot,
		}, nil
	}

	task := &store.Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Payload:    payload,
		AccountID:  account.ID,
		InstanceID: slot.ID,
	}

	lock := e.lockFor(slot.ID)
	lock.Lock()
	defer lock.Unlock()

	res := e.dispatcher.Dispatch(ctx, slot, task)

	if res.OK {
		e.clearConsecutiveTimeouts(slot.ID)
		slot.UsedInWindow++
		if err := e.registry.WriteBack(ctx, slot.ID, slot.UsedInWindow, slot.WindowStart, slot.CooldownUntil, slot.Health); err != nil {
			return nil, fmt.Errorf("executor: writing back successful dispatch for slot %s: %w", slot.ID, err)
		}
		return &Result{
			OK:   true,
			Data: res.Data,
			Meta: Meta{AccountID: account.ID, InstanceID: slot.ID, TaskID: task.ID, DurationMs: res.Meta.DurationMs},
		}, nil
	}

	cooldownUntil, health := e.cooldownFor(dispatch.ErrorCode(res.ErrorCode), slot, now)
	if !cooldownUntil.IsZero() {
		slot.CooldownUntil = cooldownUntil
	}
	if health != "" {
		slot.Health = health
	}
	if err := e.registry.WriteBack(ctx, slot.ID, slot.UsedInWindow, slot.WindowStart, slot.CooldownUntil, slot.Health); err != nil {
		return nil, fmt.Errorf("executor: writing back cooldown for slot %s: %w", slot.ID, err)
	}

	return &Result{
		OK:        false,
		Error:     res.Error,
		ErrorCode: ErrorCode(res.ErrorCode),
		Meta:      Meta{AccountID: account.ID, InstanceID: slot.ID, TaskID: task.ID},
	}, nil
}

// cooldownFor applies the cooldown policy table for a dispatch failure,
// returning the new cooldownUntil (zero value if none applies) and an
// optional health override.
func (e *Executor) cooldownFor(code dispatch.ErrorCode, slot *store.Slot, now time.Time) (time.Time, store.Health) {
	switch code {
	case dispatch.ErrSlotRateLimited:
		remaining := slot.WindowStart.Add(time.Hour).Sub(now)
		if remaining < minRateLimitCooldown {
			remaining = minRateLimitCooldown
		}
		return now.Add(remaining), ""

	case dispatch.ErrRemoteTimeout:
		n := e.bumpConsecutiveTimeouts(slot.ID)
		dur := baseTimeoutCooldown * time.Duration(1<<uint(n-1))
		if dur > maxTimeoutCooldown {
			dur = maxTimeoutCooldown
		}
		return now.Add(dur), ""

	case dispatch.ErrRemoteError:
		return now.Add(remoteErrorCooldown), ""

	case dispatch.ErrProxyNotImplemented:
		return now.Add(proxyMissingCooldown), store.HealthDegraded

	default:
		return time.Time{}, ""
	}
}

func (e *Executor) bumpConsecutiveTimeouts(slotID string) int {
	e.timeoutMu.Lock()
	defer e.timeoutMu.Unlock()
	e.timeouts[slotID]++
	return e.timeouts[slotID]
}

func (e *Executor) clearConsecutiveTimeouts(slotID string) {
	e.timeoutMu.Lock()
	defer e.timeoutMu.Unlock()
	delete(e.timeouts, slotID)
}

// ResetCounters is the administrative op: force every slot's
// usedInWindow to 0, advance windowStart to now, and clear cooldowns.
func (e *Executor) ResetCounters(ctx context.Context) error {
	now := e.clk.Now()
	snapshot := e.registry.Snapshot(ctx)
	for _, s := range snapshot {
		if err := e.registry.WriteBack(ctx, s.ID, 0, now, time.Time{}, s.Health); err != nil {
			return fmt.Errorf("executor: resetting counters for slot %s: %w", s.ID, err)
		}
	}
	return nil
}

// GetCapacityInfo summarizes current slot capacity for diagnostics.
func (e *Executor) GetCapacityInfo(ctx context.Context) CapacityInfo {
	now := e.clk.Now()
	snapshot := e.registry.Snapshot(ctx)

	var info CapacityInfo
	for _, s := range snapshot {
		info.TotalCapacity += s.LimitPerHour
		info.UsedThisHour += s.UsedInWindow
		if s.Enabled {
			info.ActiveInstances++
		}
		if s.HasCooldown() && s.CooldownUntil.After(now) {
			info.InCooldown++
		}
		if s.UsedInWindow >= s.LimitPerHour {
			info.RateLimited++
		}
	}
	info.AvailableThisHour = info.TotalCapacity - info.UsedThisHour
	if info.AvailableThisHour < 0 {
		info.AvailableThisHour = 0
	}
	return info
}

// GetStatus answers getStatus() for diagnostics and the HTTP surface.
// workerRunning is supplied by the caller since the Worker lives in a
// separate package to avoid an import cycle.
func (e *Executor) GetStatus(ctx context.Context, workerRunning bool, runtime string) (Status, error) {
	accounts, err := e.backing.ListEnabledAccounts(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("executor: listing accounts: %w", err)
	}
	snapshot := e.registry.Snapshot(ctx)

	return Status{
		WorkerRunning:  workerRunning,
		Capacity:       e.GetCapacityInfo(ctx),
		AccountsCount:  len(accounts),
		InstancesCount: len(snapshot),
		Runtime:        runtime,
	}, nil
}

// dominantNoSlotReason picks one label for a NoSlotReason so the
// NoAvailableSlotTotal counter stays low-cardinality instead of
// exploding into every combination of the underlying counts. Checked
// in order from most to least fundamental: no slots enabled at all
// beats every slot being rate-limited, which beats cooldown, which
// beats bad health.
func dominantNoSlotReason(r selector.NoSlotReason) string {
	switch {
	case r.Enabled == 0:
		return "no_enabled_slots"
	case r.RateLimited >= r.Enabled:
		return "rate_limited"
	case r.InCooldown >= r.Enabled:
		return "in_cooldown"
	case r.ErroredHealth >= r.Enabled:
		return "errored_health"
	default:
		return "mixed"
	}
}
