// Package slotpool maintains the in-memory Slot Registry: a periodically
// refreshed, immutable snapshot of enabled execution slots, plus the
// write-back path that persists the mutable counters a dispatch updates.
package slotpool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chainsignal/core/clock"
	"github.com/chainsignal/core/observability"
	"github.com/chainsignal/core/store"
)

const (
	// defaultSyncInterval is how often the registry refreshes its
	// snapshot from the durable store in the background.
	defaultSyncInterval = 10 * time.Second

	// staleTolerance bounds how old a snapshot may be before a reader
	// forces a synchronous resync instead of serving it as-is.
	staleTolerance = 30 * time.Second
)

// Registry holds the current, consistent view of all enabled slots. It
// never mutates a snapshot in place: every sync either replaces it
// wholesale or leaves it untouched on failure, so callers holding a
// reference from Snapshot never observe a half-written slot.
type Registry struct {
	backing store.Store
	clk     clock.Clock

	syncInterval time.Duration

	mu       sync.RWMutex
	slots    map[string]*store.Slot
	lastSync time.Time
	lastErr  error

	// onResync fires after every successful resync, once the new
	// snapshot is live. Wired by the caller that constructs both the
	// Registry and the Dispatcher, so a slot's adapter cache never
	// outlives the snapshot that sourced its Kind.
	onResync func()
}

// NewRegistry constructs a Registry. Call Start to begin the background
// refresh loop; Snapshot works immediately (forcing a synchronous sync
// on first use).
func NewRegistry(backing store.Store, clk clock.Clock) *Registry {
	return &Registry{
		backing:      backing,
		clk:          clk,
		syncInterval: defaultSyncInterval,
		slots:        make(map[string]*store.Slot),
	}
}

// SetOnResync registers a callback invoked after every successful
// resync. Typically wired to Dispatcher.InvalidateCache.
func (r *Registry) SetOnResync(f func()) {
	r.mu.Lock()
	r.onResync = f
	r.mu.Unlock()
}

// Start runs the background refresh loop until ctx is cancelled.
func (r *Registry) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Registry) loop(ctx context.Context) {
	ticker := time.NewTicker(r.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.resync(ctx); err != nil {
				log.Printf("slotpool: background resync failed, serving stale snapshot: %v", err)
			}
		}
	}
}

// resync lists enabled slots from the backing store and, only on
// success, replaces the snapshot. A failure leaves the previous
// snapshot exactly as it was.
func (r *Registry) resync(ctx context.Context) error {
	fresh, err := r.backing.ListEnabledSlots(ctx)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		return err
	}

	next := make(map[string]*store.Slot, len(fresh))
	for _, s := range fresh {
		next[s.ID] = s
		observability.SlotCapacity.WithLabelValues(s.ID).Set(float64(s.LimitPerHour))
		observability.SlotUsedInWindow.WithLabelValues(s.ID).Set(float64(s.UsedInWindow))
		observability.SlotHealth.WithLabelValues(s.ID).Set(observability.HealthToValue(string(s.Health)))
	}

	r.mu.Lock()
	r.slots = next
	r.lastSync = r.clk.Now()
	r.lastErr = nil
	onResync := r.onResync
	r.mu.Unlock()

	if onResync != nil {
		onResync()
	}
	return nil
}

// Snapshot returns a defensive copy of all currently enabled slots. If
// the held snapshot is older than staleTolerance, it forces a
// synchronous resync first so callers never select against data more
// than staleTolerance out of date (barring backing-store failures).
func (r *Registry) Snapshot(ctx context.Context) []*store.Slot {
	r.mu.RLock()
	age := r.clk.Now().Sub(r.lastSync)
	needsResync := r.lastSync.IsZero() || age > staleTolerance
	r.mu.RUnlock()

	if needsResync {
		if err := r.resync(ctx); err != nil {
			log.Printf("slotpool: forced resync failed, serving stale snapshot (age=%s): %v", age, err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*store.Slot, 0, len(r.slots))
	for _, s := range r.slots {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

// Get returns a single slot by id from the current snapshot, or nil if
// not present/enabled.
func (r *Registry) Get(id string) *store.Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// WriteBack persists the four mutable fields for a slot and updates the
// in-memory snapshot entry immediately, so the next selection within
// the same process sees the new counters without waiting on the
// background sync interval.
func (r *Registry) WriteBack(ctx context.Context, id string, usedInWindow int, windowStart, cooldownUntil time.Time, health store.Health) error {
	if err := r.backing.WriteBackSlot(ctx, id, usedInWindow, windowStart, cooldownUntil, health); err != nil {
		return fmt.Errorf("slotpool: write-back slot %s: %w", id, err)
	}

	r.mu.Lock()
	if s, ok := r.slots[id]; ok {
		cp := *s
		cp.UsedInWindow = usedInWindow
		cp.WindowStart = windowStart
		cp.CooldownUntil = cooldownUntil
		cp.Health = health
		r.slots[id] = &cp
	}
	r.mu.Unlock()

	observability.SlotUsedInWindow.WithLabelValues(id).Set(float64(usedInWindow))
	observability.SlotHealth.WithLabelValues(id).Set(observability.HealthToValue(string(health)))
	return nil
}

// LastSyncError returns the error from the most recent failed resync,
// if any.
func (r *Registry) LastSyncError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}
