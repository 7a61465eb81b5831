// Package selector implements the pure slot-selection policy: given a
// registry snapshot and the current time, pick the best eligible slot
// or explain why none qualify. It performs no I/O.
package selector

import (
	"fmt"
	"sort"
	"time"

	"github.com/chainsignal/core/store"
)

// NoSlotReason aggregates why selection failed, broken down by the
// disqualifying condition so callers can surface a useful message.
type NoSlotReason struct {
	Total         int
	Enabled       int
	RateLimited   int
	InCooldown    int
	ErroredHealth int
}

// Error implements the error interface so NoSlotReason can be returned
// directly as the cause of a no_available_slot failure.
func (r NoSlotReason) Error() string {
	return fmt.Sprintf(
		"no available slot: total=%d enabled=%d rateLimited=%d inCooldown=%d erroredHealth=%d",
		r.Total, r.Enabled, r.RateLimited, r.InCooldown, r.ErroredHealth,
	)
}

// ApplyHourlyReset resets usedInWindow and advances windowStart for any
// slot whose hourly bucket has elapsed. It mutates the slots in place
// and must run before eligibility filtering, per the selection
// contract. The caller is responsible for writing back any slot this
// touches.
func ApplyHourlyReset(now time.Time, slots []*store.Slot) []*store.Slot {
	touched := make([]*store.Slot, 0)
	for _, s := range slots {
		if now.Sub(s.WindowStart) >= time.Hour {
			s.UsedInWindow = 0
			s.WindowStart = now
			touched = append(touched, s)
		}
	}
	return touched
}

func isEligible(s *store.Slot, now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.HasCooldown() && s.CooldownUntil.After(now) {
		return false
	}
	if s.UsedInWindow >= s.LimitPerHour {
		return false
	}
	if s.Health == store.HealthError {
		return false
	}
	return true
}

// Select applies the eligibility/ranking policy to the given snapshot,
// returning the chosen slot or a NoSlotReason. Select does not apply
// the hourly reset itself and does not mutate the registry; the caller
// runs ApplyHourlyReset against the same snapshot first (the Executor
// does) and writes back any slot it touches.
func Select(now time.Time, slots []*store.Slot) (*store.Slot, error) {
	reason := NoSlotReason{Total: len(slots)}

	eligible := make([]*store.Slot, 0, len(slots))
	for _, s := range slots {
		if !s.Enabled {
			continue
		}
		reason.Enabled++

		if s.HasCooldown() && s.CooldownUntil.After(now) {
			reason.InCooldown++
			continue
		}
		if s.UsedInWindow >= s.LimitPerHour {
			reason.RateLimited++
			continue
		}
		if s.Health == store.HealthError {
			reason.ErroredHealth++
			continue
		}
		eligible = append(eligible, s)
	}

	if len(eligible) == 0 {
		return nil, reason
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]

		remA := a.LimitPerHour - a.UsedInWindow
		remB := b.LimitPerHour - b.UsedInWindow
		if remA != remB {
			return remA > remB
		}
		if a.UsedInWindow != b.UsedInWindow {
			return a.UsedInWindow < b.UsedInWindow
		}
		return a.ID < b.ID
	})

	best := pickHealthiest(eligible)
	return best, nil
}

// pickHealthiest returns the first candidate after sorting, unless a
// later candidate tied on rank but has health = ok while the leader is
// degraded, in which case the ok candidate wins. Only the top-ranked
// tier (equal effective rank to the current best) is considered.
func pickHealthiest(ranked []*store.Slot) *store.Slot {
	best := ranked[0]
	if best.Health != store.HealthDegraded {
		return best
	}

	for _, candidate := range ranked[1:] {
		if !sameRank(best, candidate) {
			break
		}
		if candidate.Health == store.HealthOK {
			return candidate
		}
	}
	return best
}

func sameRank(a, b *store.Slot) bool {
	remA := a.LimitPerHour - a.UsedInWindow
	remB := b.LimitPerHour - b.UsedInWindow
	return remA == remB && a.UsedInWindow == b.UsedInWindow
}
