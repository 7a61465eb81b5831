package selector

import (
	"testing"
	"time"

	"github.com/chainsignal/core/store"
)

func TestSelectPrefersLargestRemainingQuota(t *testing.T) {
	now := time.Now()
	slots := []*store.Slot{
		{ID: "a", Enabled: true, LimitPerHour: 100, UsedInWindow: 90, Health: store.HealthOK},
		{ID: "b", Enabled: true, LimitPerHour: 100, UsedInWindow: 10, Health: store.HealthOK},
	}

	chosen, err := Select(now, slots)
	if err != nil {
		t.Fatalf("expected a slot, got error: %v", err)
	}
	if chosen.ID != "b" {
		t.Fatalf("expected slot b (more remaining quota), got %s", chosen.ID)
	}
}

func TestSelectTieBreaksByUsedInWindowThenID(t *testing.T) {
	now := time.Now()
	slots := []*store.Slot{
		{ID: "z", Enabled: true, LimitPerHour: 100, UsedInWindow: 10, Health: store.HealthOK},
		{ID: "a", Enabled: true, LimitPerHour: 100, UsedInWindow: 10, Health: store.HealthOK},
	}

	chosen, err := Select(now, slots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen.ID != "a" {
		t.Fatalf("expected lexicographically first id 'a' on a full tie, got %s", chosen.ID)
	}
}

func TestSelectPrefersOkOverDegradedOnTie(t *testing.T) {
	now := time.Now()
	slots := []*store.Slot{
		{ID: "a", Enabled: true, LimitPerHour: 100, UsedInWindow: 10, Health: store.HealthDegraded},
		{ID: "b", Enabled: true, LimitPerHour: 100, UsedInWindow: 10, Health: store.HealthOK},
	}

	chosen, err := Select(now, slots)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen.ID != "b" {
		t.Fatalf("expected ok-health slot b to win the tie over degraded slot a, got %s", chosen.ID)
	}
}

func TestSelectExcludesIneligibleSlots(t *testing.T) {
	now := time.Now()
	slots := []*store.Slot{
		{ID: "disabled", Enabled: false},
		{ID: "cooldown", Enabled: true, LimitPerHour: 10, CooldownUntil: now.Add(time.Minute)},
		{ID: "ratelimited", Enabled: true, LimitPerHour: 10, UsedInWindow: 10},
		{ID: "errored", Enabled: true, LimitPerHour: 10, Health: store.HealthError},
	}

	_, err := Select(now, slots)
	if err == nil {
		t.Fatalf("expected no_available_slot error, got a slot")
	}

	reason, ok := err.(NoSlotReason)
	if !ok {
		t.Fatalf("expected NoSlotReason, got %T", err)
	}
	if reason.Total != 4 || reason.Enabled != 3 || reason.InCooldown != 1 || reason.RateLimited != 1 || reason.ErroredHealth != 1 {
		t.Fatalf("unexpected reason breakdown: %+v", reason)
	}
}

func TestSelectExpiredCooldownIsEligible(t *testing.T) {
	now := time.Now()
	slots := []*store.Slot{
		{ID: "a", Enabled: true, LimitPerHour: 10, CooldownUntil: now.Add(-time.Minute), Health: store.HealthOK},
	}

	chosen, err := Select(now, slots)
	if err != nil {
		t.Fatalf("expected expired cooldown to be eligible, got error: %v", err)
	}
	if chosen.ID != "a" {
		t.Fatalf("expected slot a, got %s", chosen.ID)
	}
}

func TestApplyHourlyResetAdvancesWindow(t *testing.T) {
	now := time.Now()
	slots := []*store.Slot{
		{ID: "a", WindowStart: now.Add(-2 * time.Hour), UsedInWindow: 42},
		{ID: "b", WindowStart: now.Add(-time.Minute), UsedInWindow: 5},
	}

	touched := ApplyHourlyReset(now, slots)
	if len(touched) != 1 || touched[0].ID != "a" {
		t.Fatalf("expected only slot a to be reset, got %+v", touched)
	}
	if slots[0].UsedInWindow != 0 {
		t.Fatalf("expected usedInWindow reset to 0, got %d", slots[0].UsedInWindow)
	}
	if !slots[0].WindowStart.Equal(now) {
		t.Fatalf("expected windowStart advanced to now")
	}
	if slots[1].UsedInWindow != 5 {
		t.Fatalf("slot b should be untouched")
	}
}

func TestSelectNoSlotReasonIsAnError(t *testing.T) {
	_, err := Select(time.Now(), nil)
	if err == nil {
		t.Fatalf("expected error for empty slot set")
	}
	if _, ok := err.(NoSlotReason); !ok {
		t.Fatalf("expected NoSlotReason type, got %T", err)
	}
}
