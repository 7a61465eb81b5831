package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chainsignal/core/clock"
	"github.com/chainsignal/core/store"
)

const (
	completedTaskRetention = 24 * time.Hour
	stuckTaskThreshold     = 10 * time.Minute
)

// housekeepingPurgeCompletedJob deletes done/failed tasks older than
// the retention window; completed task history is not otherwise
// needed once a caller has had a reasonable window to poll its result.
func housekeepingPurgeCompletedJob(clk clock.Clock, backing store.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		tasks, err := backing.ListAllTasks(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list all tasks: %w", err)
		}
		cutoff := clk.Now().Add(-completedTaskRetention)
		purged := 0
		for _, t := range tasks {
			if (t.Status == store.StatusDone || t.Status == store.StatusFailed) && t.CompletedAt.Before(cutoff) {
				if err := backing.DeleteTask(ctx, t.ID); err != nil {
					return fmt.Errorf("jobs: delete task %s: %w", t.ID, err)
				}
				purged++
			}
		}
		log.Printf("jobs: housekeeping purged=%d completed tasks", purged)
		return nil
	}
}

// housekeepingRequeueStuckJob finds tasks that have sat in running
// past stuckTaskThreshold — a worker almost certainly crashed or lost
// its process mid-dispatch — and CAS's them back to queued so a
// healthy worker can pick them up.
func housekeepingRequeueStuckJob(clk clock.Clock, backing store.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		tasks, err := backing.ListAllTasks(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list all tasks: %w", err)
		}
		cutoff := clk.Now().Add(-stuckTaskThreshold)
		requeued := 0
		for _, t := range tasks {
			if t.Status != store.StatusRunning || t.StartedAt.After(cutoff) {
				continue
			}
			ok, err := backing.CompareAndSetStatus(ctx, t.ID, store.StatusRunning, store.StatusQueued)
			if err != nil {
				return fmt.Errorf("jobs: requeue stuck task %s: %w", t.ID, err)
			}
			if ok {
				requeued++
			}
		}
		log.Printf("jobs: housekeeping requeued=%d stuck tasks", requeued)
		return nil
	}
}

// housekeepingSlotHealthProbeJob resets a slot's health back to OK
// once its cooldown has fully elapsed. Nothing else in the system
// clears an error health after a successful cooldown wait, since a
// normal dispatch success never touches health on its own — this job
// is what lets a previously erroring slot re-enter rotation.
func housekeepingSlotHealthProbeJob(clk clock.Clock, backing store.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		slots, err := backing.ListEnabledSlots(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list enabled slots: %w", err)
		}
		now := clk.Now()
		probed := 0
		for _, s := range slots {
			if s.Health == store.HealthOK {
				continue
			}
			if s.HasCooldown() && s.CooldownUntil.After(now) {
				continue
			}
			if err := backing.WriteBackSlot(ctx, s.ID, s.UsedInWindow, s.WindowStart, s.CooldownUntil, store.HealthOK); err != nil {
				return fmt.Errorf("jobs: probe slot %s: %w", s.ID, err)
			}
			probed++
		}
		log.Printf("jobs: housekeeping health-probed=%d slots back to ok", probed)
		return nil
	}
}

// housekeepingPruneDisabledAccountsJob deletes account records that
// have been disabled, freeing the set from accumulating dead
// credentials indefinitely.
func housekeepingPruneDisabledAccountsJob(backing store.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		all, err := backing.ListAllAccounts(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list all accounts: %w", err)
		}
		pruned := 0
		for _, a := range all {
			if a.Enabled {
				continue
			}
			if err := backing.DeleteAccount(ctx, a.ID); err != nil {
				return fmt.Errorf("jobs: prune account %s: %w", a.ID, err)
			}
			pruned++
		}
		log.Printf("jobs: housekeeping pruned=%d disabled accounts", pruned)
		return nil
	}
}
