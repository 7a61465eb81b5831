package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/chainsignal/core/store"
)

// snapshotSignalsJob logs the current reputation score count per tier
// as a coarse point-in-time checkpoint; full signal history already lives
// in the DocumentStore, so this job's job is visibility, not backup.
func snapshotSignalsJob(docs DocumentStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, tier := range []string{"whale", "influencer", "bot", "standard"} {
			n, err := docs.CountReputationScores(ctx, tier)
			if err != nil {
				return fmt.Errorf("jobs: count reputation scores for %s: %w", tier, err)
			}
			log.Printf("jobs: snapshot tier=%s reputation_count=%d", tier, n)
		}
		return nil
	}
}

// snapshotSlotsJob logs aggregate slot capacity from the store.
// cooling_down counts every slot with a cooldown timestamp set, expired
// or not, whereas executor.GetCapacityInfo counts only active cooldowns.
func snapshotSlotsJob(backing store.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		slots, err := backing.ListEnabledSlots(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list enabled slots: %w", err)
		}
		var total, used, cooling int
		for _, s := range slots {
			total += s.LimitPerHour
			used += s.UsedInWindow
			if s.HasCooldown() {
				cooling++
			}
		}
		log.Printf("jobs: snapshot slots enabled=%d total_capacity=%d used=%d cooling_down=%d", len(slots), total, used, cooling)
		return nil
	}
}

// snapshotTasksBacklogJob logs the size of the queued backlog so an
// operator watching logs can spot a stuck worker before alerting
// infrastructure catches it.
func snapshotTasksBacklogJob(backing store.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		queued, err := backing.ListQueuedTasks(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list queued tasks: %w", err)
		}
		log.Printf("jobs: snapshot tasks backlog=%d", len(queued))
		return nil
	}
}

// snapshotAccountsJob logs the enabled/disabled account split.
func snapshotAccountsJob(backing store.Store) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		all, err := backing.ListAllAccounts(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list all accounts: %w", err)
		}
		enabled := 0
		for _, a := range all {
			if a.Enabled {
				enabled++
			}
		}
		log.Printf("jobs: snapshot accounts total=%d enabled=%d", len(all), enabled)
		return nil
	}
}
