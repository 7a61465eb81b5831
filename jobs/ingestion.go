package jobs

import (
	"context"
	"fmt"

	"github.com/chainsignal/core/store"
	"github.com/chainsignal/core/taskqueue"
)

// ChainSource fetches recent transfers for one chain. Production
// wiring points this at a chain-specific indexer client; tests use a
// canned in-memory source.
type ChainSource interface {
	FetchTransfers(ctx context.Context, chain string) ([]Transfer, error)
}

// chainTransfersJob persists every transfer FetchTransfers returns for
// one chain. One job is registered per configured chain so a slow or
// failing chain never blocks the others' cadence.
func chainTransfersJob(chain string, source ChainSource, docs DocumentStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		transfers, err := source.FetchTransfers(ctx, chain)
		if err != nil {
			return fmt.Errorf("jobs: fetch transfers for %s: %w", chain, err)
		}
		for _, t := range transfers {
			if err := docs.UpsertTransfer(ctx, t); err != nil {
				return fmt.Errorf("jobs: upsert transfer %s: %w", t.Hash, err)
			}
		}
		return nil
	}
}

// socialMentionsJob enqueues a search task per configured query onto
// the parser execution core rather than fetching directly, so the
// ingestion cadence here stays decoupled from the parser's per-slot
// rate limit.
func socialMentionsJob(queries []string, queue *taskqueue.Queue) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, q := range queries {
			if _, err := queue.Enqueue(ctx, store.TaskSearch, map[string]string{"query": q}, "", store.PriorityNormal, 3); err != nil {
				return fmt.Errorf("jobs: enqueue mention search for %q: %w", q, err)
			}
		}
		return nil
	}
}

// accountsRefreshJob enqueues one task of taskType per enabled
// account's label (used as the username the parser dispatches
// against), covering both account_tweets_refresh and
// followers_refresh.
func accountsRefreshJob(backing store.Store, queue *taskqueue.Queue, taskType store.TaskType) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		accounts, err := backing.ListEnabledAccounts(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list enabled accounts: %w", err)
		}
		for _, a := range accounts {
			payload := map[string]string{"username": a.Label}
			if _, err := queue.Enqueue(ctx, taskType, payload, a.ID, store.PriorityLow, 3); err != nil {
				return fmt.Errorf("jobs: enqueue %s for account %s: %w", taskType, a.ID, err)
			}
		}
		return nil
	}
}
