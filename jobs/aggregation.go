package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/chainsignal/core/clock"
)

// windowDuration resolves a window name to the lookback it covers.
// Unknown names fall back to 24h rather than erroring, since an
// operator-supplied config typo shouldn't take down a whole job.
func windowDuration(window string) time.Duration {
	switch window {
	case "24h":
		return 24 * time.Hour
	case "7d":
		return 7 * 24 * time.Hour
	case "30d":
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// aggregationJob computes one (window, metric) Signal per subject seen
// in the lookback window and upserts it. "Subject" here is a
// transfer counterparty or social author id; metrics over transfers
// group by address, metrics over social activity group by author.
func aggregationJob(window, metric string, clk clock.Clock, docs DocumentStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		since := clk.Now().Add(-windowDuration(window))
		now := clk.Now()

		switch metric {
		case "transfer_volume", "transfer_count":
			return aggregateTransfers(ctx, window, metric, since, now, docs)
		case "social_mentions", "social_engagement":
			return aggregatePosts(ctx, window, metric, since, now, docs)
		default:
			return fmt.Errorf("jobs: unknown aggregation metric %q", metric)
		}
	}
}

func aggregateTransfers(ctx context.Context, window, metric string, since, now time.Time, docs DocumentStore) error {
	totals := make(map[string]float64)
	for _, chain := range []string{"eth", "bsc", "polygon", "arbitrum"} {
		transfers, err := docs.ListTransfers(ctx, chain, since)
		if err != nil {
			return fmt.Errorf("jobs: list transfers for %s: %w", chain, err)
		}
		for _, t := range transfers {
			if metric == "transfer_count" {
				totals[t.From]++
				totals[t.To]++
			} else {
				totals[t.From] += t.Amount
				totals[t.To] += t.Amount
			}
		}
	}
	for subject, value := range totals {
		s := Signal{SubjectID: subject, Kind: metric, Window: window, Value: value, ComputedAt: now}
		if err := docs.UpsertSignal(ctx, s); err != nil {
			return fmt.Errorf("jobs: upsert signal for %s: %w", subject, err)
		}
	}
	return nil
}

func aggregatePosts(ctx context.Context, window, metric string, since, now time.Time, docs DocumentStore) error {
	posts, err := docs.ListSocialPosts(ctx, since)
	if err != nil {
		return fmt.Errorf("jobs: list social posts: %w", err)
	}
	totals := make(map[string]float64)
	for _, p := range posts {
		if metric == "social_mentions" {
			totals[p.AuthorID]++
		} else {
			totals[p.AuthorID] += p.EngagementScore
		}
	}
	for subject, value := range totals {
		s := Signal{SubjectID: subject, Kind: metric, Window: window, Value: value, ComputedAt: now}
		if err := docs.UpsertSignal(ctx, s); err != nil {
			return fmt.Errorf("jobs: upsert signal for %s: %w", subject, err)
		}
	}
	return nil
}

// hourlyRollupJob recomputes the tightest (24h) window for every
// metric on a fast cadence, so dashboards relying on the short window
// never lag behind the slower 7d/30d jobs by more than an hour.
func hourlyRollupJob(clk clock.Clock, docs DocumentStore) func(ctx context.Context) error {
	metrics := []string{"transfer_volume", "transfer_count", "social_mentions", "social_engagement"}
	return func(ctx context.Context) error {
		for _, metric := range metrics {
			if err := aggregationJob("24h", metric, clk, docs)(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}
