package jobs

import (
	"context"
	"fmt"

	"github.com/chainsignal/core/clock"
	"github.com/chainsignal/core/observability"
)

const (
	whaleVolumeThreshold      = 100_000.0
	influencerEngagementFloor = 500.0
	botMentionFloor           = 50.0
	botEngagementRatioCeiling = 0.1
)

// classifyTier buckets a subject from its raw signals. Thresholds are
// an implementation decision, not a recovered fact: whale looks at
// transfer volume, influencer at social engagement, bot at a high
// mention count paired with thin engagement per mention (spray-and-post
// behavior); everyone else is standard.
func classifyTier(signals []Signal) string {
	var volume, mentions, engagement float64
	for _, s := range signals {
		switch s.Kind {
		case "transfer_volume":
			if s.Value > volume {
				volume = s.Value
			}
		case "social_mentions":
			if s.Value > mentions {
				mentions = s.Value
			}
		case "social_engagement":
			if s.Value > engagement {
				engagement = s.Value
			}
		}
	}

	if volume >= whaleVolumeThreshold {
		return "whale"
	}
	if mentions >= botMentionFloor && engagement/mentions < botEngagementRatioCeiling {
		return "bot"
	}
	if engagement >= influencerEngagementFloor {
		return "influencer"
	}
	return "standard"
}

// reputationRecomputeJob recomputes the score for every subject
// currently in tier, plus (for the standard tier only) any subject
// with signals but no score yet, so new subjects always land
// somewhere. A subject whose recomputed tier no longer matches is
// moved, and a matching subject under a different tier's job will
// naturally pick it up on its own next tick.
func reputationRecomputeJob(tier string, clk clock.Clock, docs DocumentStore, scores ScoreEngine, notify Notifier) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		existing, err := docs.ListReputationScores(ctx, tier)
		if err != nil {
			return fmt.Errorf("jobs: list reputation scores for %s: %w", tier, err)
		}
		subjectIDs := make(map[string]struct{}, len(existing))
		for _, r := range existing {
			subjectIDs[r.SubjectID] = struct{}{}
		}

		if tier == "standard" {
			scored := make(map[string]struct{})
			for _, other := range []string{"whale", "influencer", "bot"} {
				rs, err := docs.ListReputationScores(ctx, other)
				if err != nil {
					return fmt.Errorf("jobs: list reputation scores for %s: %w", other, err)
				}
				for _, r := range rs {
					scored[r.SubjectID] = struct{}{}
				}
			}
			all, err := docs.ListSubjectIDs(ctx)
			if err != nil {
				return fmt.Errorf("jobs: list subject ids: %w", err)
			}
			for _, id := range all {
				if _, ok := scored[id]; !ok {
					subjectIDs[id] = struct{}{}
				}
			}
		}

		for subjectID := range subjectIDs {
			signals, err := docs.ListSignalsForSubject(ctx, subjectID)
			if err != nil {
				return fmt.Errorf("jobs: list signals for %s: %w", subjectID, err)
			}
			newTier := classifyTier(signals)
			score, err := scores.ComputeReputationScore(ctx, subjectID, signals)
			if err != nil {
				return fmt.Errorf("jobs: compute reputation score for %s: %w", subjectID, err)
			}
			r := ReputationScore{SubjectID: subjectID, Score: score, Tier: newTier, ComputedAt: clk.Now()}
			if err := docs.UpsertReputationScore(ctx, r); err != nil {
				return fmt.Errorf("jobs: upsert reputation score for %s: %w", subjectID, err)
			}
			if newTier == "whale" && tier != "whale" {
				if err := notify.Notify(ctx, subjectID, "subject promoted to whale tier"); err != nil {
					return fmt.Errorf("jobs: notify whale promotion for %s: %w", subjectID, err)
				}
			}
		}

		refreshed, err := docs.ListReputationScores(ctx, tier)
		if err != nil {
			return fmt.Errorf("jobs: list reputation scores for %s: %w", tier, err)
		}
		observability.ReputationScoreCount.WithLabelValues(tier).Set(float64(len(refreshed)))
		return nil
	}
}

// reputationDecayJob multiplies every stored score by
// reputationDecayFactor. The tier field is left unchanged; a subject
// changes tier only when a reputation.recompute.* job reclassifies it.
const reputationDecayFactor = 0.97

func reputationDecayJob(clk clock.Clock, docs DocumentStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		for _, tier := range []string{"whale", "influencer", "bot", "standard"} {
			scores, err := docs.ListReputationScores(ctx, tier)
			if err != nil {
				return fmt.Errorf("jobs: list reputation scores for %s: %w", tier, err)
			}
			for _, r := range scores {
				r.Score *= reputationDecayFactor
				r.ComputedAt = clk.Now()
				if err := docs.UpsertReputationScore(ctx, r); err != nil {
					return fmt.Errorf("jobs: decay reputation score for %s: %w", r.SubjectID, err)
				}
			}
			observability.ReputationScoreCount.WithLabelValues(tier).Set(float64(len(scores)))
		}
		return nil
	}
}
