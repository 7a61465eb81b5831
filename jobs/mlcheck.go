package jobs

import (
	"context"
	"fmt"

	"github.com/chainsignal/core/clock"
	"github.com/chainsignal/core/observability"
)

const driftAlertThreshold = 0.15

// mlAccuracyCheckJob records the current accuracy/drift reading for a
// model as a ModelCheck. Accuracy and drift alerting share the same
// underlying reading (CheckModelAccuracy returns both); two separate
// job names exist because operators page on drift independently of
// accuracy and the schedule may legitimately diverge (drift checked
// more often than a full accuracy backtest).
func mlAccuracyCheckJob(model string, clk clock.Clock, docs DocumentStore, scores ScoreEngine) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		accuracy, drift, err := scores.CheckModelAccuracy(ctx, model)
		if err != nil {
			return fmt.Errorf("jobs: check model accuracy for %s: %w", model, err)
		}
		check := ModelCheck{ModelName: model, Accuracy: accuracy, DriftScore: drift, CheckedAt: clk.Now()}
		if err := docs.UpsertModelCheck(ctx, check); err != nil {
			return fmt.Errorf("jobs: upsert model check for %s: %w", model, err)
		}
		observability.ModelDriftScore.WithLabelValues(model).Set(drift)
		return nil
	}
}

// mlDriftCheckJob is mlAccuracyCheckJob's sibling, distinguished only
// by alerting on drift crossing threshold; both write the same
// ModelCheck record so either job observing a fresh reading keeps the
// document current.
func mlDriftCheckJob(model string, clk clock.Clock, docs DocumentStore, scores ScoreEngine, notify Notifier) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		accuracy, drift, err := scores.CheckModelAccuracy(ctx, model)
		if err != nil {
			return fmt.Errorf("jobs: check model drift for %s: %w", model, err)
		}
		check := ModelCheck{ModelName: model, Accuracy: accuracy, DriftScore: drift, CheckedAt: clk.Now()}
		if err := docs.UpsertModelCheck(ctx, check); err != nil {
			return fmt.Errorf("jobs: upsert model check for %s: %w", model, err)
		}
		observability.ModelDriftScore.WithLabelValues(model).Set(drift)
		if drift >= driftAlertThreshold {
			if err := notify.Notify(ctx, model, fmt.Sprintf("model drift score %.3f crossed threshold %.3f", drift, driftAlertThreshold)); err != nil {
				return fmt.Errorf("jobs: notify drift alert for %s: %w", model, err)
			}
		}
		return nil
	}
}
