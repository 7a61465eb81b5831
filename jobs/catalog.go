package jobs

import (
	"time"

	"github.com/chainsignal/core/clock"
	"github.com/chainsignal/core/scheduler"
	"github.com/chainsignal/core/store"
	"github.com/chainsignal/core/taskqueue"
)

// Config lists the config-driven axes the catalog expands over.
// Defaults match SPEC_FULL.md's illustrative catalog; widening any
// list raises the live job count without a code change.
type Config struct {
	Chains          []string
	Tiers           []string
	Models          []string
	Windows         []string
	TransferMetrics []string
	SocialMetrics   []string
	MentionQueries  []string

	IngestionInterval    time.Duration
	AggregationInterval  time.Duration
	RollupInterval       time.Duration
	SnapshotInterval     time.Duration
	ReputationInterval   time.Duration
	GraphInterval        time.Duration
	MLInterval           time.Duration
	HousekeepingInterval time.Duration
}

// DefaultConfig returns the catalog's baseline shape, matching
// SPEC_FULL.md §4.8's illustrative job enumeration.
func DefaultConfig() Config {
	return Config{
		Chains:          []string{"eth", "bsc", "polygon", "arbitrum"},
		Tiers:           []string{"whale", "influencer", "bot", "standard"},
		Models:          []string{"risk_score", "reputation_score", "engagement_predictor"},
		Windows:         []string{"24h", "7d", "30d"},
		TransferMetrics: []string{"transfer_volume", "transfer_count"},
		SocialMetrics:   []string{"social_mentions", "social_engagement"},
		MentionQueries:  []string{},

		IngestionInterval:    time.Minute,
		AggregationInterval:  5 * time.Minute,
		RollupInterval:       time.Minute,
		SnapshotInterval:     15 * time.Minute,
		ReputationInterval:   15 * time.Minute,
		GraphInterval:        30 * time.Minute,
		MLInterval:           time.Hour,
		HousekeepingInterval: 30 * time.Minute,
	}
}

// Deps are the collaborators every handler in the catalog closes over.
type Deps struct {
	Store        store.Store
	Documents    DocumentStore
	Notifier     Notifier
	Scores       ScoreEngine
	Queue        *taskqueue.Queue
	Clock        clock.Clock
	ChainSources map[string]ChainSource
}

// JobDef is one entry Catalog hands to the caller to register against
// a *scheduler.Scheduler.
type JobDef struct {
	Name     string
	Interval time.Duration
	Handler  scheduler.Handler
}

// Catalog expands Config into the full list of named jobs. Every name
// here is registered verbatim against the Scheduler at startup; the
// interval values are the same implementation decision SPEC_FULL.md
// flags as non-normative.
func Catalog(cfg Config, deps Deps) []JobDef {
	var defs []JobDef

	// Ingestion.
	for _, chain := range cfg.Chains {
		source, ok := deps.ChainSources[chain]
		if !ok {
			continue
		}
		defs = append(defs, JobDef{
			Name:     "ingest.chain.transfers." + chain,
			Interval: cfg.IngestionInterval,
			Handler:  chainTransfersJob(chain, source, deps.Documents),
		})
	}
	defs = append(defs,
		JobDef{Name: "ingest.social.mentions", Interval: cfg.IngestionInterval, Handler: socialMentionsJob(cfg.MentionQueries, deps.Queue)},
		JobDef{Name: "ingest.social.followers_refresh", Interval: cfg.IngestionInterval, Handler: accountsRefreshJob(deps.Store, deps.Queue, store.TaskAccountFollowers)},
		JobDef{Name: "ingest.social.account_tweets_refresh", Interval: cfg.IngestionInterval, Handler: accountsRefreshJob(deps.Store, deps.Queue, store.TaskAccountTweets)},
	)

	// Aggregation: one job per (window, metric) pair, plus the hourly
	// rollup over the tightest window.
	for _, window := range cfg.Windows {
		for _, metric := range append(append([]string{}, cfg.TransferMetrics...), cfg.SocialMetrics...) {
			name := "aggregate." + window + "." + metric
			defs = append(defs, JobDef{
				Name:     name,
				Interval: cfg.AggregationInterval,
				Handler:  aggregationJob(window, metric, deps.Clock, deps.Documents),
			})
		}
	}
	defs = append(defs, JobDef{
		Name:     "aggregate.rollup.hourly",
		Interval: cfg.RollupInterval,
		Handler:  hourlyRollupJob(deps.Clock, deps.Documents),
	})

	// Snapshotting.
	defs = append(defs,
		JobDef{Name: "snapshot.signals", Interval: cfg.SnapshotInterval, Handler: snapshotSignalsJob(deps.Documents)},
		JobDef{Name: "snapshot.slots", Interval: cfg.SnapshotInterval, Handler: snapshotSlotsJob(deps.Store)},
		JobDef{Name: "snapshot.tasks.backlog", Interval: cfg.SnapshotInterval, Handler: snapshotTasksBacklogJob(deps.Store)},
		JobDef{Name: "snapshot.accounts", Interval: cfg.SnapshotInterval, Handler: snapshotAccountsJob(deps.Store)},
	)

	// Reputation.
	for _, tier := range cfg.Tiers {
		defs = append(defs, JobDef{
			Name:     "reputation.recompute." + tier,
			Interval: cfg.ReputationInterval,
			Handler:  reputationRecomputeJob(tier, deps.Clock, deps.Documents, deps.Scores, deps.Notifier),
		})
	}
	defs = append(defs, JobDef{
		Name:     "reputation.decay",
		Interval: cfg.ReputationInterval,
		Handler:  reputationDecayJob(deps.Clock, deps.Documents),
	})

	// Graph builders.
	defs = append(defs,
		JobDef{Name: "graph.counterparty.rebuild", Interval: cfg.GraphInterval, Handler: graphCounterpartyRebuildJob(deps.Clock, deps.Documents)},
		JobDef{Name: "graph.counterparty.prune", Interval: cfg.GraphInterval, Handler: graphCounterpartyPruneJob(deps.Documents)},
		JobDef{Name: "graph.cluster.detect", Interval: cfg.GraphInterval, Handler: graphClusterDetectJob(deps.Documents, deps.Notifier)},
	)

	// ML accuracy/drift.
	for _, model := range cfg.Models {
		defs = append(defs,
			JobDef{Name: "ml.accuracy.check." + model, Interval: cfg.MLInterval, Handler: mlAccuracyCheckJob(model, deps.Clock, deps.Documents, deps.Scores)},
			JobDef{Name: "ml.drift.check." + model, Interval: cfg.MLInterval, Handler: mlDriftCheckJob(model, deps.Clock, deps.Documents, deps.Scores, deps.Notifier)},
		)
	}

	// Housekeeping.
	defs = append(defs,
		JobDef{Name: "housekeeping.task.purge_completed", Interval: cfg.HousekeepingInterval, Handler: housekeepingPurgeCompletedJob(deps.Clock, deps.Store)},
		JobDef{Name: "housekeeping.task.requeue_stuck", Interval: cfg.HousekeepingInterval, Handler: housekeepingRequeueStuckJob(deps.Clock, deps.Store)},
		JobDef{Name: "housekeeping.slot.health_probe", Interval: cfg.HousekeepingInterval, Handler: housekeepingSlotHealthProbeJob(deps.Clock, deps.Store)},
		JobDef{Name: "housekeeping.account.prune_disabled", Interval: cfg.HousekeepingInterval, Handler: housekeepingPruneDisabledAccountsJob(deps.Store)},
	)

	return defs
}

// RegisterAll registers every job def from Catalog against s.
func RegisterAll(s *scheduler.Scheduler, defs []JobDef) {
	for _, d := range defs {
		s.Register(d.Name, d.Interval, d.Handler)
	}
}
