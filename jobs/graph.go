package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/chainsignal/core/clock"
)

const (
	graphRebuildLookback = "30d"
	graphPruneFloor      = 3 // edges below this weight are considered noise
	clusterSizeAlert     = 25
)

// graphCounterpartyRebuildJob derives a counterparty GraphEdge for
// every (from, to) pair seen in transfers over the lookback window,
// weight equal to transfer count between the pair.
func graphCounterpartyRebuildJob(clk clock.Clock, docs DocumentStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		since := clk.Now().Add(-windowDuration(graphRebuildLookback))
		weights := make(map[[2]string]float64)
		for _, chain := range []string{"eth", "bsc", "polygon", "arbitrum"} {
			transfers, err := docs.ListTransfers(ctx, chain, since)
			if err != nil {
				return fmt.Errorf("jobs: list transfers for %s: %w", chain, err)
			}
			for _, t := range transfers {
				weights[[2]string{t.From, t.To}]++
			}
		}
		for pair, weight := range weights {
			e := GraphEdge{FromSubjectID: pair[0], ToSubjectID: pair[1], Weight: weight, Kind: "counterparty"}
			if err := docs.UpsertGraphEdge(ctx, e); err != nil {
				return fmt.Errorf("jobs: upsert graph edge %s->%s: %w", pair[0], pair[1], err)
			}
		}
		return nil
	}
}

// graphCounterpartyPruneJob drops edges whose weight has fallen below
// the noise floor, keeping the graph from growing unbounded with
// one-off transfers.
func graphCounterpartyPruneJob(docs DocumentStore) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		edges, err := docs.ListGraphEdges(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list graph edges: %w", err)
		}
		pruned := 0
		for _, e := range edges {
			if e.Kind == "counterparty" && e.Weight < graphPruneFloor {
				if err := docs.DeleteGraphEdge(ctx, e.FromSubjectID, e.ToSubjectID, e.Kind); err != nil {
					return fmt.Errorf("jobs: delete graph edge %s->%s: %w", e.FromSubjectID, e.ToSubjectID, err)
				}
				pruned++
			}
		}
		log.Printf("jobs: graph prune removed=%d", pruned)
		return nil
	}
}

// graphClusterDetectJob runs a union-find over counterparty edges and
// notifies on any cluster large enough to look like coordinated
// activity rather than organic trading.
func graphClusterDetectJob(docs DocumentStore, notify Notifier) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		edges, err := docs.ListGraphEdges(ctx)
		if err != nil {
			return fmt.Errorf("jobs: list graph edges: %w", err)
		}

		parent := make(map[string]string)
		var find func(string) string
		find = func(x string) string {
			if _, ok := parent[x]; !ok {
				parent[x] = x
			}
			if parent[x] != x {
				parent[x] = find(parent[x])
			}
			return parent[x]
		}
		union := func(a, b string) {
			ra, rb := find(a), find(b)
			if ra != rb {
				parent[ra] = rb
			}
		}

		for _, e := range edges {
			if e.Kind == "counterparty" {
				union(e.FromSubjectID, e.ToSubjectID)
			}
		}

		sizes := make(map[string]int)
		for node := range parent {
			sizes[find(node)]++
		}
		for root, size := range sizes {
			if size >= clusterSizeAlert {
				if err := notify.Notify(ctx, root, fmt.Sprintf("counterparty cluster of size %d detected", size)); err != nil {
					return fmt.Errorf("jobs: notify cluster detection for %s: %w", root, err)
				}
			}
		}
		return nil
	}
}
