package jobs

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDocumentsTransferRoundTrip(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()
	now := time.Now()

	if err := docs.UpsertTransfer(ctx, Transfer{Hash: "h1", Chain: "eth", From: "a", To: "b", Amount: 10, BlockTime: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("UpsertTransfer: %v", err)
	}
	if err := docs.UpsertTransfer(ctx, Transfer{Hash: "h2", Chain: "bsc", From: "a", To: "b", Amount: 5, BlockTime: now}); err != nil {
		t.Fatalf("UpsertTransfer: %v", err)
	}

	ethTransfers, err := docs.ListTransfers(ctx, "eth", now.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	if len(ethTransfers) != 1 || ethTransfers[0].Hash != "h1" {
		t.Fatalf("expected only h1 for eth chain, got %+v", ethTransfers)
	}
}

func TestMemoryDocumentsSignalAndSubjectDiscovery(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()

	docs.UpsertSignal(ctx, Signal{SubjectID: "alice", Kind: "transfer_volume", Window: "24h", Value: 100})
	docs.UpsertSignal(ctx, Signal{SubjectID: "bob", Kind: "social_mentions", Window: "24h", Value: 10})

	subjects, err := docs.ListSubjectIDs(ctx)
	if err != nil {
		t.Fatalf("ListSubjectIDs: %v", err)
	}
	if len(subjects) != 2 {
		t.Fatalf("expected 2 subjects, got %+v", subjects)
	}

	signals, err := docs.ListSignalsForSubject(ctx, "alice")
	if err != nil {
		t.Fatalf("ListSignalsForSubject: %v", err)
	}
	if len(signals) != 1 || signals[0].Value != 100 {
		t.Fatalf("expected alice's transfer_volume signal, got %+v", signals)
	}
}

func TestMemoryDocumentsReputationScoresByTier(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()

	docs.UpsertReputationScore(ctx, ReputationScore{SubjectID: "whale-1", Tier: "whale", Score: 95})
	docs.UpsertReputationScore(ctx, ReputationScore{SubjectID: "std-1", Tier: "standard", Score: 10})

	whales, err := docs.ListReputationScores(ctx, "whale")
	if err != nil {
		t.Fatalf("ListReputationScores: %v", err)
	}
	if len(whales) != 1 || whales[0].SubjectID != "whale-1" {
		t.Fatalf("expected only whale-1 in whale tier, got %+v", whales)
	}

	n, err := docs.CountReputationScores(ctx, "standard")
	if err != nil {
		t.Fatalf("CountReputationScores: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 standard score, got %d", n)
	}
}

func TestMemoryDocumentsGraphEdgeLifecycle(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()

	docs.UpsertGraphEdge(ctx, GraphEdge{FromSubjectID: "a", ToSubjectID: "b", Weight: 4, Kind: "counterparty"})
	edges, err := docs.ListGraphEdges(ctx)
	if err != nil {
		t.Fatalf("ListGraphEdges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}

	if err := docs.DeleteGraphEdge(ctx, "a", "b", "counterparty"); err != nil {
		t.Fatalf("DeleteGraphEdge: %v", err)
	}
	edges, _ = docs.ListGraphEdges(ctx)
	if len(edges) != 0 {
		t.Fatalf("expected edge removed, got %+v", edges)
	}
}
