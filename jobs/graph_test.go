package jobs

import (
	"context"
	"testing"
	"time"
)

func TestGraphCounterpartyRebuildWeightsByTransferCount(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()
	clk := &fakeClock{now: time.Now()}

	docs.UpsertTransfer(ctx, Transfer{Hash: "h1", Chain: "eth", From: "alice", To: "bob", Amount: 1, BlockTime: clk.now})
	docs.UpsertTransfer(ctx, Transfer{Hash: "h2", Chain: "eth", From: "alice", To: "bob", Amount: 1, BlockTime: clk.now})

	job := graphCounterpartyRebuildJob(clk, docs)
	if err := job(ctx); err != nil {
		t.Fatalf("graphCounterpartyRebuildJob: %v", err)
	}

	edges, err := docs.ListGraphEdges(ctx)
	if err != nil {
		t.Fatalf("ListGraphEdges: %v", err)
	}
	if len(edges) != 1 || edges[0].Weight != 2 {
		t.Fatalf("expected a single alice->bob edge weighted 2, got %+v", edges)
	}
}

func TestGraphCounterpartyPruneRemovesLowWeightEdges(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()

	docs.UpsertGraphEdge(ctx, GraphEdge{FromSubjectID: "a", ToSubjectID: "b", Weight: 1, Kind: "counterparty"})
	docs.UpsertGraphEdge(ctx, GraphEdge{FromSubjectID: "c", ToSubjectID: "d", Weight: 50, Kind: "counterparty"})

	job := graphCounterpartyPruneJob(docs)
	if err := job(ctx); err != nil {
		t.Fatalf("graphCounterpartyPruneJob: %v", err)
	}

	edges, _ := docs.ListGraphEdges(ctx)
	if len(edges) != 1 || edges[0].FromSubjectID != "c" {
		t.Fatalf("expected only the high-weight edge to survive, got %+v", edges)
	}
}

func TestGraphClusterDetectNotifiesOnLargeComponent(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()
	notify := &stubNotifier{}

	for i := 0; i < clusterSizeAlert; i++ {
		from := "n" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		to := "n" + string(rune('a'+(i+1)%26)) + string(rune('0'+(i+1)/26))
		docs.UpsertGraphEdge(ctx, GraphEdge{FromSubjectID: from, ToSubjectID: to, Weight: 5, Kind: "counterparty"})
	}

	job := graphClusterDetectJob(docs, notify)
	if err := job(ctx); err != nil {
		t.Fatalf("graphClusterDetectJob: %v", err)
	}

	if len(notify.notifications) == 0 {
		t.Fatalf("expected a cluster notification for a chain of %d linked nodes", clusterSizeAlert)
	}
}

func TestGraphClusterDetectIgnoresSmallComponents(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()
	notify := &stubNotifier{}

	docs.UpsertGraphEdge(ctx, GraphEdge{FromSubjectID: "a", ToSubjectID: "b", Weight: 5, Kind: "counterparty"})

	job := graphClusterDetectJob(docs, notify)
	if err := job(ctx); err != nil {
		t.Fatalf("graphClusterDetectJob: %v", err)
	}
	if len(notify.notifications) != 0 {
		t.Fatalf("expected no notification for a 2-node component, got %+v", notify.notifications)
	}
}
