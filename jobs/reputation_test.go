package jobs

import (
	"context"
	"testing"
	"time"
)

type stubNotifier struct {
	notifications []string
}

func (s *stubNotifier) Notify(ctx context.Context, subject, message string) error {
	s.notifications = append(s.notifications, subject+": "+message)
	return nil
}

func TestClassifyTierWhaleByVolume(t *testing.T) {
	tier := classifyTier([]Signal{{Kind: "transfer_volume", Value: 500_000}})
	if tier != "whale" {
		t.Fatalf("expected whale tier, got %s", tier)
	}
}

func TestClassifyTierBotByMentionRatio(t *testing.T) {
	tier := classifyTier([]Signal{
		{Kind: "social_mentions", Value: 100},
		{Kind: "social_engagement", Value: 2},
	})
	if tier != "bot" {
		t.Fatalf("expected bot tier, got %s", tier)
	}
}

func TestClassifyTierInfluencerByEngagement(t *testing.T) {
	tier := classifyTier([]Signal{{Kind: "social_engagement", Value: 1000}})
	if tier != "influencer" {
		t.Fatalf("expected influencer tier, got %s", tier)
	}
}

func TestClassifyTierDefaultsToStandard(t *testing.T) {
	tier := classifyTier(nil)
	if tier != "standard" {
		t.Fatalf("expected standard tier for no signals, got %s", tier)
	}
}

func TestReputationRecomputeStandardPicksUpNewSubjects(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()
	clk := &fakeClock{now: time.Now()}
	scores := NewWeightedScoreEngine()
	notify := &stubNotifier{}

	docs.UpsertSignal(ctx, Signal{SubjectID: "newcomer", Kind: "transfer_volume", Value: 5})

	job := reputationRecomputeJob("standard", clk, docs, scores, notify)
	if err := job(ctx); err != nil {
		t.Fatalf("reputationRecomputeJob: %v", err)
	}

	result, err := docs.ListReputationScores(ctx, "standard")
	if err != nil {
		t.Fatalf("ListReputationScores: %v", err)
	}
	found := false
	for _, r := range result {
		if r.SubjectID == "newcomer" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected newcomer to get a standard-tier score, got %+v", result)
	}
}

func TestReputationRecomputeNotifiesOnWhalePromotion(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()
	clk := &fakeClock{now: time.Now()}
	scores := NewWeightedScoreEngine()
	notify := &stubNotifier{}

	docs.UpsertReputationScore(ctx, ReputationScore{SubjectID: "rising", Tier: "standard", Score: 1})
	docs.UpsertSignal(ctx, Signal{SubjectID: "rising", Kind: "transfer_volume", Value: 1_000_000})

	job := reputationRecomputeJob("standard", clk, docs, scores, notify)
	if err := job(ctx); err != nil {
		t.Fatalf("reputationRecomputeJob: %v", err)
	}

	if len(notify.notifications) != 1 {
		t.Fatalf("expected one whale promotion notification, got %+v", notify.notifications)
	}
}

func TestReputationDecayShrinksEveryScore(t *testing.T) {
	docs := NewMemoryDocuments()
	ctx := context.Background()
	clk := &fakeClock{now: time.Now()}

	docs.UpsertReputationScore(ctx, ReputationScore{SubjectID: "alice", Tier: "whale", Score: 100})

	job := reputationDecayJob(clk, docs)
	if err := job(ctx); err != nil {
		t.Fatalf("reputationDecayJob: %v", err)
	}

	result, _ := docs.ListReputationScores(ctx, "whale")
	if len(result) != 1 || result[0].Score >= 100 {
		t.Fatalf("expected decayed score below 100, got %+v", result)
	}
}
