package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chainsignal/core/store"
	"github.com/chainsignal/core/taskqueue"
)

type stubChainSource struct {
	transfers []Transfer
	err       error
}

func (s *stubChainSource) FetchTransfers(ctx context.Context, chain string) ([]Transfer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.transfers, nil
}

func TestChainTransfersJobPersistsFetchedTransfers(t *testing.T) {
	docs := NewMemoryDocuments()
	source := &stubChainSource{transfers: []Transfer{{Hash: "h1", Chain: "eth", From: "a", To: "b", Amount: 1}}}

	job := chainTransfersJob("eth", source, docs)
	if err := job(context.Background()); err != nil {
		t.Fatalf("chainTransfersJob: %v", err)
	}

	transfers, err := docs.ListTransfers(context.Background(), "eth", time.Time{})
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	if len(transfers) != 1 || transfers[0].Hash != "h1" {
		t.Fatalf("expected fetched transfer to be persisted, got %+v", transfers)
	}
}

func TestChainTransfersJobPropagatesSourceError(t *testing.T) {
	docs := NewMemoryDocuments()
	source := &stubChainSource{err: errors.New("rpc unavailable")}

	job := chainTransfersJob("eth", source, docs)
	if err := job(context.Background()); err == nil {
		t.Fatalf("expected job to surface the source error")
	}
}

func TestSocialMentionsJobEnqueuesOnePerQuery(t *testing.T) {
	backing := store.NewMemoryStore()
	q := taskqueue.NewQueue(backing)

	job := socialMentionsJob([]string{"foo", "bar"}, q)
	if err := job(context.Background()); err != nil {
		t.Fatalf("socialMentionsJob: %v", err)
	}

	tasks, err := backing.ListQueuedTasks(context.Background())
	if err != nil {
		t.Fatalf("ListQueuedTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 enqueued search tasks, got %d", len(tasks))
	}
}

func TestAccountsRefreshJobEnqueuesPerEnabledAccount(t *testing.T) {
	backing := store.NewMemoryStore()
	ctx := context.Background()
	backing.UpsertAccount(ctx, &store.Account{ID: "acct-1", Label: "handle1", Enabled: true})
	backing.UpsertAccount(ctx, &store.Account{ID: "acct-2", Label: "handle2", Enabled: false})
	q := taskqueue.NewQueue(backing)

	job := accountsRefreshJob(backing, q, store.TaskAccountTweets)
	if err := job(ctx); err != nil {
		t.Fatalf("accountsRefreshJob: %v", err)
	}

	tasks, _ := backing.ListQueuedTasks(ctx)
	if len(tasks) != 1 || tasks[0].Payload["username"] != "handle1" {
		t.Fatalf("expected one task for the enabled account only, got %+v", tasks)
	}
}
