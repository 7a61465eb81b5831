package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chainsignal/core/store"
)

func TestDispatchRemoteWorkerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Task-ID") == "" {
			t.Errorf("expected X-Task-ID header to be set")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"engineSummary": map[string]interface{}{
				"fetchedPosts": 3,
				"finalRisk":    0.75,
				"durationMs":   120,
				"aborted":      false,
			},
		})
	}))
	defer srv.Close()

	d := NewDispatcher()
	slot := &store.Slot{ID: "s1", Kind: store.KindRemoteWorker, BaseURL: srv.URL}
	task := &store.Task{ID: "t1", Type: store.TaskSearch, Payload: map[string]string{"query": "hello world"}, AccountID: "acct-1"}

	res := d.Dispatch(context.Background(), slot, task)
	if !res.OK {
		t.Fatalf("expected success, got error=%s code=%s", res.Error, res.ErrorCode)
	}
	if res.Data["fetched"] != 3 {
		t.Fatalf("expected fetched=3, got %v", res.Data["fetched"])
	}
	if res.Data["riskScore"] != 0.75 {
		t.Fatalf("expected riskScore=0.75, got %v", res.Data["riskScore"])
	}
	if res.Data["status"] != string(StatusOK) {
		t.Fatalf("expected status ok, got %v", res.Data["status"])
	}
}

func TestDispatchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDispatcher()
	slot := &store.Slot{ID: "s1", Kind: store.KindRemoteWorker, BaseURL: srv.URL}
	task := &store.Task{ID: "t1", Type: store.TaskAccountTweets, Payload: map[string]string{"username": "alice"}}

	res := d.Dispatch(context.Background(), slot, task)
	if res.OK {
		t.Fatalf("expected failure")
	}
	if res.ErrorCode != ErrSlotRateLimited {
		t.Fatalf("expected slot_rate_limited, got %s", res.ErrorCode)
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	d := NewDispatcher()
	slot := &store.Slot{ID: "s1", Kind: store.SlotKind("mystery")}
	task := &store.Task{ID: "t1", Type: store.TaskSearch, Payload: map[string]string{"query": "x"}}

	res := d.Dispatch(context.Background(), slot, task)
	if res.OK || res.ErrorCode != ErrUnknownKind {
		t.Fatalf("expected unknown_kind failure, got %+v", res)
	}
}

func TestDispatchFetchedFallsBackToTweetsLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"tweets": []interface{}{"a", "b"},
		})
	}))
	defer srv.Close()

	d := NewDispatcher()
	slot := &store.Slot{ID: "s1", Kind: store.KindRemoteWorker, BaseURL: srv.URL}
	task := &store.Task{ID: "t1", Type: store.TaskAccountTweets, Payload: map[string]string{"username": "bob"}}

	res := d.Dispatch(context.Background(), slot, task)
	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Data["fetched"] != 2 {
		t.Fatalf("expected fetched fallback to tweets length 2, got %v", res.Data["fetched"])
	}
}

func TestEndpointForEscapesQuery(t *testing.T) {
	path, err := endpointFor(store.TaskSearch, map[string]string{"query": "a b/c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/search/a%20b%2Fc" {
		t.Fatalf("unexpected escaped path: %s", path)
	}
}
