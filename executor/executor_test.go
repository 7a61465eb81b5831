package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chainsignal/core/dispatch"
	"github.com/chainsignal/core/slotpool"
	"github.com/chainsignal/core/store"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func setup(t *testing.T, clk *fakeClock) (*Executor, store.Store, *httptest.Server) {
	t.Helper()
	backing := store.NewMemoryStore()
	if err := backing.UpsertAccount(context.Background(), &store.Account{ID: "acct-1", Enabled: true}); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}
	registry := slotpool.NewRegistry(backing, clk)
	d := dispatch.NewDispatcher()
	return New(backing, registry, d, clk), backing, nil
}

func TestRunSyncNoActiveAccount(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	backing := store.NewMemoryStore()
	registry := slotpool.NewRegistry(backing, clk)
	e := New(backing, registry, dispatch.NewDispatcher(), clk)

	res, err := e.RunSync(context.Background(), store.TaskSearch, map[string]string{"query": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK || res.ErrorCode != ErrNoActiveAccount {
		t.Fatalf("expected no_active_account, got %+v", res)
	}
}

func TestRunSyncNoAvailableSlot(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	e, backing, _ := setup(t, clk)

	if err := backing.UpsertSlot(context.Background(), &store.Slot{ID: "s1", Enabled: false}); err != nil {
		t.Fatalf("UpsertSlot: %v", err)
	}

	res, err := e.RunSync(context.Background(), store.TaskSearch, map[string]string{"query": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK || res.ErrorCode != ErrNoAvailableSlot {
		t.Fatalf("expected no_available_slot, got %+v", res)
	}
}

func TestRunSyncSuccessIncrementsUsedInWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"engineSummary": map[string]interface{}{"fetchedPosts": 1, "finalRisk": 0.1, "aborted": false},
		})
	}))
	defer srv.Close()

	clk := &fakeClock{now: time.Now()}
	e, backing, _ := setup(t, clk)

	slot := &store.Slot{ID: "s1", Kind: store.KindRemoteWorker, BaseURL: srv.URL, Enabled: true, LimitPerHour: 10, WindowStart: clk.now, Health: store.HealthOK}
	if err := backing.UpsertSlot(context.Background(), slot); err != nil {
		t.Fatalf("UpsertSlot: %v", err)
	}

	res, err := e.RunSync(context.Background(), store.TaskSearch, map[string]string{"query": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}

	got, _ := backing.GetSlot(context.Background(), "s1")
	if got.UsedInWindow != 1 {
		t.Fatalf("expected usedInWindow=1 after success, got %d", got.UsedInWindow)
	}
}

func TestRunSyncRateLimitAppliesCooldown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	clk := &fakeClock{now: time.Now()}
	e, backing, _ := setup(t, clk)

	slot := &store.Slot{ID: "s1", Kind: store.KindRemoteWorker, BaseURL: srv.URL, Enabled: true, LimitPerHour: 10, WindowStart: clk.now, Health: store.HealthOK}
	if err := backing.UpsertSlot(context.Background(), slot); err != nil {
		t.Fatalf("UpsertSlot: %v", err)
	}

	res, err := e.RunSync(context.Background(), store.TaskSearch, map[string]string{"query": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OK || res.ErrorCode != ErrSlotRateLimited {
		t.Fatalf("expected slot_rate_limited, got %+v", res)
	}

	got, _ := backing.GetSlot(context.Background(), "s1")
	if !got.HasCooldown() {
		t.Fatalf("expected cooldown to be set after rate limit")
	}
	if got.CooldownUntil.Sub(clk.now) < minRateLimitCooldown {
		t.Fatalf("expected at least the 5 minute minimum cooldown, got %s", got.CooldownUntil.Sub(clk.now))
	}
}

func TestRunSyncTimeoutCooldownDoublesOnRepeat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	clk := &fakeClock{now: time.Now()}
	e, backing, _ := setup(t, clk)
	e.dispatcher = dispatch.NewDispatcher(dispatch.WithTimeout(10 * time.Millisecond))

	slot := &store.Slot{ID: "s1", Kind: store.KindRemoteWorker, BaseURL: srv.URL, Enabled: true, LimitPerHour: 10, WindowStart: clk.now, Health: store.HealthOK}
	if err := backing.UpsertSlot(context.Background(), slot); err != nil {
		t.Fatalf("UpsertSlot: %v", err)
	}

	_, err := e.RunSync(context.Background(), store.TaskSearch, map[string]string{"query": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _ := backing.GetSlot(context.Background(), "s1")
	firstCooldown := first.CooldownUntil

	// Clear cooldown to allow a second selection, but leave the
	// consecutive-timeout counter intact to exercise doubling. The
	// clear goes through the registry so its in-memory copy sees it.
	if err := e.registry.WriteBack(context.Background(), "s1", first.UsedInWindow, first.WindowStart, time.Time{}, first.Health); err != nil {
		t.Fatalf("WriteBack: %v", err)
	}

	_, err = e.RunSync(context.Background(), store.TaskSearch, map[string]string{"query": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := backing.GetSlot(context.Background(), "s1")

	firstDur := firstCooldown.Sub(clk.now)
	secondDur := second.CooldownUntil.Sub(clk.now)
	if secondDur <= firstDur {
		t.Fatalf("expected second timeout cooldown to be longer than first: first=%s second=%s", firstDur, secondDur)
	}
}

func TestResetCountersClearsUsageAndCooldown(t *testing.T) {
	clk := &fakeClock{now: time.Now()}
	e, backing, _ := setup(t, clk)

	slot := &store.Slot{ID: "s1", Enabled: true, LimitPerHour: 10, UsedInWindow: 9, CooldownUntil: clk.now.Add(time.Hour)}
	if err := backing.UpsertSlot(context.Background(), slot); err != nil {
		t.Fatalf("UpsertSlot: %v", err)
	}

	if err := e.ResetCounters(context.Background()); err != nil {
		t.Fatalf("ResetCounters: %v", err)
	}

	got, _ := backing.GetSlot(context.Background(), "s1")
	if got.UsedInWindow != 0 || got.HasCooldown() {
		t.Fatalf("expected counters reset, got %+v", got)
	}
}
