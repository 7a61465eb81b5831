package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chainsignal/core/clock"
	"github.com/chainsignal/core/dispatch"
	"github.com/chainsignal/core/executor"
	"github.com/chainsignal/core/scheduler"
	"github.com/chainsignal/core/slotpool"
	"github.com/chainsignal/core/store"
	"github.com/chainsignal/core/taskqueue"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	backing := store.NewMemoryStore()
	ctx := context.Background()
	if err := backing.UpsertAccount(ctx, &store.Account{ID: "acct-1", Enabled: true}); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}
	if err := backing.UpsertSlot(ctx, &store.Slot{ID: "slot-1", Enabled: true, LimitPerHour: 100}); err != nil {
		t.Fatalf("UpsertSlot: %v", err)
	}

	clk := clock.Real()
	registry := slotpool.NewRegistry(backing, clk)
	exec := executor.New(backing, registry, dispatch.NewDispatcher(), clk)
	queue := taskqueue.NewQueue(backing)
	worker := taskqueue.NewWorker(queue, exec)
	sched := scheduler.New(clk)

	return New(exec, queue, worker, sched), backing
}

func TestHandleStatusReturnsCapacity(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var status executor.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.InstancesCount != 1 {
		t.Fatalf("expected 1 instance, got %+v", status)
	}
	if status.Capacity.TotalCapacity != 100 {
		t.Fatalf("expected total capacity 100, got %+v", status.Capacity)
	}
}

func TestHandleTasksDispatchEnqueuesAndStatusReportsQueued(t *testing.T) {
	s, _ := newTestServer(t)

	body := strings.NewReader(`{"task_type":"search","payload":{"query":"x"},"priority":"high"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", body)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp enqueueResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TaskID == "" {
		t.Fatalf("expected a task id")
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/v1/tasks/"+resp.TaskID, nil)
	statusRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for task status, got %d", statusRec.Code)
	}
	var task store.Task
	if err := json.Unmarshal(statusRec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.Status != store.StatusQueued {
		t.Fatalf("expected task status queued, got %q", task.Status)
	}
}

func TestHandleTaskStatusNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleWorkerStartStop(t *testing.T) {
	s, _ := newTestServer(t)

	startReq := httptest.NewRequest(http.MethodPost, "/v1/worker/start", nil)
	startRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(startRec, startReq)
	if startRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from worker start, got %d", startRec.Code)
	}

	stopReq := httptest.NewRequest(http.MethodPost, "/v1/worker/stop", nil)
	stopRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(stopRec, stopReq)
	if stopRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from worker stop, got %d", stopRec.Code)
	}
}

func TestHandleCountersReset(t *testing.T) {
	s, backing := newTestServer(t)
	ctx := context.Background()
	if err := backing.UpsertSlot(ctx, &store.Slot{ID: "slot-1", Enabled: true, LimitPerHour: 100, UsedInWindow: 50}); err != nil {
		t.Fatalf("UpsertSlot: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/counters/reset", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	slot, _ := backing.GetSlot(ctx, "slot-1")
	if slot.UsedInWindow != 0 {
		t.Fatalf("expected usage reset, got %d", slot.UsedInWindow)
	}
}

func TestHandleSchedulerStatus(t *testing.T) {
	s, _ := newTestServer(t)
	s.sched.Register("demo.job", time.Minute, func(ctx context.Context) error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/v1/scheduler/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var statuses map[string]scheduler.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := statuses["demo.job"]; !ok {
		t.Fatalf("expected demo.job in scheduler status, got %+v", statuses)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected preflight to short-circuit with 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header to be set")
	}
}
