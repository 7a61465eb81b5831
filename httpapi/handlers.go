package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/chainsignal/core/store"
)

type syncRequest struct {
	Payload map[string]string `json:"payload"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeSyncRequest(r *http.Request) (map[string]string, error) {
	if r.Body == nil {
		return map[string]string{}, nil
	}
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	if req.Payload == nil {
		req.Payload = map[string]string{}
	}
	return req.Payload, nil
}

// runSync is shared by the three fixed-task-type sync routes: decode
// the payload, rate-limit the call, run it through the Executor, and
// translate the Result into an HTTP response.
func (s *Server) runSync(w http.ResponseWriter, r *http.Request, taskType store.TaskType) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.syncLimiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "sync parse rate limit exceeded"})
		return
	}

	payload, err := decodeSyncRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.exec.RunSync(r.Context(), taskType, payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !res.OK {
		writeJSON(w, http.StatusServiceUnavailable, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSearchSync is POST /v1/search, the HTTP name for
// Executor.RunSearchSync.
func (s *Server) handleSearchSync(w http.ResponseWriter, r *http.Request) {
	s.runSync(w, r, store.TaskSearch)
}

// handleAccountTweetsSync is POST /v1/account/tweets, the HTTP name for
// Executor.RunAccountTweetsSync.
func (s *Server) handleAccountTweetsSync(w http.ResponseWriter, r *http.Request) {
	s.runSync(w, r, store.TaskAccountTweets)
}

// handleAccountFollowersSync is POST /v1/account/followers, the HTTP
// name for Executor.RunAccountFollowersSync.
func (s *Server) handleAccountFollowersSync(w http.ResponseWriter, r *http.Request) {
	s.runSync(w, r, store.TaskAccountFollowers)
}

type enqueueRequest struct {
	TaskType    store.TaskType    `json:"task_type"`
	Payload     map[string]string `json:"payload"`
	AccountID   string            `json:"account_id"`
	Priority    string            `json:"priority"`
	MaxAttempts int               `json:"max_attempts"`
}

type enqueueResponse struct {
	TaskID string `json:"task_id"`
}

// parsePriority maps the request's priority name onto store.Priority,
// defaulting to normal for an empty or unrecognized value.
func parsePriority(name string) store.Priority {
	switch name {
	case "high":
		return store.PriorityHigh
	case "low":
		return store.PriorityLow
	default:
		return store.PriorityNormal
	}
}

// handleTasksDispatch is POST /v1/tasks, the async enqueue path
// (Executor.Enqueue in the route table; the Queue is the object that
// actually owns enqueue since it holds the wake-up signal).
func (s *Server) handleTasksDispatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.MaxAttempts <= 0 {
		req.MaxAttempts = 3
	}

	id, err := s.queue.Enqueue(r.Context(), req.TaskType, req.Payload, req.AccountID, parsePriority(req.Priority), req.MaxAttempts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{TaskID: id})
}

// handleTaskStatus is GET /v1/tasks/{id}, Executor.GetTaskStatus in the
// route table; owned by the Queue since the task record lives in the
// store it wraps.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	if id == "" {
		http.Error(w, "missing task id", http.StatusBadRequest)
		return
	}

	task, found, err := s.queue.GetTaskStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleWorkerStart is POST /v1/worker/start, Executor.StartWorker in
// the route table; owned by the Worker itself.
func (s *Server) handleWorkerStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.worker.Start(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.worker.State())})
}

// handleWorkerStop is POST /v1/worker/stop, Executor.StopWorker in the
// route table; owned by the Worker itself.
func (s *Server) handleWorkerStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.worker.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.worker.State())})
}

// handleCountersReset is POST /v1/counters/reset.
func (s *Server) handleCountersReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.exec.ResetCounters(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleStatus is GET /v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status, err := s.exec.GetStatus(r.Context(), s.worker.State() == "running", time.Since(s.startedAt).String())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCapacity is GET /v1/capacity.
func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.exec.GetCapacityInfo(r.Context()))
}

// handleSchedulerStatus is GET /v1/scheduler/status, Scheduler.GetStatus
// in the route table.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.sched.GetStatus())
}
