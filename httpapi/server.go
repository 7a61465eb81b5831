// Package httpapi exposes the execution core and job scheduler over
// plain net/http: synchronous parse routes, the async task queue,
// worker lifecycle, administrative and diagnostic endpoints, Prometheus
// scraping, and a dashboard WebSocket stream.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/chainsignal/core/executor"
	"github.com/chainsignal/core/scheduler"
	"github.com/chainsignal/core/taskqueue"
)

// Server composes the pieces a route handler might need to reach.
// Executor, Queue, and Worker live in separate packages to avoid an
// import cycle (taskqueue's SyncRunner returns executor.Result), so the
// HTTP layer is where their operations are finally addressed under one
// roof, the way control_plane/api.go addresses its own collaborators.
type Server struct {
	exec   *executor.Executor
	queue  *taskqueue.Queue
	worker *taskqueue.Worker
	sched  *scheduler.Scheduler

	mux *http.ServeMux

	// syncLimiter throttles the synchronous parse routes, which run a
	// full dispatch inline on the request goroutine and are the
	// easiest path to accidentally exhaust slot capacity from a single
	// noisy caller.
	syncLimiter *rate.Limiter

	startedAt time.Time
	hub       *streamHub
}

// New wires a Server and registers every route named by the HTTP
// surface. The caller is responsible for starting the broadcast loop
// with Run and for serving Handler.
func New(exec *executor.Executor, queue *taskqueue.Queue, worker *taskqueue.Worker, sched *scheduler.Scheduler) *Server {
	s := &Server{
		exec:        exec,
		queue:       queue,
		worker:      worker,
		sched:       sched,
		mux:         http.NewServeMux(),
		syncLimiter: rate.NewLimiter(rate.Limit(5), 10),
		startedAt:   time.Now(),
		hub:         newStreamHub(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/v1/search", s.handleSearchSync)
	s.mux.HandleFunc("/v1/account/tweets", s.handleAccountTweetsSync)
	s.mux.HandleFunc("/v1/account/followers", s.handleAccountFollowersSync)
	s.mux.HandleFunc("/v1/tasks", s.handleTasksDispatch)
	s.mux.HandleFunc("/v1/tasks/", s.handleTaskStatus)
	s.mux.HandleFunc("/v1/worker/start", s.handleWorkerStart)
	s.mux.HandleFunc("/v1/worker/stop", s.handleWorkerStop)
	s.mux.HandleFunc("/v1/counters/reset", s.handleCountersReset)
	s.mux.HandleFunc("/v1/status", s.handleStatus)
	s.mux.HandleFunc("/v1/capacity", s.handleCapacity)
	s.mux.HandleFunc("/v1/scheduler/status", s.handleSchedulerStatus)
	s.mux.HandleFunc("/v1/stream", s.handleStream)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the fully wrapped handler (CORS outermost), the way
// control_plane/main.go wraps http.DefaultServeMux before listening.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// Run starts the dashboard broadcast loop; cancel ctx to stop it.
func (s *Server) Run(ctx context.Context) {
	go s.hub.run(ctx, s.snapshotFunc())
}

func (s *Server) snapshotFunc() func(context.Context) streamSnapshot {
	return func(ctx context.Context) streamSnapshot {
		status, err := s.exec.GetStatus(ctx, s.worker.State() == taskqueue.StateRunning, time.Since(s.startedAt).String())
		if err != nil {
			return streamSnapshot{Error: err.Error()}
		}
		return streamSnapshot{
			WorkerRunning:  status.WorkerRunning,
			ActiveInstances: status.Capacity.ActiveInstances,
			AvailableThisHour: status.Capacity.AvailableThisHour,
			SchedulerJobs:  len(s.sched.GetStatus()),
		}
	}
}
