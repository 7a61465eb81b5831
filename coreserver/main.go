// Command coreserver wires the parser execution core and the periodic
// job scheduler into a single running process: store backend, slot
// registry, dispatcher, executor, durable task queue and worker,
// scheduled job catalog, and the HTTP surface, mirroring how
// control_plane/main.go assembles FluxForge's own process.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainsignal/core/clock"
	"github.com/chainsignal/core/config"
	"github.com/chainsignal/core/dispatch"
	"github.com/chainsignal/core/executor"
	"github.com/chainsignal/core/httpapi"
	"github.com/chainsignal/core/jobs"
	"github.com/chainsignal/core/scheduler"
	"github.com/chainsignal/core/slotpool"
	"github.com/chainsignal/core/store"
	"github.com/chainsignal/core/taskqueue"
)

func buildStore(ctx context.Context, cfg config.Config) store.Store {
	switch cfg.StoreBackend {
	case "postgres":
		s, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("coreserver: connecting to postgres: %v", err)
		}
		log.Printf("coreserver: using postgres store at %s", cfg.PostgresDSN)
		return s
	case "redis":
		s, err := store.NewRedisStore(cfg.RedisAddr, "", cfg.RedisDB)
		if err != nil {
			log.Fatalf("coreserver: connecting to redis: %v", err)
		}
		log.Printf("coreserver: using redis store at %s", cfg.RedisAddr)
		return s
	default:
		log.Printf("coreserver: using in-memory store (single node only)")
		return store.NewMemoryStore()
	}
}

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backing := buildStore(ctx, cfg)
	clk := clock.Real()

	registry := slotpool.NewRegistry(backing, clk)
	dispatcher := dispatch.NewDispatcher()
	registry.SetOnResync(dispatcher.InvalidateCache)
	registry.Start(ctx)
	exec := executor.New(backing, registry, dispatcher, clk)

	queue := taskqueue.NewQueue(backing)
	worker := taskqueue.NewWorker(queue, exec)

	docs := jobs.NewMemoryDocuments()
	sched := scheduler.New(clk)

	jobCfg := jobs.DefaultConfig()
	jobCfg.Chains = cfg.Chains
	deps := jobs.Deps{
		Store:        backing,
		Documents:    docs,
		Notifier:     jobs.LogNotifier{},
		Scores:       jobs.NewWeightedScoreEngine(),
		Queue:        queue,
		Clock:        clk,
		ChainSources: buildChainSources(cfg.Chains),
	}
	defs := jobs.Catalog(jobCfg, deps)
	jobs.RegisterAll(sched, defs)
	log.Printf("coreserver: registered %d scheduled jobs", len(defs))

	server := httpapi.New(exec, queue, worker, sched)
	server.Run(ctx)

	if cfg.AutoStartWorker {
		worker.Start(ctx)
	}
	if cfg.AutoStartScheduler {
		sched.StartAll(ctx)
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Handler(),
	}

	go func() {
		log.Printf("coreserver: listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("coreserver: http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("coreserver: shutting down")

	sched.StopAll()
	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DurationFromEnv("SHUTDOWN_TIMEOUT_SECONDS", 10*time.Second))
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
