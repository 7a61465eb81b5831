// Package config loads coreserver's runtime configuration from the
// environment, the way control_plane/main.go reads its own settings:
// os.Getenv with a sane default, fmt.Sscanf for numeric/duration
// overrides, no config file or flag parsing.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Config is every environment-tunable knob coreserver needs to wire
// the store backend, the HTTP surface, and the job catalog.
type Config struct {
	// StoreBackend selects which store.Store implementation to
	// construct: "memory", "postgres", or "redis".
	StoreBackend string

	PostgresDSN string
	RedisAddr   string
	RedisDB     int

	HTTPAddr string

	// AutoStartWorker starts the taskqueue.Worker loop immediately on
	// boot rather than waiting for an operator to POST /v1/worker/start.
	AutoStartWorker bool

	// AutoStartScheduler starts every registered job immediately.
	AutoStartScheduler bool

	Chains []string
}

// Load reads Config from the environment, applying the same defaults
// a single-node local run would need.
func Load() Config {
	cfg := Config{
		StoreBackend:       getEnv("STORE_BACKEND", "memory"),
		PostgresDSN:        getEnv("POSTGRES_DSN", ""),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		AutoStartWorker:    getEnvBool("AUTO_START_WORKER", true),
		AutoStartScheduler: getEnvBool("AUTO_START_SCHEDULER", true),
		Chains:             getEnvList("CHAINS", []string{"eth", "bsc", "polygon", "arbitrum"}),
	}

	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		var db int
		fmt.Sscanf(dbStr, "%d", &db)
		cfg.RedisDB = db
	}

	log.Printf("[CONFIG] store_backend=%s http_addr=%s auto_start_worker=%v auto_start_scheduler=%v chains=%v",
		cfg.StoreBackend, cfg.HTTPAddr, cfg.AutoStartWorker, cfg.AutoStartScheduler, cfg.Chains)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DurationFromEnv mirrors the scheduler concurrency override pattern in
// control_plane/main.go: read a raw integer count of seconds and
// convert, leaving the default untouched if unset or non-positive.
func DurationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var seconds int
	fmt.Sscanf(raw, "%d", &seconds)
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
