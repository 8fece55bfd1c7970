// Package main runs the telemetry ingestion worker. It drains queued location
// samples from Redis into the datastore and the live job feeds.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/config"
	"github.com/oremus-labs/ol-advisor-relay/internal/events"
	"github.com/oremus-labs/ol-advisor-relay/internal/jobs"
	"github.com/oremus-labs/ol-advisor-relay/internal/logutil"
	"github.com/oremus-labs/ol-advisor-relay/internal/queue"
	"github.com/oremus-labs/ol-advisor-relay/internal/redisx"
	"github.com/oremus-labs/ol-advisor-relay/internal/snapshotcache"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
	"github.com/oremus-labs/ol-advisor-relay/internal/worker"
)

const workerVersion = "0.1.0-go"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting Advisor Relay worker v%s", workerVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logutil.SetLevel(cfg.LogLevel)
	logutil.Info("worker_bootstrap", map[string]interface{}{
		"version":         workerVersion,
		"redisAddr":       cfg.RedisAddr,
		"telemetryStream": cfg.TelemetryStream,
		"telemetryGroup":  cfg.TelemetryGroup,
	})
	stateStore, err := store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver)
	if err != nil {
		log.Fatalf("worker: failed to open datastore: %v", err)
	}
	defer stateStore.Close()

	redisClient, err := redisx.NewClient(redisx.Config{
		URL:         cfg.RedisURL,
		Addr:        cfg.RedisAddr,
		Username:    cfg.RedisUsername,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		TLSEnabled:  cfg.RedisTLSEnabled,
		TLSInsecure: cfg.RedisTLSInsecure,
	})
	if err != nil {
		log.Fatalf("worker: failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	eventBus := events.NewBus(events.Options{
		Client:  redisClient,
		Logger:  log.Default(),
		Channel: cfg.EventsChannel,
	})
	defer eventBus.Close()

	jobManager := jobs.New(jobs.Options{
		Store: stateStore,
		Snapshots: snapshotcache.New(snapshotcache.Options{
			Source:    stateStore,
			Redis:     redisClient,
			Logger:    log.Default(),
			TTL:       cfg.SnapshotCacheTTL,
			PathLimit: cfg.LocationPathLimit,
		}),
		EventPublisher: eventBus,
	})

	opts := worker.Options{
		Jobs:     jobManager,
		Logger:   log.Default(),
		Interval: 5 * time.Second,
	}
	if redisClient != nil {
		host, _ := os.Hostname()
		consumerName := fmt.Sprintf("%s-%d", host, time.Now().UnixNano())
		opts.Queue = queue.NewConsumer(redisClient, cfg.TelemetryStream, cfg.TelemetryGroup, consumerName)
	}

	if err := worker.New(opts).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("worker stopped: %v", err)
		os.Exit(1)
	}
	log.Println("worker exited cleanly")
}
