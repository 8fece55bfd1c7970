// Package main is the entry point for the advisor relay service.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oremus-labs/ol-advisor-relay/config"
	"github.com/oremus-labs/ol-advisor-relay/internal/api"
	"github.com/oremus-labs/ol-advisor-relay/internal/events"
	"github.com/oremus-labs/ol-advisor-relay/internal/graphqlapi"
	"github.com/oremus-labs/ol-advisor-relay/internal/handlers"
	"github.com/oremus-labs/ol-advisor-relay/internal/inventory"
	"github.com/oremus-labs/ol-advisor-relay/internal/jobs"
	"github.com/oremus-labs/ol-advisor-relay/internal/logutil"
	"github.com/oremus-labs/ol-advisor-relay/internal/notifications"
	"github.com/oremus-labs/ol-advisor-relay/internal/queue"
	"github.com/oremus-labs/ol-advisor-relay/internal/redisx"
	"github.com/oremus-labs/ol-advisor-relay/internal/relay"
	"github.com/oremus-labs/ol-advisor-relay/internal/snapshotcache"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
	"github.com/oremus-labs/ol-advisor-relay/internal/upstream"
	"github.com/oremus-labs/ol-advisor-relay/internal/validator"
)

const (
	version         = "0.1.0-go"
	shutdownTimeout = 5 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting Advisor Relay v%s", version)

	cfg := config.Load()
	logutil.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)
	logutil.Info("server_bootstrap", map[string]interface{}{
		"version":   version,
		"driver":    cfg.DataStoreDriver,
		"upstream":  cfg.UpstreamBaseURL,
		"model":     cfg.UpstreamModel,
		"redis":     cfg.RedisURL != "" || cfg.RedisAddr != "",
		"authToken": cfg.APIToken != "",
	})

	stateStore, err := store.Open(cfg.DataStoreDSN, cfg.DataStoreDriver)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
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
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		log.Println("Redis disabled; events stay in-process and samples are stored inline")
	}

	eventBus := events.NewBus(events.Options{
		Client:  redisClient,
		Logger:  log.Default(),
		Channel: cfg.EventsChannel,
	})
	defer eventBus.Close()

	jobManager := newJobManager(cfg, stateStore, redisClient, eventBus)

	payloadValidator, err := validator.New()
	if err != nil {
		log.Fatalf("Failed to initialize payload validator: %v", err)
	}

	upstreamClient, err := upstream.New(upstream.Config{
		BaseURL: cfg.UpstreamBaseURL,
		APIKey:  cfg.UpstreamAPIKey,
	})
	if err != nil {
		log.Fatalf("Failed to initialize upstream client: %v", err)
	}
	advisorRelay := relay.New(relay.Options{
		Upstream: upstreamClient,
		Timeout:  cfg.RelayTimeout,
		History:  stateStore,
		Logger:   log.Default(),
	})

	notificationService := notifications.New(stateStore, eventBus)

	deps := handlers.Dependencies{
		Relay:         advisorRelay,
		Rows:          inventory.NewAggregator(stateStore, inventory.DefaultCapabilities),
		Inventory:     stateStore,
		Jobs:          jobManager,
		Notifications: notificationService,
		Feeds:         eventBus,
		Validator:     payloadValidator,
	}
	if redisClient != nil {
		deps.Queue = queue.NewProducer(redisClient, cfg.TelemetryStream)
	}
	h := handlers.New(deps, handlers.Options{
		DefaultModel:       cfg.UpstreamModel,
		DefaultTemperature: cfg.UpstreamTemperature,
		EchoPrompt:         cfg.RelayEchoPrompt,
		HeartbeatInterval:  cfg.SSEHeartbeatInterval,
	})

	graphqlHandler, err := graphqlapi.NewHandler(graphqlapi.Config{
		Telemetry:     jobManager,
		Notifications: notificationService,
		Sessions:      stateStore,
	})
	if err != nil {
		log.Fatalf("Failed to initialize GraphQL schema: %v", err)
	}

	server := api.NewServer(h, api.Options{
		APIToken:       cfg.APIToken,
		GraphQLHandler: graphqlHandler,
	})
	srv := server.Start(":" + cfg.ServerPort)
	log.Printf("Server listening on :%s", cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}

func newJobManager(cfg *config.Config, stateStore *store.Store, redisClient redis.UniversalClient, bus *events.Bus) *jobs.Manager {
	cache := snapshotcache.New(snapshotcache.Options{
		Source:    stateStore,
		Redis:     redisClient,
		Logger:    log.Default(),
		TTL:       cfg.SnapshotCacheTTL,
		PathLimit: cfg.LocationPathLimit,
	})
	return jobs.New(jobs.Options{
		Store:          stateStore,
		Snapshots:      cache,
		EventPublisher: bus,
	})
}
