package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oremus-labs/ol-advisor-relay/internal/handlers"
)

// Options configures the HTTP server wiring.
type Options struct {
	APIToken       string
	GraphQLHandler http.Handler
}

// Server wraps the Gin engine and associated configuration.
type Server struct {
	engine *gin.Engine
}

// NewServer constructs a Server with all HTTP routes configured.
func NewServer(handler *handlers.Handler, opts Options) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestIDMiddleware(), metricsMiddleware(), requestLogger())

	// Health + meta
	engine.GET("/healthz", handler.Health)
	engine.GET("/openapi", handler.OpenAPISpec)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := engine.Group("/")
	protected.Use(authMiddleware(opts.APIToken))

	if opts.GraphQLHandler != nil {
		protected.GET("/graphql", gin.WrapH(opts.GraphQLHandler))
		protected.POST("/graphql", gin.WrapH(opts.GraphQLHandler))
	}

	// Advisor
	protected.POST("/advisor/stream", handler.AdvisorStream)
	protected.PUT("/inventory/items", handler.UpsertInventory)
	protected.GET("/inventory/rows", handler.InventoryRows)

	// Telemetry
	protected.POST("/jobs/:id/location", handler.RecordLocation)
	protected.GET("/jobs/:id/location", handler.LocationSnapshot)
	protected.GET("/jobs/:id/location/stream", handler.LocationStream)
	protected.POST("/jobs/:id/complete", handler.CompleteJob)

	// Notifications
	protected.POST("/notifications", handler.CreateNotification)
	protected.GET("/notifications", handler.ListNotifications)
	protected.GET("/notifications/stream", handler.NotificationStream)

	return &Server{engine: engine}
}

// Engine exposes the underlying Gin engine for advanced use (testing, etc.).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start launches the HTTP server on the provided address. WriteTimeout is
// left unset because event streams stay open for the life of a session.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()
	return srv
}
