// Package handlers provides HTTP request handlers for the advisor relay API.
package handlers

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oremus-labs/ol-advisor-relay/internal/events"
	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/jobs"
	"github.com/oremus-labs/ol-advisor-relay/internal/notifications"
	"github.com/oremus-labs/ol-advisor-relay/internal/openapi"
	"github.com/oremus-labs/ol-advisor-relay/internal/prompt"
	"github.com/oremus-labs/ol-advisor-relay/internal/relay"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
	"github.com/oremus-labs/ol-advisor-relay/internal/validator"
)

// maxBodyBytes caps request bodies read for validation.
const maxBodyBytes = 4 << 20

// Options configures handler runtime behavior.
type Options struct {
	DefaultModel       string
	DefaultTemperature float64
	EchoPrompt         bool
	HeartbeatInterval  time.Duration
}

type relayRunner interface {
	Run(ctx context.Context, sink relay.Sink, req relay.Request) relay.Result
}

type rowSource interface {
	Rows(ctx context.Context, scope prompt.Scope) ([]prompt.Row, error)
}

type inventoryWriter interface {
	UpsertInventoryItems(ctx context.Context, items []store.InventoryItem) error
}

type telemetryService interface {
	RecordLocation(ctx context.Context, sample feed.LocationSample) (*jobs.RecordResult, error)
	Complete(ctx context.Context, jobID, status string) (*store.Job, error)
	Snapshot(ctx context.Context, jobID string) (*feed.LocationSnapshot, error)
	Job(ctx context.Context, jobID string) (*store.Job, error)
}

type sampleQueue interface {
	Enabled() bool
	Enqueue(ctx context.Context, sample feed.LocationSample) (string, error)
}

type notificationService interface {
	Create(ctx context.Context, req notifications.CreateRequest) (*feed.Notification, error)
	List(ctx context.Context, recipient string, limit int) ([]feed.Notification, error)
}

type feedSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan events.Event, func())
}

type payloadValidator interface {
	Validate(kind validator.Kind, payload []byte) validator.Result
}

// Dependencies are the services the handlers call into. Nil members disable
// the routes that need them with 503.
type Dependencies struct {
	Relay         relayRunner
	Rows          rowSource
	Inventory     inventoryWriter
	Jobs          telemetryService
	Queue         sampleQueue
	Notifications notificationService
	Feeds         feedSource
	Validator     payloadValidator
}

// Handler encapsulates dependencies for HTTP handlers.
type Handler struct {
	relay         relayRunner
	rows          rowSource
	inventory     inventoryWriter
	jobs          telemetryService
	queue         sampleQueue
	notifications notificationService
	feeds         feedSource
	validator     payloadValidator
	opts          Options
}

// New creates a new Handler instance.
func New(deps Dependencies, opts Options) *Handler {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 15 * time.Second
	}
	return &Handler{
		relay:         deps.Relay,
		rows:          deps.Rows,
		inventory:     deps.Inventory,
		jobs:          deps.Jobs,
		queue:         deps.Queue,
		notifications: deps.Notifications,
		feeds:         deps.Feeds,
		validator:     deps.Validator,
		opts:          opts,
	}
}

// Health returns the health status of the service.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// OpenAPISpec serves the API description as JSON.
func (h *Handler) OpenAPISpec(c *gin.Context) {
	data, err := openapi.JSON()
	if err != nil {
		log.Printf("Failed to render OpenAPI document: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render openapi document"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// readValidated reads the request body and checks it against kind. It writes
// the error response itself and reports whether the caller may continue.
func (h *Handler) readValidated(c *gin.Context, kind validator.Kind) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return nil, false
	}
	if h.validator == nil {
		return body, true
	}
	if res := h.validator.Validate(kind, body); !res.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": res.Errors})
		return nil, false
	}
	return body, true
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " not configured"})
}

func requestID(c *gin.Context) string {
	if id := c.GetString("requestID"); id != "" {
		return id
	}
	return uuid.NewString()
}
