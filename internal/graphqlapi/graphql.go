package graphqlapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
)

// TelemetryProvider exposes job state and location snapshots.
type TelemetryProvider interface {
	Job(ctx context.Context, jobID string) (*store.Job, error)
	Snapshot(ctx context.Context, jobID string) (*feed.LocationSnapshot, error)
}

// NotificationProvider lists a recipient's notifications.
type NotificationProvider interface {
	List(ctx context.Context, recipient string, limit int) ([]feed.Notification, error)
}

// SessionProvider lists recorded relay sessions.
type SessionProvider interface {
	ListRelaySessions(ctx context.Context, limit int) ([]store.RelaySession, error)
}

// Config wires the GraphQL schema.
type Config struct {
	Telemetry     TelemetryProvider
	Notifications NotificationProvider
	Sessions      SessionProvider
}

// NewHandler returns an http.Handler that serves /graphql requests.
func NewHandler(cfg Config) (http.Handler, error) {
	schema, err := schemaBuilder{cfg: cfg}.buildSchema()
	if err != nil {
		return nil, err
	}

	return handler.New(&handler.Config{
		Schema:   schema,
		Pretty:   true,
		GraphiQL: true,
	}), nil
}

type schemaBuilder struct {
	cfg Config
}

func (b schemaBuilder) buildSchema() (*graphql.Schema, error) {
	jsonScalar := graphql.NewScalar(graphql.ScalarConfig{
		Name: "JSON",
		Serialize: func(value interface{}) interface{} {
			return value
		},
	})

	sampleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LocationSample",
		Fields: graphql.Fields{
			"jobId":     {Type: graphql.String},
			"timestamp": {Type: graphql.NewNonNull(graphql.String)},
			"lat":       {Type: graphql.NewNonNull(graphql.Float)},
			"lng":       {Type: graphql.NewNonNull(graphql.Float)},
			"accuracy":  {Type: graphql.Float},
			"speed":     {Type: graphql.Float},
			"heading":   {Type: graphql.Float},
			"payload":   {Type: jsonScalar},
		},
	})

	snapshotType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LocationSnapshot",
		Fields: graphql.Fields{
			"current": {Type: sampleType},
			"path":    {Type: graphql.NewList(sampleType)},
		},
	})

	jobType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Job",
		Fields: graphql.Fields{
			"id":               {Type: graphql.NewNonNull(graphql.ID)},
			"status":           {Type: graphql.NewNonNull(graphql.String)},
			"completionStatus": {Type: graphql.String},
			"createdAt":        {Type: graphql.String},
			"updatedAt":        {Type: graphql.String},
			"completedAt":      {Type: graphql.String},
		},
	})

	notificationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Notification",
		Fields: graphql.Fields{
			"id":        {Type: graphql.NewNonNull(graphql.ID)},
			"recipient": {Type: graphql.NewNonNull(graphql.String)},
			"kind":      {Type: graphql.String},
			"title":     {Type: graphql.NewNonNull(graphql.String)},
			"body":      {Type: graphql.String},
			"payload":   {Type: jsonScalar},
			"createdAt": {Type: graphql.String},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RelaySession",
		Fields: graphql.Fields{
			"id":         {Type: graphql.NewNonNull(graphql.ID)},
			"model":      {Type: graphql.String},
			"scope":      {Type: graphql.String},
			"outcome":    {Type: graphql.NewNonNull(graphql.String)},
			"deltas":     {Type: graphql.Int},
			"error":      {Type: graphql.String},
			"startedAt":  {Type: graphql.String},
			"durationMs": {Type: graphql.Int},
		},
	})

	queryFields := graphql.Fields{
		"job": {
			Type: jobType,
			Args: graphql.FieldConfigArgument{
				"id": {Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Telemetry == nil {
					return nil, nil
				}
				id, _ := p.Args["id"].(string)
				job, err := b.cfg.Telemetry.Job(p.Context, id)
				if errors.Is(err, store.ErrNotFound) {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return mapJob(job), nil
			},
		},
		"locationSnapshot": {
			Type: snapshotType,
			Args: graphql.FieldConfigArgument{
				"jobId": {Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Telemetry == nil {
					return nil, nil
				}
				id, _ := p.Args["jobId"].(string)
				snap, err := b.cfg.Telemetry.Snapshot(p.Context, id)
				if errors.Is(err, store.ErrNotFound) {
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return mapSnapshot(snap), nil
			},
		},
		"notifications": {
			Type: graphql.NewList(notificationType),
			Args: graphql.FieldConfigArgument{
				"recipient": {Type: graphql.NewNonNull(graphql.String)},
				"limit":     {Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Notifications == nil {
					return []interface{}{}, nil
				}
				recipient, _ := p.Args["recipient"].(string)
				limit := 50
				if l, ok := p.Args["limit"].(int); ok && l > 0 {
					limit = l
				}
				list, err := b.cfg.Notifications.List(p.Context, recipient, limit)
				if err != nil {
					return nil, err
				}
				return mapNotifications(list), nil
			},
		},
		"relaySessions": {
			Type: graphql.NewList(sessionType),
			Args: graphql.FieldConfigArgument{
				"limit": {Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if b.cfg.Sessions == nil {
					return []interface{}{}, nil
				}
				limit := 25
				if l, ok := p.Args["limit"].(int); ok && l > 0 {
					limit = l
				}
				sessions, err := b.cfg.Sessions.ListRelaySessions(p.Context, limit)
				if err != nil {
					return nil, err
				}
				return mapSessions(sessions), nil
			},
		},
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
	if err != nil {
		return nil, err
	}
	return &schema, nil
}
