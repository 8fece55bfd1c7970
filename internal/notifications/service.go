// Package notifications records user-facing notices and pushes them on the
// recipient's feed.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oremus-labs/ol-advisor-relay/internal/accumulator"
	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/logutil"
)

// ErrInvalid is returned for notifications missing required fields.
var ErrInvalid = errors.New("invalid notification")

type repository interface {
	InsertNotification(ctx context.Context, n feed.Notification) error
	ListNotifications(ctx context.Context, recipient string, limit int) ([]feed.Notification, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, topic, typ string, data any) error
}

// CreateRequest is the input of Create.
type CreateRequest struct {
	Recipient string          `json:"recipient"`
	Kind      string          `json:"kind,omitempty"`
	Title     string          `json:"title"`
	Body      string          `json:"body,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Service creates and lists notifications.
type Service struct {
	repo   repository
	events eventPublisher
	now    func() time.Time
}

// New creates a Service.
func New(repo repository, events eventPublisher) *Service {
	return &Service{repo: repo, events: events, now: time.Now}
}

// Create stores a notification and publishes it to the recipient's feed.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*feed.Notification, error) {
	req.Recipient = strings.TrimSpace(req.Recipient)
	req.Title = strings.TrimSpace(req.Title)
	if req.Recipient == "" || req.Title == "" {
		return nil, fmt.Errorf("%w: recipient and title are required", ErrInvalid)
	}
	n := feed.Notification{
		ID:        uuid.NewString(),
		Recipient: req.Recipient,
		Kind:      req.Kind,
		Title:     req.Title,
		Body:      req.Body,
		Payload:   req.Payload,
		CreatedAt: feed.FormatTime(s.now()),
	}
	if err := s.repo.InsertNotification(ctx, n); err != nil {
		return nil, err
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, feed.NotificationTopic(n.Recipient), feed.EventNotification, n); err != nil {
			logutil.Error("notification_publish_failed", err, map[string]interface{}{"id": n.ID, "recipient": n.Recipient})
		}
	}
	return &n, nil
}

// List returns up to limit notifications for recipient, newest first. The
// limit is clamped to the retained feed size.
func (s *Service) List(ctx context.Context, recipient string, limit int) ([]feed.Notification, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, fmt.Errorf("%w: recipient required", ErrInvalid)
	}
	if limit <= 0 || limit > accumulator.DefaultNotificationLimit {
		limit = accumulator.DefaultNotificationLimit
	}
	items, err := s.repo.ListNotifications(ctx, recipient, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []feed.Notification{}
	}
	return items, nil
}
