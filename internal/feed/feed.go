// Package feed defines the wire types shared by the live telemetry and
// notification streams and their consumers.
package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names carried on the outbound event streams.
const (
	EventConnected    = "connected"
	EventPrompt       = "prompt"
	EventDelta        = "delta"
	EventDone         = "done"
	EventServerError  = "server_error"
	EventLocation     = "location"
	EventCompleted    = "completed"
	EventNotification = "notification"
)

// LocationSample is a point-in-time position report for a job.
type LocationSample struct {
	JobID     string          `json:"jobId,omitempty"`
	Timestamp string          `json:"timestamp"`
	Lat       float64         `json:"lat"`
	Lng       float64         `json:"lng"`
	Accuracy  *float64        `json:"accuracy,omitempty"`
	Speed     *float64        `json:"speed,omitempty"`
	Heading   *float64        `json:"heading,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// LocationSnapshot is the initial state served before a live subscription opens.
type LocationSnapshot struct {
	Current *LocationSample  `json:"current"`
	Path    []LocationSample `json:"path"`
}

// Notification is a user-facing notice pushed on the notification feed.
type Notification struct {
	ID        string          `json:"id"`
	Recipient string          `json:"recipient"`
	Kind      string          `json:"kind,omitempty"`
	Title     string          `json:"title"`
	Body      string          `json:"body,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt string          `json:"createdAt"`
}

// Completion is the payload of the completed event.
type Completion struct {
	Status string `json:"status"`
}

// JobTopic returns the bus topic carrying a job's telemetry.
func JobTopic(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// NotificationTopic returns the bus topic carrying a recipient's notifications.
func NotificationTopic(recipient string) string {
	return fmt.Sprintf("notifications:%s", recipient)
}

// TimeLayout is the fixed-width UTC layout used for stored timestamps, so
// that lexical order matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// NormalizeTimestamp parses an RFC 3339 timestamp and renders it in
// TimeLayout.
func NormalizeTimestamp(s string) (string, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return "", fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return FormatTime(t), nil
}
