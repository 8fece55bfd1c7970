package graphqlapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
)

type fakeTelemetry struct{}

func (fakeTelemetry) Job(_ context.Context, id string) (*store.Job, error) {
	if id != "j1" {
		return nil, store.ErrNotFound
	}
	return &store.Job{ID: "j1", Status: store.JobCompleted, CompletionStatus: "delivered"}, nil
}

func (fakeTelemetry) Snapshot(_ context.Context, id string) (*feed.LocationSnapshot, error) {
	if id != "j1" {
		return nil, store.ErrNotFound
	}
	s := feed.LocationSample{JobID: "j1", Timestamp: "2026-01-01T00:00:00.000000000Z", Lat: 1.5, Lng: 2.5}
	return &feed.LocationSnapshot{Current: &s, Path: []feed.LocationSample{s}}, nil
}

type fakeNotifications struct {
	gotLimit int
}

func (f *fakeNotifications) List(_ context.Context, recipient string, limit int) ([]feed.Notification, error) {
	f.gotLimit = limit
	return []feed.Notification{{ID: "n1", Recipient: recipient, Title: "hello", Payload: json.RawMessage(`{"sku":"A"}`)}}, nil
}

type fakeSessions struct{}

func (fakeSessions) ListRelaySessions(context.Context, int) ([]store.RelaySession, error) {
	return []store.RelaySession{{ID: "rs1", Outcome: "done", Deltas: 3, DurationMS: 1200}}, nil
}

func query(t *testing.T, h http.Handler, q string) map[string]interface{} {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"query": q})
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var resp struct {
		Data   map[string]interface{} `json:"data"`
		Errors []interface{}          `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v (%s)", err, w.Body.String())
	}
	if len(resp.Errors) > 0 {
		t.Fatalf("graphql errors: %v", resp.Errors)
	}
	return resp.Data
}

func TestQueries(t *testing.T) {
	t.Parallel()

	notes := &fakeNotifications{}
	h, err := NewHandler(Config{Telemetry: fakeTelemetry{}, Notifications: notes, Sessions: fakeSessions{}})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	data := query(t, h, `{ job(id: "j1") { status completionStatus } locationSnapshot(jobId: "j1") { current { lat } path { timestamp } } }`)
	job := data["job"].(map[string]interface{})
	if job["status"] != "completed" || job["completionStatus"] != "delivered" {
		t.Fatalf("unexpected job %v", job)
	}
	snap := data["locationSnapshot"].(map[string]interface{})
	if snap["current"].(map[string]interface{})["lat"] != 1.5 || len(snap["path"].([]interface{})) != 1 {
		t.Fatalf("unexpected snapshot %v", snap)
	}

	data = query(t, h, `{ job(id: "nope") { id } locationSnapshot(jobId: "nope") { path { lat } } }`)
	if data["job"] != nil || data["locationSnapshot"] != nil {
		t.Fatalf("unknown job should resolve to null: %v", data)
	}

	data = query(t, h, `{ notifications(recipient: "ops", limit: 5) { id payload } relaySessions { id outcome durationMs } }`)
	list := data["notifications"].([]interface{})
	if len(list) != 1 || notes.gotLimit != 5 {
		t.Fatalf("unexpected notifications %v (limit %d)", list, notes.gotLimit)
	}
	payload := list[0].(map[string]interface{})["payload"].(map[string]interface{})
	if payload["sku"] != "A" {
		t.Fatalf("unexpected payload %v", payload)
	}
	sessions := data["relaySessions"].([]interface{})
	if len(sessions) != 1 || sessions[0].(map[string]interface{})["durationMs"] != float64(1200) {
		t.Fatalf("unexpected sessions %v", sessions)
	}
}
