package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/events"
	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/snapshotcache"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "state.db"), "sqlite")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func newTestManager(t *testing.T) (*Manager, *events.Bus) {
	t.Helper()
	s := openTestStore(t)
	bus := events.NewBus(events.Options{})
	m := New(Options{
		Store:          s,
		Snapshots:      snapshotcache.New(snapshotcache.Options{Source: s}),
		EventPublisher: bus,
	})
	return m, bus
}

func nextEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatalf("no event published")
	}
	return events.Event{}
}

func TestRecordLocationPublishesOnce(t *testing.T) {
	t.Parallel()

	m, bus := newTestManager(t)
	ctx := context.Background()
	ch, cancel := bus.Subscribe(ctx, feed.JobTopic("job-1"))
	defer cancel()

	sample := feed.LocationSample{JobID: "job-1", Timestamp: "2026-05-01T10:00:00+02:00", Lat: 52.5, Lng: 13.4}
	res, err := m.RecordLocation(ctx, sample)
	if err != nil {
		t.Fatalf("RecordLocation: %v", err)
	}
	if !res.Stored || res.Sample.Timestamp != "2026-05-01T08:00:00.000000000Z" {
		t.Fatalf("unexpected result %+v", res)
	}
	evt := nextEvent(t, ch)
	var got feed.LocationSample
	if err := evt.Decode(&got); err != nil || evt.Type != feed.EventLocation || got.Lat != 52.5 {
		t.Fatalf("unexpected event %+v (%v)", evt, err)
	}

	dup, err := m.RecordLocation(ctx, sample)
	if err != nil || dup.Stored {
		t.Fatalf("duplicate should be accepted without storing: %+v %v", dup, err)
	}
	select {
	case evt := <-ch:
		t.Fatalf("duplicate was republished: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}

	snap, err := m.Snapshot(ctx, "job-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Current == nil || len(snap.Path) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRecordLocationRejectsInvalidSamples(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	cases := []feed.LocationSample{
		{Timestamp: "2026-05-01T10:00:00Z"},
		{JobID: "j", Timestamp: "not a time"},
		{JobID: "j", Timestamp: "2026-05-01T10:00:00Z", Lat: 91},
		{JobID: "j", Timestamp: "2026-05-01T10:00:00Z", Lng: -200},
	}
	for _, sample := range cases {
		if _, err := m.RecordLocation(context.Background(), sample); !errors.Is(err, ErrInvalidSample) {
			t.Fatalf("sample %+v: expected ErrInvalidSample, got %v", sample, err)
		}
	}
}

func TestCompletePublishesOnceAndBlocksSamples(t *testing.T) {
	t.Parallel()

	m, bus := newTestManager(t)
	ctx := context.Background()
	ch, cancel := bus.Subscribe(ctx, feed.JobTopic("job-2"))
	defer cancel()

	job, err := m.Complete(ctx, "job-2", "delivered")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if job.Status != store.JobCompleted {
		t.Fatalf("unexpected job %+v", job)
	}
	evt := nextEvent(t, ch)
	var c feed.Completion
	if err := evt.Decode(&c); err != nil || evt.Type != feed.EventCompleted || c.Status != "delivered" {
		t.Fatalf("unexpected completion event %+v", evt)
	}

	if _, err := m.Complete(ctx, "job-2", "again"); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	select {
	case evt := <-ch:
		t.Fatalf("completion republished: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = m.RecordLocation(ctx, feed.LocationSample{JobID: "job-2", Timestamp: "2026-05-01T10:00:00Z"})
	if !errors.Is(err, ErrJobCompleted) {
		t.Fatalf("expected ErrJobCompleted, got %v", err)
	}
}

func TestSnapshotUnknownJob(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	if _, err := m.Snapshot(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
