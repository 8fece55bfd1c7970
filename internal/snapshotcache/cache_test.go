package snapshotcache

import (
	"context"
	"errors"
	"testing"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
)

type fakeSource struct {
	calls int
	limit int
	snap  *feed.LocationSnapshot
	err   error
}

func (f *fakeSource) LocationSnapshot(ctx context.Context, jobID string, limit int) (*feed.LocationSnapshot, error) {
	f.calls++
	f.limit = limit
	return f.snap, f.err
}

func TestSnapshotFallsBackToSource(t *testing.T) {
	t.Parallel()

	src := &fakeSource{snap: &feed.LocationSnapshot{Path: []feed.LocationSample{{Timestamp: "t1"}}}}
	c := New(Options{Source: src, PathLimit: 50})

	snap, err := c.Snapshot(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Path) != 1 || src.calls != 1 || src.limit != 50 {
		t.Fatalf("unexpected snapshot %+v calls=%d limit=%d", snap, src.calls, src.limit)
	}
	c.Invalidate(context.Background(), "job-1")
}

func TestSnapshotPropagatesSourceErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	c := New(Options{Source: &fakeSource{err: boom}})
	if _, err := c.Snapshot(context.Background(), "job-1"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := c.Snapshot(context.Background(), " "); err == nil {
		t.Fatalf("expected error for empty job id")
	}
}
