package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/logutil"
	"github.com/oremus-labs/ol-advisor-relay/internal/metrics"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
)

var (
	// ErrInvalidSample is returned for samples that cannot be stored.
	ErrInvalidSample = errors.New("invalid location sample")
	// ErrJobCompleted is returned when a completed job receives a sample.
	ErrJobCompleted = errors.New("job already completed")
)

// Manager records telemetry for tracked jobs and publishes it on the job feed.
type Manager struct {
	store     locationStore
	snapshots snapshotReader
	events    eventPublisher
}

type locationStore interface {
	EnsureJob(ctx context.Context, id string) (*store.Job, error)
	GetJob(ctx context.Context, id string) (*store.Job, error)
	CompleteJob(ctx context.Context, id, status string) (*store.Job, error)
	InsertLocation(ctx context.Context, sample feed.LocationSample) (bool, error)
}

type snapshotReader interface {
	Snapshot(ctx context.Context, jobID string) (*feed.LocationSnapshot, error)
	Invalidate(ctx context.Context, jobID string)
}

type eventPublisher interface {
	Publish(ctx context.Context, topic, typ string, data any) error
}

// Options configures the job manager.
type Options struct {
	Store          locationStore
	Snapshots      snapshotReader
	EventPublisher eventPublisher
}

// New creates a job manager.
func New(opts Options) *Manager {
	return &Manager{
		store:     opts.Store,
		snapshots: opts.Snapshots,
		events:    opts.EventPublisher,
	}
}

// RecordResult reports what RecordLocation did with a sample.
type RecordResult struct {
	Stored bool                `json:"stored"`
	Sample feed.LocationSample `json:"sample"`
}

// RecordLocation validates, stores and publishes a sample. A sample whose
// timestamp is already recorded for the job is accepted but not republished.
func (m *Manager) RecordLocation(ctx context.Context, sample feed.LocationSample) (*RecordResult, error) {
	normalized, err := Normalize(sample)
	if err != nil {
		metrics.SampleIngested("invalid")
		return nil, err
	}

	job, err := m.store.EnsureJob(ctx, normalized.JobID)
	if err != nil {
		metrics.SampleIngested("failed")
		return nil, err
	}
	if job.Status == store.JobCompleted {
		metrics.SampleIngested("rejected")
		return nil, fmt.Errorf("%w: %s", ErrJobCompleted, job.ID)
	}

	inserted, err := m.store.InsertLocation(ctx, normalized)
	if err != nil {
		metrics.SampleIngested("failed")
		return nil, err
	}
	if !inserted {
		metrics.SampleIngested("duplicate")
		return &RecordResult{Stored: false, Sample: normalized}, nil
	}
	metrics.SampleIngested("stored")

	if m.snapshots != nil {
		m.snapshots.Invalidate(ctx, normalized.JobID)
	}
	m.publish(ctx, feed.JobTopic(normalized.JobID), feed.EventLocation, normalized)
	return &RecordResult{Stored: true, Sample: normalized}, nil
}

// Complete marks the job completed and publishes the completion once.
func (m *Manager) Complete(ctx context.Context, jobID, status string) (*store.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("%w: job id required", ErrInvalidSample)
	}
	if status == "" {
		status = "completed"
	}
	before, err := m.store.GetJob(ctx, jobID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	job, err := m.store.CompleteJob(ctx, jobID, status)
	if err != nil {
		return nil, err
	}
	if before != nil && before.Status == store.JobCompleted {
		return job, nil
	}
	if m.snapshots != nil {
		m.snapshots.Invalidate(ctx, jobID)
	}
	m.publish(ctx, feed.JobTopic(jobID), feed.EventCompleted, feed.Completion{Status: job.CompletionStatus})
	logutil.Info("job_completed", map[string]interface{}{"jobId": jobID, "status": job.CompletionStatus})
	return job, nil
}

// Snapshot returns the job's current location and recent path.
func (m *Manager) Snapshot(ctx context.Context, jobID string) (*feed.LocationSnapshot, error) {
	if m.snapshots == nil {
		return nil, errors.New("snapshots unavailable")
	}
	return m.snapshots.Snapshot(ctx, jobID)
}

// Job returns the stored job.
func (m *Manager) Job(ctx context.Context, jobID string) (*store.Job, error) {
	return m.store.GetJob(ctx, jobID)
}

func (m *Manager) publish(ctx context.Context, topic, typ string, data any) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, topic, typ, data); err != nil {
		logutil.Error("feed_publish_failed", err, map[string]interface{}{"topic": topic, "type": typ})
	}
}

// Normalize checks a sample and returns it with a canonical timestamp.
func Normalize(sample feed.LocationSample) (feed.LocationSample, error) {
	sample.JobID = strings.TrimSpace(sample.JobID)
	if sample.JobID == "" {
		return sample, fmt.Errorf("%w: job id required", ErrInvalidSample)
	}
	ts, err := feed.NormalizeTimestamp(sample.Timestamp)
	if err != nil {
		return sample, fmt.Errorf("%w: %v", ErrInvalidSample, err)
	}
	sample.Timestamp = ts
	if !finite(sample.Lat) || sample.Lat < -90 || sample.Lat > 90 {
		return sample, fmt.Errorf("%w: latitude %v out of range", ErrInvalidSample, sample.Lat)
	}
	if !finite(sample.Lng) || sample.Lng < -180 || sample.Lng > 180 {
		return sample, fmt.Errorf("%w: longitude %v out of range", ErrInvalidSample, sample.Lng)
	}
	return sample, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
