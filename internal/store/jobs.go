package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
)

// JobStatus is the lifecycle state of a tracked job.
type JobStatus string

const (
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
)

// Job is a unit of work whose location is tracked.
type Job struct {
	ID               string    `json:"id"`
	Status           JobStatus `json:"status"`
	CompletionStatus string    `json:"completionStatus,omitempty"`
	CreatedAt        string    `json:"createdAt"`
	UpdatedAt        string    `json:"updatedAt"`
	CompletedAt      string    `json:"completedAt,omitempty"`
}

// EnsureJob creates the job if it does not exist yet and returns it.
func (s *Store) EnsureJob(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, errors.New("job id required")
	}
	now := feed.FormatTime(time.Now())
	if _, err := s.exec(ctx, `INSERT INTO jobs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, id, JobActive, now, now); err != nil {
		return nil, fmt.Errorf("ensure job %s: %w", id, err)
	}
	return s.GetJob(ctx, id)
}

// GetJob loads a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.queryRow(ctx, `SELECT id, status, completion_status, created_at, updated_at, completed_at FROM jobs WHERE id = ?`, id)
	var (
		job        Job
		completion sql.NullString
		completed  sql.NullString
	)
	if err := row.Scan(&job.ID, &job.Status, &completion, &job.CreatedAt, &job.UpdatedAt, &completed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job.CompletionStatus = completion.String
	job.CompletedAt = completed.String
	return &job, nil
}

// CompleteJob marks the job completed with status. Completing twice keeps the
// first result.
func (s *Store) CompleteJob(ctx context.Context, id, status string) (*Job, error) {
	if _, err := s.EnsureJob(ctx, id); err != nil {
		return nil, err
	}
	now := feed.FormatTime(time.Now())
	if _, err := s.exec(ctx, `UPDATE jobs SET status = ?, completion_status = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status <> ?`, JobCompleted, status, now, now, id, JobCompleted); err != nil {
		return nil, fmt.Errorf("complete job %s: %w", id, err)
	}
	return s.GetJob(ctx, id)
}

// InsertLocation stores a sample. The timestamp must already be normalized
// with feed.NormalizeTimestamp. inserted is false for a duplicate timestamp.
func (s *Store) InsertLocation(ctx context.Context, sample feed.LocationSample) (bool, error) {
	if sample.JobID == "" || sample.Timestamp == "" {
		return false, errors.New("location sample requires job id and timestamp")
	}
	res, err := s.exec(ctx, `INSERT INTO locations (job_id, ts, lat, lng, accuracy, speed, heading, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (job_id, ts) DO NOTHING`,
		sample.JobID, sample.Timestamp, sample.Lat, sample.Lng,
		nullFloat(sample.Accuracy), nullFloat(sample.Speed), nullFloat(sample.Heading),
		nullString(string(sample.Payload)),
	)
	if err != nil {
		return false, fmt.Errorf("insert location for %s: %w", sample.JobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if _, err := s.exec(ctx, `UPDATE jobs SET updated_at = ? WHERE id = ?`, feed.FormatTime(time.Now()), sample.JobID); err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecentLocations returns the newest limit samples of a job, oldest first.
func (s *Store) RecentLocations(ctx context.Context, jobID string, limit int) ([]feed.LocationSample, error) {
	rows, err := s.query(ctx, `SELECT job_id, ts, lat, lng, accuracy, speed, heading, payload FROM locations
		WHERE job_id = ? ORDER BY ts DESC`+limitClause(limit), jobID)
	if err != nil {
		return nil, fmt.Errorf("list locations for %s: %w", jobID, err)
	}
	defer rows.Close()

	var samples []feed.LocationSample
	for rows.Next() {
		var (
			sample                   feed.LocationSample
			accuracy, speed, heading sql.NullFloat64
			payload                  sql.NullString
		)
		if err := rows.Scan(&sample.JobID, &sample.Timestamp, &sample.Lat, &sample.Lng, &accuracy, &speed, &heading, &payload); err != nil {
			return nil, err
		}
		sample.Accuracy = floatPtr(accuracy)
		sample.Speed = floatPtr(speed)
		sample.Heading = floatPtr(heading)
		if payload.Valid && json.Valid([]byte(payload.String)) {
			sample.Payload = json.RawMessage(payload.String)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

// LocationSnapshot returns the current sample and recent path of a job.
func (s *Store) LocationSnapshot(ctx context.Context, jobID string, limit int) (*feed.LocationSnapshot, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	path, err := s.RecentLocations(ctx, jobID, limit)
	if err != nil {
		return nil, err
	}
	snap := &feed.LocationSnapshot{Path: path}
	if snap.Path == nil {
		snap.Path = []feed.LocationSample{}
	}
	if n := len(path); n > 0 {
		cur := path[n-1]
		snap.Current = &cur
	}
	return snap, nil
}
