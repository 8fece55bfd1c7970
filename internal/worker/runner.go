package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/jobs"
	"github.com/oremus-labs/ol-advisor-relay/internal/logutil"
	"github.com/oremus-labs/ol-advisor-relay/internal/queue"
)

// Consumer is the subset of queue.Consumer the runner needs.
type Consumer interface {
	EnsureGroup(ctx context.Context) error
	Next(ctx context.Context) (*queue.Delivery, error)
	Ack(ctx context.Context, id string) error
}

// Recorder stores one sample.
type Recorder interface {
	RecordLocation(ctx context.Context, sample feed.LocationSample) (*jobs.RecordResult, error)
}

// Options configure the background worker process.
type Options struct {
	Queue    Consumer
	Jobs     Recorder
	Logger   *log.Logger
	Interval time.Duration
}

// Runner drains queued telemetry samples into the job manager.
type Runner struct {
	queue    Consumer
	jobs     Recorder
	logger   *log.Logger
	interval time.Duration
}

// New creates a new Runner.
func New(opts Options) *Runner {
	interval := opts.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Runner{
		queue:    opts.Queue,
		jobs:     opts.Jobs,
		logger:   opts.Logger,
		interval: interval,
	}
}

// Run consumes the queue until ctx is cancelled. Without a queue it only
// logs a heartbeat so the process stays observable.
func (r *Runner) Run(ctx context.Context) error {
	if r.queue == nil {
		r.logger.Println("advisor worker started without a telemetry queue; idling")
		return r.idle(ctx)
	}
	if err := r.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	r.logger.Println("advisor worker started; waiting for telemetry samples")

	for {
		if ctx.Err() != nil {
			r.logger.Println("worker shutting down")
			return ctx.Err()
		}
		delivery, err := r.queue.Next(ctx)
		if err != nil && (delivery == nil || delivery.StreamID == "") {
			if ctx.Err() != nil {
				continue
			}
			logutil.Warn("telemetry_read_failed", err, nil)
			sleep(ctx, r.interval)
			continue
		}
		if delivery == nil {
			continue
		}
		if err != nil {
			logutil.Warn("telemetry_message_dropped", err, map[string]interface{}{"streamId": delivery.StreamID})
			r.ack(ctx, delivery.StreamID)
			continue
		}
		r.process(ctx, delivery)
	}
}

// process records one delivery. Invalid or rejected samples are acked so
// they are not redelivered; storage failures stay pending.
func (r *Runner) process(ctx context.Context, d *queue.Delivery) {
	sample := d.Message.Sample
	res, err := r.jobs.RecordLocation(ctx, sample)
	switch {
	case err == nil:
		logutil.Debug("telemetry_sample_recorded", map[string]interface{}{
			"jobId":     res.Sample.JobID,
			"timestamp": res.Sample.Timestamp,
			"stored":    res.Stored,
		})
	case errors.Is(err, jobs.ErrInvalidSample), errors.Is(err, jobs.ErrJobCompleted):
		logutil.Warn("telemetry_sample_rejected", err, map[string]interface{}{"jobId": sample.JobID, "messageId": d.Message.ID})
	default:
		logutil.Error("telemetry_sample_failed", err, map[string]interface{}{"jobId": sample.JobID, "messageId": d.Message.ID})
		return
	}
	r.ack(ctx, d.StreamID)
}

func (r *Runner) ack(ctx context.Context, id string) {
	if err := r.queue.Ack(ctx, id); err != nil {
		r.logger.Printf("worker: failed to ack %s: %v", id, err)
	}
}

func (r *Runner) idle(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Println("worker shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.logger.Println("worker heartbeat: telemetry queue disabled")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
