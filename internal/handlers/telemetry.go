package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/ol-advisor-relay/internal/events"
	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/jobs"
	"github.com/oremus-labs/ol-advisor-relay/internal/sse"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
	"github.com/oremus-labs/ol-advisor-relay/internal/validator"
)

type completeRequest struct {
	Status string `json:"status"`
}

// RecordLocation accepts a sample for a job. With a telemetry queue the
// sample is validated and queued (202); otherwise it is stored inline (200).
func (h *Handler) RecordLocation(c *gin.Context) {
	if h.jobs == nil {
		unavailable(c, "telemetry")
		return
	}
	body, ok := h.readValidated(c, validator.KindLocation)
	if !ok {
		return
	}
	var sample feed.LocationSample
	if err := json.Unmarshal(body, &sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sample.JobID = c.Param("id")

	if h.queue != nil && h.queue.Enabled() {
		normalized, err := jobs.Normalize(sample)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := h.queue.Enqueue(c.Request.Context(), normalized)
		if err != nil {
			log.Printf("Failed to queue sample for job %s: %v", normalized.JobID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue sample"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "messageId": id, "sample": normalized})
		return
	}

	res, err := h.jobs.RecordLocation(c.Request.Context(), sample)
	if err != nil {
		writeJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// LocationSnapshot returns the job's current position and recent path.
func (h *Handler) LocationSnapshot(c *gin.Context) {
	if h.jobs == nil {
		unavailable(c, "telemetry")
		return
	}
	snap, err := h.jobs.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// CompleteJob marks a job complete and ends its live feed.
func (h *Handler) CompleteJob(c *gin.Context) {
	if h.jobs == nil {
		unavailable(c, "telemetry")
		return
	}
	var req completeRequest
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	job, err := h.jobs.Complete(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// LocationStream streams location events for a job until it completes.
func (h *Handler) LocationStream(c *gin.Context) {
	if h.jobs == nil {
		unavailable(c, "telemetry")
		return
	}
	jobID := c.Param("id")
	h.serveFeed(c, feedStream{
		name:  "location",
		topic: feed.JobTopic(jobID),
		replay: func(w *sse.Writer) bool {
			job, err := h.jobs.Job(c.Request.Context(), jobID)
			if err != nil || job.Status != store.JobCompleted {
				return false
			}
			_ = w.Send(feed.EventCompleted, feed.Completion{Status: job.CompletionStatus})
			return true
		},
		final: func(evt events.Event) bool {
			return evt.Type == feed.EventCompleted
		},
	})
}

func writeJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidSample):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, jobs.ErrJobCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "no location data"})
	default:
		log.Printf("Telemetry request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "telemetry request failed"})
	}
}
