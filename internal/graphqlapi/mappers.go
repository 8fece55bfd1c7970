package graphqlapi

import (
	"encoding/json"

	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/store"
)

func mapJob(job *store.Job) map[string]interface{} {
	if job == nil {
		return nil
	}
	return map[string]interface{}{
		"id":               job.ID,
		"status":           string(job.Status),
		"completionStatus": job.CompletionStatus,
		"createdAt":        job.CreatedAt,
		"updatedAt":        job.UpdatedAt,
		"completedAt":      job.CompletedAt,
	}
}

func mapSnapshot(snap *feed.LocationSnapshot) map[string]interface{} {
	if snap == nil {
		return nil
	}
	path := make([]interface{}, 0, len(snap.Path))
	for i := range snap.Path {
		path = append(path, mapSample(&snap.Path[i]))
	}
	result := map[string]interface{}{"path": path}
	if snap.Current != nil {
		result["current"] = mapSample(snap.Current)
	}
	return result
}

func mapSample(s *feed.LocationSample) map[string]interface{} {
	result := map[string]interface{}{
		"jobId":     s.JobID,
		"timestamp": s.Timestamp,
		"lat":       s.Lat,
		"lng":       s.Lng,
		"payload":   decodeRaw(s.Payload),
	}
	if s.Accuracy != nil {
		result["accuracy"] = *s.Accuracy
	}
	if s.Speed != nil {
		result["speed"] = *s.Speed
	}
	if s.Heading != nil {
		result["heading"] = *s.Heading
	}
	return result
}

func mapNotifications(list []feed.Notification) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, n := range list {
		out = append(out, map[string]interface{}{
			"id":        n.ID,
			"recipient": n.Recipient,
			"kind":      n.Kind,
			"title":     n.Title,
			"body":      n.Body,
			"payload":   decodeRaw(n.Payload),
			"createdAt": n.CreatedAt,
		})
	}
	return out
}

func mapSessions(sessions []store.RelaySession) []interface{} {
	out := make([]interface{}, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, map[string]interface{}{
			"id":         s.ID,
			"model":      s.Model,
			"scope":      s.Scope,
			"outcome":    s.Outcome,
			"deltas":     s.Deltas,
			"error":      s.Error,
			"startedAt":  s.StartedAt,
			"durationMs": s.DurationMS,
		})
	}
	return out
}

func decodeRaw(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
