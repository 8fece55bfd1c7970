package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advisor_relay_session_duration_seconds",
		Help:    "Duration of advisor relay sessions",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
	}, []string{"outcome"})

	relaySessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_relay_sessions_total",
		Help: "Relay sessions grouped by terminal outcome",
	}, []string{"outcome"})

	relayDeltas = promauto.NewCounter(prometheus.CounterOpts{
		Name: "advisor_relay_deltas_total",
		Help: "Delta events written to relay clients",
	})

	activeStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "advisor_active_streams",
		Help: "Open outbound event streams grouped by feed",
	}, []string{"feed"})

	feedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_feed_events_published_total",
		Help: "Events published on live feeds grouped by event type",
	}, []string{"type"})

	upstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_upstream_errors_total",
		Help: "Relay sessions that failed on the upstream side grouped by kind",
	}, []string{"kind"})

	samplesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_telemetry_samples_total",
		Help: "Location samples ingested grouped by outcome",
	}, []string{"outcome"})
)

// ObserveRelaySession records the outcome of one relay session.
func ObserveRelaySession(outcome string, deltas int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	relayDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	relaySessions.WithLabelValues(outcome).Inc()
	if deltas > 0 {
		relayDeltas.Add(float64(deltas))
	}
}

// UpstreamError counts a failed upstream exchange (status, no_body, transport).
func UpstreamError(kind string) {
	upstreamErrors.WithLabelValues(kind).Inc()
}

// StreamOpened increments the open stream gauge and returns its release func.
func StreamOpened(feed string) func() {
	g := activeStreams.WithLabelValues(feed)
	g.Inc()
	return g.Dec
}

// FeedEventPublished counts a published feed event.
func FeedEventPublished(eventType string) {
	feedEvents.WithLabelValues(eventType).Inc()
}

// SampleIngested counts a location sample by outcome (stored, duplicate, invalid, failed).
func SampleIngested(outcome string) {
	samplesIngested.WithLabelValues(outcome).Inc()
}
