package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "advisor_http_requests_total",
		Help: "Total HTTP requests processed by the advisor relay",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advisor_http_request_duration_seconds",
		Help:    "Duration of plain (non-streaming) HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	httpStreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "advisor_http_stream_duration_seconds",
		Help:    "Lifetime of event-stream connections",
		Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
	}, []string{"path"})
)
