package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "robolist",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "robolist",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)

	ArtifactUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "robolist",
			Subsystem: "artifacts",
			Name:      "uploads_total",
			Help:      "Total artifact uploads",
		},
		[]string{"artifact_type", "mode"},
	)

	ArtifactUploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "robolist",
			Subsystem: "artifacts",
			Name:      "upload_bytes_total",
			Help:      "Total bytes received through direct uploads",
		},
		[]string{"artifact_type"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "robolist",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limiter",
		},
		[]string{"limiter"},
	)

	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "robolist",
			Subsystem: "listings",
			Name:      "votes_total",
			Help:      "Listing vote changes",
		},
		[]string{"action"},
	)
)
