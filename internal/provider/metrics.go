package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devpulse_provider_requests_total",
		Help: "Provider fetches by kind and classified status",
	}, []string{"kind", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devpulse_provider_request_duration_seconds",
		Help:    "Provider fetch latency including rate limiter wait",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devpulse_provider_breaker_state",
		Help: "Provider circuit breaker state (0 closed, 1 half-open, 2 open)",
	})
)
