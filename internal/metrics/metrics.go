// Package metrics holds the process-wide Prometheus collectors
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coinwatch"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route template and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route template.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_ticks_total",
		Help:      "Market poller ticks by result (ok, error, panic, stale).",
	}, []string{"result"})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_duration_seconds",
		Help:      "Duration of one market poll.",
		Buckets:   prometheus.DefBuckets,
	})

	PollSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "poll_subscribers",
		Help:      "Current number of market update subscribers.",
	})

	PollDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_updates_dropped_total",
		Help:      "Updates skipped because a subscriber was not keeping up.",
	})

	UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Market data upstream calls by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	RateLimitWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ratelimit_wait_seconds",
		Help:      "Time spent waiting for an upstream rate limit token.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})

	RateLimitTimeoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_timeouts_total",
		Help:      "Rate limit waits abandoned because the context ended.",
	})

	ResetsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_resets_purged_total",
		Help:      "Expired password reset tokens cleared by the janitor.",
	})
)
