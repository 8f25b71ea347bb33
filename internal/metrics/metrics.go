// Marquee - Event Edge Gateway & Canonicalization Layer
// Copyright 2026 Marquee Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/marqueehq/marquee

// Package metrics provides Prometheus instrumentation for the gateway:
// request latency and status by endpoint, upstream latency by backend, and
// auth/rate-limit outcomes. Exposed on /metrics via promhttp.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestDuration tracks request latency by method, endpoint and status.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIRequestsTotal counts requests by method, endpoint and status.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// ActiveRequests tracks in-flight requests.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "marquee_api_active_requests",
			Help: "Number of API requests currently being processed",
		},
	)

	// UpstreamDuration tracks adapter call latency by backend and operation.
	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marquee_upstream_duration_seconds",
			Help:    "Duration of backend adapter calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// UpstreamErrors counts classified upstream failures by backend and code.
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_upstream_errors_total",
			Help: "Total classified upstream failures",
		},
		[]string{"backend", "code"},
	)

	// AuthFailures counts authentication failures by reason.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_auth_failures_total",
			Help: "Total authentication failures",
		},
		[]string{"reason"},
	)

	// Lockouts counts client identifier lockouts.
	Lockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_auth_lockouts_total",
			Help: "Total client identifier lockouts",
		},
	)

	// RateLimited counts rejected requests.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "marquee_rate_limited_total",
			Help: "Total requests rejected by the rate limiter",
		},
	)

	// ShortlinkResolves counts resolves by outcome.
	ShortlinkResolves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_shortlink_resolves_total",
			Help: "Total shortlink resolutions",
		},
		[]string{"outcome"},
	)

	// AnalyticsRecords counts appended analytics records by metric.
	AnalyticsRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marquee_analytics_records_total",
			Help: "Total appended analytics records",
		},
		[]string{"metric"},
	)
)

// RecordAPIRequest records one completed request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

// TrackActiveRequest adjusts the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		ActiveRequests.Inc()
	} else {
		ActiveRequests.Dec()
	}
}

// RecordUpstream records one adapter call.
func RecordUpstream(backendName, operation string, duration time.Duration) {
	UpstreamDuration.WithLabelValues(backendName, operation).Observe(duration.Seconds())
}

// RecordUpstreamError records one classified upstream failure.
func RecordUpstreamError(backendName, code string) {
	UpstreamErrors.WithLabelValues(backendName, code).Inc()
}
