package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentAttempts counts gateway charge attempts by outcome
	// (success, declined, error).
	PaymentAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_payment_attempts_total",
			Help: "Total number of gateway charge attempts by outcome",
		},
		[]string{"outcome"},
	)

	// WebhookEvents counts processed gateway webhook events by type and
	// result (processed, ignored, replay, invalid).
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_webhook_events_total",
			Help: "Total number of gateway webhook events by type and result",
		},
		[]string{"event_type", "result"},
	)

	// LeadTransitions counts lead status transitions.
	LeadTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_lead_transitions_total",
			Help: "Total number of lead status transitions",
		},
		[]string{"from", "to"},
	)

	// HTTPRequests counts API requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentra_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPDuration observes request latency by route.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentra_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
