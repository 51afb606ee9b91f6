package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Activations records activation attempts by entry path (webhook|finalize|invitation)
	// and result (created|duplicate|error).
	Activations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proserve_activations_total",
			Help: "Total number of activation attempts",
		},
		[]string{"path", "result"},
	)

	// WebhookEvents counts received gateway webhook events by type and outcome.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proserve_webhook_events_total",
			Help: "Total number of payment gateway webhook deliveries",
		},
		[]string{"type", "result"},
	)

	// CheckoutSessions counts checkout session creations (created|rejected|error).
	CheckoutSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proserve_checkout_sessions_total",
			Help: "Total number of checkout session creation attempts",
		},
		[]string{"result"},
	)

	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proserve_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proserve_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
