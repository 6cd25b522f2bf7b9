package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by flow (signup|login|verify|resend|google) and result.
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notely_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"flow", "result"},
	)

	// OTPIssued counts one-time codes generated and whether the email went out (sent|skipped|failed).
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notely_otp_issued_total",
			Help: "Total number of one-time codes issued",
		},
		[]string{"delivery"},
	)

	// OTPVerifications counts verification outcomes (success|mismatch|expired|not_issued).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notely_otp_verifications_total",
			Help: "Total number of one-time code verifications",
		},
		[]string{"result"},
	)

	// NoteOperations counts note mutations and reads by operation.
	NoteOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notely_note_operations_total",
			Help: "Total number of note operations",
		},
		[]string{"operation", "result"},
	)

	// RateLimited counts requests rejected by a rate limit policy.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notely_rate_limited_total",
			Help: "Total number of rate limited requests",
		},
		[]string{"policy"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notely_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
