package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthchat_http_requests_total",
			Help: "Total HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	// Backend client metrics
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthchat_backend_requests_total",
			Help: "Total requests issued to the health backend",
		},
		[]string{"operation", "result"}, // result: ok, reported, transport
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthchat_backend_request_duration_seconds",
			Help:    "Health backend request duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	// Conversation metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthchat_turns_total",
			Help: "Conversation turns by request shape and outcome",
		},
		[]string{"shape", "outcome"}, // shape: chat, image
	)

	StaleResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthchat_stale_responses_total",
			Help: "Responses discarded because the active conversation changed",
		},
	)

	HistoryLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthchat_history_loads_total",
			Help: "Session history loads",
		},
		[]string{"result"}, // loaded, failed, superseded
	)

	SessionsBound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthchat_sessions_bound_total",
			Help: "Fresh conversations bound to a server-assigned session id",
		},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthchat_event_subscribers",
			Help: "Currently connected state event subscribers",
		},
	)
)
