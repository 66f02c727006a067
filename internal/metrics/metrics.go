// Package metrics provides Prometheus instrumentation for the auction
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ReplicationCalls counts broadcast operations by method and outcome
	// (agreed, disagreed, no_replies).
	ReplicationCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_replication_calls_total",
		Help: "Broadcast operations by method and agreement outcome",
	}, []string{"method", "outcome"})

	// BroadcastLatency tracks how long a fan-out takes to gather replies.
	BroadcastLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auction_broadcast_latency_seconds",
		Help:    "Broadcast round-trip latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// GroupMembers tracks the last observed number of serving replicas.
	GroupMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_group_members",
		Help: "Number of backend replicas observed on the group channel",
	})

	// SettlementRounds counts double-auction settlement rounds delivered.
	SettlementRounds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_settlement_rounds_total",
		Help: "Double-auction settlement rounds fanned out to subscribers",
	})

	// Subscribers tracks connected notification subscribers.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_subscribers",
		Help: "Number of connected notification subscribers",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auction_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
