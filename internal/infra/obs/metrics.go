package obs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Application bus
	BusRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindbossing_bus_requests_total",
			Help: "Commands and queries by key and outcome",
		},
		[]string{"kind", "key", "outcome"},
	)

	BusRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kindbossing_bus_request_duration_seconds",
			Help:    "Command and query latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "key"},
	)

	// HTTP
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindbossing_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	// Realtime
	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kindbossing_realtime_connections",
			Help: "Open websocket connections",
		},
	)

	RealtimeEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindbossing_realtime_events_total",
			Help: "Events pushed to websocket clients",
		},
		[]string{"type"},
	)

	RealtimeDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kindbossing_realtime_dropped_total",
			Help: "Events dropped because a client fell behind",
		},
	)

	// Outbox
	OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindbossing_outbox_published_total",
			Help: "Outbox records published to the broker",
		},
		[]string{"event"},
	)

	OutboxFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kindbossing_outbox_failures_total",
			Help: "Outbox publish attempts that failed",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(
		BusRequestsTotal,
		BusRequestDuration,
		HTTPRequestsTotal,
		RealtimeConnections,
		RealtimeEventsTotal,
		RealtimeDropped,
		OutboxPublished,
		OutboxFailures,
	)
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// ObserveBus records bus outcomes and logs failures. It matches
// middleware.ObserveFunc.
func ObserveBus(logger *slog.Logger) func(ctx context.Context, kind, key string, elapsed time.Duration, err error) {
	return func(ctx context.Context, kind, key string, elapsed time.Duration, err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		BusRequestsTotal.WithLabelValues(kind, key, outcome).Inc()
		BusRequestDuration.WithLabelValues(kind, key).Observe(elapsed.Seconds())
		if err != nil && logger != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("bus request failed", "kind", kind, "key", key, "duration", elapsed, "request_id", RequestIDFromContext(ctx), "error", err)
		}
	}
}
