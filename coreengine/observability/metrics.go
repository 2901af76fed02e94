// Package observability provides Prometheus metrics, OpenTelemetry tracing
// and the structured logger used by the service layer.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// TURN METRICS
// =============================================================================

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selene_turns_total",
			Help: "Total number of capability turns",
		},
		[]string{"domain", "outcome"}, // outcome: forwarded, refused, not_invoked_*, error
	)

	turnDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "selene_turn_duration_seconds",
			Help:    "Capability turn duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"domain"},
	)

	refusalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selene_refusals_total",
			Help: "Refused turns by reason class",
		},
		[]string{"domain", "reason_class"},
	)
)

// =============================================================================
// STORAGE METRICS
// =============================================================================

var storeCommitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "selene_store_commits_total",
		Help: "Work-order event commits",
	},
	[]string{"backend", "result"}, // result: committed, duplicate, error
)

// =============================================================================
// KERNEL METRICS
// =============================================================================

var (
	maintenanceCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selene_maintenance_cycles_total",
			Help: "Completed maintenance cycles",
		},
	)

	rateWindowsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "selene_rate_windows_cleaned_total",
			Help: "Idle tenant rate windows removed by maintenance",
		},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selene_rate_limited_total",
			Help: "Quota turns that arrived over the tenant rate limit",
		},
		[]string{"window"},
	)
)

// =============================================================================
// GRPC METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selene_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"},
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "selene_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordTurn records one turn. reasonClass is empty unless the turn was
// refused.
func RecordTurn(domain, outcome, reasonClass string, durationMS float64) {
	turnsTotal.WithLabelValues(domain, outcome).Inc()
	turnDurationSeconds.WithLabelValues(domain).Observe(durationMS / 1000.0)
	if reasonClass != "" {
		refusalsTotal.WithLabelValues(domain, reasonClass).Inc()
	}
}

// RecordCommit records one event-store commit.
func RecordCommit(backend, result string) {
	storeCommitsTotal.WithLabelValues(backend, result).Inc()
}

// RecordMaintenanceCycle records a finished maintenance pass.
func RecordMaintenanceCycle(windowsCleaned int) {
	maintenanceCyclesTotal.Inc()
	rateWindowsCleanedTotal.Add(float64(windowsCleaned))
}

// RecordRateLimited records a turn that exceeded a tenant rate window.
func RecordRateLimited(window string) {
	rateLimitedTotal.WithLabelValues(window).Inc()
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
