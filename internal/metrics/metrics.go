package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deskcraft/edge-gateway/internal/circuitbreaker"
)

var (
	// RequestsTotal counts forwarded requests by backend and status code.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of requests forwarded to backends",
		},
		[]string{"backend", "code"},
	)

	// RequestDuration observes backend call latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of forwarded backend requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// RejectedTotal counts requests short-circuited by an open breaker.
	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_open_rejections_total",
			Help: "Total number of requests rejected because the circuit was open",
		},
		[]string{"backend"},
	)

	// RoutingMissesTotal counts requests matching no routing rule.
	RoutingMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_routing_misses_total",
			Help: "Total number of requests that matched no routing rule",
		},
	)

	// BreakerState shows the current breaker state per backend.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"backend"},
	)

	// BreakerTransitionsTotal counts breaker state changes.
	BreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"backend", "from", "to"},
	)
)

// ObserveRequest records one forwarded request.
func ObserveRequest(backend string, code int, duration time.Duration) {
	RequestsTotal.WithLabelValues(backend, strconv.Itoa(code)).Inc()
	RequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordRejected records a circuit-open short circuit.
func RecordRejected(backend string) {
	RejectedTotal.WithLabelValues(backend).Inc()
}

// RecordRoutingMiss records a request that matched no rule.
func RecordRoutingMiss() {
	RoutingMissesTotal.Inc()
}

// RecordStateChange records a breaker transition.
func RecordStateChange(backend string, from, to circuitbreaker.State) {
	BreakerTransitionsTotal.WithLabelValues(backend, from.String(), to.String()).Inc()
	BreakerState.WithLabelValues(backend).Set(float64(to))
}

// OnStateChange returns a breaker callback that records transitions.
func OnStateChange() func(name string, from, to circuitbreaker.State) {
	return RecordStateChange
}

// Handler exposes the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
