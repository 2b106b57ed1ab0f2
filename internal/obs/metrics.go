// Package obs registers the Prometheus metrics exported by the server.
package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_hits_total",
			Help: "Session handle cache hits by service.",
		},
		[]string{"service"},
	)

	sessionCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_cache_misses_total",
			Help: "Session handle cache misses (handle constructions) by service.",
		},
		[]string{"service"},
	)

	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_mutations_total",
			Help: "Claim mutations by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	rollbackFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "claim_move_rollback_failures_total",
			Help: "Compensating rollbacks that themselves failed, leaving a duplicate claim.",
		},
	)
)

// Init registers all metrics in the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(sessionCacheHits, sessionCacheMisses, mutationsTotal, rollbackFailures,
		httpRequestsTotal, httpRequestDuration, httpInFlight)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SessionCacheHit records a cache hit for the named remote service.
func SessionCacheHit(service string) {
	sessionCacheHits.WithLabelValues(service).Inc()
}

// SessionCacheMiss records a handle construction for the named remote service.
func SessionCacheMiss(service string) {
	sessionCacheMisses.WithLabelValues(service).Inc()
}

// Mutation records a claim mutation attempt. kind is one of
// create/update/remove/move, outcome is "ok" or "error".
func Mutation(kind, outcome string) {
	mutationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RollbackFailure records a failed compensating rollback.
func RollbackFailure() {
	rollbackFailures.Inc()
}
