// Package metrics provides Prometheus instrumentation for the matchmaking
// server: connection and room gauges, pool size, match latency, relay
// throughput and report outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roulette_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of two-person rooms.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roulette_active_rooms",
		Help: "Current number of active rooms",
	})

	// PoolSize tracks the current number of connections waiting for a partner.
	PoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roulette_pool_size",
		Help: "Current number of connections in the waiting pool",
	})

	// MatchesTotal counts rooms created by the matcher.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roulette_matches_total",
		Help: "Total number of matches made",
	})

	// MatchDuration records the wait from search start to match for each side.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "roulette_match_duration_seconds",
		Help:    "Time from search start to match found",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 15, 20, 30, 60, 120},
	})

	// RelayedTotal counts messages forwarded between room partners, labeled
	// by kind: "offer", "answer", "candidate" or "chat".
	RelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roulette_relayed_total",
		Help: "Total number of messages relayed to a room partner",
	}, []string{"kind"})

	// DroppedTotal counts inbound or outbound messages that were discarded,
	// labeled by reason.
	DroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roulette_dropped_total",
		Help: "Total number of messages dropped",
	}, []string{"reason"})

	// ReportsTotal counts report submissions by outcome: "submitted" or "failed".
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roulette_reports_total",
		Help: "Total number of abuse reports",
	}, []string{"outcome"})

	// ProtocolErrors counts client errors sent back, labeled by error code.
	ProtocolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roulette_protocol_errors_total",
		Help: "Total number of protocol errors returned to clients",
	}, []string{"code"})

	// InvariantRepairs counts inconsistencies found and repaired in the
	// matchmaking state.
	InvariantRepairs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roulette_invariant_repairs_total",
		Help: "Total number of state inconsistencies repaired",
	}, []string{"kind"})

	// PresenceDropped counts presence updates dropped because the mirror
	// queue was full.
	PresenceDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roulette_presence_dropped_total",
		Help: "Total number of presence updates dropped",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ActiveRooms,
		PoolSize,
		MatchesTotal,
		MatchDuration,
		RelayedTotal,
		DroppedTotal,
		ReportsTotal,
		ProtocolErrors,
		InvariantRepairs,
		PresenceDropped,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
