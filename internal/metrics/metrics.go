// Package metrics holds the Prometheus collectors bindery exports on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bindery"

var (
	// Dispatches counts handled client requests.
	// Labels: stream, action, status (response_status as text)
	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "requests_total",
		Help:      "Total client requests dispatched",
	}, []string{"stream", "action", "status"})

	// DispatchLatency measures time from decoded request to reply.
	// Labels: stream, action
	DispatchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "latency_seconds",
		Help:      "Dispatch latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}, []string{"stream", "action"})

	// Notifications counts pushed frames per event kind.
	// Labels: resource, event (create, update, delete)
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "notifications_total",
		Help:      "Total notification frames delivered to connections",
	}, []string{"resource", "event"})

	// DroppedPartitions counts routing partitions dropped because the
	// payload could not be built.
	// Labels: resource, event, reason (unreadable, serialize, empty)
	DroppedPartitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "dropped_partitions_total",
		Help:      "Total notification partitions dropped",
	}, []string{"resource", "event", "reason"})

	// Connections tracks currently open websocket connections.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "connections",
		Help:      "Open websocket connections",
	})

	// Groups tracks non-empty groups in the hub.
	Groups = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "groups",
		Help:      "Groups with at least one member",
	})

	// RateLimited counts inbound frames rejected by the per-connection limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "rate_limited_total",
		Help:      "Total inbound frames rejected by rate limiting",
	})
)
