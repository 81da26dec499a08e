// Package metrics registers the Prometheus collectors shared by every
// subsystem, the way main.go in the teacher registers workerRestartsCounter
// via promauto — generalized here to cover the full fleet/dispatch/scale
// lifecycle instead of a single restart counter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FleetSize reports the current number of live workers.
	FleetSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lb_fleet_size",
		Help: "Current number of live worker processes.",
	})

	// DispatchTotal counts successful dispatches by target port.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lb_dispatch_total",
		Help: "Total requests dispatched, labeled by worker port.",
	}, []string{"port"})

	// SpawnTotal counts successful worker spawns.
	SpawnTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lb_worker_spawn_total",
		Help: "Total worker processes spawned.",
	})

	// SpawnFailureTotal counts failed spawn attempts.
	SpawnFailureTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lb_worker_spawn_failure_total",
		Help: "Total worker spawn attempts that failed.",
	})

	// TerminateTotal counts worker terminations.
	TerminateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lb_worker_terminate_total",
		Help: "Total worker processes terminated.",
	})

	// TransportFailureTotal counts 502s returned to clients.
	TransportFailureTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lb_transport_failure_total",
		Help: "Total requests that failed to reach a worker.",
	})

	// HandleTime is a histogram mirroring the in-memory latency window.
	HandleTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lb_handle_time_seconds",
		Help:    "Load-balancer-measured request handle time.",
		Buckets: prometheus.DefBuckets,
	})

	// ScaleDecisions counts autoscaler actions by outcome.
	ScaleDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lb_scale_decisions_total",
		Help: "Autoscaler decisions, labeled by action.",
	}, []string{"action"}) // scale_up, scale_down, hold, cooldown, skip
)
