// Package metrics wires a prometheus registry for the coordinator and
// detector processes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	NodeOfflineTotal prometheus.Counter
	QuorumMissTotal  prometheus.Counter

	RingOnlineNodes       prometheus.Gauge
	ReplicatorWriteQuorum prometheus.Gauge
	ReplicatorReadQuorum  prometheus.Gauge
}

// New builds and registers all collectors for namespace (e.g. "coordinator"
// or "detector").
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests handled, by operation and status.",
			},
			[]string{"op", "status"},
		),
		NodeOfflineTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_offline_total",
			Help:      "Total number of nodes reported offline.",
		}),
		QuorumMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quorum_miss_total",
			Help:      "Total number of read or write requests that failed to reach quorum.",
		}),
		RingOnlineNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ring_online_nodes",
			Help:      "Number of nodes currently marked online in the ring.",
		}),
		ReplicatorWriteQuorum: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replicator_write_quorum",
			Help:      "Current write quorum (W), after degradation.",
		}),
		ReplicatorReadQuorum: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replicator_read_quorum",
			Help:      "Current read quorum (R), after degradation.",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.NodeOfflineTotal,
		m.QuorumMissTotal,
		m.RingOnlineNodes,
		m.ReplicatorWriteQuorum,
		m.ReplicatorReadQuorum,
	)

	return m
}

// Handler returns the HTTP handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
