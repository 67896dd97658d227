package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the hub's Prometheus collectors.
type Metrics struct {
	Connections prometheus.Gauge
	Broadcasts  *prometheus.CounterVec
	Dropped     prometheus.Counter
	Rejected    prometheus.Counter
}

// NewMetrics creates hub metrics registered on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulse",
			Subsystem: "stream",
			Name:      "connections",
			Help:      "Open event stream connections on this instance.",
		}),
		Broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "stream",
			Name:      "broadcasts_total",
			Help:      "Events broadcast to local connections, by kind.",
		}, []string{"kind"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "stream",
			Name:      "dropped_connections_total",
			Help:      "Connections removed after a failed write.",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pulse",
			Subsystem: "stream",
			Name:      "rejected_connections_total",
			Help:      "Connections refused at the per-session limit.",
		}),
	}
}
