package flow

import "github.com/prometheus/client_golang/prometheus"

var (
	flowsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gohass_flow_active",
		Help: "Config flows currently in progress",
	})
	entriesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohass_flow_entries_created_total",
			Help: "Config entries created by finished flows",
		},
		[]string{"domain"},
	)
)

// MetricsCollectors returns collectors for the shared flow module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{flowsActive, entriesCreated}
}
