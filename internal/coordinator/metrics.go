package coordinator

import "github.com/prometheus/client_golang/prometheus"

var (
	refreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gohass_coordinator_refresh_total",
		Help: "Coordinator refreshes by result",
	}, []string{"coordinator", "result"})

	lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gohass_coordinator_last_success_timestamp_seconds",
		Help: "Unix time of the last successful refresh",
	}, []string{"coordinator"})
)

func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{refreshTotal, lastSuccess}
}
