package core

import "github.com/prometheus/client_golang/prometheus"

var (
	entityCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gohass_entities",
		Help: "Registered entities by platform",
	}, []string{"platform"})

	entityUpdateErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gohass_entity_update_errors_total",
		Help: "Failed entity updates by platform",
	}, []string{"platform"})

	platformSetupErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gohass_platform_setup_errors_total",
		Help: "Failed platform setups by plugin and platform",
	}, []string{"plugin", "platform"})
)

// MetricsCollectors returns hub-level collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{entityCount, entityUpdateErrors, platformSetupErrors}
}

// MetricsRegistry builds a registry from plugin collectors plus extra
// collectors owned by the daemon.
func MetricsRegistry(plugins []Plugin, extra ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, collector := range extra {
		registry.MustRegister(collector)
	}
	for _, plugin := range plugins {
		for _, collector := range plugin.Collectors() {
			registry.MustRegister(collector)
		}
	}

	return registry
}
