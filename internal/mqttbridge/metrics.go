package mqttbridge

import "github.com/prometheus/client_golang/prometheus"

var (
	publishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohass_mqtt_publish_total",
			Help: "State publishes to MQTT by result",
		},
		[]string{"result"},
	)
	commandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gohass_mqtt_commands_total",
			Help: "Commands received over MQTT by result",
		},
		[]string{"command", "result"},
	)
	droppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gohass_mqtt_dropped_states_total",
			Help: "State changes dropped because the publish queue was full",
		},
	)
)

// Collectors returns the bridge's metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{publishTotal, commandTotal, droppedTotal}
}
