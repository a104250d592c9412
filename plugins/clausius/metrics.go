package clausius

import (
	"strconv"

	"github.com/joshp123/gohass/internal/coordinator"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports the cached controller state. It never calls the
// controller itself; the coordinator keeps the cache fresh.
type MetricsCollector struct {
	client      *Client
	coordinator *coordinator.Coordinator[Inventory]

	scrapeSuccess *prometheus.Desc
	temperature   *prometheus.Desc
	relayOn       *prometheus.Desc
	target        *prometheus.Desc
}

func NewMetricsCollector(client *Client, coord *coordinator.Coordinator[Inventory]) *MetricsCollector {
	return &MetricsCollector{
		client:      client,
		coordinator: coord,
		scrapeSuccess: prometheus.NewDesc(
			"gohass_clausius_scrape_success",
			"Last inventory poll success (1=ok, 0=error)",
			nil, nil),
		temperature: prometheus.NewDesc(
			"gohass_clausius_sensor_temperature_celsius",
			"Temperature reported by a Clausius probe",
			[]string{"sensor", "name"}, nil),
		relayOn: prometheus.NewDesc(
			"gohass_clausius_relay_on",
			"1 when a Clausius relay is energised",
			[]string{"relay", "name"}, nil),
		target: prometheus.NewDesc(
			"gohass_clausius_circuit_target_celsius",
			"Target temperature of a heating circuit",
			[]string{"circuit"}, nil),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.scrapeSuccess
	ch <- c.temperature
	ch <- c.relayOn
	ch <- c.target
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	success := 1.0
	if c.coordinator != nil && !c.coordinator.LastUpdate().IsZero() && !c.coordinator.LastUpdateSuccess() {
		success = 0
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, success)

	for _, s := range c.client.Sensors() {
		if !s.Available() {
			continue
		}
		value, err := strconv.ParseFloat(s.Value(), 64)
		if err != nil {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.temperature, prometheus.GaugeValue, value, s.id, s.Name())
	}
	for _, r := range c.client.Relays() {
		if !r.Available() {
			continue
		}
		on := 0.0
		if r.IsOn() {
			on = 1
		}
		ch <- prometheus.MustNewConstMetric(c.relayOn, prometheus.GaugeValue, on, r.code, r.Name())
	}
	for _, circuit := range c.client.Circuits() {
		ch <- prometheus.MustNewConstMetric(c.target, prometheus.GaugeValue, circuit.TargetTemperature(), circuit.Code())
	}
}
