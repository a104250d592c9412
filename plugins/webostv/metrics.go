package webostv

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	plugin    *Plugin
	connected *prometheus.Desc
	commands  *prometheus.CounterVec
}

func newMetrics(p *Plugin) *metrics {
	return &metrics{
		plugin: p,
		connected: prometheus.NewDesc(
			"gohass_webostv_connected",
			"1 while the SSAP connection to a TV is open",
			[]string{"host", "name"}, nil),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gohass_webostv_commands_total",
			Help: "Service calls sent to TVs by result",
		}, []string{"service", "result"}),
	}
}

func (m *metrics) observeCommand(service string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(service, result).Inc()
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m, m.commands}
}

func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.connected
}

func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	for _, rt := range m.plugin.runtimes() {
		value := 0.0
		if rt.client.IsConnected() {
			value = 1
		}
		ch <- prometheus.MustNewConstMetric(m.connected, prometheus.GaugeValue, value, rt.client.Host(), rt.player.Name())
	}
}
