package uptimerobot

import "github.com/prometheus/client_golang/prometheus"

// metrics exports the cached monitor states. Collect never calls the API.
type metrics struct {
	plugin    *Plugin
	pollOK    *prometheus.Desc
	monitorUp *prometheus.Desc
}

func newMetrics(p *Plugin) *metrics {
	return &metrics{
		plugin: p,
		pollOK: prometheus.NewDesc(
			"gohass_uptimerobot_poll_success",
			"Last monitor poll success per account (1=ok, 0=error)",
			[]string{"account"}, nil),
		monitorUp: prometheus.NewDesc(
			"gohass_uptimerobot_monitor_up",
			"1 when Uptime Robot reports the monitor up",
			[]string{"account", "monitor", "name"}, nil),
	}
}

func (m *metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.pollOK
	ch <- m.monitorUp
}

func (m *metrics) Collect(ch chan<- prometheus.Metric) {
	for _, rt := range m.plugin.runtimes() {
		ok := 0.0
		if rt.coord.LastUpdateSuccess() {
			ok = 1
		}
		ch <- prometheus.MustNewConstMetric(m.pollOK, prometheus.GaugeValue, ok, rt.title)
		if ok == 0 {
			continue
		}
		for _, monitor := range rt.coord.Data() {
			up := 0.0
			if monitor.Up() {
				up = 1
			}
			ch <- prometheus.MustNewConstMetric(m.monitorUp, prometheus.GaugeValue, up, rt.title, monitor.Key(), monitor.FriendlyName)
		}
	}
}
