package server

import (
	"net/http"

	"github.com/joshp123/gohass/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NewMux wires the HTTP surface of the daemon. Plugins implementing
// core.HTTPRegistrant add their own routes.
func NewMux(hub *core.Hub, metrics *prometheus.Registry, logger *zap.Logger) *http.ServeMux {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", HealthHandler(hub.Plugins()))
	mux.Handle("GET /metrics", MetricsHandler(metrics, logger))
	mux.Handle("GET /dashboards/", DashboardsHandler(core.DashboardsMap(hub.Plugins())))
	mux.HandleFunc("GET /api/entities", EntitiesHandler(hub.Entities()))
	mux.HandleFunc("GET /api/entities/{entity_id}", EntityHandler(hub.Entities()))
	mux.HandleFunc("POST /api/entities/{entity_id}/temperature", SetTemperatureHandler(hub.Entities(), logger))

	for _, p := range hub.Plugins() {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}
	return mux
}
