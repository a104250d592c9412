package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/joshp123/gohass/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
)

type heater struct {
	mu     sync.Mutex
	target float64
}

func (h *heater) UniqueID() string        { return "heater-1" }
func (h *heater) Name() string            { return "Bathroom" }
func (h *heater) Platform() core.Platform { return core.PlatformClimate }

func (h *heater) Snapshot() core.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return core.Snapshot{State: "heat", Attributes: map[string]any{"temperature": h.target}}
}

func (h *heater) SetTemperature(_ context.Context, t float64) error {
	if t < 5 || t > 30 {
		return fmt.Errorf("%w: %.1f", core.ErrInvalidTemperature, t)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target = t
	return nil
}

type testPlugin struct {
	health core.HealthStatus
}

func (p testPlugin) ID() string { return "demo" }
func (p testPlugin) Manifest() core.Manifest {
	return core.Manifest{PluginID: "demo", DisplayName: "Demo", Version: "0.1.0"}
}
func (p testPlugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "overview", JSON: []byte(`{"title":"Demo"}`)}}
}
func (p testPlugin) RegisterGRPC(*grpc.Server)           {}
func (p testPlugin) Collectors() []prometheus.Collector { return nil }
func (p testPlugin) Health() core.HealthStatus          { return p.health }
func (p testPlugin) HealthMessage() string {
	if p.health == core.HealthHealthy {
		return ""
	}
	return "device unreachable"
}

func (p testPlugin) Platforms() []core.PlatformSetup {
	return []core.PlatformSetup{{
		Platform: core.PlatformClimate,
		Setup: func(_ context.Context, add core.AddEntitiesFunc) error {
			return add(&heater{target: 20})
		},
	}}
}

func (p testPlugin) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /plugins/demo/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

func newExpect(t *testing.T, plugin testPlugin) *httpexpect.Expect {
	t.Helper()
	logger := zaptest.NewLogger(t)
	hub := core.NewHub([]core.Plugin{plugin}, logger)
	hub.LoadPlatforms(context.Background())

	ts := httptest.NewServer(NewMux(hub, core.MetricsRegistry(hub.Plugins(), core.MetricsCollectors()...), logger))
	t.Cleanup(ts.Close)

	return httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  ts.URL,
		Reporter: httpexpect.NewRequireReporter(t),
		Client:   ts.Client(),
	})
}

func TestHealthReportsPlugins(t *testing.T) {
	e := newExpect(t, testPlugin{health: core.HealthHealthy})
	body := e.GET("/health").Expect().Status(http.StatusOK).JSON().Object()
	body.Value("status").IsEqual("ok")
	body.Value("plugins").Array().Value(0).Object().Value("plugin_id").IsEqual("demo")

	degraded := newExpect(t, testPlugin{health: core.HealthDegraded})
	degraded.GET("/health").Expect().Status(http.StatusOK).
		JSON().Object().Value("status").IsEqual("degraded")

	failed := newExpect(t, testPlugin{health: core.HealthError})
	body = failed.GET("/health").Expect().Status(http.StatusOK).JSON().Object()
	body.Value("status").IsEqual("error")
	body.Value("plugins").Array().Value(0).Object().Value("message").IsEqual("device unreachable")
}

func TestEntitiesAPI(t *testing.T) {
	e := newExpect(t, testPlugin{health: core.HealthHealthy})

	e.GET("/api/entities").Expect().Status(http.StatusOK).
		JSON().Object().Value("entities").Array().Length().IsEqual(1)
	e.GET("/api/entities").WithQuery("platform", "sensor").Expect().Status(http.StatusOK).
		JSON().Object().Value("entities").Array().IsEmpty()

	entity := e.GET("/api/entities/climate.bathroom").Expect().Status(http.StatusOK).JSON().Object()
	entity.Value("state").IsEqual("heat")
	entity.Value("attributes").Object().Value("temperature").IsEqual(20)

	e.GET("/api/entities/climate.kitchen").Expect().Status(http.StatusNotFound)
}

func TestSetTemperatureAPI(t *testing.T) {
	e := newExpect(t, testPlugin{health: core.HealthHealthy})

	e.POST("/api/entities/climate.bathroom/temperature").
		WithFormField("temperature", "22.5").
		Expect().Status(http.StatusOK).
		JSON().Object().Value("attributes").Object().Value("temperature").IsEqual(22.5)

	e.POST("/api/entities/climate.bathroom/temperature").
		WithFormField("temperature", "45").
		Expect().Status(http.StatusBadRequest)

	e.POST("/api/entities/climate.bathroom/temperature").
		Expect().Status(http.StatusBadRequest)

	e.POST("/api/entities/climate.bathroom/temperature").
		WithFormField("temperature", "NaN").
		Expect().Status(http.StatusBadRequest)
	e.GET("/api/entities").Expect().Status(http.StatusOK).
		JSON().Object().Value("entities").Array().Value(0).Object().
		Value("attributes").Object().Value("temperature").IsEqual(22.5)

	e.POST("/api/entities/climate.kitchen/temperature").
		WithQuery("temperature", "21").
		Expect().Status(http.StatusNotFound)
}

func TestDashboardsMetricsAndPluginRoutes(t *testing.T) {
	e := newExpect(t, testPlugin{health: core.HealthHealthy})

	e.GET("/dashboards/demo/overview.json").Expect().Status(http.StatusOK).
		JSON().Object().Value("title").IsEqual("Demo")
	e.GET("/dashboards/demo/missing.json").Expect().Status(http.StatusNotFound)
	e.GET("/dashboards/").Expect().Status(http.StatusOK).
		JSON().Object().Value("dashboards").Array().ContainsOnly("/dashboards/demo/overview.json")

	require.Contains(t, e.GET("/metrics").Expect().Status(http.StatusOK).Body().Raw(), "gohass_entities")
	require.Contains(t, e.GET("/metrics").Expect().Status(http.StatusOK).Body().Raw(), `promhttp_metric_handler_requests_total{code="200"} 1`)
	e.GET("/plugins/demo/ping").Expect().Status(http.StatusOK).Body().IsEqual("pong")
}
