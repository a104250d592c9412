package core

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshp123/gohass/internal/rate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type stubPlugin struct {
	id            string
	name          string
	version       string
	services      []string
	dashboards    []Dashboard
	health        HealthStatus
	healthMessage string
}

func (s stubPlugin) ID() string { return s.id }

func (s stubPlugin) Manifest() Manifest {
	return Manifest{
		PluginID:    s.id,
		DisplayName: s.name,
		Version:     s.version,
		Services:    s.services,
		Platforms:   []Platform{PlatformSensor},
	}
}

func (s stubPlugin) Dashboards() []Dashboard { return s.dashboards }

func (s stubPlugin) RegisterGRPC(*grpc.Server) {}

func (s stubPlugin) Collectors() []prometheus.Collector { return nil }

func (s stubPlugin) Health() HealthStatus { return s.health }

func (s stubPlugin) HealthMessage() string { return s.healthMessage }

func newStubPlugin(id string) stubPlugin {
	return stubPlugin{
		id:         id,
		name:       "Demo",
		version:    "0.1.0",
		services:   []string{"gohass.plugins.demo.v1.DemoService"},
		health:     HealthHealthy,
		dashboards: []Dashboard{{Name: "demo", JSON: []byte("{}")}},
	}
}

func dialRegistry(t *testing.T, svc *RegistryService) *RegistryClient {
	t.Helper()
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterRegistryServer(server, svc)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewRegistryClient(conn)
}

func TestRegistryListPlugins(t *testing.T) {
	client := dialRegistry(t, NewRegistryService([]Plugin{newStubPlugin("demo")}, nil))

	plugins, err := client.ListPlugins(context.Background())
	require.NoError(t, err)
	require.Len(t, plugins, 1)

	got := plugins[0]
	assert.Equal(t, "demo", got.PluginID)
	assert.Equal(t, "Demo", got.DisplayName)
	assert.Equal(t, "0.1.0", got.Version)
	assert.Equal(t, string(HealthHealthy), got.Status)
}

func TestRegistryDescribePlugin(t *testing.T) {
	client := dialRegistry(t, NewRegistryService([]Plugin{newStubPlugin("demo")}, nil))

	plugin, err := client.DescribePlugin(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", plugin.PluginID)
	assert.Equal(t, []Platform{PlatformSensor}, plugin.Platforms)
	require.Len(t, plugin.Dashboards, 1)
	assert.Equal(t, "/dashboards/demo/demo.json", plugin.Dashboards[0].Path)

	_, err = client.DescribePlugin(context.Background(), "missing")
	require.Equal(t, codes.NotFound, status.Code(err))
}

type limitedPlugin struct {
	stubPlugin
}

func (limitedPlugin) RateLimits() rate.Declaration {
	return rate.Provider("demo").MaxRequestsPer(rate.Minute, 10)
}

func TestRegistryDescribeReportsRateLimits(t *testing.T) {
	client := dialRegistry(t, NewRegistryService([]Plugin{
		newStubPlugin("plain"),
		limitedPlugin{newStubPlugin("limited")},
	}, nil))

	plain, err := client.DescribePlugin(context.Background(), "plain")
	require.NoError(t, err)
	assert.Empty(t, plain.RateLimits)

	limited, err := client.DescribePlugin(context.Background(), "limited")
	require.NoError(t, err)
	assert.Equal(t, []rate.Budget{{Window: "minute", Requests: 10}}, limited.RateLimits)
}

func TestRegistryEntities(t *testing.T) {
	entities := NewEntityRegistry(nil)
	require.NoError(t, entities.Add("demo",
		&fakeEntity{uid: "a", name: "Living Room", platform: PlatformSensor, state: "21.5"},
		&fakeEntity{uid: "b", name: "Pump", platform: PlatformBinarySensor, state: StateOn},
	))
	client := dialRegistry(t, NewRegistryService(nil, entities))

	all, err := client.ListEntities(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	sensors, err := client.ListEntities(context.Background(), PlatformSensor)
	require.NoError(t, err)
	require.Len(t, sensors, 1)
	assert.Equal(t, "sensor.living_room", sensors[0].EntityID)

	state, err := client.GetEntity(context.Background(), "binary_sensor.pump")
	require.NoError(t, err)
	assert.Equal(t, StateOn, state.State)
	assert.Equal(t, "b", state.UniqueID)

	_, err = client.GetEntity(context.Background(), "sensor.missing")
	require.Equal(t, codes.NotFound, status.Code(err))
}

func TestFilterPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo"), newStubPlugin("extra")}

	active := FilterPlugins(compiled, map[string]bool{"demo": true}, false)
	require.Len(t, active, 1)
	assert.Equal(t, "demo", active[0].ID())

	active = FilterPlugins(compiled, map[string]bool{}, true)
	assert.Len(t, active, 2)
}

func TestValidateEnabledPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo")}

	require.NoError(t, ValidateEnabledPlugins(compiled, map[string]bool{"demo": true}, false))
	require.Error(t, ValidateEnabledPlugins(compiled, map[string]bool{"missing": true}, false))
}

func TestValidatePlugins(t *testing.T) {
	require.NoError(t, ValidatePlugins([]Plugin{newStubPlugin("demo"), newStubPlugin("extra")}))
	require.Error(t, ValidatePlugins([]Plugin{newStubPlugin("demo"), newStubPlugin("demo")}))
	require.Error(t, ValidatePlugins([]Plugin{newStubPlugin("Bad-ID")}))
}

func TestDashboardsMap(t *testing.T) {
	broken := newStubPlugin("broken")
	broken.health = HealthError
	dashboards := DashboardsMap([]Plugin{newStubPlugin("demo"), broken})
	assert.Equal(t, []byte("{}"), dashboards["/dashboards/demo/demo.json"])
	assert.NotContains(t, dashboards, "/dashboards/broken/demo.json")
}

func TestWriteDashboards(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDashboards(dir, []Plugin{newStubPlugin("demo")}))

	data, err := os.ReadFile(filepath.Join(dir, "demo", "demo.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	_, err = os.Stat(filepath.Join(dir, "demo", "demo.json.tmp"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, WriteDashboards("", []Plugin{newStubPlugin("demo")}))
}

func TestRegistrySetTemperature(t *testing.T) {
	entities := NewEntityRegistry(nil)
	thermo := &fakeThermostat{fakeEntity: fakeEntity{uid: "c1", name: "Floor", platform: PlatformClimate, state: "heat"}}
	require.NoError(t, entities.Add("demo", thermo, &fakeEntity{uid: "s", name: "Probe", platform: PlatformSensor}))
	client := dialRegistry(t, NewRegistryService(nil, entities))

	state, err := client.SetTemperature(context.Background(), "climate.floor", 22)
	require.NoError(t, err)
	assert.Equal(t, 22.0, state.Attributes["temperature"])

	_, err = client.SetTemperature(context.Background(), "climate.missing", 22)
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.SetTemperature(context.Background(), "sensor.probe", 22)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}
