package uptimerobot

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/internal/flow"
	"github.com/joshp123/gohass/internal/rate"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const sensorID = "binary_sensor.test_monitor"

func newTestHub(t *testing.T, api *fakeAPI) (*Plugin, *core.Hub) {
	t.Helper()
	plugin := NewPlugin(&config.UptimeRobotConfig{BaseURL: api.url(), RequestsPerMinute: 600}, zap.NewNop())
	hub := core.NewHub([]core.Plugin{plugin}, zap.NewNop())
	t.Cleanup(func() { _ = hub.Close(context.Background()) })
	return plugin, hub
}

// setupAccount mirrors an entry created by the user flow.
func setupAccount(t *testing.T, hub *core.Hub) flow.Entry {
	t.Helper()
	entry := flow.Entry{
		EntryID:  "entry-1",
		Domain:   PluginID,
		Title:    testAccount.Email,
		UniqueID: testAccount.Key(),
		Source:   flow.SourceUser,
		Data:     map[string]any{confAPIKey: testAPIKey},
	}
	hub.Flows().Entries().Add(entry)
	require.NoError(t, hub.SetupEntry(context.Background(), entry))
	return entry
}

func TestPluginContract(t *testing.T) {
	plugin, _ := newTestHub(t, newFakeAPI(t))
	require.NoError(t, core.ValidatePlugins([]core.Plugin{plugin}))
	assert.Equal(t, core.HealthHealthy, plugin.Health())
	assert.Equal(t, map[rate.Window]int{rate.Minute: 600}, plugin.RateLimits().Limits())
	require.Len(t, plugin.Dashboards(), 1)
	assert.Contains(t, string(plugin.Dashboards()[0].JSON), "gohass_uptimerobot_monitor_up")

	defaults := NewPlugin(nil, nil)
	assert.Equal(t, config.DefaultUptimeRobotBaseURL, defaults.cfg.BaseURL)
	assert.Equal(t, config.DefaultUptimeRobotRPM, defaults.cfg.RequestsPerMinute)
}

func TestPresentation(t *testing.T) {
	_, hub := newTestHub(t, newFakeAPI(t))
	setupAccount(t, hub)

	state, ok := hub.Entities().Get(sensorID)
	require.True(t, ok)
	assert.Equal(t, core.StateOn, state.State)
	assert.Equal(t, "1234", state.UniqueID)
	assert.Equal(t, DeviceClassConnectivity, state.Attributes["device_class"])
	assert.Equal(t, Attribution, state.Attributes["attribution"])
	assert.Equal(t, testMonitor.URL, state.Attributes["target"])
}

func TestUnavailableOnUpdateFailure(t *testing.T) {
	api := newFakeAPI(t)
	plugin, hub := newTestHub(t, api)
	setupAccount(t, hub)
	ctx := context.Background()

	api.set(func(a *fakeAPI) { a.fail = "auth" })
	require.ErrorIs(t, plugin.Refresh(ctx), ErrAuthentication)
	state, _ := hub.Entities().Get(sensorID)
	assert.Equal(t, core.StateUnavailable, state.State)
	assert.Equal(t, core.HealthDegraded, plugin.Health())
	assert.Contains(t, plugin.HealthMessage(), testAccount.Email)

	api.set(func(a *fakeAPI) {
		a.fail = ""
		a.monitors[0].Status = StatusDown
	})
	require.NoError(t, plugin.Refresh(ctx))
	state, _ = hub.Entities().Get(sensorID)
	assert.Equal(t, core.StateOff, state.State)
	assert.Equal(t, core.HealthHealthy, plugin.Health())
}

func TestSetupFailsWhenAPIIsDown(t *testing.T) {
	api := newFakeAPI(t)
	api.set(func(a *fakeAPI) { a.fail = "down" })
	_, hub := newTestHub(t, api)

	entry := flow.Entry{EntryID: "entry-1", Domain: PluginID, Data: map[string]any{confAPIKey: testAPIKey}}
	err := hub.SetupEntry(context.Background(), entry)
	require.ErrorIs(t, err, ErrConnection)
	assert.Empty(t, hub.Entities().States(core.PlatformBinarySensor))

	err = hub.SetupEntry(context.Background(), flow.Entry{EntryID: "entry-2", Domain: PluginID})
	require.Error(t, err)
}

func TestUnloadStopsPolling(t *testing.T) {
	api := newFakeAPI(t)
	plugin, hub := newTestHub(t, api)
	entry := setupAccount(t, hub)

	require.NoError(t, hub.UnloadEntry(context.Background(), entry.EntryID))
	assert.Empty(t, hub.Entities().States(""))
	assert.Empty(t, plugin.runtimes())
	calls := len(api.seenPaths())
	require.NoError(t, plugin.Refresh(context.Background()))
	assert.Len(t, api.seenPaths(), calls)
}

func TestUserFlow(t *testing.T) {
	api := newFakeAPI(t)
	_, hub := newTestHub(t, api)
	ctx := context.Background()

	result, err := hub.Flows().Init(ctx, PluginID, flow.SourceUser, nil)
	require.NoError(t, err)
	require.Equal(t, flow.ResultForm, result.Type)
	assert.Equal(t, stepUser, result.StepID)
	assert.Empty(t, result.Errors)

	cases := []struct {
		fail   string
		apiKey string
		want   string
	}{
		{apiKey: " ", want: "required"},
		{apiKey: "wrong", want: "invalid_api_key"},
		{fail: "down", apiKey: testAPIKey, want: "cannot_connect"},
		{fail: "stat", apiKey: testAPIKey, want: "unknown"},
		{fail: "garbage", apiKey: testAPIKey, want: "unknown"},
	}
	for _, tc := range cases {
		api.set(func(a *fakeAPI) { a.fail = tc.fail })
		result, err = hub.Flows().Configure(ctx, result.FlowID, map[string]any{confAPIKey: tc.apiKey})
		require.NoError(t, err)
		require.Equal(t, flow.ResultForm, result.Type, tc.want)
		for _, got := range result.Errors {
			assert.Equal(t, tc.want, got)
		}
	}

	api.set(func(a *fakeAPI) { a.fail = "" })
	result, err = hub.Flows().Configure(ctx, result.FlowID, map[string]any{confAPIKey: testAPIKey})
	require.NoError(t, err)
	require.Equal(t, flow.ResultCreateEntry, result.Type)
	assert.Equal(t, testAccount.Email, result.Title)
	assert.Equal(t, map[string]any{confAPIKey: testAPIKey}, result.Data)

	entries := hub.Flows().Entries().List(PluginID)
	require.Len(t, entries, 1)
	assert.Equal(t, "1234567890", entries[0].UniqueID)
	state, ok := hub.Entities().Get(sensorID)
	require.True(t, ok)
	assert.Equal(t, core.StateOn, state.State)

	again, err := hub.Flows().Init(ctx, PluginID, flow.SourceUser, map[string]any{confAPIKey: testAPIKey})
	require.NoError(t, err)
	assert.Equal(t, flow.ResultAbort, again.Type)
	assert.Equal(t, "already_configured", again.Reason)
}

func TestUserFlowRetriesAfterFailedSetup(t *testing.T) {
	api := newFakeAPI(t)
	_, hub := newTestHub(t, api)
	ctx := context.Background()

	api.set(func(a *fakeAPI) { a.fail = "monitors" })
	result, err := hub.Flows().Init(ctx, PluginID, flow.SourceUser, map[string]any{confAPIKey: testAPIKey})
	require.NoError(t, err)
	require.Equal(t, flow.ResultAbort, result.Type)
	assert.Equal(t, "setup_failed", result.Reason)
	assert.Empty(t, hub.Flows().Entries().List(PluginID))

	api.set(func(a *fakeAPI) { a.fail = "" })
	result, err = hub.Flows().Init(ctx, PluginID, flow.SourceUser, map[string]any{confAPIKey: testAPIKey})
	require.NoError(t, err)
	require.Equal(t, flow.ResultCreateEntry, result.Type)
	_, ok := hub.Entities().Get(sensorID)
	assert.True(t, ok)
}

func TestMetrics(t *testing.T) {
	api := newFakeAPI(t)
	plugin, hub := newTestHub(t, api)
	setupAccount(t, hub)

	expected := `
# HELP gohass_uptimerobot_monitor_up 1 when Uptime Robot reports the monitor up
# TYPE gohass_uptimerobot_monitor_up gauge
gohass_uptimerobot_monitor_up{account="test@test.test",monitor="1234",name="Test monitor"} 1
# HELP gohass_uptimerobot_poll_success Last monitor poll success per account (1=ok, 0=error)
# TYPE gohass_uptimerobot_poll_success gauge
gohass_uptimerobot_poll_success{account="test@test.test"} 1
`
	require.NoError(t, testutil.CollectAndCompare(plugin.metrics, strings.NewReader(expected)))

	api.set(func(a *fakeAPI) { a.fail = "down" })
	require.Error(t, plugin.Refresh(context.Background()))
	assert.Equal(t, 1, testutil.CollectAndCount(plugin.metrics), "monitors are not exported while polling fails")
}

func TestUptimeRobotServiceOverGRPC(t *testing.T) {
	api := newFakeAPI(t)
	plugin, hub := newTestHub(t, api)
	setupAccount(t, hub)

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterUptimeRobotService(server, plugin)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := NewServiceClient(conn)
	ctx := context.Background()

	monitors, err := client.ListMonitors(ctx)
	require.NoError(t, err)
	assert.Equal(t, []MonitorStatus{{
		Account:   testAccount.Email,
		ID:        "1234",
		Name:      "Test monitor",
		URL:       testMonitor.URL,
		Status:    StatusUp,
		Up:        true,
		Available: true,
	}}, monitors)

	api.set(func(a *fakeAPI) { a.monitors[0].Status = StatusPaused })
	monitors, err = client.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, monitors, 1)
	assert.False(t, monitors[0].Up)

	api.set(func(a *fakeAPI) { a.fail = "down" })
	_, err = client.Refresh(ctx)
	require.Error(t, err)
}
