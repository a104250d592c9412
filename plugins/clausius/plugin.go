package clausius

import (
	"context"
	_ "embed"
	"sync"

	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/coordinator"
	"github.com/joshp123/gohass/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

//go:embed dashboard.json
var dashboardJSON []byte

const PluginID = "clausius"

// Plugin implements the gohass plugin contract for Clausius controllers.
type Plugin struct {
	client        *Client
	coordinator   *coordinator.Coordinator[Inventory]
	logger        *zap.Logger
	initOnce      sync.Once
	health        core.HealthStatus
	healthMessage string
}

// NewPlugin builds the plugin. An invalid config yields a plugin reporting
// HealthError rather than an error.
func NewPlugin(cfg *config.ClausiusConfig, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(PluginID)

	client, err := NewClient(cfg, logger)
	if err != nil {
		return &Plugin{logger: logger, health: core.HealthError, healthMessage: err.Error()}
	}
	return &Plugin{
		client:      client,
		coordinator: coordinator.New(PluginID, cfg.ScanInterval(), client.Refresh, logger),
		logger:      logger,
		health:      core.HealthHealthy,
	}
}

func (p *Plugin) ID() string {
	return PluginID
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    PluginID,
		DisplayName: "Clausius",
		Version:     "0.1.0",
		Services:    []string{ServiceName},
		Platforms:   []core.Platform{core.PlatformClimate, core.PlatformSensor, core.PlatformBinarySensor},
	}
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "clausius-overview", JSON: dashboardJSON}}
}

func (p *Plugin) RegisterGRPC(server *grpc.Server) {
	RegisterClausiusService(server, p.client)
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.client == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.client, p.coordinator)}
}

func (p *Plugin) Health() core.HealthStatus {
	return p.health
}

func (p *Plugin) HealthMessage() string {
	return p.healthMessage
}

func (p *Plugin) Client() *Client { return p.client }

// Platforms reads the inventory once, on the first platform set up, and then
// hands the cached entities to each platform.
func (p *Plugin) Platforms() []core.PlatformSetup {
	setup := func(fn func(context.Context, *Client, core.AddEntitiesFunc) error) func(context.Context, core.AddEntitiesFunc) error {
		return func(ctx context.Context, add core.AddEntitiesFunc) error {
			p.initOnce.Do(func() { p.client.Init(ctx) })
			return fn(ctx, p.client, add)
		}
	}
	return []core.PlatformSetup{
		{Platform: core.PlatformClimate, Setup: setup(SetupClimate)},
		{Platform: core.PlatformSensor, Setup: setup(SetupSensor)},
		{Platform: core.PlatformBinarySensor, Setup: setup(SetupBinarySensor)},
	}
}

// Start polls the inventory for sensor and relay changes.
func (p *Plugin) Start(ctx context.Context) {
	if p.coordinator != nil {
		p.coordinator.Start(ctx)
	}
}
