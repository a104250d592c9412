package uptimerobot

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/coordinator"
	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/internal/flow"
	"github.com/joshp123/gohass/internal/rate"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

//go:embed dashboard.json
var dashboardJSON []byte

const PluginID = "uptimerobot"

var _ rate.RateLimited = (*Plugin)(nil)

type entryRuntime struct {
	title   string
	coord   *coordinator.Coordinator[[]Monitor]
	sensors []*MonitorSensor
	cancel  context.CancelFunc
	done    chan struct{}
	stop    func()
}

// Plugin polls the monitors of every configured Uptime Robot account.
type Plugin struct {
	cfg        *config.UptimeRobotConfig
	logger     *zap.Logger
	httpClient *http.Client
	metrics    *metrics

	mu       sync.Mutex
	entities *core.EntityRegistry
	entries  map[string]*entryRuntime
}

func NewPlugin(cfg *config.UptimeRobotConfig, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &config.UptimeRobotConfig{}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = config.DefaultUptimeRobotBaseURL
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = config.DefaultUptimeRobotRPM
	}
	p := &Plugin{
		cfg:        cfg,
		logger:     logger.Named(PluginID),
		httpClient: NewHTTPClient(cfg),
		entries:    make(map[string]*entryRuntime),
	}
	p.metrics = newMetrics(p)
	return p
}

func (p *Plugin) ID() string {
	return PluginID
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    PluginID,
		DisplayName: "Uptime Robot",
		Version:     "0.1.0",
		Services:    []string{ServiceName},
		Platforms:   []core.Platform{core.PlatformBinarySensor},
	}
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "uptimerobot-overview", JSON: dashboardJSON}}
}

func (p *Plugin) RegisterGRPC(server *grpc.Server) {
	RegisterUptimeRobotService(server, p)
}

func (p *Plugin) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.metrics}
}

func (p *Plugin) Health() core.HealthStatus {
	for _, rt := range p.runtimes() {
		if !rt.coord.LastUpdateSuccess() {
			return core.HealthDegraded
		}
	}
	return core.HealthHealthy
}

func (p *Plugin) HealthMessage() string {
	var failing []string
	for _, rt := range p.runtimes() {
		if !rt.coord.LastUpdateSuccess() {
			failing = append(failing, fmt.Sprintf("%s: %v", rt.title, rt.coord.LastError()))
		}
	}
	slices.Sort(failing)
	return strings.Join(failing, "; ")
}

// RateLimits reports the request budget for the rate registry.
func (p *Plugin) RateLimits() rate.Declaration {
	return RateLimits(p.cfg)
}

func (p *Plugin) NewFlow() flow.Handler {
	return &configFlow{plugin: p}
}

func (p *Plugin) BindEntities(registry *core.EntityRegistry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entities = registry
}

func (p *Plugin) newClient(apiKey string) *Client {
	return NewClient(p.cfg.BaseURL, apiKey, p.httpClient)
}

// SetupEntry fetches the monitors once, adds one binary_sensor per monitor
// and starts polling. A failed first fetch fails the setup.
func (p *Plugin) SetupEntry(ctx context.Context, entry flow.Entry, add core.EntryAdder) error {
	apiKey := entry.String(confAPIKey)
	if apiKey == "" {
		return errors.New("entry has no api key")
	}
	client := p.newClient(apiKey)
	coord := coordinator.New(PluginID+"_"+entry.UniqueID, p.cfg.ScanInterval(), client.Monitors, p.logger)
	if err := coord.Refresh(ctx); err != nil {
		return fmt.Errorf("fetch monitors: %w", err)
	}

	rt := &entryRuntime{title: entry.Title, coord: coord, done: make(chan struct{})}
	for _, monitor := range coord.Data() {
		rt.sensors = append(rt.sensors, NewMonitorSensor(coord, monitor))
	}
	entities := make([]core.Entity, 0, len(rt.sensors))
	for _, s := range rt.sensors {
		entities = append(entities, s)
	}
	if err := add(core.PlatformBinarySensor)(entities...); err != nil {
		return fmt.Errorf("add binary sensors: %w", err)
	}
	rt.stop = coord.AddListener(func() { p.refresh(rt) })

	runCtx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	go func() {
		defer close(rt.done)
		coord.Run(runCtx)
	}()

	p.mu.Lock()
	p.entries[entry.EntryID] = rt
	p.mu.Unlock()
	p.logger.Info("monitoring account", zap.String("account", entry.Title), zap.Int("monitors", len(rt.sensors)))
	return nil
}

// UnloadEntry stops polling the entry's account.
func (p *Plugin) UnloadEntry(_ context.Context, entry flow.Entry) error {
	p.drop(entry.EntryID)
	return nil
}

func (p *Plugin) drop(entryID string) {
	p.mu.Lock()
	rt, ok := p.entries[entryID]
	delete(p.entries, entryID)
	p.mu.Unlock()
	if !ok {
		return
	}
	rt.stop()
	rt.cancel()
	<-rt.done
}

// Close stops every poller still running.
func (p *Plugin) Close(context.Context) error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.drop(id)
	}
	return nil
}

// Refresh polls every account now instead of waiting for the next tick.
func (p *Plugin) Refresh(ctx context.Context) error {
	var errs []error
	for _, rt := range p.runtimes() {
		if err := rt.coord.Refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.title, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Plugin) refresh(rt *entryRuntime) {
	p.mu.Lock()
	registry := p.entities
	p.mu.Unlock()
	if registry == nil {
		return
	}
	for _, s := range rt.sensors {
		if id, ok := registry.EntityIDFor(s.UniqueID()); ok {
			registry.Refresh(id)
		}
	}
}

func (p *Plugin) runtimes() []*entryRuntime {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*entryRuntime, 0, len(p.entries))
	for _, rt := range p.entries {
		out = append(out, rt)
	}
	return out
}
