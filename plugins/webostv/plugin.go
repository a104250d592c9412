package webostv

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joshp123/gohass/internal/blob"
	"github.com/joshp123/gohass/internal/config"
	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/internal/flow"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

//go:embed dashboard.json
var dashboardJSON []byte

const (
	PluginID = "webostv"

	DefaultPairTimeout = 60 * time.Second
	connectTimeout     = 10 * time.Second
)

type entryRuntime struct {
	client   *Client
	player   *MediaPlayer
	notifier *Notifier
}

// Plugin integrates LG webOS TVs. TVs are added through the pairing flow or
// imported from static config; each config entry owns one client.
type Plugin struct {
	cfg         *config.WebOSTVConfig
	logger      *zap.Logger
	mirror      blob.Store
	pairTimeout time.Duration
	metrics     *metrics

	// ctx bounds background pairing; Close cancels it.
	ctx  context.Context
	stop context.CancelFunc

	mu       sync.Mutex
	entities *core.EntityRegistry
	entries  map[string]*entryRuntime
	services map[string]serviceHandler
}

func NewPlugin(cfg *config.WebOSTVConfig, logger *zap.Logger, mirror blob.Store) *Plugin {
	if cfg == nil {
		cfg = &config.WebOSTVConfig{}
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = config.DefaultWebOSKeyFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Plugin{
		cfg:         cfg,
		logger:      logger.Named(PluginID),
		mirror:      mirror,
		pairTimeout: DefaultPairTimeout,
		entries:     make(map[string]*entryRuntime),
	}
	p.ctx, p.stop = context.WithCancel(context.Background())
	p.metrics = newMetrics(p)
	return p
}

func (p *Plugin) ID() string {
	return PluginID
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    PluginID,
		DisplayName: "LG webOS Smart TV",
		Version:     "0.1.0",
		Services:    []string{ServiceName},
		Platforms:   []core.Platform{core.PlatformMediaPlayer, core.PlatformNotify},
	}
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "webostv-overview", JSON: dashboardJSON}}
}

func (p *Plugin) RegisterGRPC(server *grpc.Server) {
	RegisterWebOSService(server, p)
}

func (p *Plugin) Collectors() []prometheus.Collector {
	return p.metrics.collectors()
}

func (p *Plugin) Health() core.HealthStatus {
	return core.HealthHealthy
}

func (p *Plugin) HealthMessage() string {
	return ""
}

func (p *Plugin) NewFlow() flow.Handler {
	return &configFlow{plugin: p}
}

func (p *Plugin) BindEntities(registry *core.EntityRegistry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entities = registry
}

// Imports returns one import-flow input per TV listed in static config.
func (p *Plugin) Imports() []map[string]any {
	out := make([]map[string]any, 0, len(p.cfg.Devices))
	for _, device := range p.cfg.Devices {
		input := map[string]any{confHost: device.Host, confName: device.Name}
		if device.Icon != "" {
			input[confIcon] = device.Icon
		}
		if len(device.Customize.Sources) > 0 {
			input[confSources] = device.Customize.Sources
		}
		out = append(out, input)
	}
	return out
}

func (p *Plugin) newClient(host string, store KeyStorage) *Client {
	opts := []Option{WithLogger(p.logger)}
	if store != nil {
		opts = append(opts, WithKeyStore(store))
	}
	return NewNoStoreClient(host, opts...)
}

func (p *Plugin) openKeyStore() (*KeyStore, error) {
	if err := os.MkdirAll(filepath.Dir(p.cfg.KeyFile), 0o700); err != nil {
		return nil, fmt.Errorf("create key file directory: %w", err)
	}
	return OpenKeyStore(p.cfg.KeyFile, p.mirror, p.logger)
}

// rememberKey writes a freshly paired key to the key file. Entries are not
// persisted, so a restart re-imports static TVs from there.
func (p *Plugin) rememberKey(ctx context.Context, host, key string) {
	if host == "" || key == "" {
		return
	}
	if _, err := ConvertClientKeys(ctx, p.cfg.KeyFile, p.logger); err != nil {
		p.logger.Warn("client key migration failed", zap.Error(err))
	}
	store, err := p.openKeyStore()
	if err != nil {
		p.logger.Warn("client key not saved", zap.String("host", host), zap.Error(err))
		return
	}
	defer store.Close()
	if err := store.Put(ctx, host, key); err != nil {
		p.logger.Warn("client key not saved", zap.String("host", host), zap.Error(err))
	}
}

// SetupEntry connects the entry's TV if it is on and adds its media player
// and notify entities. The services are registered with the first entry.
func (p *Plugin) SetupEntry(ctx context.Context, entry flow.Entry, add core.EntryAdder) error {
	host := entry.String(confHost)
	if host == "" {
		return errors.New("entry has no host")
	}
	name := entry.String(confName)
	if name == "" {
		name = config.DefaultWebOSName
	}

	client := NewNoStoreClient(host, WithClientKey(entry.String(confClientKey)), WithLogger(p.logger))
	rt := &entryRuntime{
		client:   client,
		player:   NewMediaPlayer(client, name, stringsValue(entry.Data, confSources), p.logger),
		notifier: NewNotifier(client, name, entry.String(confIcon)),
	}

	p.mu.Lock()
	if p.services == nil {
		p.services = serviceTable()
		p.logger.Debug("services registered")
	}
	p.entries[entry.EntryID] = rt
	p.mu.Unlock()

	client.AddStateUpdateCallback(func() { p.refresh(rt) })

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err := ConnectQuietly(connectCtx, client, p.logger)
	cancel()
	if err != nil {
		p.logger.Warn("unexpected error connecting to tv", zap.String("host", host), zap.Error(err))
	}

	if err := add(core.PlatformMediaPlayer)(rt.player); err != nil {
		p.drop(entry.EntryID)
		return fmt.Errorf("add media player: %w", err)
	}
	if err := add(core.PlatformNotify)(rt.notifier); err != nil {
		p.drop(entry.EntryID)
		return fmt.Errorf("add notify: %w", err)
	}
	return nil
}

// UnloadEntry disconnects the entry's TV. The services go with the last
// entry.
func (p *Plugin) UnloadEntry(_ context.Context, entry flow.Entry) error {
	return p.drop(entry.EntryID)
}

func (p *Plugin) drop(entryID string) error {
	p.mu.Lock()
	rt, ok := p.entries[entryID]
	delete(p.entries, entryID)
	if len(p.entries) == 0 {
		p.services = nil
	}
	p.mu.Unlock()
	if !ok {
		return nil
	}
	rt.client.ClearStateUpdateCallbacks()
	return rt.client.Disconnect()
}

// Close cancels pairings in flight and disconnects every TV still loaded.
func (p *Plugin) Close(context.Context) error {
	p.stop()
	p.mu.Lock()
	ids := make([]string, 0, len(p.entries))
	for id := range p.entries {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	var errs []error
	for _, id := range ids {
		errs = append(errs, p.drop(id))
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
	for _, uid := range []string{rt.player.UniqueID(), rt.notifier.UniqueID()} {
		if id, ok := registry.EntityIDFor(uid); ok {
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
