package core

import (
	"context"
	"net/http"

	"github.com/joshp123/gohass/internal/flow"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
)

// HealthStatus represents plugin health states for registry reporting.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Dashboard is a Grafana dashboard asset embedded by the plugin.
type Dashboard struct {
	Name string
	JSON []byte
}

// Manifest describes a plugin for discovery and registry metadata.
type Manifest struct {
	PluginID    string
	DisplayName string
	Version     string
	Services    []string
	Platforms   []Platform
}

// Plugin is the compile-time contract for all gohass plugins.
type Plugin interface {
	ID() string
	Manifest() Manifest
	Dashboards() []Dashboard
	RegisterGRPC(*grpc.Server)
	Collectors() []prometheus.Collector
	Health() HealthStatus
	HealthMessage() string
}

// HTTPRegistrant allows plugins to expose HTTP handlers.
type HTTPRegistrant interface {
	RegisterHTTP(*http.ServeMux)
}

// PlatformSetup binds a platform to the callback that populates it.
type PlatformSetup struct {
	Platform Platform
	Setup    func(ctx context.Context, add AddEntitiesFunc) error
}

// PlatformProvider is implemented by plugins configured from static config.
type PlatformProvider interface {
	Platforms() []PlatformSetup
}

// EntryAdder returns an AddEntitiesFunc for one platform of a config entry.
type EntryAdder func(Platform) AddEntitiesFunc

// EntryHandler is implemented by plugins configured through config flows.
type EntryHandler interface {
	SetupEntry(ctx context.Context, entry flow.Entry, add EntryAdder) error
	UnloadEntry(ctx context.Context, entry flow.Entry) error
}

// FlowProvider exposes the config flow for a plugin's domain.
type FlowProvider interface {
	NewFlow() flow.Handler
}

// EntityBinder is implemented by plugins that resolve service targets by
// entity id.
type EntityBinder interface {
	BindEntities(*EntityRegistry)
}

// Importer is implemented by plugins that turn static config into config
// flows started with the import source.
type Importer interface {
	Imports() []map[string]any
}

// Starter is implemented by plugins that run background work.
type Starter interface {
	Start(ctx context.Context)
}

// Closer is implemented by plugins holding connections.
type Closer interface {
	Close(ctx context.Context) error
}
