package core

import (
	"context"
	"errors"
	"sync"

	"github.com/joshp123/gohass/internal/rate"
	"github.com/joshp123/gohass/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const RegistryServiceName = "gohass.registry.v1.Registry"

// RegistryServer is the server side of the registry gRPC service.
type RegistryServer interface {
	ListPlugins(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DescribePlugin(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEntities(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetEntity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetTemperature(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var registryServiceDesc = grpc.ServiceDesc{
	ServiceName: RegistryServiceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(RegistryServiceName, "ListPlugins", RegistryServer.ListPlugins),
		rpc.Unary(RegistryServiceName, "DescribePlugin", RegistryServer.DescribePlugin),
		rpc.Unary(RegistryServiceName, "ListEntities", RegistryServer.ListEntities),
		rpc.Unary(RegistryServiceName, "GetEntity", RegistryServer.GetEntity),
		rpc.Unary(RegistryServiceName, "SetTemperature", RegistryServer.SetTemperature),
	},
	Metadata: "registry/v1/registry.proto",
}

// RegisterRegistryServer installs srv on s.
func RegisterRegistryServer(s grpc.ServiceRegistrar, srv RegistryServer) {
	s.RegisterService(&registryServiceDesc, srv)
}

type PluginSummary struct {
	PluginID    string `json:"plugin_id"`
	DisplayName string `json:"display_name"`
	Version     string `json:"version"`
	Status      string `json:"status"`
}

type DashboardRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type PluginDescriptor struct {
	PluginID      string         `json:"plugin_id"`
	DisplayName   string         `json:"display_name"`
	Version       string         `json:"version"`
	Services      []string       `json:"services,omitempty"`
	Platforms     []Platform     `json:"platforms,omitempty"`
	Status        string         `json:"status"`
	HealthMessage string         `json:"health_message,omitempty"`
	Dashboards    []DashboardRef `json:"dashboards,omitempty"`
	RateLimits    []rate.Budget  `json:"rate_limits,omitempty"`
}

type ListPluginsResponse struct {
	Plugins []PluginSummary `json:"plugins"`
}

type DescribePluginRequest struct {
	PluginID string `json:"plugin_id"`
}

type DescribePluginResponse struct {
	Plugin PluginDescriptor `json:"plugin"`
}

type ListEntitiesRequest struct {
	Platform Platform `json:"platform,omitempty"`
}

type ListEntitiesResponse struct {
	Entities []State `json:"entities"`
}

type GetEntityRequest struct {
	EntityID string `json:"entity_id"`
}

type GetEntityResponse struct {
	Entity State `json:"entity"`
}

type SetTemperatureRequest struct {
	EntityID    string  `json:"entity_id"`
	Temperature float64 `json:"temperature"`
}

// RegistryService provides plugin and entity discovery to clients.
type RegistryService struct {
	plugins  []Plugin
	entities *EntityRegistry
	mu       sync.RWMutex
}

func NewRegistryService(plugins []Plugin, entities *EntityRegistry) *RegistryService {
	if entities == nil {
		entities = NewEntityRegistry(nil)
	}
	return &RegistryService{plugins: plugins, entities: entities}
}

func (r *RegistryService) ListPlugins(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := ListPluginsResponse{Plugins: []PluginSummary{}}
	for _, p := range r.plugins {
		manifest := p.Manifest()
		resp.Plugins = append(resp.Plugins, PluginSummary{
			PluginID:    manifest.PluginID,
			DisplayName: manifest.DisplayName,
			Version:     manifest.Version,
			Status:      string(p.Health()),
		})
	}

	return rpc.Encode(resp)
}

func (r *RegistryService) DescribePlugin(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	_ = ctx

	var req DescribePluginRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		manifest := p.Manifest()
		if manifest.PluginID != req.PluginID {
			continue
		}

		descriptor := PluginDescriptor{
			PluginID:      manifest.PluginID,
			DisplayName:   manifest.DisplayName,
			Version:       manifest.Version,
			Services:      manifest.Services,
			Platforms:     manifest.Platforms,
			Status:        string(p.Health()),
			HealthMessage: p.HealthMessage(),
		}

		for _, d := range p.Dashboards() {
			descriptor.Dashboards = append(descriptor.Dashboards, DashboardRef{
				Name: d.Name,
				Path: DashboardPath(manifest.PluginID, d.Name),
			})
		}

		if limited, ok := p.(rate.RateLimited); ok {
			descriptor.RateLimits = limited.RateLimits().Budgets()
		}

		return rpc.Encode(DescribePluginResponse{Plugin: descriptor})
	}

	return nil, status.Errorf(codes.NotFound, "plugin %q not found", req.PluginID)
}

func (r *RegistryService) ListEntities(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListEntitiesRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return rpc.Encode(ListEntitiesResponse{Entities: r.entities.States(req.Platform)})
}

func (r *RegistryService) GetEntity(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GetEntityRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	state, ok := r.entities.Get(req.EntityID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "entity %q not found", req.EntityID)
	}
	return rpc.Encode(GetEntityResponse{Entity: state})
}

func (r *RegistryService) SetTemperature(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SetTemperatureRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := r.entities.SetTemperature(ctx, req.EntityID, req.Temperature); err != nil {
		if errors.Is(err, ErrUnknownEntity) {
			return nil, status.Errorf(codes.NotFound, "entity %q not found", req.EntityID)
		}
		if errors.Is(err, ErrInvalidTemperature) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	state, _ := r.entities.Get(req.EntityID)
	return rpc.Encode(GetEntityResponse{Entity: state})
}

// RegistryClient calls the registry service over a client connection.
type RegistryClient struct {
	conn grpc.ClientConnInterface
}

func NewRegistryClient(conn grpc.ClientConnInterface) *RegistryClient {
	return &RegistryClient{conn: conn}
}

func (c *RegistryClient) ListPlugins(ctx context.Context) ([]PluginSummary, error) {
	var resp ListPluginsResponse
	if err := rpc.Invoke(ctx, c.conn, RegistryServiceName, "ListPlugins", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Plugins, nil
}

func (c *RegistryClient) DescribePlugin(ctx context.Context, pluginID string) (PluginDescriptor, error) {
	var resp DescribePluginResponse
	err := rpc.Invoke(ctx, c.conn, RegistryServiceName, "DescribePlugin", DescribePluginRequest{PluginID: pluginID}, &resp)
	return resp.Plugin, err
}

func (c *RegistryClient) ListEntities(ctx context.Context, platform Platform) ([]State, error) {
	var resp ListEntitiesResponse
	if err := rpc.Invoke(ctx, c.conn, RegistryServiceName, "ListEntities", ListEntitiesRequest{Platform: platform}, &resp); err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

func (c *RegistryClient) GetEntity(ctx context.Context, entityID string) (State, error) {
	var resp GetEntityResponse
	err := rpc.Invoke(ctx, c.conn, RegistryServiceName, "GetEntity", GetEntityRequest{EntityID: entityID}, &resp)
	return resp.Entity, err
}

func (c *RegistryClient) SetTemperature(ctx context.Context, entityID string, temperature float64) (State, error) {
	var resp GetEntityResponse
	err := rpc.Invoke(ctx, c.conn, RegistryServiceName, "SetTemperature", SetTemperatureRequest{EntityID: entityID, Temperature: temperature}, &resp)
	return resp.Entity, err
}
