package uptimerobot

import (
	"context"
	"slices"
	"strings"

	"github.com/joshp123/gohass/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "gohass.plugins.uptimerobot.v1.UptimeRobotService"

type UptimeRobotServer interface {
	ListMonitors(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UptimeRobotServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "ListMonitors", UptimeRobotServer.ListMonitors),
		rpc.Unary(ServiceName, "Refresh", UptimeRobotServer.Refresh),
	},
	Metadata: "plugins/uptimerobot/v1/uptimerobot.proto",
}

type MonitorStatus struct {
	Account   string `json:"account"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Status    int    `json:"status"`
	Up        bool   `json:"up"`
	Available bool   `json:"available"`
}

type ListMonitorsResponse struct {
	Monitors []MonitorStatus `json:"monitors"`
}

type service struct {
	plugin *Plugin
}

func RegisterUptimeRobotService(server grpc.ServiceRegistrar, plugin *Plugin) {
	server.RegisterService(&serviceDesc, &service{plugin: plugin})
}

func (s *service) ListMonitors(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return rpc.Encode(ListMonitorsResponse{Monitors: s.plugin.monitorStatuses()})
}

func (s *service) Refresh(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.plugin.Refresh(ctx); err != nil {
		return nil, status.Errorf(codes.Unavailable, "refresh: %v", err)
	}
	return rpc.Encode(ListMonitorsResponse{Monitors: s.plugin.monitorStatuses()})
}

func (p *Plugin) monitorStatuses() []MonitorStatus {
	out := []MonitorStatus{}
	for _, rt := range p.runtimes() {
		for _, sensor := range rt.sensors {
			m, _ := sensor.monitor()
			out = append(out, MonitorStatus{
				Account:   rt.title,
				ID:        sensor.UniqueID(),
				Name:      sensor.Name(),
				URL:       m.URL,
				Status:    m.Status,
				Up:        sensor.Available() && m.Up(),
				Available: sensor.Available(),
			})
		}
	}
	slices.SortFunc(out, func(a, b MonitorStatus) int {
		if c := strings.Compare(a.Account, b.Account); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// ServiceClient calls the uptimerobot service over a client connection.
type ServiceClient struct {
	conn grpc.ClientConnInterface
}

func NewServiceClient(conn grpc.ClientConnInterface) *ServiceClient {
	return &ServiceClient{conn: conn}
}

func (c *ServiceClient) ListMonitors(ctx context.Context) ([]MonitorStatus, error) {
	var resp ListMonitorsResponse
	if err := rpc.Invoke(ctx, c.conn, ServiceName, "ListMonitors", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Monitors, nil
}

func (c *ServiceClient) Refresh(ctx context.Context) ([]MonitorStatus, error) {
	var resp ListMonitorsResponse
	if err := rpc.Invoke(ctx, c.conn, ServiceName, "Refresh", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Monitors, nil
}
