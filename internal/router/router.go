package router

import (
	"google.golang.org/grpc"

	"github.com/joshp123/gohass/internal/core"
)

// RegisterServices registers the core registry and flow services, then every
// plugin's own services, on the gRPC server.
func RegisterServices(server *grpc.Server, hub *core.Hub) {
	core.RegisterRegistryServer(server, core.NewRegistryService(hub.Plugins(), hub.Entities()))
	core.RegisterFlowServer(server, core.NewFlowService(hub))

	for _, p := range hub.Plugins() {
		if p.Health() == core.HealthError {
			continue
		}
		p.RegisterGRPC(server)
	}
}
