package clausius

import (
	"context"
	"errors"

	"github.com/joshp123/gohass/internal/core"
	"github.com/joshp123/gohass/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "gohass.plugins.clausius.v1.ClausiusService"

type ClausiusServer interface {
	ListCircuits(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSensors(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetTemperature(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClausiusServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "ListCircuits", ClausiusServer.ListCircuits),
		rpc.Unary(ServiceName, "ListSensors", ClausiusServer.ListSensors),
		rpc.Unary(ServiceName, "SetTemperature", ClausiusServer.SetTemperature),
	},
	Metadata: "plugins/clausius/v1/clausius.proto",
}

type Circuit struct {
	Code               string  `json:"code"`
	HVACMode           string  `json:"hvac_mode"`
	CurrentTemperature float64 `json:"current_temperature"`
	TargetTemperature  float64 `json:"target_temperature"`
}

type Sensor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	Available bool   `json:"available"`
}

type Relay struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	On        bool   `json:"on"`
	Available bool   `json:"available"`
}

type ListCircuitsResponse struct {
	Circuits []Circuit `json:"circuits"`
}

type ListSensorsResponse struct {
	Sensors []Sensor `json:"sensors"`
	Relays  []Relay  `json:"relays"`
}

type SetTemperatureRequest struct {
	Code        string  `json:"code"`
	Temperature float64 `json:"temperature"`
}

type SetTemperatureResponse struct {
	Circuit Circuit `json:"circuit"`
}

type service struct {
	client *Client
}

func RegisterClausiusService(server grpc.ServiceRegistrar, client *Client) {
	server.RegisterService(&serviceDesc, &service{client: client})
}

func (s *service) ListCircuits(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.client == nil {
		return nil, status.Error(codes.FailedPrecondition, "clausius client not configured")
	}
	resp := ListCircuitsResponse{Circuits: []Circuit{}}
	for _, c := range s.client.Circuits() {
		resp.Circuits = append(resp.Circuits, toCircuit(c))
	}
	return rpc.Encode(resp)
}

func (s *service) ListSensors(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.client == nil {
		return nil, status.Error(codes.FailedPrecondition, "clausius client not configured")
	}
	resp := ListSensorsResponse{Sensors: []Sensor{}, Relays: []Relay{}}
	for _, sensor := range s.client.Sensors() {
		resp.Sensors = append(resp.Sensors, Sensor{ID: sensor.id, Name: sensor.Name(), Value: sensor.Value(), Available: sensor.Available()})
	}
	for _, relay := range s.client.Relays() {
		resp.Relays = append(resp.Relays, Relay{Code: relay.code, Name: relay.Name(), On: relay.IsOn(), Available: relay.Available()})
	}
	return rpc.Encode(resp)
}

// SetTemperature stores the target and pushes it to the controller at once
// instead of waiting for the next poll.
func (s *service) SetTemperature(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.client == nil {
		return nil, status.Error(codes.FailedPrecondition, "clausius client not configured")
	}
	var req SetTemperatureRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	circuit, ok := s.client.Circuit(req.Code)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "circuit %q not found", req.Code)
	}
	if err := circuit.SetTemperature(ctx, req.Temperature); err != nil {
		if errors.Is(err, core.ErrInvalidTemperature) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	if err := circuit.Update(ctx); err != nil {
		return nil, status.Errorf(codes.Unavailable, "set temperature: %v", err)
	}
	return rpc.Encode(SetTemperatureResponse{Circuit: toCircuit(circuit)})
}

func toCircuit(c *ClimateControl) Circuit {
	return Circuit{
		Code:               c.Code(),
		HVACMode:           c.HVACMode(),
		CurrentTemperature: c.CurrentTemperature(),
		TargetTemperature:  c.TargetTemperature(),
	}
}

// ServiceClient calls the clausius service over a client connection.
type ServiceClient struct {
	conn grpc.ClientConnInterface
}

func NewServiceClient(conn grpc.ClientConnInterface) *ServiceClient {
	return &ServiceClient{conn: conn}
}

func (c *ServiceClient) ListCircuits(ctx context.Context) ([]Circuit, error) {
	var resp ListCircuitsResponse
	if err := rpc.Invoke(ctx, c.conn, ServiceName, "ListCircuits", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Circuits, nil
}

func (c *ServiceClient) ListSensors(ctx context.Context) (ListSensorsResponse, error) {
	var resp ListSensorsResponse
	err := rpc.Invoke(ctx, c.conn, ServiceName, "ListSensors", nil, &resp)
	return resp, err
}

func (c *ServiceClient) SetTemperature(ctx context.Context, code string, temperature float64) (Circuit, error) {
	var resp SetTemperatureResponse
	err := rpc.Invoke(ctx, c.conn, ServiceName, "SetTemperature", SetTemperatureRequest{Code: code, Temperature: temperature}, &resp)
	return resp.Circuit, err
}
