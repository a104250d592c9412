package webostv

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

const ServiceName = "gohass.plugins.webostv.v1.WebOSService"

type WebOSServer interface {
	Button(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Command(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SelectSoundOutput(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Notify(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WebOSServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "Button", WebOSServer.Button),
		rpc.Unary(ServiceName, "Command", WebOSServer.Command),
		rpc.Unary(ServiceName, "SelectSoundOutput", WebOSServer.SelectSoundOutput),
		rpc.Unary(ServiceName, "Notify", WebOSServer.Notify),
	},
	Metadata: "plugins/webostv/v1/webostv.proto",
}

type ButtonRequest struct {
	EntityIDs []string `json:"entity_ids"`
	Button    string   `json:"button"`
}

type CommandRequest struct {
	EntityIDs []string       `json:"entity_ids"`
	Command   string         `json:"command"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type SoundOutputRequest struct {
	EntityIDs   []string `json:"entity_ids"`
	SoundOutput string   `json:"sound_output"`
}

type NotifyRequest struct {
	EntityID string `json:"entity_id"`
	Message  string `json:"message"`
}

type CallResponse struct {
	Targets int `json:"targets"`
}

type service struct {
	plugin *Plugin
}

func RegisterWebOSService(server grpc.ServiceRegistrar, plugin *Plugin) {
	server.RegisterService(&serviceDesc, &service{plugin: plugin})
}

func (s *service) Button(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ButtonRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return s.call(ctx, ServiceButton, ServiceCall{EntityIDs: req.EntityIDs, Button: req.Button})
}

func (s *service) Command(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req CommandRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return s.call(ctx, ServiceCommand, ServiceCall{EntityIDs: req.EntityIDs, Command: req.Command, Payload: req.Payload})
}

func (s *service) SelectSoundOutput(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SoundOutputRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return s.call(ctx, ServiceSelectSoundOutput, ServiceCall{EntityIDs: req.EntityIDs, SoundOutput: req.SoundOutput})
}

func (s *service) Notify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req NotifyRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.plugin.Notify(ctx, req.EntityID, req.Message); err != nil {
		return nil, serviceStatus(err)
	}
	return rpc.Encode(CallResponse{Targets: 1})
}

func (s *service) call(ctx context.Context, name string, call ServiceCall) (*structpb.Struct, error) {
	targets, err := s.plugin.CallService(ctx, name, call)
	if err != nil {
		return nil, serviceStatus(err)
	}
	return rpc.Encode(CallResponse{Targets: targets})
}

func serviceStatus(err error) error {
	var cmdErr *CommandError
	switch {
	case errors.Is(err, ErrServiceNotRegistered):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrInvalidServiceCall):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, core.ErrUnknownEntity):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.As(err, &cmdErr):
		return status.Error(codes.Aborted, err.Error())
	case isTransportError(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// ServiceClient calls the webOS service over a client connection.
type ServiceClient struct {
	conn grpc.ClientConnInterface
}

func NewServiceClient(conn grpc.ClientConnInterface) *ServiceClient {
	return &ServiceClient{conn: conn}
}

func (c *ServiceClient) Button(ctx context.Context, entityIDs []string, button string) (int, error) {
	var resp CallResponse
	err := rpc.Invoke(ctx, c.conn, ServiceName, "Button", ButtonRequest{EntityIDs: entityIDs, Button: button}, &resp)
	return resp.Targets, err
}

func (c *ServiceClient) Command(ctx context.Context, entityIDs []string, command string, payload map[string]any) (int, error) {
	var resp CallResponse
	err := rpc.Invoke(ctx, c.conn, ServiceName, "Command", CommandRequest{EntityIDs: entityIDs, Command: command, Payload: payload}, &resp)
	return resp.Targets, err
}

func (c *ServiceClient) SelectSoundOutput(ctx context.Context, entityIDs []string, output string) (int, error) {
	var resp CallResponse
	err := rpc.Invoke(ctx, c.conn, ServiceName, "SelectSoundOutput", SoundOutputRequest{EntityIDs: entityIDs, SoundOutput: output}, &resp)
	return resp.Targets, err
}

func (c *ServiceClient) Notify(ctx context.Context, entityID, message string) error {
	var resp CallResponse
	return rpc.Invoke(ctx, c.conn, ServiceName, "Notify", NotifyRequest{EntityID: entityID, Message: message}, &resp)
}
