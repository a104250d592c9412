package core

import (
	"context"
	"errors"
	"time"

	"github.com/joshp123/gohass/internal/flow"
	"github.com/joshp123/gohass/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const FlowServiceName = "gohass.flow.v1.Flows"

// FlowServer is the server side of the config-flow gRPC service.
type FlowServer interface {
	Init(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Configure(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Progress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Wait(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEntries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveEntry(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var flowServiceDesc = grpc.ServiceDesc{
	ServiceName: FlowServiceName,
	HandlerType: (*FlowServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(FlowServiceName, "Init", FlowServer.Init),
		rpc.Unary(FlowServiceName, "Configure", FlowServer.Configure),
		rpc.Unary(FlowServiceName, "Progress", FlowServer.Progress),
		rpc.Unary(FlowServiceName, "Wait", FlowServer.Wait),
		rpc.Unary(FlowServiceName, "ListEntries", FlowServer.ListEntries),
		rpc.Unary(FlowServiceName, "RemoveEntry", FlowServer.RemoveEntry),
	},
	Metadata: "flow/v1/flow.proto",
}

func RegisterFlowServer(s grpc.ServiceRegistrar, srv FlowServer) {
	s.RegisterService(&flowServiceDesc, srv)
}

type InitFlowRequest struct {
	Domain string         `json:"domain"`
	Source string         `json:"source,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
}

type ConfigureFlowRequest struct {
	FlowID string         `json:"flow_id"`
	Input  map[string]any `json:"input,omitempty"`
}

type WaitFlowRequest struct {
	FlowID         string `json:"flow_id"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type ListEntriesRequest struct {
	Domain string `json:"domain,omitempty"`
}

type ListEntriesResponse struct {
	Entries []flow.Entry `json:"entries"`
}

type RemoveEntryRequest struct {
	EntryID string `json:"entry_id"`
}

// FlowService exposes the hub's flow manager and entry store.
type FlowService struct {
	hub *Hub
}

func NewFlowService(hub *Hub) *FlowService {
	return &FlowService{hub: hub}
}

func (s *FlowService) Init(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req InitFlowRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	result, err := s.hub.Flows().Init(ctx, req.Domain, req.Source, req.Input)
	if err != nil {
		return nil, flowStatus(err)
	}
	return rpc.Encode(result)
}

func (s *FlowService) Configure(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ConfigureFlowRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	result, err := s.hub.Flows().Configure(ctx, req.FlowID, req.Input)
	if err != nil {
		return nil, flowStatus(err)
	}
	return rpc.Encode(result)
}

func (s *FlowService) Progress(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ConfigureFlowRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	result, err := s.hub.Flows().Progress(req.FlowID)
	if err != nil {
		return nil, flowStatus(err)
	}
	return rpc.Encode(result)
}

func (s *FlowService) Wait(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req WaitFlowRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	result, err := s.hub.Flows().Wait(ctx, req.FlowID)
	if err != nil {
		return nil, flowStatus(err)
	}
	return rpc.Encode(result)
}

func (s *FlowService) ListEntries(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListEntriesRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return rpc.Encode(ListEntriesResponse{Entries: s.hub.Flows().Entries().List(req.Domain)})
}

func (s *FlowService) RemoveEntry(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RemoveEntryRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.hub.UnloadEntry(ctx, req.EntryID); err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return &structpb.Struct{}, nil
}

func flowStatus(err error) error {
	switch {
	case errors.Is(err, flow.ErrUnknownFlow), errors.Is(err, flow.ErrUnknownHandler):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FlowClient drives config flows over a client connection.
type FlowClient struct {
	conn grpc.ClientConnInterface
}

func NewFlowClient(conn grpc.ClientConnInterface) *FlowClient {
	return &FlowClient{conn: conn}
}

func (c *FlowClient) Init(ctx context.Context, domain, source string, input map[string]any) (flow.Result, error) {
	var result flow.Result
	err := rpc.Invoke(ctx, c.conn, FlowServiceName, "Init", InitFlowRequest{Domain: domain, Source: source, Input: input}, &result)
	return result, err
}

func (c *FlowClient) Configure(ctx context.Context, flowID string, input map[string]any) (flow.Result, error) {
	var result flow.Result
	err := rpc.Invoke(ctx, c.conn, FlowServiceName, "Configure", ConfigureFlowRequest{FlowID: flowID, Input: input}, &result)
	return result, err
}

func (c *FlowClient) Wait(ctx context.Context, flowID string, timeout time.Duration) (flow.Result, error) {
	var result flow.Result
	req := WaitFlowRequest{FlowID: flowID, TimeoutSeconds: int(timeout / time.Second)}
	err := rpc.Invoke(ctx, c.conn, FlowServiceName, "Wait", req, &result)
	return result, err
}

func (c *FlowClient) ListEntries(ctx context.Context, domain string) ([]flow.Entry, error) {
	var resp ListEntriesResponse
	if err := rpc.Invoke(ctx, c.conn, FlowServiceName, "ListEntries", ListEntriesRequest{Domain: domain}, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *FlowClient) RemoveEntry(ctx context.Context, entryID string) error {
	return rpc.Invoke(ctx, c.conn, FlowServiceName, "RemoveEntry", RemoveEntryRequest{EntryID: entryID}, nil)
}
