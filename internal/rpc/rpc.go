// Package rpc declares gRPC services whose request and response bodies are
// google.protobuf.Struct values, so plugins can expose typed Go handlers
// without a protoc build step.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Unary builds a method descriptor that decodes a Struct request and
// dispatches it to fn, honouring any server interceptor.
func Unary[S any](service, method string, fn func(S, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Encode converts any JSON-serialisable value into a Struct.
func Encode(value any) (*structpb.Struct, error) {
	if value == nil {
		return &structpb.Struct{}, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal struct: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return out, nil
}

// Decode unpacks a Struct into out using its JSON tags.
func Decode(in *structpb.Struct, out any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %T: %w", out, err)
	}
	return nil
}

// Invoke calls service/method on conn with req encoded as a Struct and
// decodes the reply into out (which may be nil).
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, service, method string, req any, out any) error {
	in, err := Encode(req)
	if err != nil {
		return err
	}
	reply := new(structpb.Struct)
	if err := conn.Invoke(ctx, "/"+service+"/"+method, in, reply); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return Decode(reply, out)
}
