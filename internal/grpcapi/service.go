// Package grpcapi implements the gRPC ingestion surface, vigil.v1.Ingestion.
//
// Messages are well-known protobuf types, so the service needs no generated
// code: IngestEvents takes a google.protobuf.Struct shaped like the REST body
// ({"events":[...]}) and both methods answer with a Struct.
package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "vigil.v1.Ingestion"

	IngestEventsMethod = "/" + ServiceName + "/IngestEvents"
	RefreshRulesMethod = "/" + ServiceName + "/RefreshRules"
)

// IngestionServer is the server side of vigil.v1.Ingestion.
type IngestionServer interface {
	IngestEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	RefreshRules(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes vigil.v1.Ingestion for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IngestEvents", Handler: ingestEventsHandler},
		{MethodName: "RefreshRules", Handler: refreshRulesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vigil/v1/ingestion.proto",
}

func ingestEventsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestionServer).IngestEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IngestEventsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IngestionServer).IngestEvents(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func refreshRulesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestionServer).RefreshRules(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RefreshRulesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IngestionServer).RefreshRules(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls vigil.v1.Ingestion.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) IngestEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, IngestEventsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RefreshRules(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RefreshRulesMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
