package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified capability service name.
const ServiceName = "selene.capability.v1.CapabilityService"

// RunTurnMethod is the full method name of RunTurn.
const RunTurnMethod = "/" + ServiceName + "/RunTurn"

// CapabilityServiceServer is the server side of the capability service.
// Requests and responses are google.protobuf.Struct values, so the service
// needs no generated message types.
type CapabilityServiceServer interface {
	RunTurn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// RegisterCapabilityServiceServer registers srv on s.
func RegisterCapabilityServiceServer(s grpc.ServiceRegistrar, srv CapabilityServiceServer) {
	s.RegisterService(&CapabilityServiceDesc, srv)
}

func runTurnHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CapabilityServiceServer).RunTurn(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RunTurnMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CapabilityServiceServer).RunTurn(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CapabilityServiceDesc describes the capability service.
var CapabilityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CapabilityServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RunTurn",
			Handler:    runTurnHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "selene/capability/v1/capability.proto",
}

// =============================================================================
// CLIENT
// =============================================================================

// CapabilityServiceClient is the client side of the capability service.
type CapabilityServiceClient interface {
	RunTurn(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type capabilityServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCapabilityServiceClient creates a client on cc.
func NewCapabilityServiceClient(cc grpc.ClientConnInterface) CapabilityServiceClient {
	return &capabilityServiceClient{cc: cc}
}

func (c *capabilityServiceClient) RunTurn(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RunTurnMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
