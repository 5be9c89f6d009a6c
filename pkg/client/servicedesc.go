package client

import (
	"context"

	"google.golang.org/grpc"
)

// ControlHandler is implemented by the manager to serve Execute RPCs.
type ControlHandler interface {
	Execute(ctx context.Context, env *Envelope) (*Envelope, error)
}

// controlServiceName is the fully-qualified service name carried on the
// wire, standing in for what protoc would normally generate from a .proto
// file into pkg/api/proto.
const controlServiceName = "lifecyclectl.Control"

// ControlServiceDesc describes a single-method gRPC service: one unary RPC,
// Execute, dispatching on Envelope.Action. Hand-rolled because no protoc
// toolchain is available to generate client/server stubs from a .proto
// definition; it still rides on the real google.golang.org/grpc server and
// client machinery.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: controlServiceName,
	HandlerType: (*ControlHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Execute",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(Envelope)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(ControlHandler).Execute(ctx, in)
				}
				info := &grpc.UnaryServerInfo{
					Server:     srv,
					FullMethod: "/" + controlServiceName + "/Execute",
				}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(ControlHandler).Execute(ctx, req.(*Envelope))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/client/control.proto",
}

// RegisterControlServer registers handler against s using ControlServiceDesc.
func RegisterControlServer(s grpc.ServiceRegistrar, handler ControlHandler) {
	s.RegisterService(&ControlServiceDesc, handler)
}
