package clustergrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// serviceName is the gRPC service path; deliberately not generated from a
// .proto file (no protoc available in this environment - see DESIGN.md), so
// it's declared by hand alongside a matching ServiceDesc below.
const serviceName = "clustergrpc.ElectionTransport"

// electionTransportServer is implemented by Transport; kept as a narrow
// interface so the ServiceDesc below doesn't need to know about Transport's
// other fields.
type electionTransportServer interface {
	Deliver(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

func _ElectionTransport_Deliver_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(electionTransportServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/Deliver",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(electionTransportServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// electionTransportServiceDesc is the hand-authored equivalent of what
// protoc-gen-go-grpc would otherwise generate for a one-RPC "Deliver"
// service: every election message (vote/heartbeat request and response)
// rides this single unary push RPC, called in both directions between
// peers and routed by the envelope's
// embedded qualifier and correlation id rather than by distinct RPC names.
var electionTransportServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*electionTransportServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    _ElectionTransport_Deliver_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clustergrpc.proto",
}

// electionTransportClient is the client-side counterpart, mirroring what a
// generated *electionTransportClient would expose.
type electionTransportClient struct {
	cc grpc.ClientConnInterface
}

func newElectionTransportClient(cc grpc.ClientConnInterface) *electionTransportClient {
	return &electionTransportClient{cc: cc}
}

func (c *electionTransportClient) Deliver(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/Deliver", in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
