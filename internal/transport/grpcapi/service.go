package grpcapi

// Hand-authored in the shape protoc-gen-go-grpc would produce for a
// service with one bidirectional streaming method:
//
//	service EventService {
//	  rpc Communicate(stream ClientFrame) returns (stream ServerFrame);
//	}
//
// See internal/transport/eventpb for the frame types and the codec that
// carries them over the wire in place of generated protobuf marshaling.

import (
	"context"

	"google.golang.org/grpc"

	"github.com/openagents/network/internal/transport/eventpb"
)

const serviceName = "openagents.network.EventService"

// EventServiceClient is the client API for EventService.
type EventServiceClient interface {
	Communicate(ctx context.Context, opts ...grpc.CallOption) (EventService_CommunicateClient, error)
}

type eventServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewEventServiceClient(cc grpc.ClientConnInterface) EventServiceClient {
	return &eventServiceClient{cc: cc}
}

func (c *eventServiceClient) Communicate(ctx context.Context, opts ...grpc.CallOption) (EventService_CommunicateClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(eventpb.CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &_EventService_serviceDesc.Streams[0], serviceName+"/Communicate", opts...)
	if err != nil {
		return nil, err
	}
	return &eventServiceCommunicateClient{stream}, nil
}

// EventService_CommunicateClient is the stream handle returned to a
// connecting client.
type EventService_CommunicateClient interface {
	Send(*eventpb.ClientFrame) error
	Recv() (*eventpb.ServerFrame, error)
	grpc.ClientStream
}

type eventServiceCommunicateClient struct {
	grpc.ClientStream
}

func (x *eventServiceCommunicateClient) Send(m *eventpb.ClientFrame) error {
	return x.ClientStream.SendMsg(m)
}

func (x *eventServiceCommunicateClient) Recv() (*eventpb.ServerFrame, error) {
	m := new(eventpb.ServerFrame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// EventServiceServer is the server API for EventService.
type EventServiceServer interface {
	Communicate(EventService_CommunicateServer) error
}

// UnimplementedEventServiceServer embeds into a concrete server to
// satisfy forward compatibility the way protoc-gen-go-grpc's
// unimplemented types do.
type UnimplementedEventServiceServer struct{}

func (UnimplementedEventServiceServer) Communicate(EventService_CommunicateServer) error {
	return grpcCodeUnimplemented("method Communicate not implemented")
}

// EventService_CommunicateServer is the stream handle passed to the
// server's Communicate implementation.
type EventService_CommunicateServer interface {
	Send(*eventpb.ServerFrame) error
	Recv() (*eventpb.ClientFrame, error)
	grpc.ServerStream
}

type eventServiceCommunicateServer struct {
	grpc.ServerStream
}

func (x *eventServiceCommunicateServer) Send(m *eventpb.ServerFrame) error {
	return x.ServerStream.SendMsg(m)
}

func (x *eventServiceCommunicateServer) Recv() (*eventpb.ClientFrame, error) {
	m := new(eventpb.ClientFrame)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _EventService_Communicate_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(EventServiceServer).Communicate(&eventServiceCommunicateServer{stream})
}

var _EventService_serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EventServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Communicate",
			Handler:       _EventService_Communicate_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "eventpb/event_service.proto",
}

// RegisterEventServiceServer registers srv on s, mirroring the generated
// Register<Service>Server helper.
func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&_EventService_serviceDesc, srv)
}
