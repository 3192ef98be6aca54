package grpcapi

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/openagents/network/internal/transport/eventpb"
)

// Client is a thin dial wrapper for agents that speak the streaming
// transport, mirroring the teacher's AgentHubClient minus the
// observability bundle.
type Client struct {
	conn   *grpc.ClientConn
	Stream EventServiceClient
}

// Dial connects to addr. tlsCreds is nil for a plaintext grpc:// address
// and a configured credentials.TransportCredentials for grpcs://.
func Dial(ctx context.Context, addr string, tlsCreds credentials.TransportCredentials) (*Client, error) {
	creds := insecure.NewCredentials()
	if tlsCreds != nil {
		creds = tlsCreds
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpcapi: dial %s: %w", addr, err)
	}
	return &Client{conn: conn, Stream: NewEventServiceClient(conn)}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Communicate opens the bidirectional stream and sends the initial
// register frame, returning the stream for the caller to Send/Recv
// Event frames on.
func (c *Client) Communicate(ctx context.Context, register *eventpb.RegisterFrame) (EventService_CommunicateClient, error) {
	stream, err := c.Stream.Communicate(ctx)
	if err != nil {
		return nil, err
	}
	if err := stream.Send(&eventpb.ClientFrame{Register: register}); err != nil {
		return nil, err
	}
	return stream, nil
}
