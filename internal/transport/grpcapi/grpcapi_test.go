package grpcapi

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/openagents/network/internal/auth"
	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/transport/eventpb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct {
	queue chan event.Event
}

func (g *fakeGateway) RegisterAgent(ctx context.Context, rec event.AgentRecord, overflow event.OverflowPolicy, forceReconnect bool) error {
	return nil
}
func (g *fakeGateway) DropAgent(ctx context.Context, agentID string) {}
func (g *fakeGateway) Poll(ctx context.Context, agentID string, maxItems int, waitTimeout time.Duration) ([]event.Event, error) {
	select {
	case e := <-g.queue:
		return []event.Event{e}, nil
	case <-time.After(waitTimeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (g *fakeGateway) Submit(ctx context.Context, e event.Event, persistRequired bool) (event.Event, error) {
	g.queue <- e
	return e, nil
}

type fakeAuth struct{}

func (fakeAuth) RegisterAgent(agentID, presentedPasswordHash string) (auth.RegisterResult, error) {
	return auth.RegisterResult{Secret: "s3cr3t", Group: "guests"}, nil
}
func (fakeAuth) Unregister(agentID, secret string) error { return nil }

func startTestServer(t *testing.T, gw Gateway) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()
	RegisterEventServiceServer(grpcServer, &communicateHandler{
		gateway:       gw,
		auth:          fakeAuth{},
		logger:        testLogger(),
		queueCapacity: 16,
		overflow:      event.Disconnect,
	})
	go grpcServer.Serve(lis)
	t.Cleanup(grpcServer.Stop)
	return lis
}

func dialBufconn(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestCommunicateRegisterAndEcho(t *testing.T) {
	gw := &fakeGateway{queue: make(chan event.Event, 4)}
	lis := startTestServer(t, gw)
	conn := dialBufconn(t, lis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewEventServiceClient(conn)
	stream, err := client.Communicate(ctx)
	require.NoError(t, err)

	require.NoError(t, stream.Send(&eventpb.ClientFrame{Register: &eventpb.RegisterFrame{AgentID: "agent-1"}}))

	reply, err := stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, reply.Registered)
	require.Equal(t, "guests", reply.Registered.Group)

	gw.queue <- event.Event{EventName: "agent.message", SourceID: "agent:agent-2", DestinationID: "agent:agent-1"}

	next, err := stream.Recv()
	require.NoError(t, err)
	require.NotNil(t, next.Event)
	require.Equal(t, "agent.message", next.Event.EventName)
}
