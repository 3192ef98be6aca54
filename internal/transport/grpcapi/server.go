// Package grpcapi is the streaming transport of spec.md §4.4: a single
// bidirectional Communicate RPC carrying a register frame followed by
// Event frames in both directions. Grounded on the teacher's
// AgentHubServer/EventBusService pairing (internal/agenthub/grpc.go,
// broker.go), generalized from task pub-sub to the node's Event model.
package grpcapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/openagents/network/internal/auth"
	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/observability"
)

// Gateway is the subset of gateway.Gateway the streaming transport
// drives. Declared locally to avoid an import-time dependency on the
// concrete gateway package from the transport layer.
type Gateway interface {
	RegisterAgent(ctx context.Context, rec event.AgentRecord, overflow event.OverflowPolicy, forceReconnect bool) error
	DropAgent(ctx context.Context, agentID string)
	Poll(ctx context.Context, agentID string, maxItems int, waitTimeout time.Duration) ([]event.Event, error)
	Submit(ctx context.Context, e event.Event, persistRequired bool) (event.Event, error)
}

// Auth is the subset of auth.Manager the streaming transport drives
// directly (registration happens here rather than over HTTP, since a
// streaming client has no other channel to present credentials on).
type Auth interface {
	RegisterAgent(agentID, presentedPasswordHash string) (auth.RegisterResult, error)
	Unregister(agentID, secret string) error
}

// Server wraps a grpc.Server serving EventService, following the
// teacher's AgentHubServer pattern: one struct bundling the listener,
// the gRPC server, and the observability handles a node process needs.
type Server struct {
	GRPCServer *grpc.Server
	Listener   net.Listener
	Logger     *slog.Logger
	Metrics    *observability.MetricsManager
	Tracer     *observability.TraceManager

	addr string
}

// NewServer creates the gRPC listener and server, instrumented with
// OpenTelemetry stats handlers, but does not register the EventService
// or start serving — callers do that once the gateway is ready.
func NewServer(addr string, logger *slog.Logger, metrics *observability.MetricsManager, tracer *observability.TraceManager, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpcapi: listen on %s: %w", addr, err)
	}

	serverOpts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	}, opts...)

	return &Server{
		GRPCServer: grpc.NewServer(serverOpts...),
		Listener:   lis,
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
		addr:       addr,
	}, nil
}

// Serve registers the EventService handler and blocks serving
// connections until the listener closes or Stop is called.
func (s *Server) Serve(gw Gateway, authMgr Auth, queueCapacity int, overflow event.OverflowPolicy) error {
	RegisterEventServiceServer(s.GRPCServer, &communicateHandler{
		gateway:       gw,
		auth:          authMgr,
		logger:        s.Logger,
		metrics:       s.Metrics,
		tracer:        s.Tracer,
		queueCapacity: queueCapacity,
		overflow:      overflow,
	})
	s.Logger.Info("streaming transport listening", slog.String("address", s.addr))
	return s.GRPCServer.Serve(s.Listener)
}

// Stop gracefully stops the gRPC server, letting in-flight Communicate
// streams drain.
func (s *Server) Stop() {
	s.GRPCServer.GracefulStop()
}
