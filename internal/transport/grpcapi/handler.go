package grpcapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/observability"
	"github.com/openagents/network/internal/transport/eventpb"
	"go.opentelemetry.io/otel/trace"
)

const pollInterval = 25 * time.Second

// communicateHandler implements EventServiceServer.Communicate,
// grounded on the teacher's SubscribeToTasks select/timeout loop
// (internal/agenthub/broker.go) generalized from a one-way task stream
// to the node's bidirectional register-then-Event protocol.
type communicateHandler struct {
	UnimplementedEventServiceServer

	gateway Gateway
	auth    Auth
	logger  *slog.Logger
	metrics *observability.MetricsManager
	tracer  *observability.TraceManager

	queueCapacity int
	overflow      event.OverflowPolicy
}

func (h *communicateHandler) Communicate(stream EventService_CommunicateServer) error {
	ctx := stream.Context()

	first, err := stream.Recv()
	if err != nil {
		return err
	}
	if first.Register == nil {
		return statusFromAPIError(apierr.New(apierr.InvalidEvent, "first frame on Communicate must be a register frame"))
	}

	reg := first.Register
	result, err := h.auth.RegisterAgent(reg.AgentID, reg.PresentedPasswordHash)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncrementAuthFailures(ctx, "register_grpc")
		}
		_ = stream.Send(&eventpb.ServerFrame{Error: &eventpb.ErrorFrame{Kind: string(apierr.KindOf(err)), Message: err.Error()}})
		return statusFromAPIError(err)
	}

	rec := event.AgentRecord{
		AgentID:       reg.AgentID,
		TransportKind: "grpc",
		Metadata:      reg.Metadata,
		Group:         result.Group,
		RegisteredAt:  time.Now().UTC(),
		LastSeen:      time.Now().UTC(),
		Secret:        result.Secret,
	}
	if err := h.gateway.RegisterAgent(ctx, rec, h.overflow, reg.ForceReconnect); err != nil {
		_ = stream.Send(&eventpb.ServerFrame{Error: &eventpb.ErrorFrame{Kind: string(apierr.KindOf(err)), Message: err.Error()}})
		return statusFromAPIError(err)
	}
	defer h.gateway.DropAgent(context.Background(), reg.AgentID)

	if err := stream.Send(&eventpb.ServerFrame{Registered: &eventpb.RegisteredFrame{Secret: result.Secret, Group: result.Group}}); err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "agent registered over streaming transport", "agent_id", reg.AgentID, "group", result.Group)

	errCh := make(chan error, 2)
	go h.recvLoop(stream, reg.AgentID, result.Secret, errCh)
	go h.sendLoop(ctx, stream, reg.AgentID, errCh)

	return <-errCh
}

// recvLoop accepts inbound Event frames from the agent and submits them
// to the gateway; the transport substitutes the authenticated agent id
// as source_id and the issued secret, never trusting client-supplied
// values for either (spec.md §4.4 framing discipline).
func (h *communicateHandler) recvLoop(stream EventService_CommunicateServer, agentID, secret string, errCh chan<- error) {
	for {
		frame, err := stream.Recv()
		if err != nil {
			errCh <- err
			return
		}
		if frame.Event == nil {
			continue
		}
		e := *frame.Event
		e.SourceID = event.AgentPrefix + agentID
		e.Secret = secret
		if _, err := h.gateway.Submit(stream.Context(), e, true); err != nil {
			h.logger.ErrorContext(stream.Context(), "submit failed for streamed event", "agent_id", agentID, "error", err)
			_ = stream.Send(&eventpb.ServerFrame{Error: &eventpb.ErrorFrame{Kind: string(apierr.KindOf(err)), Message: err.Error()}})
			errCh <- statusFromAPIError(err)
			return
		}
	}
}

// sendLoop long-polls the agent's delivery queue and forwards whatever
// arrives as Event frames until the stream's context is done.
func (h *communicateHandler) sendLoop(ctx context.Context, stream EventService_CommunicateServer, agentID string, errCh chan<- error) {
	for {
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		default:
		}

		events, err := h.gateway.Poll(ctx, agentID, 32, pollInterval)
		if err != nil {
			errCh <- err
			return
		}
		for _, e := range events {
			evt := e
			var span trace.Span
			if h.tracer != nil {
				_, span = h.tracer.StartDeliverSpan(ctx, "grpc", agentID, evt.EventName)
			}
			err := stream.Send(&eventpb.ServerFrame{Event: &evt})
			if span != nil {
				if err != nil {
					h.tracer.RecordError(span, err)
				} else {
					h.tracer.SetSpanSuccess(span)
				}
				span.End()
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}
}
