package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type TraceManager struct {
	tracer trace.Tracer
}

func NewTraceManager(serviceName string) *TraceManager {
	return &TraceManager{
		tracer: otel.Tracer(serviceName),
	}
}

func (tm *TraceManager) StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, operationName, trace.WithAttributes(attrs...))
}

func (tm *TraceManager) InjectTraceContext(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

func (tm *TraceManager) ExtractTraceContext(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// StartEventProcessingSpan covers one submit() pipeline run: stamp,
// authenticate, classify, mod chain, route.
func (tm *TraceManager) StartEventProcessingSpan(ctx context.Context, eventID, eventName, source, destination string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "submit_event", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("event.name", eventName),
		attribute.String("event.source", source),
		attribute.String("event.destination", destination),
	))
}

// StartDeliverSpan covers sending one queued event to its recipient over
// a transport; the streaming transport's send loop uses it.
func (tm *TraceManager) StartDeliverSpan(ctx context.Context, transport, destination, eventName string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "deliver_event", trace.WithAttributes(
		attribute.String("transport.kind", transport),
		attribute.String("transport.destination", destination),
		attribute.String("event.name", eventName),
	))
}

// StartModSpan covers a single mod's processor invocation within the
// pipeline.
func (tm *TraceManager) StartModSpan(ctx context.Context, modPath, eventName string) (context.Context, trace.Span) {
	return tm.tracer.Start(ctx, "run_mod", trace.WithAttributes(
		attribute.String("mod.path", modPath),
		attribute.String("event.name", eventName),
	))
}

func (tm *TraceManager) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(1, err.Error()) // Error status
	}
}

func (tm *TraceManager) SetSpanSuccess(span trace.Span) {
	span.SetStatus(2, "") // OK status
}

// AddEventAttributes adds an event's payload/metadata to a span as
// attributes, flattening scalar values and stringifying the rest.
func (tm *TraceManager) AddEventAttributes(span trace.Span, prefix string, fields map[string]interface{}) {
	for key, value := range fields {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(prefix+key, v))
		case float64:
			span.SetAttributes(attribute.Float64(prefix+key, v))
		case int:
			span.SetAttributes(attribute.Int(prefix+key, v))
		case bool:
			span.SetAttributes(attribute.Bool(prefix+key, v))
		default:
			span.SetAttributes(attribute.String(prefix+key, fmt.Sprintf("%v", v)))
		}
	}
}

// AddModResult records a mod processor's outcome (pass, stop, error,
// timeout) on its span.
func (tm *TraceManager) AddModResult(span trace.Span, outcome string, errorMessage string) {
	span.SetAttributes(attribute.String("mod.outcome", outcome))
	if errorMessage != "" {
		span.SetAttributes(attribute.String("mod.error", errorMessage))
	}
}

// AddSpanEvent adds a timestamped event to a span for tracking processing steps
func (tm *TraceManager) AddSpanEvent(span trace.Span, eventName string, attributes ...attribute.KeyValue) {
	span.AddEvent(eventName, trace.WithAttributes(attributes...))
}

// AddComponentAttribute adds a component identifier to a span
func (tm *TraceManager) AddComponentAttribute(span trace.Span, component string) {
	span.SetAttributes(attribute.String("networknode.component", component))
}
