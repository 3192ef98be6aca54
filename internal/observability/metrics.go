package observability

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type MetricsManager struct {
	meter metric.Meter

	// Event metrics
	eventsProcessedTotal    metric.Int64Counter
	eventProcessingDuration metric.Float64Histogram
	eventErrorsTotal        metric.Int64Counter
	eventsPublishedTotal    metric.Int64Counter

	// System metrics
	processResidentMemoryBytes metric.Int64UpDownCounter
	goGoroutines                metric.Int64UpDownCounter
	goMemstatsAllocBytes         metric.Int64UpDownCounter

	// Mod pipeline metrics
	modProcessingDuration metric.Float64Histogram
	modErrorsTotal        metric.Int64Counter

	// Auth metrics
	authFailuresTotal metric.Int64Counter

	// Queue depth gauge (per-recipient delivery queues)
	queueDepth metric.Int64UpDownCounter
}

func NewMetricsManager(meter metric.Meter) (*MetricsManager, error) {
	mm := &MetricsManager{meter: meter}

	var err error

	mm.eventsProcessedTotal, err = meter.Int64Counter(
		"events_processed_total",
		metric.WithDescription("Total number of events processed by the gateway"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventProcessingDuration, err = meter.Float64Histogram(
		"event_processing_duration_seconds",
		metric.WithDescription("Event processing duration in seconds, from submit to routed"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventErrorsTotal, err = meter.Int64Counter(
		"event_errors_total",
		metric.WithDescription("Total number of event submissions that failed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventsPublishedTotal, err = meter.Int64Counter(
		"events_published_total",
		metric.WithDescription("Total number of events delivered to a recipient queue"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.processResidentMemoryBytes, err = meter.Int64UpDownCounter(
		"process_resident_memory_bytes",
		metric.WithDescription("Resident memory size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	mm.goGoroutines, err = meter.Int64UpDownCounter(
		"go_goroutines",
		metric.WithDescription("Number of goroutines that currently exist"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.goMemstatsAllocBytes, err = meter.Int64UpDownCounter(
		"go_memstats_alloc_bytes",
		metric.WithDescription("Number of bytes allocated and still in use"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	mm.modProcessingDuration, err = meter.Float64Histogram(
		"mod_processing_duration_seconds",
		metric.WithDescription("Per-mod processor duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.modErrorsTotal, err = meter.Int64Counter(
		"mod_errors_total",
		metric.WithDescription("Total number of mod processor errors, timeouts and rejections"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.authFailuresTotal, err = meter.Int64Counter(
		"auth_failures_total",
		metric.WithDescription("Total number of authentication failures on submit or register"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.queueDepth, err = meter.Int64UpDownCounter(
		"recipient_queue_depth",
		metric.WithDescription("Current depth of per-agent delivery queues"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return mm, nil
}

func (mm *MetricsManager) IncrementEventsProcessed(ctx context.Context, eventName, source string, success bool) {
	mm.eventsProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_name", eventName),
		attribute.String("source", source),
		attribute.Bool("success", success),
	))
}

func (mm *MetricsManager) RecordEventProcessingDuration(ctx context.Context, eventName, source string, duration time.Duration) {
	mm.eventProcessingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("event_name", eventName),
		attribute.String("source", source),
	))
}

func (mm *MetricsManager) IncrementEventErrors(ctx context.Context, eventName, source, errorKind string) {
	mm.eventErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_name", eventName),
		attribute.String("source", source),
		attribute.String("error", errorKind),
	))
}

func (mm *MetricsManager) IncrementEventsPublished(ctx context.Context, eventName, destination string) {
	mm.eventsPublishedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_name", eventName),
		attribute.String("destination", destination),
	))
}

func (mm *MetricsManager) UpdateSystemMetrics(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mm.goGoroutines.Add(ctx, int64(runtime.NumGoroutine()))
	mm.goMemstatsAllocBytes.Add(ctx, int64(m.Alloc))
	mm.processResidentMemoryBytes.Add(ctx, int64(m.Sys))
}

func (mm *MetricsManager) RecordModDuration(ctx context.Context, modPath string, duration time.Duration) {
	mm.modProcessingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("mod", modPath),
	))
}

func (mm *MetricsManager) IncrementModErrors(ctx context.Context, modPath, reason string) {
	mm.modErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mod", modPath),
		attribute.String("reason", reason),
	))
}

func (mm *MetricsManager) IncrementAuthFailures(ctx context.Context, reason string) {
	mm.authFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (mm *MetricsManager) SetQueueDepth(ctx context.Context, agentID string, delta int64) {
	mm.queueDepth.Add(ctx, delta, metric.WithAttributes(
		attribute.String("agent_id", agentID),
	))
}

// StartTimer begins timing an operation; the returned closure records
// the elapsed duration against eventProcessingDuration when called.
func (mm *MetricsManager) StartTimer() func(ctx context.Context, eventName, source string) {
	start := time.Now()
	return func(ctx context.Context, eventName, source string) {
		mm.RecordEventProcessingDuration(ctx, eventName, source, time.Since(start))
	}
}
