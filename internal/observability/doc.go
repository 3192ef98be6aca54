// Package observability provides the node's tracing, metrics, structured
// logging, and health-check infrastructure, built on OpenTelemetry and
// Prometheus.
//
// # Quick start
//
//	config := observability.DefaultConfig("networknode")
//	obs, err := observability.NewObservability(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(context.Background())
//
//	logger := obs.Logger
//	tracer := obs.Tracer
//	meter := obs.Meter
//
// NewObservability wires up an OTLP trace exporter, a Prometheus metrics
// exporter, and a slog logger that injects the active span's trace and
// span IDs into every log line.
//
// # Layers
//
//   - TraceManager wraps span creation for the event pipeline: submit,
//     per-mod processing, and delivery to a transport.
//   - MetricsManager tracks event throughput and latency, mod pipeline
//     errors, auth failures, and per-agent queue depth.
//   - ObservabilityHandler is a slog.Handler that also emits OTel metrics
//     for log volume and posts structured records through EventData.
//   - HealthServer exposes a liveness/readiness probe and the Prometheus
//     scrape endpoint on a separate port from the node's own API.
//
// # Logging
//
// At DEBUG log level the logger writes to both stdout and the configured
// handler via CombinedHandler; other levels write to the configured handler
// only, keeping production logs on one structured sink.
//
// # Shutdown
//
// Observability.Shutdown shuts down the trace provider (flushing the
// exporter) and the meter provider. Call it after the gateway and transports have
// stopped accepting new work, not before, so in-flight spans complete.
package observability
