package modpipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
	"go.opentelemetry.io/otel/trace"
)

// Metrics is the subset of observability.MetricsManager the registry
// instruments mod execution with. Kept as an interface so unit tests
// don't need a real OTel meter.
type Metrics interface {
	RecordModDuration(ctx context.Context, modPath string, duration time.Duration)
	IncrementModErrors(ctx context.Context, modPath, reason string)
}

// Tracer is the subset of observability.TraceManager the registry spans
// a single mod's processing call with.
type Tracer interface {
	StartModSpan(ctx context.Context, modPath, eventName string) (context.Context, trace.Span)
	RecordError(span trace.Span, err error)
	SetSpanSuccess(span trace.Span)
}

// ProcessorTimeout bounds how long a single mod's processor may run for
// a single event before the registry gives up on it and treats the
// event as pass-through (spec.md §5).
const ProcessorTimeout = 30 * time.Second

type loadedMod struct {
	mod      Mod
	path     string
	loadedAt time.Time
}

// Registry holds the ordered list of mod instances and runs the
// pipeline over each event. Mutation (load/unload) takes an exclusive
// lock and swaps in a new slice; Run reads an immutable snapshot so an
// unload mid-event never interrupts it (spec.md §4.3).
type Registry struct {
	mu   sync.RWMutex
	mods []loadedMod

	logger  *slog.Logger
	factory func(path string, config map[string]any) (Mod, error)
	baseNC  *NetworkContext
	metrics Metrics
	tracer  Tracer
}

// Factory resolves a dotted mod path to a constructed instance. Concrete
// wiring lives in internal/mods; the registry only needs the ability to
// ask for one by name.
type Factory func(path string, config map[string]any) (Mod, error)

// NewRegistry constructs a Registry. metrics and tracer may be nil, in
// which case mod-execution instrumentation is skipped — unit tests and
// other callers that don't need real OTel plumbing can pass nil for
// both.
func NewRegistry(logger *slog.Logger, baseNC *NetworkContext, factory Factory, metrics Metrics, tracer Tracer) *Registry {
	return &Registry{logger: logger, factory: factory, baseNC: baseNC, metrics: metrics, tracer: tracer}
}

// Load resolves, initializes, and appends a mod to the pipeline. Fails
// if a mod with the same canonical name is already loaded.
func (r *Registry) Load(ctx context.Context, path string, config map[string]any) error {
	r.mu.Lock()
	for _, lm := range r.mods {
		if lm.path == path {
			r.mu.Unlock()
			return apierr.New(apierr.ModLoadFailed, fmt.Sprintf("mod %q is already loaded", path))
		}
	}
	r.mu.Unlock()

	m, err := r.factory(path, config)
	if err != nil {
		return apierr.Wrap(apierr.ModLoadFailed, fmt.Sprintf("failed to construct mod %q", path), err)
	}
	if err := m.Initialize(ctx, r.baseNC); err != nil {
		return apierr.Wrap(apierr.ModLoadFailed, fmt.Sprintf("mod %q failed to initialize", path), err)
	}

	r.mu.Lock()
	r.mods = append(r.mods, loadedMod{mod: m, path: path, loadedAt: time.Now().UTC()})
	r.mu.Unlock()
	return nil
}

// Unload shuts a mod down and removes it from the pipeline. In-flight
// event processing holds its own snapshot and is unaffected.
func (r *Registry) Unload(ctx context.Context, path string) error {
	r.mu.Lock()
	idx := -1
	for i, lm := range r.mods {
		if lm.path == path {
			idx = i
			break
		}
	}
	if idx == -1 {
		r.mu.Unlock()
		return apierr.New(apierr.UnknownMod, fmt.Sprintf("mod %q is not loaded", path))
	}
	lm := r.mods[idx]
	next := make([]loadedMod, 0, len(r.mods)-1)
	next = append(next, r.mods[:idx]...)
	next = append(next, r.mods[idx+1:]...)
	r.mods = next
	r.mu.Unlock()

	if err := lm.mod.Shutdown(ctx); err != nil {
		r.logger.ErrorContext(ctx, "mod shutdown returned an error", "mod", path, "error", err)
	}
	return nil
}

// ListLoaded returns the current pipeline order.
func (r *Registry) ListLoaded() []event.ModRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]event.ModRecord, 0, len(r.mods))
	for _, lm := range r.mods {
		out = append(out, event.ModRecord{Name: lm.mod.Name(), Path: lm.path, LoadedAt: lm.loadedAt})
	}
	return out
}

// snapshot takes the pipeline-order slice to run this event through. It
// is taken once per event so an Unload racing with Run never truncates
// an in-flight chain (spec.md §4.3 "pipeline takes a snapshot at the
// start of each event").
func (r *Registry) snapshot() []loadedMod {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]loadedMod, len(r.mods))
	copy(out, r.mods)
	return out
}

// NotifyRegister/NotifyUnregister fan a registration lifecycle event out
// to every loaded mod's lifecycle hook, best-effort.
func (r *Registry) NotifyRegister(ctx context.Context, agentID string, metadata map[string]string) {
	for _, lm := range r.snapshot() {
		if err := lm.mod.HandleRegisterAgent(ctx, agentID, metadata); err != nil {
			r.logger.ErrorContext(ctx, "mod register hook failed", "mod", lm.path, "agent_id", agentID, "error", err)
		}
	}
}

func (r *Registry) NotifyUnregister(ctx context.Context, agentID string) {
	for _, lm := range r.snapshot() {
		if err := lm.mod.HandleUnregisterAgent(ctx, agentID); err != nil {
			r.logger.ErrorContext(ctx, "mod unregister hook failed", "mod", lm.path, "agent_id", agentID, "error", err)
		}
	}
}

// Run drives e through the pipeline for its classified kind, honoring
// relevant_mod pinning, per-mod timeouts, and stop-on-nil semantics. It
// returns the possibly-mutated event, ok=false if some mod silently
// stopped the chain (the gateway must not deliver or persist in that
// case), or a non-nil error if a mod rejected the event outright (e.g.
// apierr.Forbidden) — that error propagates to the submitter instead of
// being swallowed.
func (r *Registry) Run(ctx context.Context, e event.Event, kind event.Kind) (result event.Event, ok bool, err error) {
	// system.mod.load/unload are handled by a built-in pseudo-mod at the
	// head of the registry, ahead of the loaded pipeline (spec.md §4.3).
	if kind == event.KindSystem {
		if out, proceed, matched, sysErr := r.handleBuiltinModEvent(ctx, e); matched {
			return out, proceed, sysErr
		}
	}

	snapshot := r.snapshot()

	if e.RelevantMod != "" {
		for _, lm := range snapshot {
			if lm.path != e.RelevantMod {
				continue
			}
			out, proceed, rejectErr := r.runOne(ctx, lm, e, kind)
			if rejectErr != nil {
				return event.Event{}, false, rejectErr
			}
			if !proceed {
				return event.Event{}, false, nil
			}
			return out, true, nil
		}
		// No mod matches relevant_mod: nothing to run, pass through.
		return e, true, nil
	}

	current := e
	for _, lm := range snapshot {
		out, proceed, rejectErr := r.runOne(ctx, lm, current, kind)
		if rejectErr != nil {
			return event.Event{}, false, rejectErr
		}
		if !proceed {
			return event.Event{}, false, nil
		}
		current = out
	}
	return current, true, nil
}

// handleBuiltinModEvent implements the system.mod.load/unload pseudo-mod
// (spec.md §4.3, §8.8). matched is false for every other event, telling
// Run to fall through to the ordinary pipeline. Per spec.md §4.3, these
// events only mutate the pipeline "when accepted by authorized sources
// (network operator)" — isAuthorizedOperator gates both on the same
// admin-group check internal/mods/messaging uses for its own
// operator-only operations.
func (r *Registry) handleBuiltinModEvent(ctx context.Context, e event.Event) (result event.Event, ok bool, matched bool, err error) {
	switch e.EventName {
	case "system.mod.load", "system.mod.unload":
	default:
		return event.Event{}, false, false, nil
	}

	if !r.isAuthorizedOperator(e.SourceAgentGroup) {
		return event.Event{}, false, true, apierr.New(apierr.Forbidden, "system.mod.load/unload requires an admin-group source")
	}

	modPath, _ := e.Payload["mod_path"].(string)

	switch e.EventName {
	case "system.mod.load":
		var config map[string]any
		if c, ok := e.Payload["config"].(map[string]any); ok {
			config = c
		}
		if err := r.Load(ctx, modPath, config); err != nil {
			return event.Event{}, false, true, err
		}
		out := e
		out.EventName = "system.mod.loaded"
		out.Payload = map[string]any{"mod_path": modPath}
		return out, true, true, nil
	case "system.mod.unload":
		if err := r.Unload(ctx, modPath); err != nil {
			return event.Event{}, false, true, err
		}
		out := e
		out.EventName = "system.mod.unloaded"
		out.Payload = map[string]any{"mod_path": modPath}
		return out, true, true, nil
	}
	return event.Event{}, false, false, nil
}

// isAuthorizedOperator reports whether group carries the admin
// permission the registry requires for dynamic mod reconfiguration.
func (r *Registry) isAuthorizedOperator(group string) bool {
	return r.baseNC != nil && r.baseNC.IsAdminGroup != nil && r.baseNC.IsAdminGroup(group)
}

// runOne calls the processor matching kind on lm, bounding it by
// ProcessorTimeout. An *apierr.Error return is a deliberate rejection
// and is propagated to the caller; any other error or a timeout is
// logged and treated as pass-through (the event continues unmodified);
// a genuine nil event return stops the chain silently.
func (r *Registry) runOne(ctx context.Context, lm loadedMod, e event.Event, kind event.Kind) (event.Event, bool, error) {
	start := time.Now()

	var span trace.Span
	if r.tracer != nil {
		callCtx, spanCtx := r.tracer.StartModSpan(ctx, lm.path, e.EventName)
		ctx = callCtx
		span = spanCtx
		defer span.End()
	}

	finish := func(err error) {
		if r.tracer != nil {
			if err != nil {
				r.tracer.RecordError(span, err)
			} else {
				r.tracer.SetSpanSuccess(span)
			}
		}
		if r.metrics == nil {
			return
		}
		r.metrics.RecordModDuration(ctx, lm.path, time.Since(start))
		if err != nil {
			r.metrics.IncrementModErrors(ctx, lm.path, string(apierr.KindOf(err)))
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, ProcessorTimeout)
	defer cancel()

	type callResult struct {
		out *event.Event
		err error
	}
	done := make(chan callResult, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- callResult{out: &e, err: fmt.Errorf("mod panicked: %v", rec)}
			}
		}()
		var out *event.Event
		var err error
		switch kind {
		case event.KindDirect:
			out, err = lm.mod.ProcessDirectMessage(callCtx, e)
		case event.KindBroadcast:
			out, err = lm.mod.ProcessBroadcastMessage(callCtx, e)
		default:
			out, err = lm.mod.ProcessSystemMessage(callCtx, e)
		}
		done <- callResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if apiErr, ok := apierr.As(res.err); ok {
				finish(apiErr)
				return event.Event{}, false, apiErr
			}
			r.logger.ErrorContext(ctx, "mod processor returned an error, passing event through unchanged",
				"mod", lm.path, "event_name", e.EventName, "error", res.err)
			finish(res.err)
			return e, true, nil
		}
		if res.out == nil {
			finish(nil)
			return event.Event{}, false, nil
		}
		finish(nil)
		return *res.out, true, nil
	case <-callCtx.Done():
		r.logger.ErrorContext(ctx, "mod processor timed out, passing event through unchanged",
			"mod", lm.path, "event_name", e.EventName, "timeout", ProcessorTimeout)
		finish(fmt.Errorf("mod processor timed out after %s", ProcessorTimeout))
		return e, true, nil
	}
}
