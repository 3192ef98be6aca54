// Package gateway implements the Event Gateway: the single ingress and
// routing point for every Event in the node, per spec §4.2 — stamping,
// authentication, classification, mod-chain dispatch, routing, and
// per-recipient delivery.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
)

// Authenticator validates an inbound event's secret against the
// registered agent it claims to come from.
type Authenticator interface {
	Validate(sourceID, secret string) bool
}

// ModPipeline is the slice of modpipeline.Registry the gateway depends
// on; kept as an interface here so gateway has no import-time
// dependency on the concrete registry type.
type ModPipeline interface {
	// Run returns ok=false when a mod deliberately stopped the chain
	// with no error (silent drop), and a non-nil error when a mod
	// rejected the event outright (e.g. apierr.Forbidden) — the two
	// are surfaced differently: a stop is swallowed, a rejection is
	// returned to the submitter.
	Run(ctx context.Context, e event.Event, kind event.Kind) (result event.Event, ok bool, err error)
	NotifyRegister(ctx context.Context, agentID string, metadata map[string]string)
	NotifyUnregister(ctx context.Context, agentID string)
}

// Storage is the subset of the workspace store the gateway writes
// through. Persistence failures on durable events surface as
// apierr.StorageUnavailable and the event is not delivered (spec §4.5).
type Storage interface {
	AppendEvent(ctx context.Context, e event.Event) error
}

// Metrics is the subset of observability.MetricsManager the gateway
// instruments its submit/route path with. Kept as an interface, like
// Authenticator/ModPipeline/Storage above, so unit tests don't need a
// real OTel meter.
type Metrics interface {
	IncrementEventsProcessed(ctx context.Context, eventName, source string, success bool)
	RecordEventProcessingDuration(ctx context.Context, eventName, source string, duration time.Duration)
	IncrementEventErrors(ctx context.Context, eventName, source, errorKind string)
	IncrementEventsPublished(ctx context.Context, eventName, destination string)
	IncrementAuthFailures(ctx context.Context, reason string)
	SetQueueDepth(ctx context.Context, agentID string, delta int64)
}

// Tracer is the subset of observability.TraceManager the gateway spans
// a submit() call with.
type Tracer interface {
	StartEventProcessingSpan(ctx context.Context, eventID, eventName, source, destination string) (context.Context, trace.Span)
	RecordError(span trace.Span, err error)
	SetSpanSuccess(span trace.Span)
}

// Config bounds queue sizes. The overflow policy is not part of it:
// transports pass one per agent to RegisterAgent.
type Config struct {
	QueueCapacity int
}

// Gateway owns the agent index, subscription table, and per-agent
// delivery queues. It is safe for concurrent use; mutating operations
// (register/unregister/subscribe/unsubscribe) take an exclusive lock,
// matching the shared-mutable discipline in spec.md §5.
type Gateway struct {
	cfg     Config
	auth    Authenticator
	mods    ModPipeline
	store   Storage
	logger  *slog.Logger
	metrics Metrics
	tracer  Tracer

	mu       sync.RWMutex
	agents   map[string]*event.AgentRecord
	queues   map[string]*agentQueue
	subs     map[string]event.Subscription
	channels map[string]*event.Channel
}

// New constructs a Gateway. metrics and tracer may be nil, in which case
// the corresponding instrumentation is skipped — unit tests and other
// callers that don't need real OTel plumbing can pass nil for both.
func New(cfg Config, auth Authenticator, mods ModPipeline, store Storage, logger *slog.Logger, metrics Metrics, tracer Tracer) *Gateway {
	return &Gateway{
		cfg:      cfg,
		auth:     auth,
		mods:     mods,
		store:    store,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		agents:   make(map[string]*event.AgentRecord),
		queues:   make(map[string]*agentQueue),
		subs:     make(map[string]event.Subscription),
		channels: make(map[string]*event.Channel),
	}
}

// RegisterAgent installs the agent in the index and seeds its delivery
// queue. Called by a transport after auth.Manager.RegisterAgent has
// issued a secret. If the agent id is already registered and
// forceReconnect is false, registration is rejected as a duplicate.
func (g *Gateway) RegisterAgent(ctx context.Context, rec event.AgentRecord, overflow event.OverflowPolicy, forceReconnect bool) error {
	g.mu.Lock()
	if existing, ok := g.agents[rec.AgentID]; ok {
		if !forceReconnect {
			g.mu.Unlock()
			return apierr.New(apierr.DuplicateAgent, fmt.Sprintf("agent %q is already registered", rec.AgentID))
		}
		_ = existing
		g.evictLocked(rec.AgentID)
	}
	g.agents[rec.AgentID] = &rec
	g.queues[rec.AgentID] = newAgentQueue(g.cfg.QueueCapacity, overflow)
	g.mu.Unlock()

	g.mods.NotifyRegister(ctx, rec.AgentID, rec.Metadata)
	return nil
}

// DropAgent tears an agent down: removes it from the index, its queue,
// and all its subscriptions. Idempotent.
func (g *Gateway) DropAgent(ctx context.Context, agentID string) {
	g.mu.Lock()
	_, existed := g.agents[agentID]
	g.evictLocked(agentID)
	g.mu.Unlock()

	if existed {
		g.mods.NotifyUnregister(ctx, agentID)
	}
}

func (g *Gateway) evictLocked(agentID string) {
	delete(g.agents, agentID)
	delete(g.queues, agentID)
	for id, sub := range g.subs {
		if sub.AgentID == agentID {
			delete(g.subs, id)
		}
	}
}

// Subscribe registers a pattern-based subscription and returns its id.
func (g *Gateway) Subscribe(agentID string, patterns []string, modFilter string) string {
	sub := event.Subscription{ID: uuid.NewString(), AgentID: agentID, Patterns: patterns, ModFilter: modFilter}
	g.mu.Lock()
	g.subs[sub.ID] = sub
	g.mu.Unlock()
	return sub.ID
}

// Unsubscribe removes a subscription. Idempotent.
func (g *Gateway) Unsubscribe(subscriptionID string) {
	g.mu.Lock()
	delete(g.subs, subscriptionID)
	g.mu.Unlock()
}

// Poll drains up to maxItems from agentID's queue, blocking up to
// waitTimeout for at least one event when the queue is empty. Honors
// ctx cancellation (client disconnect) per spec.md §4.2.
func (g *Gateway) Poll(ctx context.Context, agentID string, maxItems int, waitTimeout time.Duration) ([]event.Event, error) {
	g.mu.RLock()
	q, ok := g.queues[agentID]
	g.mu.RUnlock()
	if !ok {
		return nil, apierr.New(apierr.UnknownAgent, fmt.Sprintf("agent %q is not registered", agentID))
	}
	if maxItems <= 0 {
		maxItems = 1
	}

	out := make([]event.Event, 0, maxItems)

	waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()

	select {
	case e := <-q.ch:
		out = append(out, e)
		if g.metrics != nil {
			g.metrics.SetQueueDepth(ctx, agentID, -1)
		}
	case <-waitCtx.Done():
		return out, nil
	}

	for len(out) < maxItems {
		select {
		case e := <-q.ch:
			out = append(out, e)
			if g.metrics != nil {
				g.metrics.SetQueueDepth(ctx, agentID, -1)
			}
		default:
			return out, nil
		}
	}
	return out, nil
}

// AgentRecord returns a copy of the registered agent, if any.
func (g *Gateway) AgentRecord(agentID string) (event.AgentRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.agents[agentID]
	if !ok {
		return event.AgentRecord{}, false
	}
	return *rec, true
}

// Agents returns a snapshot of every registered agent.
func (g *Gateway) Agents() []event.AgentRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]event.AgentRecord, 0, len(g.agents))
	for _, rec := range g.agents {
		out = append(out, *rec)
	}
	return out
}

// Submit is the gateway's single ingress point (spec.md §4.2): stamp,
// authenticate, classify, run the mod pipeline, then route and persist.
// persistRequired controls whether a storage failure must be surfaced
// as apierr.StorageUnavailable (true for direct/channel/durable system
// events) or may be skipped best-effort (health ticks etc).
func (g *Gateway) Submit(ctx context.Context, e event.Event, persistRequired bool) (event.Event, error) {
	start := time.Now()
	now := start.UTC()
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}

	var span trace.Span
	if g.tracer != nil {
		ctx, span = g.tracer.StartEventProcessingSpan(ctx, e.EventID, e.EventName, e.SourceID, e.DestinationID)
		defer span.End()
	}

	// finish records the submit's outcome on both the span and the
	// metrics manager; call it on every return path below.
	finish := func(success bool, errKind apierr.Kind, err error) {
		if g.tracer != nil {
			if err != nil {
				g.tracer.RecordError(span, err)
			} else {
				g.tracer.SetSpanSuccess(span)
			}
		}
		if g.metrics == nil {
			return
		}
		g.metrics.IncrementEventsProcessed(ctx, e.EventName, e.SourceID, success)
		g.metrics.RecordEventProcessingDuration(ctx, e.EventName, e.SourceID, time.Since(start))
		if !success {
			g.metrics.IncrementEventErrors(ctx, e.EventName, e.SourceID, string(errKind))
		}
	}

	if strings.HasPrefix(e.SourceID, event.AgentPrefix) {
		if e.Secret == "" || !g.auth.Validate(e.SourceID, e.Secret) {
			if g.metrics != nil {
				g.metrics.IncrementAuthFailures(ctx, "invalid_secret")
			}
			err := apierr.New(apierr.AuthenticationFailed, "secret did not validate for "+e.SourceID)
			finish(false, apierr.AuthenticationFailed, err)
			return event.Event{}, err
		}
	}

	group := ""
	if agentID, ok := event.AgentID(e.SourceID); ok {
		if rec, ok := g.AgentRecord(agentID); ok {
			group = rec.Group
		}
	}
	e = e.WithServerStamp(group, now)

	kind := e.Classify()

	// System events addressed to a concrete agent bypass the chain for
	// outbound delivery per spec.md §3, but mods still observe them via
	// a separate pass below when they are not agent-addressed.
	bypassChain := kind == event.KindSystem && event.IsAgentAddress(e.DestinationID)

	var ok bool
	if bypassChain {
		ok = true
	} else {
		var modErr error
		e, ok, modErr = g.mods.Run(ctx, e, kind)
		if modErr != nil {
			finish(false, apierr.KindOf(modErr), modErr)
			return event.Event{}, modErr
		}
		if !ok {
			g.logger.InfoContext(ctx, "event dropped by mod pipeline", "event_name", e.EventName, "event_id", e.EventID)
			finish(true, "", nil)
			return event.Event{}, nil
		}
	}

	if g.requiresPersistence(kind, e) {
		if err := g.store.AppendEvent(ctx, e); err != nil {
			if persistRequired {
				wrapped := apierr.Wrap(apierr.StorageUnavailable, "failed to persist event", err)
				finish(false, apierr.StorageUnavailable, wrapped)
				return event.Event{}, wrapped
			}
			g.logger.ErrorContext(ctx, "best-effort event failed to persist", "event_id", e.EventID, "error", err)
		}
	}

	g.route(ctx, e, kind)
	finish(true, "", nil)
	return e, nil
}

func (g *Gateway) requiresPersistence(kind event.Kind, e event.Event) bool {
	switch kind {
	case event.KindDirect, event.KindBroadcast:
		return true
	case event.KindSystem:
		if event.IsAgentAddress(e.DestinationID) {
			return true
		}
		_, isChannel := channelTarget(e)
		return isChannel
	}
	return false
}

const (
	channelDestinationPrefix = "channel:"
	channelEventNamePrefix   = "thread.channel."
)

// channelTarget reports the channel name an event is addressed to, per
// spec.md §4.2: either the literal `channel:<name>` destination, or any
// `thread.channel.*` event carrying a `channel` payload key.
func channelTarget(e event.Event) (string, bool) {
	if name, ok := strings.CutPrefix(e.DestinationID, channelDestinationPrefix); ok {
		return name, true
	}
	if strings.HasPrefix(e.EventName, channelEventNamePrefix) {
		if name, ok := e.Payload["channel"].(string); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

// route implements the direct/broadcast/channel/system fan-out rules of
// spec.md §4.2.
func (g *Gateway) route(ctx context.Context, e event.Event, kind event.Kind) {
	switch {
	case kind == event.KindDirect:
		if agentID, ok := event.AgentID(e.DestinationID); ok {
			g.enqueueFor(ctx, agentID, e)
		}
	case kind == event.KindBroadcast:
		sourceAgentID, _ := event.AgentID(e.SourceID)
		for _, rec := range g.Agents() {
			if rec.AgentID == sourceAgentID {
				continue
			}
			g.enqueueFor(ctx, rec.AgentID, e)
		}
	default:
		if name, ok := channelTarget(e); ok {
			g.routeChannel(ctx, e, name)
			return
		}
		if kind == event.KindSystem && event.IsAgentAddress(e.DestinationID) {
			if agentID, ok := event.AgentID(e.DestinationID); ok {
				g.enqueueFor(ctx, agentID, e)
			}
		}
	}
}

// routeChannel fans e out to every subscriber of channel name, creating
// the channel record and emitting channel.created once at first post
// (spec.md §4.2).
func (g *Gateway) routeChannel(ctx context.Context, e event.Event, name string) {
	g.mu.Lock()
	_, exists := g.channels[name]
	if !exists {
		sourceAgentID, _ := event.AgentID(e.SourceID)
		g.channels[name] = &event.Channel{Name: name, Creator: sourceAgentID, CreatedAt: time.Now().UTC()}
	}
	g.mu.Unlock()

	g.mu.RLock()
	var recipients []string
	for _, sub := range g.subs {
		if event.MatchAny(sub.Patterns, e.EventName) || event.MatchAny(sub.Patterns, channelDestinationPrefix+name) {
			recipients = append(recipients, sub.AgentID)
		}
	}
	g.mu.RUnlock()

	for _, agentID := range recipients {
		g.enqueueFor(ctx, agentID, e)
	}

	if !exists {
		g.emitChannelCreated(ctx, name, e.SourceID)
	}
}

// emitChannelCreated re-enters Submit with a core-sourced system event so
// the new channel.created notification is persisted and routed through
// the same channel fan-out as any other channel event.
func (g *Gateway) emitChannelCreated(ctx context.Context, name, creatorID string) {
	created := event.NewEvent("channel.created", event.SystemPrefix+"gateway", channelDestinationPrefix+name, map[string]any{
		"channel": name,
		"creator": creatorID,
	})
	if _, err := g.Submit(ctx, created, false); err != nil {
		g.logger.ErrorContext(ctx, "failed to submit channel.created event", "channel", name, "error", err)
	}
}

// enqueueFor delivers e to a single recipient's queue, evicting the
// agent if the Disconnect overflow policy fires. A failure to enqueue
// for one recipient never blocks or fails the submit for others
// (spec.md §4.2).
func (g *Gateway) enqueueFor(ctx context.Context, agentID string, e event.Event) {
	g.mu.RLock()
	q, ok := g.queues[agentID]
	g.mu.RUnlock()
	if !ok {
		return
	}

	delivered, disconnect := q.enqueue(e)
	if g.metrics != nil && delivered {
		g.metrics.IncrementEventsPublished(ctx, e.EventName, event.AgentPrefix+agentID)
		g.metrics.SetQueueDepth(ctx, agentID, 1)
	}
	if disconnect {
		g.logger.InfoContext(ctx, "recipient queue overflowed under disconnect policy, evicting", "agent_id", agentID)
		g.DropAgent(ctx, agentID)
	}
}

// Channels returns a snapshot of known channels.
func (g *Gateway) Channels() []event.Channel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]event.Channel, 0, len(g.channels))
	for _, c := range g.channels {
		out = append(out, *c)
	}
	return out
}
