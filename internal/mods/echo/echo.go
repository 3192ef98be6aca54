// Package echo implements a minimal demonstration mod: every direct
// message from an agent gets an "echo: <text>" reply sent back to its
// sender. It exists to exercise the mod pipeline and the streaming/poll
// transports end to end, grounded on the source project's BaseMod
// contract (original_source/src/openagents/core/base_mod.py) and the
// direct-message reply behavior described for a simple echo mod.
package echo

import (
	"context"

	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/modpipeline"
)

// Name is the mod's canonical dotted path, used for system.mod.load and
// relevant_mod pinning.
const Name = "core.echo"

// Mod replies to any direct message sent by an agent with its text
// echoed back, unmodified in the pipeline otherwise.
type Mod struct {
	modpipeline.BaseMod
}

// New constructs the echo mod. It takes no configuration.
func New(config map[string]any) (modpipeline.Mod, error) {
	return &Mod{BaseMod: modpipeline.BaseMod{ModName: Name}}, nil
}

// ProcessDirectMessage lets the original message continue to its
// destination unchanged, then queues a reply back to the sender. Only
// messages that genuinely originate from a registered agent are
// echoed — the reply itself carries a "mod:" source, so it never
// triggers a second bounce.
func (m *Mod) ProcessDirectMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	if !event.IsAgentAddress(e.SourceID) || m.NC == nil || m.NC.EmitEvent == nil {
		return &e, nil
	}

	text, _ := e.Payload["text"].(string)
	reply := event.NewEvent(e.EventName, event.ModPrefix+Name, e.SourceID, map[string]any{
		"text": "echo: " + text,
	})
	if err := m.NC.EmitEvent(ctx, reply, false); err != nil {
		// A failed reply never blocks delivery of the original message.
		return &e, nil
	}
	return &e, nil
}
