// Package modpipeline implements the Mod Registry & Pipeline: the
// ordered middleware chain every event passes through between
// authentication and delivery, plus dynamic load/unload of mods.
package modpipeline

import (
	"context"

	"github.com/openagents/network/internal/event"
)

// Mod is the tagged-variant contract every mod implements: three
// optional event processors plus lifecycle hooks. Returning (nil, nil)
// from a processor stops the chain for that event; returning an
// *apierr.Error rejects the event and the registry propagates it to the
// submitter; any other error is logged and treated as pass-through.
//
// BaseMod (below) supplies no-op defaults so concrete mods only need to
// override the hooks they care about, mirroring the source project's
// BaseMod abstract class.
type Mod interface {
	Name() string

	Initialize(ctx context.Context, nc *NetworkContext) error
	Shutdown(ctx context.Context) error

	HandleRegisterAgent(ctx context.Context, agentID string, metadata map[string]string) error
	HandleUnregisterAgent(ctx context.Context, agentID string) error

	ProcessDirectMessage(ctx context.Context, e event.Event) (*event.Event, error)
	ProcessBroadcastMessage(ctx context.Context, e event.Event) (*event.Event, error)
	ProcessSystemMessage(ctx context.Context, e event.Event) (*event.Event, error)
}

// BaseMod implements Mod with the source project's pass-through
// defaults: every processor returns the event unchanged, every
// lifecycle hook succeeds trivially. Concrete mods embed this and
// override only what they need.
type BaseMod struct {
	ModName string
	NC      *NetworkContext
}

func (b *BaseMod) Name() string { return b.ModName }

func (b *BaseMod) Initialize(ctx context.Context, nc *NetworkContext) error {
	b.NC = nc
	return nil
}

func (b *BaseMod) Shutdown(ctx context.Context) error { return nil }

func (b *BaseMod) HandleRegisterAgent(ctx context.Context, agentID string, metadata map[string]string) error {
	return nil
}

func (b *BaseMod) HandleUnregisterAgent(ctx context.Context, agentID string) error { return nil }

func (b *BaseMod) ProcessDirectMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	return &e, nil
}

func (b *BaseMod) ProcessBroadcastMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	return &e, nil
}

func (b *BaseMod) ProcessSystemMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	return &e, nil
}
