// Package project is a minimal mod used to exercise dynamic mod
// hot-swap (system.mod.load/unload, spec.md §8.8): it answers
// project.start system events while loaded and is otherwise inert. Any
// real project/workspace business logic is out of scope for this core
// (spec.md Non-goals: "mod business logic beyond contracts").
package project

import (
	"context"

	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/modpipeline"
)

// Name is the mod's canonical dotted path.
const Name = "core.project"

const eventProjectStart = "project.start"

// Mod acknowledges project.start events with a started=true stamp.
type Mod struct {
	modpipeline.BaseMod
}

// New constructs the project mod. It takes no configuration.
func New(config map[string]any) (modpipeline.Mod, error) {
	return &Mod{BaseMod: modpipeline.BaseMod{ModName: Name}}, nil
}

func (m *Mod) ProcessSystemMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	if e.EventName != eventProjectStart {
		return &e, nil
	}
	out := e
	if out.Payload == nil {
		out.Payload = map[string]any{}
	}
	out.Payload["started"] = true
	return &out, nil
}
