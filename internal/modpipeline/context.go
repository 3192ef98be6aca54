package modpipeline

import (
	"context"

	"github.com/openagents/network/internal/event"
)

// NetworkContext is the narrow view of the node a mod actually needs:
// its own config, a path to its private workspace subtree, the set of
// other loaded mods by name, and a way to push new events back into the
// gateway. Mods never see the gateway, transport manager, or auth
// manager directly — this breaks the ownership cycle the source
// project's mods had with the full network object.
type NetworkContext struct {
	NetworkName   string
	WorkspacePath string
	Config        map[string]any

	// EmitEvent re-submits an event to the gateway as if it originated
	// from a mod source (source_id "mod:<name>"); broadcast controls
	// whether it's delivered to all agents or routed by destination_id.
	EmitEvent func(ctx context.Context, e event.Event, broadcast bool) error

	// Mods returns the names of all mods currently loaded, in pipeline
	// order, for mods that need to discover peers (e.g. a discovery mod).
	Mods func() []string

	// ModStoragePath returns the opaque per-mod storage subtree path for
	// the given mod's own name.
	ModStoragePath func(modName string) string

	// IsAdminGroup reports whether the named agent group carries the
	// admin permission (group metadata key "permission": "admin"), for
	// mods that gate an operation on group membership rather than a
	// specific agent identity.
	IsAdminGroup func(group string) bool
}
