// Package mods is the node's built-in mod catalog: a modpipeline.Factory
// resolving the dotted paths a network config or system.mod.load event
// names to a concrete constructor. Third-party/out-of-tree mods are out
// of scope (spec.md Non-goals); every path this factory knows about
// ships in this module.
package mods

import (
	"fmt"

	"github.com/openagents/network/internal/mods/echo"
	"github.com/openagents/network/internal/mods/messaging"
	"github.com/openagents/network/internal/mods/project"
	"github.com/openagents/network/internal/modpipeline"
)

var builtins = map[string]func(config map[string]any) (modpipeline.Mod, error){
	echo.Name:      echo.New,
	messaging.Name: messaging.New,
	project.Name:   project.New,
}

// Factory is the modpipeline.Factory the node wires into its registry.
// An unrecognized path surfaces as apierr.ModLoadFailed via the
// registry's own wrapping (construction itself is what fails here;
// apierr.UnknownMod is reserved for operating on a mod that isn't
// currently loaded).
func Factory(path string, config map[string]any) (modpipeline.Mod, error) {
	ctor, ok := builtins[path]
	if !ok {
		return nil, fmt.Errorf("no built-in mod registered for path %q", path)
	}
	return ctor(config)
}
