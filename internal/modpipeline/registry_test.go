package modpipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
	"github.com/stretchr/testify/require"
)

type stopMod struct{ BaseMod }

func (s *stopMod) ProcessDirectMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	return nil, nil
}

type rejectMod struct{ BaseMod }

func (r *rejectMod) ProcessSystemMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	return nil, apierr.New(apierr.Forbidden, "forbidden")
}

type tagMod struct {
	BaseMod
	tag string
}

func (t *tagMod) ProcessDirectMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	e.Metadata["path"] += t.tag
	return &e, nil
}

type slowMod struct{ BaseMod }

func (s *slowMod) ProcessDirectMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	select {
	case <-time.After(time.Hour):
	case <-ctx.Done():
	}
	return &e, nil
}

func newTestRegistry(t *testing.T, mods map[string]Mod) *Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(logger, &NetworkContext{}, func(path string, config map[string]any) (Mod, error) {
		return mods[path], nil
	}, nil, nil)
	for path := range mods {
		require.NoError(t, r.Load(context.Background(), path, nil))
	}
	return r
}

func TestPipelineOrderAndMutation(t *testing.T) {
	r := &Registry{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	r.mods = []loadedMod{
		{mod: &tagMod{BaseMod: BaseMod{ModName: "a"}, tag: "A"}, path: "a"},
		{mod: &tagMod{BaseMod: BaseMod{ModName: "b"}, tag: "B"}, path: "b"},
	}

	out, ok, err := r.Run(context.Background(), event.Event{EventName: "agent.message"}, event.KindDirect)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "AB", out.Metadata["path"])
}

func TestPipelineStopSemantics(t *testing.T) {
	r := &Registry{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	r.mods = []loadedMod{
		{mod: &stopMod{BaseMod: BaseMod{ModName: "a"}}, path: "a"},
		{mod: &tagMod{BaseMod: BaseMod{ModName: "b"}, tag: "B"}, path: "b"},
	}

	_, ok, err := r.Run(context.Background(), event.Event{EventName: "agent.message"}, event.KindDirect)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPipelineRejectionPropagatesError(t *testing.T) {
	r := &Registry{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	r.mods = []loadedMod{
		{mod: &rejectMod{BaseMod: BaseMod{ModName: "guard"}}, path: "guard"},
	}

	_, ok, err := r.Run(context.Background(), event.Event{EventName: "thread.announcement.set"}, event.KindSystem)
	require.False(t, ok)
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestRelevantModPinning(t *testing.T) {
	r := &Registry{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	r.mods = []loadedMod{
		{mod: &tagMod{BaseMod: BaseMod{ModName: "a"}, tag: "A"}, path: "a"},
		{mod: &tagMod{BaseMod: BaseMod{ModName: "b"}, tag: "B"}, path: "b"},
	}

	out, ok, err := r.Run(context.Background(), event.Event{EventName: "agent.message", RelevantMod: "b"}, event.KindDirect)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "B", out.Metadata["path"])
}

func adminNetworkContext() *NetworkContext {
	return &NetworkContext{IsAdminGroup: func(group string) bool { return group == "operators" }}
}

func TestSystemModLoadAndUnloadEvents(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(logger, adminNetworkContext(), func(path string, config map[string]any) (Mod, error) {
		return &BaseMod{ModName: path}, nil
	}, nil, nil)

	out, ok, err := r.Run(context.Background(), event.Event{
		EventName: "system.mod.load", SourceAgentGroup: "operators",
		Payload: map[string]any{"mod_path": "core.project"},
	}, event.KindSystem)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "system.mod.loaded", out.EventName)
	require.Len(t, r.ListLoaded(), 1)

	out, ok, err = r.Run(context.Background(), event.Event{
		EventName: "system.mod.unload", SourceAgentGroup: "operators",
		Payload: map[string]any{"mod_path": "core.project"},
	}, event.KindSystem)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "system.mod.unloaded", out.EventName)
	require.Empty(t, r.ListLoaded())
}

func TestSystemModUnloadUnknownPathFails(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(logger, adminNetworkContext(), func(path string, config map[string]any) (Mod, error) {
		return &BaseMod{ModName: path}, nil
	}, nil, nil)

	_, ok, err := r.Run(context.Background(), event.Event{
		EventName: "system.mod.unload", SourceAgentGroup: "operators",
		Payload: map[string]any{"mod_path": "core.nope"},
	}, event.KindSystem)
	require.False(t, ok)
	require.Error(t, err)
	require.Equal(t, apierr.UnknownMod, apierr.KindOf(err))
}

func TestSystemModLoadRejectedForNonAdminSource(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(logger, adminNetworkContext(), func(path string, config map[string]any) (Mod, error) {
		return &BaseMod{ModName: path}, nil
	}, nil, nil)

	_, ok, err := r.Run(context.Background(), event.Event{
		EventName: "system.mod.load", SourceAgentGroup: "guests",
		Payload: map[string]any{"mod_path": "core.project"},
	}, event.KindSystem)
	require.False(t, ok)
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
	require.Empty(t, r.ListLoaded())
}

func TestSystemModLoadRejectedWithoutAdminGroupHook(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(logger, &NetworkContext{}, func(path string, config map[string]any) (Mod, error) {
		return &BaseMod{ModName: path}, nil
	}, nil, nil)

	_, ok, err := r.Run(context.Background(), event.Event{
		EventName: "system.mod.load", Payload: map[string]any{"mod_path": "core.project"},
	}, event.KindSystem)
	require.False(t, ok)
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestLoadUnloadListLoaded(t *testing.T) {
	r := newTestRegistry(t, map[string]Mod{"echo": &BaseMod{ModName: "echo"}})
	loaded := r.ListLoaded()
	require.Len(t, loaded, 1)
	require.Equal(t, "echo", loaded[0].Path)

	require.NoError(t, r.Unload(context.Background(), "echo"))
	require.Empty(t, r.ListLoaded())

	err := r.Unload(context.Background(), "echo")
	require.Error(t, err)
}
