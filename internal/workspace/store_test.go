package workspace

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/openagents/network/internal/event"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenWritesManifestOnEmptyDir(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir, "test-net", testLogger())
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, "test-net", s.NetworkName())
	require.FileExists(t, filepath.Join(dir, "manifest.json"))
}

func TestAppendEventAndRecovery(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir, "test-net", testLogger())
	require.NoError(t, err)

	e := event.NewEvent("agent.message", "agent:a", "agent:b", map[string]any{"text": "hi"})
	require.NoError(t, s.AppendEvent(context.Background(), e))
	require.NoError(t, s.AppendAgentRegistered(context.Background(), event.AgentRecord{AgentID: "a", Group: "guests", RegisteredAt: time.Now()}))
	require.NoError(t, s.Close())

	s2, err := Open(context.Background(), dir, "test-net", testLogger())
	require.NoError(t, err)
	defer s2.Close()

	agents, err := s2.RecoveredAgents()
	require.NoError(t, err)
	require.Len(t, agents, 1)
	require.Equal(t, "a", agents[0].AgentID)
}

func TestQueryLLMLogs(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir, "test-net", testLogger())
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendLLMLog(context.Background(), LLMLogEntry{
			LogID: string(rune('a' + i)), AgentID: "a", Model: "gpt", Prompt: "hello world", Timestamp: time.Now(),
		}))
	}

	entries, total, hasMore, err := s.QueryLLMLogs("a", LLMLogQuery{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.True(t, hasMore)
	require.Len(t, entries, 2)

	entries, total, _, err = s.QueryLLMLogs("a", LLMLogQuery{Search: "nomatch"})
	require.NoError(t, err)
	require.Equal(t, 0, total)
	require.Empty(t, entries)
}
