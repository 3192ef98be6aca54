package messaging

import (
	"context"
	"testing"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/modpipeline"
	"github.com/stretchr/testify/require"
)

func newTestMod(t *testing.T) modpipeline.Mod {
	t.Helper()
	m, err := New(nil)
	require.NoError(t, err)
	require.NoError(t, m.Initialize(context.Background(), &modpipeline.NetworkContext{
		IsAdminGroup: func(group string) bool { return group == "admin" },
	}))
	return m
}

func TestNonAdminCannotSetAnnouncement(t *testing.T) {
	m := newTestMod(t)
	_, err := m.ProcessSystemMessage(context.Background(), event.Event{
		EventName: eventAnnouncementSet, SourceAgentGroup: "guests",
		Payload: map[string]any{"channel": "general", "text": "nope"},
	})
	require.Error(t, err)
	require.Equal(t, apierr.Forbidden, apierr.KindOf(err))
}

func TestAdminCanSetAndAnyoneCanGet(t *testing.T) {
	m := newTestMod(t)
	out, err := m.ProcessSystemMessage(context.Background(), event.Event{
		EventName: eventAnnouncementSet, SourceAgentGroup: "admin",
		Payload: map[string]any{"channel": "general", "text": "read the rules"},
	})
	require.NoError(t, err)
	require.Equal(t, "read the rules", out.Payload["text"])

	out, err = m.ProcessSystemMessage(context.Background(), event.Event{
		EventName: eventAnnouncementGet, SourceAgentGroup: "guests",
		Payload: map[string]any{"channel": "general"},
	})
	require.NoError(t, err)
	require.Equal(t, "read the rules", out.Payload["text"])
}

func TestGetNonexistentAnnouncementReturnsEmptyString(t *testing.T) {
	m := newTestMod(t)
	out, err := m.ProcessSystemMessage(context.Background(), event.Event{
		EventName: eventAnnouncementGet,
		Payload:   map[string]any{"channel": "nowhere"},
	})
	require.NoError(t, err)
	require.Equal(t, "", out.Payload["text"])
}

func TestAdminCanClearAnnouncement(t *testing.T) {
	m := newTestMod(t)
	_, err := m.ProcessSystemMessage(context.Background(), event.Event{
		EventName: eventAnnouncementSet, SourceAgentGroup: "admin",
		Payload: map[string]any{"channel": "dev", "text": "initial"},
	})
	require.NoError(t, err)

	_, err = m.ProcessSystemMessage(context.Background(), event.Event{
		EventName: eventAnnouncementSet, SourceAgentGroup: "admin",
		Payload: map[string]any{"channel": "dev", "text": ""},
	})
	require.NoError(t, err)

	out, err := m.ProcessSystemMessage(context.Background(), event.Event{
		EventName: eventAnnouncementGet,
		Payload:   map[string]any{"channel": "dev"},
	})
	require.NoError(t, err)
	require.Equal(t, "", out.Payload["text"])
}

func TestOtherSystemEventsPassThrough(t *testing.T) {
	m := newTestMod(t)
	in := event.Event{EventName: "system.something.else"}
	out, err := m.ProcessSystemMessage(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, in.EventName, out.EventName)
}

func TestChannelPostRequiresChannelAndStampsMessageID(t *testing.T) {
	m := newTestMod(t)
	_, err := m.ProcessSystemMessage(context.Background(), event.Event{
		EventName: eventChannelPost, SourceID: "agent:a",
		Payload: map[string]any{"text": "hi"},
	})
	require.Error(t, err)
	require.Equal(t, apierr.InvalidEvent, apierr.KindOf(err))

	out, err := m.ProcessSystemMessage(context.Background(), event.Event{
		EventID: "evt-1", EventName: eventChannelPost, SourceID: "agent:a",
		Payload: map[string]any{"channel": "general", "text": "hi"},
	})
	require.NoError(t, err)
	require.Equal(t, "evt-1", out.Payload["message_id"])
}

func TestChannelReplyRequiresReplyTo(t *testing.T) {
	m := newTestMod(t)
	_, err := m.ProcessSystemMessage(context.Background(), event.Event{
		EventName: eventChannelReply, SourceID: "agent:a",
		Payload: map[string]any{"channel": "general", "text": "me too"},
	})
	require.Error(t, err)
	require.Equal(t, apierr.InvalidEvent, apierr.KindOf(err))

	out, err := m.ProcessSystemMessage(context.Background(), event.Event{
		EventID: "evt-2", EventName: eventChannelReply, SourceID: "agent:a",
		Payload: map[string]any{"channel": "general", "reply_to": "evt-1", "text": "me too"},
	})
	require.NoError(t, err)
	require.Equal(t, "evt-2", out.Payload["message_id"])
	require.Equal(t, "evt-1", out.Payload["reply_to"])
}

func TestChannelReactionAccumulatesCount(t *testing.T) {
	m := newTestMod(t)
	for i := 0; i < 3; i++ {
		out, err := m.ProcessSystemMessage(context.Background(), event.Event{
			EventName: eventChannelReaction, SourceID: "agent:a",
			Payload: map[string]any{"message_id": "evt-1", "reaction": "+1"},
		})
		require.NoError(t, err)
		require.Equal(t, i+1, out.Payload["count"])
	}
}

func TestDirectMessageNotificationPassesThrough(t *testing.T) {
	m := newTestMod(t)
	in := event.Event{EventName: eventDirectMessageNotice, Payload: map[string]any{"preview": "hi"}}
	out, err := m.ProcessSystemMessage(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "hi", out.Payload["preview"])
}
