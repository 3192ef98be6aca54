// Package messaging implements the channel messaging mod: announcements,
// posts, replies, reactions, and direct-message notifications, grounded
// on original_source/tests/mods/test_messaging_announcement.py (event
// names, payload shape, and the "forbidden"/"ok" response vocabulary for
// announcements) and original_source/src/openagents/models/message_thread.py
// (the per-channel ordered message history post/reply build on).
package messaging

import (
	"context"
	"sync"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/modpipeline"
)

// Name is the mod's canonical dotted path.
const Name = "core.messaging"

const (
	eventAnnouncementSet     = "thread.announcement.set"
	eventAnnouncementGet     = "thread.announcement.get"
	eventChannelPost         = "thread.channel.post"
	eventChannelReply        = "thread.channel.reply"
	eventChannelReaction     = "thread.channel.reaction"
	eventDirectMessageNotice = "thread.direct_message.notification"
)

// threadMessage is one entry in a channel's message history, mirroring
// the original MessageThread model's add_message/get_messages pair.
type threadMessage struct {
	MessageID string
	AgentID   string
	Text      string
	ReplyTo   string
}

// Mod holds one announcement string per channel, plus each channel's
// post/reply history and per-message reaction counts. All state is
// process-local; a restart clears it, matching the spec's "mods don't
// survive restart by default" recovery story.
type Mod struct {
	modpipeline.BaseMod

	mu            sync.RWMutex
	announcements map[string]string
	threads       map[string][]threadMessage
	reactions     map[string]map[string]int
}

// New constructs the messaging mod. It takes no configuration.
func New(config map[string]any) (modpipeline.Mod, error) {
	return &Mod{
		BaseMod:       modpipeline.BaseMod{ModName: Name},
		announcements: make(map[string]string),
		threads:       make(map[string][]threadMessage),
		reactions:     make(map[string]map[string]int),
	}, nil
}

// ProcessSystemMessage handles every thread.* event name this mod owns;
// everything else passes through unchanged.
func (m *Mod) ProcessSystemMessage(ctx context.Context, e event.Event) (*event.Event, error) {
	switch e.EventName {
	case eventAnnouncementSet:
		return m.set(e)
	case eventAnnouncementGet:
		return m.get(e)
	case eventChannelPost:
		return m.post(e)
	case eventChannelReply:
		return m.reply(e)
	case eventChannelReaction:
		return m.react(e)
	case eventDirectMessageNotice:
		// Delivery is the gateway's job (it's a system event addressed
		// to a concrete agent); the mod has nothing of its own to track.
		return &e, nil
	default:
		return &e, nil
	}
}

// post appends a new top-level message to channel's history and stamps
// the event's payload with the message_id other agents can reply/react
// to, mirroring MessageThread.add_message.
func (m *Mod) post(e event.Event) (*event.Event, error) {
	channel, _ := e.Payload["channel"].(string)
	if channel == "" {
		return nil, apierr.New(apierr.InvalidEvent, "channel is required")
	}
	text, _ := e.Payload["text"].(string)
	agentID, _ := event.AgentID(e.SourceID)

	msg := threadMessage{MessageID: e.EventID, AgentID: agentID, Text: text}
	m.mu.Lock()
	m.threads[channel] = append(m.threads[channel], msg)
	m.mu.Unlock()

	out := e
	out.Payload = withMessageID(e.Payload, msg.MessageID)
	return &out, nil
}

// reply appends a message referencing an earlier message_id to the same
// channel history post uses.
func (m *Mod) reply(e event.Event) (*event.Event, error) {
	channel, _ := e.Payload["channel"].(string)
	replyTo, _ := e.Payload["reply_to"].(string)
	if channel == "" || replyTo == "" {
		return nil, apierr.New(apierr.InvalidEvent, "channel and reply_to are required")
	}
	text, _ := e.Payload["text"].(string)
	agentID, _ := event.AgentID(e.SourceID)

	msg := threadMessage{MessageID: e.EventID, AgentID: agentID, Text: text, ReplyTo: replyTo}
	m.mu.Lock()
	m.threads[channel] = append(m.threads[channel], msg)
	m.mu.Unlock()

	out := e
	out.Payload = withMessageID(e.Payload, msg.MessageID)
	return &out, nil
}

// react increments the named reaction's count on a message and stamps
// the running count back onto the event.
func (m *Mod) react(e event.Event) (*event.Event, error) {
	messageID, _ := e.Payload["message_id"].(string)
	reaction, _ := e.Payload["reaction"].(string)
	if messageID == "" || reaction == "" {
		return nil, apierr.New(apierr.InvalidEvent, "message_id and reaction are required")
	}

	m.mu.Lock()
	counts, ok := m.reactions[messageID]
	if !ok {
		counts = make(map[string]int)
		m.reactions[messageID] = counts
	}
	counts[reaction]++
	count := counts[reaction]
	m.mu.Unlock()

	out := e
	out.Payload = map[string]any{"message_id": messageID, "reaction": reaction, "count": count}
	return &out, nil
}

func withMessageID(payload map[string]any, messageID string) map[string]any {
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["message_id"] = messageID
	return out
}

func (m *Mod) set(e event.Event) (*event.Event, error) {
	if m.NC == nil || m.NC.IsAdminGroup == nil || !m.NC.IsAdminGroup(e.SourceAgentGroup) {
		return nil, apierr.New(apierr.Forbidden, "forbidden")
	}
	channel, _ := e.Payload["channel"].(string)
	text, _ := e.Payload["text"].(string)
	if channel == "" {
		return nil, apierr.New(apierr.InvalidEvent, "channel is required")
	}

	m.mu.Lock()
	m.announcements[channel] = text
	m.mu.Unlock()

	out := e
	out.Payload = map[string]any{"channel": channel, "text": text}
	return &out, nil
}

func (m *Mod) get(e event.Event) (*event.Event, error) {
	channel, _ := e.Payload["channel"].(string)

	m.mu.RLock()
	text := m.announcements[channel]
	m.mu.RUnlock()

	out := e
	out.Payload = map[string]any{"channel": channel, "text": text}
	return &out, nil
}
