// Package event defines the wire-level message model shared by every
// transport and the gateway: the Event envelope, its classification into
// direct/broadcast/system traffic, and the small set of address-prefix
// helpers used throughout the node.
package event

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Visibility controls who besides the addressed recipient can observe an
// event once it lands in the workspace log.
type Visibility string

const (
	VisibilityDirect   Visibility = "direct"
	VisibilityChannel  Visibility = "channel"
	VisibilityModOnly  Visibility = "mod_only"
	VisibilityNetwork  Visibility = "network"
)

// Kind is the result of classifying an Event for dispatch purposes.
type Kind string

const (
	KindDirect    Kind = "direct"
	KindBroadcast Kind = "broadcast"
	KindSystem    Kind = "system"
)

const (
	AgentPrefix  = "agent:"
	ModPrefix    = "mod:"
	SystemPrefix = "system:"

	BroadcastDestination = "agent:broadcast"

	legacyDirectMessageName    = "agent.message"
	directMessageNamePrefix    = "agent.direct_message."
	broadcastMessageNamePrefix = "agent.broadcast_message."
)

// Event is the envelope every transport speaks and every mod sees. Fields
// that the wire format allows the sender to set are distinguished from the
// ones the gateway stamps itself (Timestamp, SourceAgentGroup) — those are
// never trusted from an inbound frame.
type Event struct {
	EventID          string            `json:"event_id"`
	EventName        string            `json:"event_name"`
	SourceID         string            `json:"source_id"`
	DestinationID    string            `json:"destination_id,omitempty"`
	Payload          map[string]any    `json:"payload,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Visibility       Visibility        `json:"visibility,omitempty"`
	Secret           string            `json:"secret,omitempty"`
	SourceAgentGroup string            `json:"source_agent_group,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
	RelevantMod      string            `json:"relevant_mod,omitempty"`
}

// NewEvent fills EventID and Timestamp the way the gateway does on
// ingress; callers building events for tests or internal dispatch should
// use this instead of the bare struct literal so the stamped fields are
// never left zero.
func NewEvent(name, sourceID, destinationID string, payload map[string]any) Event {
	return Event{
		EventID:       uuid.NewString(),
		EventName:     name,
		SourceID:      sourceID,
		DestinationID: destinationID,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}
}

// IsAgentAddress reports whether id names an agent (as opposed to a mod or
// the system pseudo-source).
func IsAgentAddress(id string) bool {
	return strings.HasPrefix(id, AgentPrefix)
}

// AgentID strips the "agent:" prefix, returning ok=false if id isn't an
// agent address.
func AgentID(id string) (string, bool) {
	if !IsAgentAddress(id) {
		return "", false
	}
	return strings.TrimPrefix(id, AgentPrefix), true
}

// Classify implements the direct/broadcast/system dispatch rule: direct
// messages carry the agent.direct_message.* namespace (or the legacy
// agent.message name) and address a concrete agent; broadcasts use the
// agent.broadcast_message.* namespace or the agent:broadcast destination;
// everything else is a system event.
func (e Event) Classify() Kind {
	isDirectName := strings.HasPrefix(e.EventName, directMessageNamePrefix) || e.EventName == legacyDirectMessageName
	if isDirectName && IsAgentAddress(e.DestinationID) && e.DestinationID != BroadcastDestination {
		return KindDirect
	}
	if strings.HasPrefix(e.EventName, broadcastMessageNamePrefix) || e.DestinationID == BroadcastDestination {
		return KindBroadcast
	}
	return KindSystem
}

// WithServerStamp returns a copy of e with the fields the gateway owns
// set from trusted inputs, overwriting anything the sender supplied.
func (e Event) WithServerStamp(sourceAgentGroup string, now time.Time) Event {
	stamped := e
	stamped.SourceAgentGroup = sourceAgentGroup
	stamped.Timestamp = now
	if stamped.EventID == "" {
		stamped.EventID = uuid.NewString()
	}
	return stamped
}
