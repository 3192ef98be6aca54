// Package eventpb defines the wire messages for the streaming transport's
// single bidirectional Communicate RPC and the codec that carries them.
//
// There is no .proto in this tree: messages are plain structs carried by
// a JSON grpc codec (see codec.go) rather than generated protobuf code,
// which keeps the wire format identical to the HTTP transport's bodies
// and avoids a protoc build step for a small, stable message set.
package eventpb

import "github.com/openagents/network/internal/event"

// ClientFrame is sent agent-to-node on the Communicate stream. The first
// frame on a stream must carry Register; every frame after that carries
// Event.
type ClientFrame struct {
	Register *RegisterFrame `json:"register,omitempty"`
	Event    *event.Event   `json:"event,omitempty"`
}

// ServerFrame is sent node-to-agent. Registered is sent exactly once, in
// reply to the client's Register frame; after that, Event frames deliver
// traffic and a single Error frame, if any, terminates the stream (a
// failed register or a failed submit of a streamed event).
type ServerFrame struct {
	Registered *RegisteredFrame `json:"registered,omitempty"`
	Event      *event.Event     `json:"event,omitempty"`
	Error      *ErrorFrame      `json:"error,omitempty"`
}

type RegisterFrame struct {
	AgentID               string            `json:"agent_id"`
	PresentedPasswordHash string            `json:"presented_password_hash,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	ForceReconnect        bool              `json:"force_reconnect,omitempty"`
}

type RegisteredFrame struct {
	Secret string `json:"secret"`
	Group  string `json:"group"`
}

type ErrorFrame struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
