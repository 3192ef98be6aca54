package event

import "time"

// AgentRecord is the in-memory and on-disk shape of a registered agent.
type AgentRecord struct {
	AgentID      string            `json:"agent_id"`
	TransportKind string           `json:"transport_kind"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Group        string            `json:"group"`
	RegisteredAt time.Time         `json:"registered_at"`
	LastSeen     time.Time         `json:"last_seen"`

	// Secret and ConnHandle are process-local only; never serialized.
	Secret     string `json:"-"`
	ConnHandle any    `json:"-"`
}

// AgentGroup is a configured role an agent is assigned to on registration.
type AgentGroup struct {
	Name         string            `json:"name" yaml:"name"`
	PasswordHash string            `json:"-" yaml:"password_hash"`
	Description  string            `json:"description,omitempty" yaml:"description"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata"`
}

// IsAdmin reports whether the group's metadata grants the admin
// permission mods consult for authorization (e.g. announcements).
func (g AgentGroup) IsAdmin() bool {
	return g.Metadata["permission"] == "admin"
}

// Channel is a logical fan-out topic created on first post.
type Channel struct {
	Name         string    `json:"name"`
	Creator      string    `json:"creator"`
	CreatedAt    time.Time `json:"created_at"`
	Announcement string    `json:"announcement,omitempty"`
}

// Subscription is a (agent, pattern list, optional mod filter) tuple held
// by the gateway's subscription table.
type Subscription struct {
	ID        string   `json:"id"`
	AgentID   string   `json:"agent_id"`
	Patterns  []string `json:"patterns"`
	ModFilter string   `json:"mod_filter,omitempty"`
}

// ModRecord describes a loaded mod instance for list_loaded/health
// reporting purposes.
type ModRecord struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	LoadedAt time.Time `json:"loaded_at"`
}

// OverflowPolicy decides what happens when a recipient's delivery queue
// is full (spec.md §5). Shared between the gateway and the transports so
// a transport can pick the policy for the connections it accepts without
// either package importing the other's concrete types.
type OverflowPolicy int

const (
	// DropOldest discards the oldest queued event to make room — the
	// default for HTTP poll queues.
	DropOldest OverflowPolicy = iota
	// Disconnect reports the overflow to the caller so it can tear the
	// connection down — the default for streaming transports.
	Disconnect
)
