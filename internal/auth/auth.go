// Package auth implements the node's Auth & Group Manager: per-agent
// secret issuance, password-hash-based group assignment on registration,
// and constant-time secret validation.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
)

// Manager owns the group table and the secrets issued to registered
// agents. It does not own the agent index itself (that's the gateway's);
// it only answers "what group, what secret, is this valid".
type Manager struct {
	mu sync.RWMutex

	groups           map[string]event.AgentGroup
	hashToGroup      map[string]string // password hash -> group name
	defaultGroup     string
	requiresPassword bool
	insecureDisabled bool

	secrets map[string]string // agent id -> secret
}

type Config struct {
	Groups           []event.AgentGroup
	DefaultGroup     string
	RequiresPassword bool

	// InsecureDisableSecretVerification mirrors the source project's
	// disable_agent_secret_verification testing knob. Never set this
	// from a plain config file value alone; callers must gate it behind
	// an explicit, separately-supplied opt-in (see cmd/networknode).
	InsecureDisableSecretVerification bool
}

func New(cfg Config) (*Manager, error) {
	m := &Manager{
		groups:           make(map[string]event.AgentGroup, len(cfg.Groups)),
		hashToGroup:      make(map[string]string, len(cfg.Groups)),
		defaultGroup:     cfg.DefaultGroup,
		requiresPassword: cfg.RequiresPassword,
		insecureDisabled: cfg.InsecureDisableSecretVerification,
		secrets:          make(map[string]string),
	}
	for _, g := range cfg.Groups {
		m.groups[g.Name] = g
		if g.PasswordHash != "" {
			m.hashToGroup[g.PasswordHash] = g.Name
		}
	}
	if cfg.DefaultGroup != "" {
		if _, ok := m.groups[cfg.DefaultGroup]; !ok {
			return nil, fmt.Errorf("default group %q is not configured", cfg.DefaultGroup)
		}
	}
	return m, nil
}

// InsecureDisableSecretVerification reports whether this manager was
// constructed with secret verification turned off.
func (m *Manager) InsecureDisableSecretVerification() bool {
	return m.insecureDisabled
}

// RegisterResult is what register_agent hands back on success.
type RegisterResult struct {
	Secret string
	Group  string
}

// RegisterAgent assigns a group from presentedPasswordHash (if it matches
// a configured group) or the default group, and issues a fresh secret.
// It does not touch the agent index; the gateway calls this once it has
// decided registration may proceed (duplicate/force-reconnect handling
// lives there).
func (m *Manager) RegisterAgent(agentID, presentedPasswordHash string) (RegisterResult, error) {
	m.mu.RLock()
	group, matched := "", false
	if presentedPasswordHash != "" {
		group, matched = m.hashToGroup[presentedPasswordHash]
	}
	requiresPassword := m.requiresPassword
	defaultGroup := m.defaultGroup
	m.mu.RUnlock()

	if !matched {
		if requiresPassword {
			return RegisterResult{}, apierr.New(apierr.AuthenticationRequired, "registration requires a matching group password hash")
		}
		group = defaultGroup
	}

	secret, err := newSecret()
	if err != nil {
		return RegisterResult{}, apierr.Wrap(apierr.Internal, "failed to generate agent secret", err)
	}

	m.mu.Lock()
	m.secrets[agentID] = secret
	m.mu.Unlock()

	return RegisterResult{Secret: secret, Group: group}, nil
}

// Validate performs the constant-time secret check. System-prefixed
// sources always pass; mod-prefixed sources are the gateway's
// responsibility to gate (the transport never accepts mod: as a wire
// source), so Validate treats them as trusted here too.
func (m *Manager) Validate(sourceID, secret string) bool {
	if m.insecureDisabled {
		return true
	}
	if len(sourceID) >= len(event.SystemPrefix) && sourceID[:len(event.SystemPrefix)] == event.SystemPrefix {
		return true
	}
	if len(sourceID) >= len(event.ModPrefix) && sourceID[:len(event.ModPrefix)] == event.ModPrefix {
		return true
	}
	agentID, ok := event.AgentID(sourceID)
	if !ok {
		return false
	}

	m.mu.RLock()
	stored, ok := m.secrets[agentID]
	m.mu.RUnlock()
	if !ok || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) == 1
}

// Unregister requires a valid secret before removing it, so a connection
// can't be torn down by spoofing another agent's id.
func (m *Manager) Unregister(agentID, secret string) error {
	if !m.Validate(event.AgentPrefix+agentID, secret) {
		return apierr.New(apierr.AuthenticationFailed, "invalid secret presented at unregister")
	}
	m.mu.Lock()
	delete(m.secrets, agentID)
	m.mu.Unlock()
	return nil
}

// Group returns the configured group by name.
func (m *Manager) Group(name string) (event.AgentGroup, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[name]
	return g, ok
}

// Groups returns a snapshot of all configured groups.
func (m *Manager) Groups() []event.AgentGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]event.AgentGroup, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g)
	}
	return out
}

func newSecret() (string, error) {
	buf := make([]byte, 32) // 32 bytes -> 64 hex chars
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Secrets do not survive restart by design (spec.md §9): the workspace
// recovery path never calls into Manager to reinstate them, so a
// restarted node always requires every agent to re-register.
