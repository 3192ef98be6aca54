package auth

import (
	"testing"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, requiresPassword bool) *Manager {
	t.Helper()
	m, err := New(Config{
		Groups: []event.AgentGroup{
			{Name: "guests"},
			{Name: "admin", PasswordHash: "H_admin", Metadata: map[string]string{"permission": "admin"}},
		},
		DefaultGroup:     "guests",
		RequiresPassword: requiresPassword,
	})
	require.NoError(t, err)
	return m
}

func TestRegisterAgentGroupAssignment(t *testing.T) {
	m := testManager(t, false)

	res, err := m.RegisterAgent("alice", "")
	require.NoError(t, err)
	require.Equal(t, "guests", res.Group)
	require.Len(t, res.Secret, 64)

	res, err = m.RegisterAgent("mallory", "H_admin")
	require.NoError(t, err)
	require.Equal(t, "admin", res.Group)
}

func TestRegisterAgentRequiresPassword(t *testing.T) {
	m := testManager(t, true)

	_, err := m.RegisterAgent("bob", "")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	require.Equal(t, apierr.AuthenticationRequired, apiErr.Kind)

	res, err := m.RegisterAgent("mallory", "H_admin")
	require.NoError(t, err)
	require.Equal(t, "admin", res.Group)
}

func TestValidate(t *testing.T) {
	m := testManager(t, false)
	res, err := m.RegisterAgent("alice", "")
	require.NoError(t, err)

	require.True(t, m.Validate("agent:alice", res.Secret))
	require.False(t, m.Validate("agent:alice", "wrong"))
	require.False(t, m.Validate("agent:unknown", res.Secret))
	require.True(t, m.Validate("system:system", "anything"))
}

func TestUnregisterRequiresValidSecret(t *testing.T) {
	m := testManager(t, false)
	res, err := m.RegisterAgent("alice", "")
	require.NoError(t, err)

	err = m.Unregister("alice", "wrong")
	require.Error(t, err)
	require.True(t, m.Validate("agent:alice", res.Secret))

	require.NoError(t, m.Unregister("alice", res.Secret))
	require.False(t, m.Validate("agent:alice", res.Secret))
}
