package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "network.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadNetworkConfig(t *testing.T) {
	path := writeConfig(t, `
name: test-network
transports:
  - kind: grpc
    address: ":50051"
  - kind: http
    address: ":8090"
agent_groups:
  guests: {}
  admin:
    password_hash: H_admin
    metadata:
      permission: admin
default_agent_group: guests
`)

	cfg, err := LoadNetworkConfig(path)
	require.NoError(t, err)
	require.Equal(t, "test-network", cfg.Name)
	require.Len(t, cfg.Transports, 2)
	require.Len(t, cfg.Groups(), 2)
}

func TestLoadNetworkConfigRejectsUnknownDefaultGroup(t *testing.T) {
	path := writeConfig(t, `
name: test-network
transports:
  - kind: http
    address: ":8090"
default_agent_group: nope
`)

	_, err := LoadNetworkConfig(path)
	require.Error(t, err)
}

func TestLoadNetworkConfigRequiresTransport(t *testing.T) {
	path := writeConfig(t, `
name: test-network
`)
	_, err := LoadNetworkConfig(path)
	require.Error(t, err)
}
