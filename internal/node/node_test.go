package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/config"
	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/tlsutil"
)

func testConfig(t *testing.T) *config.NetworkConfig {
	t.Helper()
	return &config.NetworkConfig{
		Name:         "test-net",
		WorkspaceDir: t.TempDir(),
		Transports: []config.TransportConfig{
			{Kind: "grpc", Address: "127.0.0.1:0"},
			{Kind: "http", Address: "127.0.0.1:0"},
		},
		AgentGroups: map[string]event.AgentGroup{
			"admins": {Name: "admins", Metadata: map[string]string{"permission": "admin"}},
			"guests": {Name: "guests"},
		},
		DefaultAgentGroup: "guests",
	}
}

func TestNewConstructsEveryLayer(t *testing.T) {
	n, err := New(context.Background(), testConfig(t), false)
	require.NoError(t, err)
	require.NotNil(t, n.gw)
	require.NotNil(t, n.registry)
	require.NotNil(t, n.authMgr)
	require.NotNil(t, n.store)
	require.NoError(t, n.Stop(context.Background()))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(context.Background(), &config.NetworkConfig{}, false)
	require.Error(t, err)
	require.Equal(t, ExitConfigError, ExitCode(err))
}

func TestIsAdminGroupReflectsConfiguredGroups(t *testing.T) {
	n, err := New(context.Background(), testConfig(t), false)
	require.NoError(t, err)
	defer n.Stop(context.Background())

	require.True(t, n.isAdminGroup("admins"))
	require.False(t, n.isAdminGroup("guests"))
	require.False(t, n.isAdminGroup("nonexistent"))
}

func TestEmitEventStampsBroadcastDestination(t *testing.T) {
	n, err := New(context.Background(), testConfig(t), false)
	require.NoError(t, err)
	defer n.Stop(context.Background())

	require.NoError(t, n.gw.RegisterAgent(context.Background(), event.AgentRecord{AgentID: "b", Group: "guests"}, event.DropOldest, false))

	e := event.NewEvent("agent.message", event.ModPrefix+"core.echo", "", map[string]any{"text": "hi"})
	err = n.emitEvent(context.Background(), e, true)
	require.NoError(t, err)

	got, err := n.gw.Poll(context.Background(), "b", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, event.BroadcastDestination, got[0].DestinationID)
}

func TestExitCodeMapsStorageErrors(t *testing.T) {
	err := apierr.Wrap(apierr.StorageUnavailable, "disk gone", nil)
	require.Equal(t, ExitStorageError, ExitCode(err))
}

func TestExitCodeCleanOnNil(t *testing.T) {
	require.Equal(t, ExitClean, ExitCode(nil))
}

func TestDisableAgentSecretVerificationRequiresInsecureFlag(t *testing.T) {
	cfg := testConfig(t)
	cfg.DisableAgentSecretVerification = true

	n, err := New(context.Background(), cfg, false)
	require.NoError(t, err)
	require.False(t, n.authMgr.InsecureDisableSecretVerification())
	require.NoError(t, n.Stop(context.Background()))

	n2, err := New(context.Background(), cfg, true)
	require.NoError(t, err)
	require.True(t, n2.authMgr.InsecureDisableSecretVerification())
	require.NoError(t, n2.Stop(context.Background()))
}

func TestStartServesConfiguredTransportsUntilContextCanceled(t *testing.T) {
	n, err := New(context.Background(), testConfig(t), false)
	require.NoError(t, err)
	defer n.Stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Start(ctx) }()

	// Give the listeners a moment to bind.
	require.Eventually(t, func() bool {
		return n.grpcServer != nil && n.httpServer != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestStartWithTLSTransportLoadsWatcherAndClosesOnStop(t *testing.T) {
	dir := t.TempDir()
	certFile := dir + "/cert.pem"
	keyFile := dir + "/key.pem"
	require.NoError(t, tlsutil.GenerateSelfSigned(certFile, keyFile, "127.0.0.1", time.Hour))

	cfg := testConfig(t)
	cfg.Transports = []config.TransportConfig{{Kind: "grpcs", Address: "127.0.0.1:0"}}
	cfg.TLS = &config.TLSConfig{CertFile: certFile, KeyFile: keyFile}

	n, err := New(context.Background(), cfg, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Start(ctx) }()

	require.Eventually(t, func() bool {
		return n.grpcServer != nil && n.tlsWatcher != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, n.Stop(context.Background()))
}

func TestSchemeAddrAndTransportNames(t *testing.T) {
	tc := config.TransportConfig{Kind: "grpc", Address: "127.0.0.1:50051"}
	require.Equal(t, "grpc://127.0.0.1:50051", schemeAddr(tc))
	require.Equal(t, []string{"grpc://127.0.0.1:50051"}, transportNames([]config.TransportConfig{tc}))
}
