// Package node wires the event gateway, auth manager, mod pipeline,
// workspace store, and transports into the single running process
// spec.md §6 describes: construct once from a config.NetworkConfig,
// Start to begin serving, Stop to shut everything down in order.
//
// Grounded on the teacher's AgentHubServer (internal/agenthub/grpc.go):
// same observability-first construction, the same health-server
// goroutine, the same graceful-shutdown ordering.
package node

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/auth"
	"github.com/openagents/network/internal/config"
	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/gateway"
	"github.com/openagents/network/internal/mods"
	"github.com/openagents/network/internal/modpipeline"
	"github.com/openagents/network/internal/observability"
	"github.com/openagents/network/internal/tlsutil"
	"github.com/openagents/network/internal/transport"
	"github.com/openagents/network/internal/transport/grpcapi"
	"github.com/openagents/network/internal/transport/httpapi"
	"github.com/openagents/network/internal/workspace"
)

const (
	defaultWorkspaceDir  = "./workspace"
	defaultQueueCapacity = 256
)

// Exit codes per spec.md §6.
const (
	ExitClean        = 0
	ExitConfigError  = 1
	ExitPortInUse    = 2
	ExitStorageError = 3
)

// ExitCode maps an error returned from New or Start to the process exit
// code a cmd/networknode entrypoint should use.
func ExitCode(err error) int {
	if err == nil {
		return ExitClean
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && strings.Contains(opErr.Err.Error(), "address already in use") {
		return ExitPortInUse
	}
	if apierr.KindOf(err) == apierr.StorageUnavailable {
		return ExitStorageError
	}
	return ExitConfigError
}

// Node is the fully wired network node process.
type Node struct {
	cfg    *config.NetworkConfig
	logger *slog.Logger

	obs          *observability.Observability
	metrics      *observability.MetricsManager
	tracer       *observability.TraceManager
	healthServer *observability.HealthServer
	healthPort   string

	store    *workspace.Store
	authMgr  *auth.Manager
	registry *modpipeline.Registry
	gw       *gateway.Gateway

	grpcServer *grpcapi.Server
	httpServer *http.Server
	tlsWatcher *tlsutil.Watcher

	queueCapacity int
	networkID     string
	startedAt     time.Time

	stopOnce sync.Once
}

// New constructs every layer of the node but does not start serving.
// Any returned error is a configuration or storage-open failure
// (ExitCode maps it to the right process exit code).
//
// allowInsecureAuth must be set by the caller (cmd/networknode's
// --insecure-allow-disabled-auth flag) for cfg.DisableAgentSecretVerification
// to take effect; a config file alone cannot turn off secret verification.
func New(ctx context.Context, cfg *config.NetworkConfig, allowInsecureAuth bool) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("node: invalid network config: %w", err)
	}

	workspaceDir := cfg.WorkspaceDir
	if workspaceDir == "" {
		workspaceDir = defaultWorkspaceDir
	}
	queueCapacity := cfg.QueueCapacity
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}

	obsConfig := observability.DefaultConfig(cfg.Name)
	obs, err := observability.NewObservability(obsConfig)
	if err != nil {
		return nil, fmt.Errorf("node: failed to initialize observability: %w", err)
	}

	metricsManager, err := observability.NewMetricsManager(obs.Meter)
	if err != nil {
		return nil, fmt.Errorf("node: failed to initialize metrics manager: %w", err)
	}
	traceManager := observability.NewTraceManager(obsConfig.ServiceName)

	healthPort := config.Load().HealthPort
	healthServer := observability.NewHealthServer(healthPort, obsConfig.ServiceName, obsConfig.ServiceVersion)

	store, err := workspace.Open(ctx, workspaceDir, cfg.Name, obs.Logger)
	if err != nil {
		return nil, apierr.Wrap(apierr.StorageUnavailable, "failed to open workspace store", err)
	}
	healthServer.AddChecker("workspace", observability.NewBasicHealthChecker("workspace", func(ctx context.Context) error {
		return nil
	}))

	authMgr, err := auth.New(auth.Config{
		Groups:                            cfg.Groups(),
		DefaultGroup:                      cfg.DefaultAgentGroup,
		RequiresPassword:                  cfg.RequiresPassword,
		InsecureDisableSecretVerification: allowInsecureAuth && cfg.DisableAgentSecretVerification,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("node: failed to initialize auth manager: %w", err)
	}

	n := &Node{
		cfg:           cfg,
		logger:        obs.Logger,
		obs:           obs,
		metrics:       metricsManager,
		tracer:        traceManager,
		healthServer:  healthServer,
		healthPort:    healthPort,
		store:         store,
		authMgr:       authMgr,
		queueCapacity: queueCapacity,
		networkID:     uuid.NewString(),
		startedAt:     time.Now().UTC(),
	}

	nc := &modpipeline.NetworkContext{
		NetworkName:   cfg.Name,
		WorkspacePath: workspaceDir,
		EmitEvent:     n.emitEvent,
		Mods:          n.modNames,
		ModStoragePath: store.ModStoragePath,
		IsAdminGroup:  n.isAdminGroup,
	}
	n.registry = modpipeline.NewRegistry(obs.Logger, nc, mods.Factory, metricsManager, traceManager)

	n.gw = gateway.New(gateway.Config{QueueCapacity: queueCapacity}, authMgr, n.registry, store, obs.Logger, metricsManager, traceManager)

	if err := n.recoverWorkspace(ctx); err != nil {
		store.Close()
		return nil, apierr.Wrap(apierr.StorageUnavailable, "failed to recover workspace state", err)
	}

	for _, mc := range cfg.Mods {
		if err := n.registry.Load(ctx, mc.Path, mc.Config); err != nil {
			n.logger.ErrorContext(ctx, "configured mod failed to load", "mod_path", mc.Path, "error", err)
		}
	}

	return n, nil
}

// emitEvent is the NetworkContext.EmitEvent hook mods use to send events
// of their own making back through the gateway. broadcast=true stamps
// the broadcast destination; mods otherwise set their own destination.
func (n *Node) emitEvent(ctx context.Context, e event.Event, broadcast bool) error {
	if broadcast {
		e.DestinationID = event.BroadcastDestination
	}
	_, err := n.gw.Submit(ctx, e, true)
	return err
}

func (n *Node) modNames() []string {
	loaded := n.registry.ListLoaded()
	out := make([]string, 0, len(loaded))
	for _, m := range loaded {
		out = append(out, m.Path)
	}
	return out
}

// isAdminGroup is the NetworkContext.IsAdminGroup hook: mods gate
// group-scoped operations (the announcement mod's set, for one) on
// this rather than on a specific agent identity.
func (n *Node) isAdminGroup(group string) bool {
	g, ok := n.authMgr.Group(group)
	if !ok {
		return false
	}
	return g.IsAdmin()
}

// recoverWorkspace rehydrates the agent index from the workspace store
// on a restart (spec.md §8.7, §9): agent identities and their last
// known group come back, but not secrets, subscriptions, or queues —
// every agent must re-register before it can submit or be delivered
// to again.
func (n *Node) recoverWorkspace(ctx context.Context) error {
	recovered, err := n.store.RecoveredAgents()
	if err != nil {
		return err
	}
	for _, rec := range recovered {
		if err := n.gw.RegisterAgent(ctx, rec, event.DropOldest, true); err != nil {
			n.logger.ErrorContext(ctx, "failed to rehydrate recovered agent", "agent_id", rec.AgentID, "error", err)
		}
	}
	if len(recovered) > 0 {
		n.logger.InfoContext(ctx, "rehydrated agent index from workspace", "count", len(recovered))
	}
	return nil
}

// Start brings up every configured transport and blocks until ctx is
// canceled or a transport fails fatally. Callers should run it in its
// own goroutine and call Stop to bring it down.
func (n *Node) Start(ctx context.Context) error {
	go func() {
		n.logger.Info("starting health server", "port", n.healthPort)
		if err := n.healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			n.logger.Error("health server failed", "error", err)
		}
	}()

	errCh := make(chan error, len(n.cfg.Transports))
	started := 0

	for _, tc := range n.cfg.Transports {
		scheme, hostPort, err := transport.ParseAddress(schemeAddr(tc))
		if err != nil {
			return fmt.Errorf("node: %w", err)
		}

		switch scheme {
		case transport.SchemeGRPC, transport.SchemeGRPCSecure:
			if err := n.startGRPC(hostPort, scheme, errCh); err != nil {
				return err
			}
			started++
		case transport.SchemeHTTP:
			if err := n.startHTTP(hostPort, errCh); err != nil {
				return err
			}
			started++
		}
	}

	if started == 0 {
		return fmt.Errorf("node: no transports could be started from configuration")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// schemeAddr reconstructs a transport.ParseAddress-compatible URL from
// a TransportConfig's bare kind/address pair.
func schemeAddr(tc config.TransportConfig) string {
	return tc.Kind + "://" + tc.Address
}

func (n *Node) startGRPC(addr string, scheme transport.Scheme, errCh chan<- error) error {
	var opts []grpc.ServerOption
	if transport.RequiresTLS(scheme) {
		if n.cfg.TLS == nil {
			return fmt.Errorf("node: transport %q requires tls but no tls config was supplied", addr)
		}
		watcher, err := tlsutil.NewWatcher(n.cfg.TLS.CertFile, n.cfg.TLS.KeyFile, n.logger)
		if err != nil {
			return fmt.Errorf("node: failed to load tls credentials: %w", err)
		}
		n.tlsWatcher = watcher
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12, GetCertificate: watcher.GetCertificate}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	srv, err := grpcapi.NewServer(addr, n.logger, n.metrics, n.tracer, opts...)
	if err != nil {
		return err
	}
	n.grpcServer = srv

	go func() {
		overflow := event.Disconnect
		if err := srv.Serve(n.gw, n.authMgr, n.queueCapacity, overflow); err != nil {
			errCh <- err
		}
	}()
	return nil
}

func (n *Node) startHTTP(addr string, errCh chan<- error) error {
	info := httpapi.NetworkInfo{
		NetworkID:   n.networkID,
		NetworkName: n.cfg.Name,
		Transports:  transportNames(n.cfg.Transports),
		Readme:      n.cfg.NetworkProfile.Readme,
		StartedAt:   n.startedAt,
	}
	srv := httpapi.NewServer(n.gw, n.authMgr, n.registry, n.store, info, n.logger, n.metrics, n.queueCapacity)

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
	n.httpServer = httpSrv

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("node: listen on %s: %w", addr, err)
	}

	go func() {
		n.logger.Info("poll transport listening", "address", addr)
		if err := httpSrv.Serve(lis); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return nil
}

func transportNames(transports []config.TransportConfig) []string {
	out := make([]string, 0, len(transports))
	for _, t := range transports {
		out = append(out, t.Kind+"://"+t.Address)
	}
	return out
}

// Stop shuts every layer down in the teacher's order: gRPC first (so
// in-flight streams drain), then the HTTP listener, then the health
// server, then observability, then the workspace store. Each step's
// error is logged but never stops the remaining steps from running.
func (n *Node) Stop(ctx context.Context) error {
	var stopErr error
	n.stopOnce.Do(func() {
		n.logger.InfoContext(ctx, "stopping network node")

		if n.grpcServer != nil {
			n.grpcServer.Stop()
		}
		if n.tlsWatcher != nil {
			if err := n.tlsWatcher.Close(); err != nil {
				n.logger.ErrorContext(ctx, "tls certificate watcher close failed", "error", err)
			}
		}
		if n.httpServer != nil {
			if err := n.httpServer.Shutdown(ctx); err != nil {
				n.logger.ErrorContext(ctx, "http transport shutdown failed", "error", err)
			}
		}
		if err := n.healthServer.Shutdown(ctx); err != nil {
			n.logger.ErrorContext(ctx, "health server shutdown failed", "error", err)
		}
		if err := n.obs.Shutdown(ctx); err != nil {
			n.logger.ErrorContext(ctx, "observability shutdown failed", "error", err)
		}
		if err := n.store.Close(); err != nil {
			n.logger.ErrorContext(ctx, "workspace store close failed", "error", err)
			stopErr = apierr.Wrap(apierr.StorageUnavailable, "failed to close workspace store", err)
		}
	})
	return stopErr
}
