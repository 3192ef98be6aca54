// Package httpapi is the poll-based HTTP transport of spec.md §4.4/§6:
// a gorilla/mux-routed server exposing register/unregister/poll/send_event
// plus the health and LLM call log endpoints. Every response follows the
// node-wide envelope of a success flag and either data or error_message
// (spec.md §7).
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/auth"
	"github.com/openagents/network/internal/event"
	"github.com/openagents/network/internal/observability"
	"github.com/openagents/network/internal/workspace"
)

const sendEventDeadline = 30 * time.Second

// Gateway is the subset of gateway.Gateway this transport drives.
type Gateway interface {
	RegisterAgent(ctx context.Context, rec event.AgentRecord, overflow event.OverflowPolicy, forceReconnect bool) error
	Poll(ctx context.Context, agentID string, maxItems int, waitTimeout time.Duration) ([]event.Event, error)
	Submit(ctx context.Context, e event.Event, persistRequired bool) (event.Event, error)
	Agents() []event.AgentRecord
	Channels() []event.Channel
}

// Auth is the subset of auth.Manager this transport drives.
type Auth interface {
	RegisterAgent(agentID, presentedPasswordHash string) (auth.RegisterResult, error)
	Unregister(agentID, secret string) error
	Groups() []event.AgentGroup
}

// ModLister reports the currently loaded mods for /api/health.
type ModLister interface {
	ListLoaded() []event.ModRecord
}

// LLMLogStore is the subset of workspace.Store the LLM log query
// endpoints read from.
type LLMLogStore interface {
	QueryLLMLogs(agentID string, q workspace.LLMLogQuery) ([]workspace.LLMLogEntry, int, bool, error)
	GetLLMLog(agentID, logID string) (workspace.LLMLogEntry, bool, error)
}

// NetworkInfo is the static network identity/profile the health endpoint
// reports, sourced from config.NetworkConfig.
type NetworkInfo struct {
	NetworkID   string
	NetworkName string
	Transports  []string
	Readme      string
	StartedAt   time.Time
}

// Server is the HTTP poll transport.
type Server struct {
	router  *mux.Router
	gateway Gateway
	auth    Auth
	mods    ModLister
	logs    LLMLogStore
	info    NetworkInfo
	logger  *slog.Logger
	metrics *observability.MetricsManager

	queueCapacity int
}

func NewServer(gw Gateway, authMgr Auth, mods ModLister, logs LLMLogStore, info NetworkInfo, logger *slog.Logger, metrics *observability.MetricsManager, queueCapacity int) *Server {
	s := &Server{
		gateway:       gw,
		auth:          authMgr,
		mods:          mods,
		logs:          logs,
		info:          info,
		logger:        logger,
		metrics:       metrics,
		queueCapacity: queueCapacity,
	}
	s.router = mux.NewRouter()
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/register", s.handleRegister).Methods(http.MethodPost)
	s.router.HandleFunc("/api/unregister", s.handleUnregister).Methods(http.MethodPost)
	s.router.HandleFunc("/api/poll", s.handlePoll).Methods(http.MethodGet)
	s.router.HandleFunc("/api/send_event", s.handleSendEvent).Methods(http.MethodPost)
	s.router.HandleFunc("/api/agents/service/{agent_id}/llm-logs", s.handleLLMLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/api/agents/service/{agent_id}/llm-logs/{log_id}", s.handleLLMLog).Methods(http.MethodGet)
}

type envelope struct {
	Success      bool        `json:"success"`
	Message      string      `json:"message,omitempty"`
	Data         interface{} `json:"data,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apierr.KindOf(err) {
	case apierr.AuthenticationRequired, apierr.AuthenticationFailed:
		status = http.StatusUnauthorized
	case apierr.Forbidden:
		status = http.StatusForbidden
	case apierr.DuplicateAgent:
		status = http.StatusConflict
	case apierr.UnknownAgent, apierr.UnknownMod:
		status = http.StatusNotFound
	case apierr.InvalidEvent:
		status = http.StatusBadRequest
	case apierr.StorageUnavailable:
		status = http.StatusServiceUnavailable
	case apierr.Timeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, envelope{Success: false, Message: string(apierr.KindOf(err)), ErrorMessage: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	agents := s.gateway.Agents()
	agentSummary := make(map[string]string, len(agents))
	for _, a := range agents {
		agentSummary[a.AgentID] = a.Group
	}

	groups := s.auth.Groups()
	groupConfig := make([]map[string]interface{}, 0, len(groups))
	for _, g := range groups {
		groupConfig = append(groupConfig, map[string]interface{}{
			"name":        g.Name,
			"description": g.Description,
			"is_admin":    g.IsAdmin(),
		})
	}

	var mods []event.ModRecord
	if s.mods != nil {
		mods = s.mods.ListLoaded()
	}
	modNames := make([]string, 0, len(mods))
	for _, m := range mods {
		modNames = append(modNames, m.Name)
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{
		"network_id":     s.info.NetworkID,
		"network_name":   s.info.NetworkName,
		"is_running":     true,
		"uptime_seconds": time.Since(s.info.StartedAt).Seconds(),
		"agent_count":    len(agents),
		"agents":         agentSummary,
		"groups":         agentSummary,
		"group_config":   groupConfig,
		"mods":           modNames,
		"dynamic_mods": map[string]interface{}{
			"loaded": modNames,
			"count":  len(modNames),
		},
		"transports": s.info.Transports,
		"readme":     s.info.Readme,
	}})
}

type registerRequest struct {
	AgentID        string            `json:"agent_id"`
	Metadata       map[string]string `json:"metadata"`
	TransportType  string            `json:"transport_type"`
	Certificate    string            `json:"certificate,omitempty"`
	ForceReconnect bool              `json:"force_reconnect,omitempty"`
	PasswordHash   string            `json:"password_hash,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.InvalidEvent, "malformed register body", err))
		return
	}
	if req.AgentID == "" {
		writeError(w, apierr.New(apierr.InvalidEvent, "agent_id is required"))
		return
	}

	result, err := s.auth.RegisterAgent(req.AgentID, req.PasswordHash)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementAuthFailures(r.Context(), "register_http")
		}
		writeError(w, err)
		return
	}

	rec := event.AgentRecord{
		AgentID:       req.AgentID,
		TransportKind: req.TransportType,
		Metadata:      req.Metadata,
		Group:         result.Group,
		RegisteredAt:  time.Now().UTC(),
		LastSeen:      time.Now().UTC(),
		Secret:        result.Secret,
	}
	if err := s.gateway.RegisterAgent(r.Context(), rec, event.DropOldest, req.ForceReconnect); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"secret":       result.Secret,
		"group":        result.Group,
		"network_name": s.info.NetworkName,
		"network_id":   s.info.NetworkID,
	})
}

type unregisterRequest struct {
	AgentID string `json:"agent_id"`
	Secret  string `json:"secret"`
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req unregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Wrap(apierr.InvalidEvent, "malformed unregister body", err))
		return
	}
	if err := s.auth.Unregister(req.AgentID, req.Secret); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, apierr.New(apierr.InvalidEvent, "agent_id query parameter is required"))
		return
	}
	timeout := 30 * time.Second
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	events, err := s.gateway.Poll(r.Context(), agentID, 64, timeout)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": events,
		"agent_id": agentID,
	})
}

func (s *Server) handleSendEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), sendEventDeadline)
	defer cancel()

	var e event.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, apierr.Wrap(apierr.InvalidEvent, "malformed event body", err))
		return
	}

	result, err := s.gateway.Submit(ctx, e, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "ok",
		"event_id": result.EventID,
		"data":     result.Payload,
	})
}

func (s *Server) handleLLMLogs(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]
	q := workspace.LLMLogQuery{Limit: 50}
	query := r.URL.Query()
	if v := query.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}
	if v := query.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Offset = n
		}
	}
	q.Model = query.Get("model")
	q.Search = query.Get("search")
	if v := query.Get("has_error"); v != "" {
		b := v == "true" || v == "1"
		q.HasError = &b
	}

	entries, total, hasMore, err := s.logs.QueryLLMLogs(agentID, q)
	if err != nil {
		writeError(w, apierr.Wrap(apierr.StorageUnavailable, "failed to read llm logs", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":    agentID,
		"logs":        entries,
		"total_count": total,
		"has_more":    hasMore,
	})
}

func (s *Server) handleLLMLog(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entry, ok, err := s.logs.GetLLMLog(vars["agent_id"], vars["log_id"])
	if err != nil {
		writeError(w, apierr.Wrap(apierr.StorageUnavailable, "failed to read llm log", err))
		return
	}
	if !ok {
		writeError(w, apierr.New(apierr.UnknownAgent, "no such log entry"))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
