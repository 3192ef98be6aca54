// Package workspace implements the Workspace Store (spec.md §4.5): the
// durable, crash-safe record of events, agent registrations, group
// membership, per-mod state, and per-agent LLM call logs. JSONL files
// are the durable source of truth; a badger key-value index sits
// underneath them purely as a rebuildable cache of agent records and
// event ids.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
)

const schemaVersion = 1

type manifest struct {
	NetworkName   string `json:"network_name"`
	SchemaVersion int    `json:"schema_version"`
	CreatedAt     string `json:"created_at"`
}

// Store is the single writer for everything under its root directory.
// Each append-target file has its own mutex so writers to different
// files never contend, matching spec.md §5's "serialized per-file by
// an append mutex".
type Store struct {
	root   string
	logger *slog.Logger

	manifest manifest
	index    *badger.DB

	mu        sync.Mutex // not taken by any method; fileLocks serialize appends
	fileLocks map[string]*sync.Mutex
	flMu      sync.Mutex
}

// Open opens (or initializes) the workspace rooted at dir. A freshly
// empty directory gets a manifest written; an existing one is read back
// and its indexes rebuilt from the JSONL logs (spec.md's restart
// recovery property).
func Open(ctx context.Context, dir, networkName string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierr.Wrap(apierr.StorageUnavailable, "failed to create workspace root", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dir, ".index")).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, apierr.Wrap(apierr.StorageUnavailable, "failed to open workspace index", err)
	}

	s := &Store{root: dir, logger: logger, index: db, fileLocks: make(map[string]*sync.Mutex)}

	manifestPath := filepath.Join(dir, "manifest.json")
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		s.manifest = manifest{NetworkName: networkName, SchemaVersion: schemaVersion, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
		if err := s.writeManifest(); err != nil {
			db.Close()
			return nil, err
		}
	} else if err != nil {
		db.Close()
		return nil, apierr.Wrap(apierr.StorageUnavailable, "failed to stat manifest", err)
	} else {
		raw, err := os.ReadFile(manifestPath)
		if err != nil {
			db.Close()
			return nil, apierr.Wrap(apierr.StorageUnavailable, "failed to read manifest", err)
		}
		if err := json.Unmarshal(raw, &s.manifest); err != nil {
			db.Close()
			return nil, apierr.Wrap(apierr.StorageUnavailable, "failed to parse manifest", err)
		}
		if err := s.recover(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	for _, sub := range []string{"events", "logs/llm", "mods"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			db.Close()
			return nil, apierr.Wrap(apierr.StorageUnavailable, "failed to create workspace subdirectory", err)
		}
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.index.Close()
}

func (s *Store) writeManifest() error {
	raw, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return apierr.Wrap(apierr.Internal, "failed to marshal manifest", err)
	}
	return s.atomicWrite(filepath.Join(s.root, "manifest.json"), raw)
}

func (s *Store) atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apierr.Wrap(apierr.StorageUnavailable, "failed to write "+path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apierr.Wrap(apierr.StorageUnavailable, "failed to finalize "+path, err)
	}
	return nil
}

func (s *Store) fileLock(path string) *sync.Mutex {
	s.flMu.Lock()
	defer s.flMu.Unlock()
	m, ok := s.fileLocks[path]
	if !ok {
		m = &sync.Mutex{}
		s.fileLocks[path] = m
	}
	return m
}

// appendLine appends one JSON-encoded record terminated by a newline to
// path, fsyncing before close so the write is durable once it returns.
func (s *Store) appendLine(path string, record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "failed to marshal record", err)
	}
	raw = append(raw, '\n')

	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apierr.Wrap(apierr.StorageUnavailable, "failed to create directory for "+path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apierr.Wrap(apierr.StorageUnavailable, "failed to open "+path, err)
	}
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		return apierr.Wrap(apierr.StorageUnavailable, "failed to append to "+path, err)
	}
	return f.Sync()
}

// AppendEvent writes e to the day-rotated event log and updates the
// index, per spec.md §4.5 and §6's persisted layout.
func (s *Store) AppendEvent(ctx context.Context, e event.Event) error {
	day := e.Timestamp.UTC().Format("2006-01-02")
	path := filepath.Join(s.root, "events", fmt.Sprintf("%s.jsonl", day))
	if err := s.appendLine(path, e); err != nil {
		return err
	}
	return s.index.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("event:"+e.EventID), []byte(e.EventName))
	})
}

const (
	agentActionRegister   = "register"
	agentActionUnregister = "unregister"
)

type agentLogRecord struct {
	Action string            `json:"action"`
	Agent  event.AgentRecord `json:"agent"`
}

// AppendAgentRegistered records a registration and refreshes the badger
// agent index.
func (s *Store) AppendAgentRegistered(ctx context.Context, rec event.AgentRecord) error {
	if err := s.appendLine(filepath.Join(s.root, "agents.jsonl"), agentLogRecord{Action: agentActionRegister, Agent: rec}); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "failed to marshal agent record", err)
	}
	return s.index.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("agent:"+rec.AgentID), raw)
	})
}

// AppendAgentUnregistered records an unregistration and drops the agent
// from the badger index.
func (s *Store) AppendAgentUnregistered(ctx context.Context, agentID string) error {
	if err := s.appendLine(filepath.Join(s.root, "agents.jsonl"), agentLogRecord{Action: agentActionUnregister, Agent: event.AgentRecord{AgentID: agentID}}); err != nil {
		return err
	}
	return s.index.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte("agent:" + agentID))
	})
}

// WriteGroupsSnapshot overwrites groups.json with the current
// membership snapshot.
func (s *Store) WriteGroupsSnapshot(groups map[string]string) error {
	raw, err := json.MarshalIndent(groups, "", "  ")
	if err != nil {
		return apierr.Wrap(apierr.Internal, "failed to marshal groups snapshot", err)
	}
	return s.atomicWrite(filepath.Join(s.root, "groups.json"), raw)
}

// LLMLogEntry is one record in an agent's per-agent LLM call log.
type LLMLogEntry struct {
	LogID     string    `json:"log_id"`
	AgentID   string    `json:"agent_id"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AppendLLMLog appends to logs/llm/<agent_id>.jsonl.
func (s *Store) AppendLLMLog(ctx context.Context, entry LLMLogEntry) error {
	path := filepath.Join(s.root, "logs", "llm", entry.AgentID+".jsonl")
	return s.appendLine(path, entry)
}

// ModStoragePath returns (and creates) the opaque per-mod subtree path.
// The core never reads what a mod writes there.
func (s *Store) ModStoragePath(modPath string) string {
	dir := filepath.Join(s.root, "mods", modPath)
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func (s *Store) NetworkName() string { return s.manifest.NetworkName }
