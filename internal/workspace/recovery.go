package workspace

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/openagents/network/internal/apierr"
	"github.com/openagents/network/internal/event"
)

// recover replays agents.jsonl into the badger index so a restarted
// node's agent table matches its pre-shutdown state, per spec.md §8's
// restart-recovery property. Transient subscriptions and queues are
// never recovered — those are process-local by design.
func (s *Store) recover(ctx context.Context) error {
	path := filepath.Join(s.root, "agents.jsonl")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apierr.Wrap(apierr.StorageUnavailable, "failed to open agents.jsonl for recovery", err)
	}
	defer f.Close()

	live := make(map[string]event.AgentRecord)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec agentLogRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			s.logger.ErrorContext(ctx, "skipping malformed agents.jsonl line during recovery", "error", err)
			continue
		}
		switch rec.Action {
		case agentActionRegister:
			live[rec.Agent.AgentID] = rec.Agent
		case agentActionUnregister:
			delete(live, rec.Agent.AgentID)
		}
	}
	if err := scanner.Err(); err != nil {
		return apierr.Wrap(apierr.StorageUnavailable, "failed to scan agents.jsonl during recovery", err)
	}

	return s.index.Update(func(txn *badger.Txn) error {
		for id, rec := range live {
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte("agent:"+id), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecoveredAgents returns every agent record currently in the index,
// rebuilt at Open time (or live, if nothing has changed since).
func (s *Store) RecoveredAgents() ([]event.AgentRecord, error) {
	var out []event.AgentRecord
	err := s.index.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("agent:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var rec event.AgentRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.StorageUnavailable, "failed to read recovered agents", err)
	}
	return out, nil
}
