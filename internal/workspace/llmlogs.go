package workspace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/openagents/network/internal/apierr"
)

// LLMLogQuery is the parameter set the llm-logs HTTP endpoint accepts
// (SPEC_FULL.md §6).
type LLMLogQuery struct {
	Limit    int
	Offset   int
	Model    string
	HasError *bool
	Search   string
}

// QueryLLMLogs scans an agent's LLM log newest-first, applying the
// query filters, and reports whether more matching entries exist beyond
// the returned page.
func (s *Store) QueryLLMLogs(agentID string, q LLMLogQuery) (entries []LLMLogEntry, totalMatched int, hasMore bool, err error) {
	path := filepath.Join(s.root, "logs", "llm", agentID+".jsonl")
	f, openErr := os.Open(path)
	if os.IsNotExist(openErr) {
		return nil, 0, false, nil
	}
	if openErr != nil {
		return nil, 0, false, apierr.Wrap(apierr.StorageUnavailable, "failed to open llm log for "+agentID, openErr)
	}
	defer f.Close()

	var all []LLMLogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e LLMLogEntry
		if jsonErr := json.Unmarshal(scanner.Bytes(), &e); jsonErr != nil {
			continue
		}
		all = append(all, e)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, 0, false, apierr.Wrap(apierr.StorageUnavailable, "failed to scan llm log for "+agentID, scanErr)
	}

	// newest-first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}

	matched := make([]LLMLogEntry, 0, len(all))
	for _, e := range all {
		if q.Model != "" && e.Model != q.Model {
			continue
		}
		if q.HasError != nil && (e.Error != "") != *q.HasError {
			continue
		}
		if q.Search != "" {
			needle := strings.ToLower(q.Search)
			if !strings.Contains(strings.ToLower(e.Prompt), needle) && !strings.Contains(strings.ToLower(e.Response), needle) {
				continue
			}
		}
		matched = append(matched, e)
	}

	totalMatched = len(matched)
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	start := q.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], totalMatched, end < len(matched), nil
}

// GetLLMLog returns a single full log entry by id, or ok=false.
func (s *Store) GetLLMLog(agentID, logID string) (LLMLogEntry, bool, error) {
	entries, _, _, err := s.QueryLLMLogs(agentID, LLMLogQuery{Limit: 1 << 30})
	if err != nil {
		return LLMLogEntry{}, false, err
	}
	for _, e := range entries {
		if e.LogID == logID {
			return e, true, nil
		}
	}
	return LLMLogEntry{}, false, nil
}
