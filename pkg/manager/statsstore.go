package manager

import (
	"sync"

	"github.com/clustercore/lifecyclectl/pkg/types"
)

// StatsStore holds the most recently reported inference stats for every
// (deployment, node) pair this process has heard about. It is local,
// per-node, and deliberately not replicated through Raft: inference stats
// are transient telemetry, not cluster metadata, matching the non-goal of
// persisting control-loop state beyond cluster metadata.
type StatsStore struct {
	mu    sync.RWMutex
	stats map[string]types.Stats // keyed "<deployment_id>/<node_id>"
}

// NewStatsStore creates an empty StatsStore.
func NewStatsStore() *StatsStore {
	return &StatsStore{stats: make(map[string]types.Stats)}
}

// Report records the latest stats snapshot for (deploymentID, nodeID),
// replacing whatever was recorded before.
func (s *StatsStore) Report(deploymentID, nodeID string, stats types.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[deploymentID+"/"+nodeID] = stats
}

// Query implements manager.StatsProvider: it returns every recorded
// (deployment, node) snapshot whose deployment ID is in deploymentIDs.
func (s *StatsStore) Query(deploymentIDs []string) map[string]types.Stats {
	wanted := make(map[string]bool, len(deploymentIDs))
	for _, id := range deploymentIDs {
		wanted[id] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]types.Stats)
	for key, stats := range s.stats {
		deploymentID := deploymentIDFromStatsKey(key)
		if wanted[deploymentID] {
			out[key] = stats
		}
	}
	return out
}

func deploymentIDFromStatsKey(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i]
		}
	}
	return key
}
