package dslc

import (
	"sync"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/types"
)

// IndexError is the last recorded failure for one backing index.
type IndexError struct {
	Message    string
	Count      int
	LastSeen   time.Time
}

// ErrorStore remembers the most recent failure per backing index. Entries
// are cleared lazily: a successful action, an index that has left
// management, or an index confirmed deleted via Reconcile all drop the
// corresponding entry.
type ErrorStore struct {
	mu      sync.RWMutex
	entries map[string]*IndexError
}

// NewErrorStore creates an empty ErrorStore.
func NewErrorStore() *ErrorStore {
	return &ErrorStore{entries: make(map[string]*IndexError)}
}

// Record overwrites the entry for indexName with the latest error.
func (s *ErrorStore) Record(indexName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[indexName]
	if !ok {
		s.entries[indexName] = &IndexError{Message: err.Error(), Count: 1, LastSeen: time.Now()}
		return
	}
	existing.Message = err.Error()
	existing.Count++
	existing.LastSeen = time.Now()
}

// Clear removes any entry for indexName.
func (s *ErrorStore) Clear(indexName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, indexName)
}

// Get returns the entry for indexName, or nil if there is none.
func (s *ErrorStore) Get(indexName string) *IndexError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[indexName]
	if !ok {
		return nil
	}
	copyOf := *e
	return &copyOf
}

// Reconcile drops every stored entry whose index either (a) is absent from
// the cluster and recorded in the tombstone graveyard, or (b) still exists
// but is no longer in managedIndices. The write index of each managed
// stream is exempt from the graveyard check even if some of its siblings
// were deleted, since managedIndices already reflects current membership.
func (s *ErrorStore) Reconcile(snapshot *types.ClusterStateSnapshot, managedIndices map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existsInCluster := make(map[string]bool, len(managedIndices))
	for _, ds := range snapshot.DataStreams {
		for _, idx := range ds.Indices {
			existsInCluster[idx.Name] = true
		}
	}

	for name := range s.entries {
		if !existsInCluster[name] {
			if snapshot.Graveyard.Contains(name) {
				delete(s.entries, name)
			}
			continue
		}
		if !managedIndices[name] {
			delete(s.entries, name)
		}
	}
}
