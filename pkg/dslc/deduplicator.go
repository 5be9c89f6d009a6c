package dslc

import (
	"sort"
	"strings"
	"sync"

	"github.com/clustercore/lifecyclectl/pkg/client"
)

// ForceMergeRequestKey wraps a ForceMergeRequest for value equality over
// (indices, only_expunge_deletes, flush, max_num_segments, request_id).
// ParentTaskID and shard-result fields live only on the response and never
// factor into the key.
type ForceMergeRequestKey struct {
	indices            string // sorted, comma-joined
	onlyExpungeDeletes bool
	flush              bool
	maxNumSegments     int
	requestID          string
}

// NewForceMergeRequestKey builds the equality key for req.
func NewForceMergeRequestKey(req client.ForceMergeRequest) ForceMergeRequestKey {
	indices := append([]string(nil), req.Indices...)
	sort.Strings(indices)
	return ForceMergeRequestKey{
		indices:            strings.Join(indices, ","),
		onlyExpungeDeletes: req.OnlyExpungeDeletes,
		flush:              req.Flush,
		maxNumSegments:     req.MaxNumSegments,
		requestID:          req.RequestID,
	}
}

// waiter is one callback attached to an in-flight action.
type waiter struct {
	onComplete func(resp any, err error)
}

// ActionDeduplicator collapses identical concurrent outbound actions into a
// single in-flight call, fanning the eventual result out to every waiter
// that asked for it.
type ActionDeduplicator[K comparable] struct {
	mu      sync.Mutex
	inFlight map[K][]waiter
}

// NewActionDeduplicator creates an empty deduplicator for key type K.
func NewActionDeduplicator[K comparable]() *ActionDeduplicator[K] {
	return &ActionDeduplicator[K]{inFlight: make(map[K][]waiter)}
}

// Execute registers onComplete against key. If key has no in-flight action,
// action is invoked (asynchronously, by the caller) and this waiter becomes
// the first in line; otherwise onComplete is simply attached to the
// existing entry and action is never called.
func (d *ActionDeduplicator[K]) Execute(key K, action func(onDone func(resp any, err error)), onComplete func(resp any, err error)) {
	d.mu.Lock()
	existing, inFlight := d.inFlight[key]
	d.inFlight[key] = append(existing, waiter{onComplete: onComplete})
	d.mu.Unlock()

	if inFlight {
		return
	}

	action(func(resp any, err error) {
		d.mu.Lock()
		waiters := d.inFlight[key]
		delete(d.inFlight, key)
		d.mu.Unlock()

		for _, w := range waiters {
			w.onComplete(resp, err)
		}
	})
}

// Size reports the number of logical keys currently in flight.
func (d *ActionDeduplicator[K]) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}
