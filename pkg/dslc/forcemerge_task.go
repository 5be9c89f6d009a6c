package dslc

import (
	"strconv"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/types"
)

// ForceMergeCompleteListener is notified once the Raft apply backing an
// UpdateForceMergeCompleteTask resolves.
type ForceMergeCompleteListener interface {
	OnResponse(streamName, indexName string)
	OnFailure(streamName, indexName string, err error)
}

// UpdateForceMergeCompleteTask stamps a backing index's custom metadata
// with a force-merge completion timestamp once DSLC has confirmed a
// successful merge. The transform itself (the FSM applying the stamp
// command) never invokes the listener; Execute notifies it only once the
// Raft apply it submitted has returned, matching the manager's
// single-writer commit path.
type UpdateForceMergeCompleteTask struct {
	StreamName string
	IndexName  string
	CompletedAt time.Time
	Listener   ForceMergeCompleteListener
}

// Execute applies the stamp through mgr and notifies the listener based on
// the Raft-apply result.
func (t *UpdateForceMergeCompleteTask) Execute(mgr Manager) {
	if err := mgr.StampForceMergeCompleted(t.StreamName, t.IndexName, t.CompletedAt); err != nil {
		if t.Listener != nil {
			t.Listener.OnFailure(t.StreamName, t.IndexName, err)
		}
		return
	}
	if t.Listener != nil {
		t.Listener.OnResponse(t.StreamName, t.IndexName)
	}
}

// forceMergeCompletedAt extracts the stamped completion time from idx's
// custom metadata, if present.
func forceMergeCompletedAt(idx *types.BackingIndex) (time.Time, bool) {
	ns, ok := idx.CustomMeta[types.MetaNamespaceLifecycle]
	if !ok {
		return time.Time{}, false
	}
	raw, ok := ns[types.MetaKeyForceMergeCompletedTimestamp]
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
