package dslc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/clustercore/lifecyclectl/pkg/events"
	"github.com/clustercore/lifecyclectl/pkg/log"
	"github.com/clustercore/lifecyclectl/pkg/metrics"
	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager is the subset of *manager.Manager that DSLC depends on, pulled
// out as an interface so Run can be driven in tests against a fake cluster
// state without a live Raft leader.
type Manager interface {
	IsLeader() bool
	PublishEvent(event *events.Event)
	RecordTombstone(indexName string, deletedAt time.Time) error
	DeleteIndex(streamName, indexName string) error
	UpdateIndexSettings(streamName, indexName string, settings types.IndexSettings) error
	StampForceMergeCompleted(streamName, indexName string, completedAt time.Time) error
}

// targetMergePolicy is the merge-policy settings every managed backing
// index is driven towards before it becomes eligible for force-merge.
var targetMergePolicy = types.IndexSettings{
	MergePolicyFloorSegment: 100 * 1024 * 1024, // 100MB
	MergePolicyMergeFactor:  16,
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// DSLC drives every managed data stream through rollover, merge-policy
// adjustment, force-merge, and retention-delete on each cluster-state
// change. It is invoked synchronously on the Manager's Raft-apply
// goroutine and never blocks: every outbound action goes through the
// async Client.
type DSLC struct {
	mgr    Manager
	client client.Client
	clock  Clock

	errors *ErrorStore
	dedup  *ActionDeduplicator[ForceMergeRequestKey]

	mu                   sync.Mutex
	lastRolloverForWrite map[string]string // stream name -> write index name last rolled over
	inFlight             map[string]bool   // "<phase>:<index>" -> dispatched and not since failed

	builder RolloverRequestBuilder
}

// New creates a DSLC bound to mgr and c. clock defaults to time.Now.
func New(mgr Manager, c client.Client, clock Clock) *DSLC {
	if clock == nil {
		clock = time.Now
	}
	return &DSLC{
		mgr:                  mgr,
		client:               c,
		clock:                clock,
		errors:               NewErrorStore(),
		dedup:                NewActionDeduplicator[ForceMergeRequestKey](),
		lastRolloverForWrite: make(map[string]string),
		inFlight:             make(map[string]bool),
	}
}

// Errors exposes the ErrorStore for inspection (status reporting, tests).
func (d *DSLC) Errors() *ErrorStore { return d.errors }

// Run evaluates snapshot and issues at most the actions needed to advance
// every managed stream one step. It is a no-op on a non-leader node.
func (d *DSLC) Run(snapshot *types.ClusterStateSnapshot) {
	if !d.mgr.IsLeader() {
		return
	}
	d.runSnapshot(snapshot)
}

// runSnapshot is Run's leader-independent decision logic: it fans out to
// every managed stream and dispatches whatever actions each needs. Split
// out from Run so tests can drive it directly against a fake Manager and
// Client.
func (d *DSLC) runSnapshot(snapshot *types.ClusterStateSnapshot) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DSLCRunDuration)

	managed := managedIndices(snapshot)
	d.errors.Reconcile(snapshot, managed)

	for _, ds := range snapshot.DataStreams {
		if ds.Lifecycle == nil {
			continue
		}
		d.runStream(ds, managed)
	}
}

// managedIndices returns the set of backing-index names eligible for DSLC
// management: their stream has a lifecycle and their own settings carry no
// foreign-lifecycle-policy marker.
func managedIndices(snapshot *types.ClusterStateSnapshot) map[string]bool {
	out := make(map[string]bool)
	for _, ds := range snapshot.DataStreams {
		if ds.Lifecycle == nil {
			continue
		}
		for _, idx := range ds.Indices {
			if idx.Settings.ForeignLifecyclePolicy == "" {
				out[idx.Name] = true
			}
		}
	}
	return out
}

func (d *DSLC) runStream(ds *types.DataStream, managed map[string]bool) {
	write := ds.WriteIndex()
	if write == nil {
		return
	}

	if managed[write.Name] {
		d.maybeRollover(ds, write)
	}

	for _, idx := range ds.Indices {
		if idx == write {
			continue
		}
		if !managed[idx.Name] {
			continue
		}
		d.runBackingIndex(ds, idx)
	}
}

// maybeRollover issues at most one rollover per write index generation: if
// the current write index was already rolled over by this node, a repeat
// Run on the same snapshot issues nothing. A failed rollover is recorded in
// the ErrorStore against the write index and clears that mark, so the next
// Run issues it again.
func (d *DSLC) maybeRollover(ds *types.DataStream, write *types.BackingIndex) {
	d.mu.Lock()
	if d.lastRolloverForWrite[ds.Name] == write.Name {
		d.mu.Unlock()
		return
	}
	d.lastRolloverForWrite[ds.Name] = write.Name
	d.mu.Unlock()

	newIndexName := nextIndexName(write.Name)
	req := d.builder.Build(ds, newIndexName)

	dslcLog := log.WithComponent("dslc")
	dslcLog.Info().Str("data_stream", ds.Name).Str("new_index", newIndexName).Msg("issuing rollover")

	d.client.Execute(context.Background(), client.ActionRollover, req, func(resp any, err error) {
		if err != nil {
			d.mu.Lock()
			if d.lastRolloverForWrite[ds.Name] == write.Name {
				delete(d.lastRolloverForWrite, ds.Name)
			}
			d.mu.Unlock()
			d.errors.Record(write.Name, err)
			dslcLog.Warn().Str("data_stream", ds.Name).Err(err).Msg("rollover failed")
			metrics.DSLCErrorsTotal.WithLabelValues("rollover").Inc()
			return
		}
		d.errors.Clear(write.Name)
		metrics.RolloverTotal.Inc()
		d.mgr.PublishEvent(&events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventRolloverIssued,
			Timestamp: d.clock(),
			Message:   fmt.Sprintf("rolled over %s to %s", ds.Name, newIndexName),
			Metadata:  map[string]string{"data_stream": ds.Name, "new_index": newIndexName},
		})
	})
}

// runBackingIndex advances idx exactly one phase: delete dominates settings
// dominates force-merge.
func (d *DSLC) runBackingIndex(ds *types.DataStream, idx *types.BackingIndex) {
	if ds.Lifecycle.RetentionSet && idx.Age(d.clock()) >= ds.Lifecycle.DataRetention {
		d.deleteIndex(ds, idx)
		return
	}

	if !settingsMatch(idx.Settings, targetMergePolicy) {
		d.updateSettings(ds, idx)
		return
	}

	if _, stamped := forceMergeCompletedAt(idx); !stamped {
		d.forceMerge(ds, idx)
	}
}

// markInFlight records that phase has been dispatched for indexName,
// returning false if it already was — in which case the caller must skip,
// since a repeat Run before the prior dispatch's result has propagated
// into a new snapshot must not redispatch the same action. The mark is
// cleared only on failure, so a retry is attempted on the next run.
func (d *DSLC) markInFlight(phase, indexName string) bool {
	key := phase + ":" + indexName
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight[key] {
		return false
	}
	d.inFlight[key] = true
	return true
}

func (d *DSLC) clearInFlight(phase, indexName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, phase+":"+indexName)
}

func settingsMatch(have, want types.IndexSettings) bool {
	return have.MergePolicyFloorSegment == want.MergePolicyFloorSegment &&
		have.MergePolicyMergeFactor == want.MergePolicyMergeFactor
}

func (d *DSLC) deleteIndex(ds *types.DataStream, idx *types.BackingIndex) {
	if !d.markInFlight("delete", idx.Name) {
		return
	}

	dslcLog := log.WithComponent("dslc")
	req := client.DeleteIndexRequest{StreamName: ds.Name, IndexName: idx.Name}

	d.client.Execute(context.Background(), client.ActionDeleteIndex, req, func(resp any, err error) {
		if err != nil {
			d.clearInFlight("delete", idx.Name)
			d.errors.Record(idx.Name, err)
			metrics.DSLCErrorsTotal.WithLabelValues("delete_index").Inc()
			dslcLog.Warn().Str("index", idx.Name).Err(err).Msg("delete failed")
			return
		}
		d.errors.Clear(idx.Name)
		metrics.IndexDeletedTotal.Inc()
		if rerr := d.mgr.RecordTombstone(idx.Name, d.clock()); rerr != nil {
			dslcLog.Error().Str("index", idx.Name).Err(rerr).Msg("failed to record tombstone")
		}
		if derr := d.mgr.DeleteIndex(ds.Name, idx.Name); derr != nil {
			dslcLog.Error().Str("index", idx.Name).Err(derr).Msg("failed to remove index from stream")
		}
	})
}

func (d *DSLC) updateSettings(ds *types.DataStream, idx *types.BackingIndex) {
	if !d.markInFlight("settings", idx.Name) {
		return
	}

	dslcLog := log.WithComponent("dslc")
	req := client.UpdateSettingsRequest{StreamName: ds.Name, IndexName: idx.Name, Settings: targetMergePolicy}

	d.client.Execute(context.Background(), client.ActionUpdateSettings, req, func(resp any, err error) {
		if err != nil {
			d.clearInFlight("settings", idx.Name)
			d.errors.Record(idx.Name, err)
			metrics.DSLCErrorsTotal.WithLabelValues("update_settings").Inc()
			dslcLog.Warn().Str("index", idx.Name).Err(err).Msg("settings update failed")
			return
		}
		d.errors.Clear(idx.Name)
		metrics.SettingsUpdateTotal.Inc()
		if uerr := d.mgr.UpdateIndexSettings(ds.Name, idx.Name, targetMergePolicy); uerr != nil {
			dslcLog.Error().Str("index", idx.Name).Err(uerr).Msg("failed to persist settings update")
		}
	})
}

func (d *DSLC) forceMerge(ds *types.DataStream, idx *types.BackingIndex) {
	dslcLog := log.WithComponent("dslc")
	req := client.ForceMergeRequest{
		Indices:        []string{idx.Name},
		MaxNumSegments: 1,
		RequestID:      forceMergeRequestID(ds.Name, idx.Name),
	}
	key := NewForceMergeRequestKey(req)

	metrics.DeduplicatorInFlight.Set(float64(d.dedup.Size() + 1))

	d.dedup.Execute(key, func(onDone func(resp any, err error)) {
		d.client.Execute(context.Background(), client.ActionForceMerge, req, onDone)
	}, func(resp any, err error) {
		metrics.DeduplicatorInFlight.Set(float64(d.dedup.Size()))

		if err != nil {
			d.errors.Record(idx.Name, err)
			metrics.DSLCErrorsTotal.WithLabelValues("force_merge").Inc()
			dslcLog.Warn().Str("index", idx.Name).Err(err).Msg("force-merge failed")
			return
		}

		var fmResp client.ForceMergeResponse
		raw, _ := resp.(json.RawMessage)
		if uerr := json.Unmarshal(raw, &fmResp); uerr != nil || !forceMergeSucceeded(fmResp) {
			err := fmt.Errorf("force-merge did not complete cleanly")
			d.errors.Record(idx.Name, err)
			metrics.DSLCErrorsTotal.WithLabelValues("force_merge").Inc()
			dslcLog.Warn().Str("index", idx.Name).Msg("force-merge reported partial completion")
			return
		}

		d.errors.Clear(idx.Name)
		task := &UpdateForceMergeCompleteTask{
			StreamName:  ds.Name,
			IndexName:   idx.Name,
			CompletedAt: d.clock(),
			Listener:    completionListener{dslcLog: dslcLog},
		}
		task.Execute(d.mgr)
		metrics.ForceMergeTotal.Inc()
	})
}

// forceMergeSucceeded applies the completion criterion: total and
// successful shard counts must match and there must be no reported shard
// failures. A response with failed_shards > 0 is always a failure, even if
// successful_shards happens to equal total_shards.
func forceMergeSucceeded(resp client.ForceMergeResponse) bool {
	return resp.FailedShards == 0 && resp.TotalShards == resp.SuccessfulShards
}

// completionListener logs the Raft-apply outcome of stamping a force-merge
// completion; it is the ForceMergeCompleteListener driven by
// UpdateForceMergeCompleteTask.Execute.
type completionListener struct {
	dslcLog zerolog.Logger
}

func (l completionListener) OnResponse(streamName, indexName string) {
	l.dslcLog.Debug().Str("index", indexName).Msg("force-merge completion stamped")
}

func (l completionListener) OnFailure(streamName, indexName string, err error) {
	l.dslcLog.Error().Str("index", indexName).Err(err).Msg("failed to stamp force-merge completion")
}

// forceMergeRequestID derives a stable request ID for the force-merge of
// one backing index: runs triggered concurrently for the same index before
// the first completes must produce the same ID, or the ActionDeduplicator
// can never collapse them.
func forceMergeRequestID(streamName, indexName string) string {
	return streamName + "/" + indexName + "/force-merge"
}

// nextIndexName produces the next generation name for a backing index,
// incrementing the trailing zero-padded sequence number an index name
// normally carries (e.g. "logs-app-default-000003" ->
// "logs-app-default-000004"). Names without a recognized suffix are given
// a fresh one.
func nextIndexName(current string) string {
	i := len(current)
	for i > 0 && current[i-1] >= '0' && current[i-1] <= '9' {
		i--
	}
	if i == len(current) || i == 0 || current[i-1] != '-' {
		return fmt.Sprintf("%s-000001", current)
	}
	digits := current[i:]
	n, err := strconv.Atoi(digits)
	if err != nil {
		return fmt.Sprintf("%s-000001", current)
	}
	return fmt.Sprintf("%s%0*d", current[:i], len(digits), n+1)
}
