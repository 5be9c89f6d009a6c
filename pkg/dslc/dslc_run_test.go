package dslc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/clustercore/lifecyclectl/pkg/events"
	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/stretchr/testify/assert"
)

// fakeCall records one dispatched action for assertions.
type fakeCall struct {
	action client.ActionType
	req    any
}

// fakeClient is a synchronous client.Client double: Execute invokes onDone
// inline rather than on its own goroutine, so tests can assert on DSLC's
// state immediately after Run returns.
type fakeClient struct {
	mu      sync.Mutex
	calls   []fakeCall
	respond func(action client.ActionType, req any) (any, error)
}

func (f *fakeClient) Execute(ctx context.Context, action client.ActionType, req any, onDone func(resp any, err error)) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{action: action, req: req})
	f.mu.Unlock()

	var resp any
	var err error
	if f.respond != nil {
		resp, err = f.respond(action, req)
	}
	onDone(resp, err)
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) callsByAction(action client.ActionType) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.action == action {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeClient) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// rawForceMergeResponse json-encodes resp as the json.RawMessage DSLC's
// Execute callbacks expect in place of a pre-decoded struct.
func rawForceMergeResponse(resp client.ForceMergeResponse) json.RawMessage {
	raw, _ := json.Marshal(resp)
	return raw
}

// fakeManager is a Manager double recording every write DSLC asks it to
// commit locally, with a settable leader flag.
type fakeManager struct {
	mu sync.Mutex

	leader bool

	events              []*events.Event
	tombstoned          []string
	deletedFromStream   []string
	settingsUpdated     []string
	forceMergeCompleted []string
}

func (f *fakeManager) IsLeader() bool { return f.leader }

func (f *fakeManager) PublishEvent(event *events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeManager) RecordTombstone(indexName string, deletedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tombstoned = append(f.tombstoned, indexName)
	return nil
}

func (f *fakeManager) DeleteIndex(streamName, indexName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedFromStream = append(f.deletedFromStream, indexName)
	return nil
}

func (f *fakeManager) UpdateIndexSettings(streamName, indexName string, settings types.IndexSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settingsUpdated = append(f.settingsUpdated, indexName)
	return nil
}

func (f *fakeManager) StampForceMergeCompleted(streamName, indexName string, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceMergeCompleted = append(f.forceMergeCompleted, indexName)
	return nil
}

func backingIndex(name string, age time.Duration, now time.Time) *types.BackingIndex {
	return &types.BackingIndex{Name: name, CreatedAt: now.Add(-age)}
}

// TestRunS1RolloverAndRetentionDelete covers S1: a 3-index stream with
// retention=0 rolls its write index over and deletes both non-write
// indices on the first Run; a second Run on the same unchanged snapshot
// issues nothing.
func TestRunS1RolloverAndRetentionDelete(t *testing.T) {
	now := time.Now()
	ds := &types.DataStream{
		Name: "ds",
		Indices: []*types.BackingIndex{
			backingIndex("i1", time.Hour, now),
			backingIndex("i2", time.Hour, now),
			backingIndex("i3", time.Hour, now),
		},
		Lifecycle: &types.LifecycleSpec{RetentionSet: true, DataRetention: 0},
	}
	snapshot := &types.ClusterStateSnapshot{DataStreams: []*types.DataStream{ds}, Graveyard: types.TombstoneGraveyard{}}

	fc := &fakeClient{}
	fm := &fakeManager{leader: true}
	d := New(fm, fc, func() time.Time { return now })

	d.Run(snapshot)

	assert.Equal(t, 3, fc.totalCalls())
	assert.Len(t, fc.callsByAction(client.ActionRollover), 1)
	assert.Len(t, fc.callsByAction(client.ActionDeleteIndex), 2)

	fc.reset()
	d.Run(snapshot)
	assert.Equal(t, 0, fc.totalCalls())
}

// TestRunS2SettingsThenForceMerge covers S2: young indices under a long
// retention first get a merge-policy settings update, then, once a
// follow-up snapshot shows the settings applied, get force-merged, and
// finally a snapshot with the completion stamp issues nothing further.
func TestRunS2SettingsThenForceMerge(t *testing.T) {
	now := time.Now()
	lifecycle := &types.LifecycleSpec{RetentionSet: true, DataRetention: 700 * 24 * time.Hour}

	i1 := backingIndex("i1", 3*time.Second, now)
	i2 := backingIndex("i2", 3*time.Second, now)
	write := backingIndex("i3", 3*time.Second, now)
	ds := &types.DataStream{Name: "ds", Indices: []*types.BackingIndex{i1, i2, write}, Lifecycle: lifecycle}
	snapshot := &types.ClusterStateSnapshot{DataStreams: []*types.DataStream{ds}, Graveyard: types.TombstoneGraveyard{}}

	fc := &fakeClient{}
	fm := &fakeManager{leader: true}
	d := New(fm, fc, func() time.Time { return now })

	d.Run(snapshot)
	assert.Len(t, fc.callsByAction(client.ActionRollover), 1)
	assert.Len(t, fc.callsByAction(client.ActionUpdateSettings), 2)
	assert.Len(t, fc.callsByAction(client.ActionForceMerge), 0)

	// Second snapshot: settings now applied on i1/i2.
	i1.Settings = targetMergePolicy
	i2.Settings = targetMergePolicy
	fc.reset()
	fc.respond = func(action client.ActionType, req any) (any, error) {
		if action == client.ActionForceMerge {
			return rawForceMergeResponse(client.ForceMergeResponse{TotalShards: 1, SuccessfulShards: 1, FailedShards: 0}), nil
		}
		return nil, nil
	}

	d.Run(snapshot)
	assert.Len(t, fc.callsByAction(client.ActionRollover), 0)
	assert.Len(t, fc.callsByAction(client.ActionUpdateSettings), 0)
	assert.Len(t, fc.callsByAction(client.ActionForceMerge), 2)
	assert.ElementsMatch(t, []string{"i1", "i2"}, fm.forceMergeCompleted)

	// Third snapshot: completion stamps now present.
	i1.CustomMeta = map[string]map[string]string{
		types.MetaNamespaceLifecycle: {types.MetaKeyForceMergeCompletedTimestamp: "1"},
	}
	i2.CustomMeta = map[string]map[string]string{
		types.MetaNamespaceLifecycle: {types.MetaKeyForceMergeCompletedTimestamp: "1"},
	}
	fc.reset()

	d.Run(snapshot)
	assert.Equal(t, 0, fc.totalCalls())
}

// TestRunS3ForceMergeFailureThenSuccess covers S3: a force-merge that keeps
// reporting shard failures never stamps completion and is retried every
// run; once it reports a clean result, completion is stamped and no
// further attempts are made.
func TestRunS3ForceMergeFailureThenSuccess(t *testing.T) {
	now := time.Now()
	lifecycle := &types.LifecycleSpec{RetentionSet: true, DataRetention: 700 * 24 * time.Hour}

	i1 := backingIndex("i1", time.Hour, now)
	i1.Settings = targetMergePolicy
	i2 := backingIndex("i2", time.Hour, now)
	i2.Settings = targetMergePolicy
	write := backingIndex("i3", time.Hour, now)
	ds := &types.DataStream{Name: "ds", Indices: []*types.BackingIndex{i1, i2, write}, Lifecycle: lifecycle}
	snapshot := &types.ClusterStateSnapshot{DataStreams: []*types.DataStream{ds}, Graveyard: types.TombstoneGraveyard{}}

	fm := &fakeManager{leader: true}
	fc := &fakeClient{
		respond: func(action client.ActionType, req any) (any, error) {
			if action == client.ActionForceMerge {
				return rawForceMergeResponse(client.ForceMergeResponse{TotalShards: 1, SuccessfulShards: 0, FailedShards: 1}), nil
			}
			return nil, nil
		},
	}
	d := New(fm, fc, func() time.Time { return now })

	// First run also issues the one rollover; runs 2-3 do not (write
	// index unchanged, memoized).
	d.Run(snapshot)
	run1 := len(fc.callsByAction(client.ActionForceMerge))
	assert.Equal(t, 2, run1)
	assert.Len(t, fc.callsByAction(client.ActionRollover), 1)
	assert.Empty(t, fm.forceMergeCompleted)

	fc.reset()
	d.Run(snapshot)
	assert.Len(t, fc.callsByAction(client.ActionForceMerge), 2)
	assert.Len(t, fc.callsByAction(client.ActionRollover), 0)
	assert.Empty(t, fm.forceMergeCompleted)

	// Third run: force-merge now succeeds.
	fc.respond = func(action client.ActionType, req any) (any, error) {
		if action == client.ActionForceMerge {
			return rawForceMergeResponse(client.ForceMergeResponse{TotalShards: 1, SuccessfulShards: 1, FailedShards: 0}), nil
		}
		return nil, nil
	}
	fc.reset()
	d.Run(snapshot)
	assert.Len(t, fc.callsByAction(client.ActionForceMerge), 2)
	assert.ElementsMatch(t, []string{"i1", "i2"}, fm.forceMergeCompleted)
}

// TestRunS4ForeignLifecycleIsSkipped covers S4: an index carrying a
// foreign-lifecycle-policy marker is excluded from management entirely,
// even though its stream otherwise has a lifecycle spec.
func TestRunS4ForeignLifecycleIsSkipped(t *testing.T) {
	now := time.Now()
	foreign := backingIndex("i1", 10000*time.Hour, now)
	foreign.Settings.ForeignLifecyclePolicy = "ilm-policy"
	write := backingIndex("i2", time.Hour, now)

	ds := &types.DataStream{
		Name:      "ds",
		Indices:   []*types.BackingIndex{foreign, write},
		Lifecycle: &types.LifecycleSpec{RetentionSet: true, DataRetention: 0},
	}
	snapshot := &types.ClusterStateSnapshot{DataStreams: []*types.DataStream{ds}, Graveyard: types.TombstoneGraveyard{}}

	fc := &fakeClient{}
	fm := &fakeManager{leader: true}
	d := New(fm, fc, func() time.Time { return now })

	d.Run(snapshot)

	// Only the write index's rollover fires; the foreign-managed sibling
	// is never touched.
	assert.Equal(t, 1, fc.totalCalls())
	assert.Len(t, fc.callsByAction(client.ActionRollover), 1)
}

// TestRunNonLeaderIsNoOp covers the leader precondition: Run issues nothing
// and touches no state on a non-leader node.
func TestRunNonLeaderIsNoOp(t *testing.T) {
	now := time.Now()
	ds := &types.DataStream{
		Name:      "ds",
		Indices:   []*types.BackingIndex{backingIndex("i1", time.Hour, now)},
		Lifecycle: &types.LifecycleSpec{RetentionSet: true, DataRetention: 0},
	}
	snapshot := &types.ClusterStateSnapshot{DataStreams: []*types.DataStream{ds}, Graveyard: types.TombstoneGraveyard{}}

	fc := &fakeClient{}
	fm := &fakeManager{leader: false}
	d := New(fm, fc, func() time.Time { return now })

	d.Run(snapshot)

	assert.Equal(t, 0, fc.totalCalls())
	assert.Empty(t, fm.deletedFromStream)
}
