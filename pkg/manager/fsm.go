package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/storage"
	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/hashicorp/raft"
)

// ClusterFSM implements the Raft finite state machine for the cluster's
// data-stream and deployment metadata. It applies committed log entries to
// the local store and, after every successful apply, hands a fresh
// ClusterStateSnapshot to the registered listener — this is the one place
// DSLC.Run is invoked, synchronously, on the goroutine Raft uses to apply
// log entries.
type ClusterFSM struct {
	mu        sync.RWMutex
	store     storage.Store
	onApplied ClusterChangeFunc
}

// ClusterChangeFunc is invoked with the post-apply cluster snapshot.
type ClusterChangeFunc func(*types.ClusterStateSnapshot)

// NewClusterFSM creates a new FSM instance backed by store.
func NewClusterFSM(store storage.Store) *ClusterFSM {
	return &ClusterFSM{store: store}
}

// SetOnApplied registers fn to run after every successfully applied command.
func (f *ClusterFSM) SetOnApplied(fn ClusterChangeFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onApplied = fn
}

// Command represents one state-change operation in the Raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	OpCreateDataStream         = "create_data_stream"
	OpRolloverDataStream       = "rollover_data_stream"
	OpUpdateIndexSettings      = "update_index_settings"
	OpDeleteIndex              = "delete_index"
	OpStampForceMergeCompleted = "stamp_force_merge_completed"
	OpUpsertDeployment         = "upsert_deployment"
	OpDeleteDeployment         = "delete_deployment"
	OpRecordTombstone          = "record_tombstone"
)

// RolloverPayload is the Data of an OpRolloverDataStream command: stamp
// Condition onto the current write index's rollover info, then append
// NewIndex to the named stream's Indices, making it the new write index.
type RolloverPayload struct {
	StreamName string                  `json:"stream_name"`
	NewIndex   *types.BackingIndex     `json:"new_index"`
	Condition  types.RolloverCondition `json:"condition"`
}

// UpdateIndexSettingsPayload is the Data of an OpUpdateIndexSettings command.
type UpdateIndexSettingsPayload struct {
	StreamName string             `json:"stream_name"`
	IndexName  string             `json:"index_name"`
	Settings   types.IndexSettings `json:"settings"`
}

// DeleteIndexPayload is the Data of an OpDeleteIndex command.
type DeleteIndexPayload struct {
	StreamName string `json:"stream_name"`
	IndexName  string `json:"index_name"`
}

// StampForceMergeCompletedPayload is the Data of an
// OpStampForceMergeCompleted command.
type StampForceMergeCompletedPayload struct {
	StreamName  string    `json:"stream_name"`
	IndexName   string    `json:"index_name"`
	CompletedAt time.Time `json:"completed_at"`
}

// DeleteDeploymentPayload is the Data of an OpDeleteDeployment command.
type DeleteDeploymentPayload struct {
	DeploymentID string `json:"deployment_id"`
}

// RecordTombstonePayload is the Data of an OpRecordTombstone command.
type RecordTombstonePayload struct {
	IndexName string    `json:"index_name"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Apply applies one committed Raft log entry to the FSM.
func (f *ClusterFSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	err := f.apply(cmd)
	onApplied := f.onApplied
	f.mu.Unlock()

	if err != nil {
		return err
	}

	if onApplied != nil {
		snapshot, snapErr := snapshotFromStore(f.store)
		if snapErr == nil {
			onApplied(snapshot)
		}
	}

	return nil
}

func (f *ClusterFSM) apply(cmd Command) error {
	switch cmd.Op {
	case OpCreateDataStream:
		var ds types.DataStream
		if err := json.Unmarshal(cmd.Data, &ds); err != nil {
			return err
		}
		return f.store.CreateDataStream(&ds)

	case OpRolloverDataStream:
		var p RolloverPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		ds, err := f.store.GetDataStream(p.StreamName)
		if err != nil {
			return err
		}
		if write := ds.WriteIndex(); write != nil {
			write.RolloverInfo = append(write.RolloverInfo, p.Condition)
		}
		ds.Indices = append(ds.Indices, p.NewIndex)
		return f.store.UpdateDataStream(ds)

	case OpUpdateIndexSettings:
		var p UpdateIndexSettingsPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		ds, err := f.store.GetDataStream(p.StreamName)
		if err != nil {
			return err
		}
		for _, idx := range ds.Indices {
			if idx.Name == p.IndexName {
				idx.Settings = p.Settings
				return f.store.UpdateDataStream(ds)
			}
		}
		return fmt.Errorf("index not found: %s", p.IndexName)

	case OpDeleteIndex:
		var p DeleteIndexPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		ds, err := f.store.GetDataStream(p.StreamName)
		if err != nil {
			return err
		}
		kept := ds.Indices[:0]
		for _, idx := range ds.Indices {
			if idx.Name != p.IndexName {
				kept = append(kept, idx)
			}
		}
		ds.Indices = kept
		return f.store.UpdateDataStream(ds)

	case OpStampForceMergeCompleted:
		var p StampForceMergeCompletedPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		ds, err := f.store.GetDataStream(p.StreamName)
		if err != nil {
			return err
		}
		for _, idx := range ds.Indices {
			if idx.Name == p.IndexName {
				if idx.CustomMeta == nil {
					idx.CustomMeta = make(map[string]map[string]string)
				}
				ns, ok := idx.CustomMeta[types.MetaNamespaceLifecycle]
				if !ok {
					ns = make(map[string]string)
					idx.CustomMeta[types.MetaNamespaceLifecycle] = ns
				}
				ns[types.MetaKeyForceMergeCompletedTimestamp] = fmt.Sprintf("%d", p.CompletedAt.UnixMilli())
				return f.store.UpdateDataStream(ds)
			}
		}
		return fmt.Errorf("index not found: %s", p.IndexName)

	case OpUpsertDeployment:
		var d types.DeploymentAssignment
		if err := json.Unmarshal(cmd.Data, &d); err != nil {
			return err
		}
		return f.store.UpsertDeployment(&d)

	case OpDeleteDeployment:
		var p DeleteDeploymentPayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.DeleteDeployment(p.DeploymentID)

	case OpRecordTombstone:
		var p RecordTombstonePayload
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.RecordTombstone(p.IndexName, p.DeletedAt)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// snapshotFromStore copies the current store contents into an immutable
// ClusterStateSnapshot for DSLC and AAS to consume.
func snapshotFromStore(store storage.Store) (*types.ClusterStateSnapshot, error) {
	streams, err := store.ListDataStreams()
	if err != nil {
		return nil, err
	}
	deployments, err := store.ListDeployments()
	if err != nil {
		return nil, err
	}
	graveyard, err := store.Graveyard()
	if err != nil {
		return nil, err
	}
	return &types.ClusterStateSnapshot{
		DataStreams: streams,
		Deployments: deployments,
		Graveyard:   graveyard,
	}, nil
}

// Snapshot creates a point-in-time snapshot of the FSM for Raft log
// compaction.
func (f *ClusterFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	streams, err := f.store.ListDataStreams()
	if err != nil {
		return nil, fmt.Errorf("failed to list data streams: %w", err)
	}

	deployments, err := f.store.ListDeployments()
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	graveyard, err := f.store.Graveyard()
	if err != nil {
		return nil, fmt.Errorf("failed to list graveyard: %w", err)
	}

	return &clusterSnapshot{
		DataStreams: streams,
		Deployments: deployments,
		Graveyard:   graveyard,
	}, nil
}

// Restore restores the FSM from a previously persisted snapshot.
func (f *ClusterFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot clusterSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, ds := range snapshot.DataStreams {
		if err := f.store.CreateDataStream(ds); err != nil {
			return fmt.Errorf("failed to restore data stream: %w", err)
		}
	}

	for _, d := range snapshot.Deployments {
		if err := f.store.UpsertDeployment(d); err != nil {
			return fmt.Errorf("failed to restore deployment: %w", err)
		}
	}

	for name, deletedAt := range snapshot.Graveyard {
		if err := f.store.RecordTombstone(name, deletedAt); err != nil {
			return fmt.Errorf("failed to restore tombstone: %w", err)
		}
	}

	return nil
}

// clusterSnapshot is the serialized form of a point-in-time FSM snapshot.
type clusterSnapshot struct {
	DataStreams []*types.DataStream
	Deployments []*types.DeploymentAssignment
	Graveyard   types.TombstoneGraveyard
}

// Persist writes the snapshot to the given SnapshotSink.
func (s *clusterSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot's resources.
func (s *clusterSnapshot) Release() {}
