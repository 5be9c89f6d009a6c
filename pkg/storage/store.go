package storage

import (
	"time"

	"github.com/clustercore/lifecyclectl/pkg/types"
)

// Store defines the interface for cluster state storage. It is the local,
// BoltDB-backed read model every manager node keeps in sync with the Raft
// log: cluster-state writes only ever arrive through FSM.Apply (SaveCA is
// the one direct write), but reads (ListDataStreams,
// Snapshot, ...) go straight to the store without touching Raft.
type Store interface {
	// Data streams
	CreateDataStream(ds *types.DataStream) error
	GetDataStream(name string) (*types.DataStream, error)
	ListDataStreams() ([]*types.DataStream, error)
	UpdateDataStream(ds *types.DataStream) error
	DeleteDataStream(name string) error

	// Deployments
	UpsertDeployment(d *types.DeploymentAssignment) error
	GetDeployment(id string) (*types.DeploymentAssignment, error)
	ListDeployments() ([]*types.DeploymentAssignment, error)
	DeleteDeployment(id string) error

	// Tombstone graveyard: index names recently deleted, with deletion time
	RecordTombstone(indexName string, deletedAt time.Time) error
	Graveyard() (types.TombstoneGraveyard, error)
	PruneGraveyard(olderThan time.Time) error

	// Cluster certificate authority: the encrypted root CA, set once by
	// whichever node first bootstraps the cluster.
	SaveCA(data []byte) error
	GetCA() ([]byte, error)

	Close() error
}
