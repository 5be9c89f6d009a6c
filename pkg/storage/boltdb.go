package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketDataStreams = []byte("data_streams")
	bucketDeployments = []byte("deployments")
	bucketGraveyard   = []byte("graveyard")
	bucketSecurity    = []byte("security")
)

// caKey is the single key bucketSecurity holds the cluster CA blob under.
var caKey = []byte("ca")

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store rooted at dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "lifecyclectl.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketDataStreams, bucketDeployments, bucketGraveyard, bucketSecurity}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Data stream operations

func (s *BoltStore) CreateDataStream(ds *types.DataStream) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDataStreams)
		data, err := json.Marshal(ds)
		if err != nil {
			return err
		}
		return b.Put([]byte(ds.Name), data)
	})
}

func (s *BoltStore) GetDataStream(name string) (*types.DataStream, error) {
	var ds types.DataStream
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDataStreams)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("data stream not found: %s", name)
		}
		return json.Unmarshal(data, &ds)
	})
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func (s *BoltStore) ListDataStreams() ([]*types.DataStream, error) {
	var streams []*types.DataStream
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDataStreams)
		return b.ForEach(func(k, v []byte) error {
			var ds types.DataStream
			if err := json.Unmarshal(v, &ds); err != nil {
				return err
			}
			streams = append(streams, &ds)
			return nil
		})
	})
	return streams, err
}

func (s *BoltStore) UpdateDataStream(ds *types.DataStream) error {
	return s.CreateDataStream(ds) // upsert
}

func (s *BoltStore) DeleteDataStream(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDataStreams)
		return b.Delete([]byte(name))
	})
}

// Deployment operations

func (s *BoltStore) UpsertDeployment(d *types.DeploymentAssignment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return b.Put([]byte(d.DeploymentID), data)
	})
}

func (s *BoltStore) GetDeployment(id string) (*types.DeploymentAssignment, error) {
	var d types.DeploymentAssignment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("deployment not found: %s", id)
		}
		return json.Unmarshal(data, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BoltStore) ListDeployments() ([]*types.DeploymentAssignment, error) {
	var deployments []*types.DeploymentAssignment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.ForEach(func(k, v []byte) error {
			var d types.DeploymentAssignment
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			deployments = append(deployments, &d)
			return nil
		})
	})
	return deployments, err
}

func (s *BoltStore) DeleteDeployment(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.Delete([]byte(id))
	})
}

// Graveyard operations

func (s *BoltStore) RecordTombstone(indexName string, deletedAt time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGraveyard)
		data, err := deletedAt.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put([]byte(indexName), data)
	})
}

func (s *BoltStore) Graveyard() (types.TombstoneGraveyard, error) {
	graveyard := make(types.TombstoneGraveyard)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGraveyard)
		return b.ForEach(func(k, v []byte) error {
			var t time.Time
			if err := t.UnmarshalBinary(v); err != nil {
				return err
			}
			graveyard[string(k)] = t
			return nil
		})
	})
	return graveyard, err
}

func (s *BoltStore) PruneGraveyard(olderThan time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGraveyard)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var t time.Time
			if err := t.UnmarshalBinary(v); err != nil {
				return err
			}
			if t.Before(olderThan) {
				stale = append(stale, append([]byte{}, k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Security (certificate authority)

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSecurity)
		return b.Put(caKey, data)
	})
}

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSecurity)
		v := b.Get(caKey)
		if v == nil {
			return fmt.Errorf("CA not found")
		}
		data = append([]byte{}, v...)
		return nil
	})
	return data, err
}
