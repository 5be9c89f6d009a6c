package dslc

import (
	"errors"
	"testing"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestErrorStoreRecordAndGet(t *testing.T) {
	s := NewErrorStore()
	assert.Nil(t, s.Get("idx-1"))

	s.Record("idx-1", errors.New("boom"))
	entry := s.Get("idx-1")
	assert.NotNil(t, entry)
	assert.Equal(t, "boom", entry.Message)
	assert.Equal(t, 1, entry.Count)

	s.Record("idx-1", errors.New("boom again"))
	entry = s.Get("idx-1")
	assert.Equal(t, "boom again", entry.Message)
	assert.Equal(t, 2, entry.Count)
}

func TestErrorStoreClear(t *testing.T) {
	s := NewErrorStore()
	s.Record("idx-1", errors.New("boom"))
	s.Clear("idx-1")
	assert.Nil(t, s.Get("idx-1"))
}

func TestErrorStoreReconcileDropsTombstonedDeleted(t *testing.T) {
	s := NewErrorStore()
	s.Record("idx-gone", errors.New("boom"))

	snapshot := &types.ClusterStateSnapshot{
		DataStreams: nil,
		Graveyard:   types.TombstoneGraveyard{"idx-gone": time.Now()},
	}
	s.Reconcile(snapshot, map[string]bool{})

	assert.Nil(t, s.Get("idx-gone"))
}

func TestErrorStoreReconcileKeepsUntombstonedMissing(t *testing.T) {
	s := NewErrorStore()
	s.Record("idx-gone", errors.New("boom"))

	snapshot := &types.ClusterStateSnapshot{
		DataStreams: nil,
		Graveyard:   types.TombstoneGraveyard{},
	}
	s.Reconcile(snapshot, map[string]bool{})

	assert.NotNil(t, s.Get("idx-gone"))
}

func TestErrorStoreReconcileDropsUnmanaged(t *testing.T) {
	s := NewErrorStore()
	s.Record("idx-1", errors.New("boom"))

	ds := &types.DataStream{
		Name: "logs",
		Indices: []*types.BackingIndex{
			{Name: "idx-1"},
		},
	}
	snapshot := &types.ClusterStateSnapshot{
		DataStreams: []*types.DataStream{ds},
		Graveyard:   types.TombstoneGraveyard{},
	}

	// idx-1 exists in the cluster but is not in the managed set.
	s.Reconcile(snapshot, map[string]bool{})

	assert.Nil(t, s.Get("idx-1"))
}
