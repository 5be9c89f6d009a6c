package manager

import (
	"testing"

	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestStatsStoreReportAndQuery(t *testing.T) {
	s := NewStatsStore()
	s.Report("dep-1", "node-a", types.Stats{SuccessCount: 10})
	s.Report("dep-1", "node-b", types.Stats{SuccessCount: 5})
	s.Report("dep-2", "node-a", types.Stats{SuccessCount: 99})

	got := s.Query([]string{"dep-1"})

	assert.Len(t, got, 2)
	assert.Equal(t, int64(10), got["dep-1/node-a"].SuccessCount)
	assert.Equal(t, int64(5), got["dep-1/node-b"].SuccessCount)
	assert.NotContains(t, got, "dep-2/node-a")
}

func TestStatsStoreReportOverwrites(t *testing.T) {
	s := NewStatsStore()
	s.Report("dep-1", "node-a", types.Stats{SuccessCount: 1})
	s.Report("dep-1", "node-a", types.Stats{SuccessCount: 2})

	got := s.Query([]string{"dep-1"})
	assert.Equal(t, int64(2), got["dep-1/node-a"].SuccessCount)
}

func TestStatsStoreQueryEmptyWhenNoMatch(t *testing.T) {
	s := NewStatsStore()
	s.Report("dep-1", "node-a", types.Stats{SuccessCount: 1})

	got := s.Query([]string{"dep-unknown"})
	assert.Empty(t, got)
}
