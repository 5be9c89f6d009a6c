package aas

import (
	"testing"

	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/stretchr/testify/assert"
)

func newTestAAS() *AAS {
	return &AAS{
		scalers:   make(map[string]*PerDeploymentScaler),
		lastStats: make(map[string]types.Stats),
	}
}

func TestReconcileScalersCreatesForEnabledDeployments(t *testing.T) {
	a := newTestAAS()
	snapshot := &types.ClusterStateSnapshot{
		Deployments: []*types.DeploymentAssignment{
			{
				DeploymentID:           "dep-1",
				TotalTargetAllocations: 3,
				AdaptiveAllocations:    &types.AdaptiveAllocationsConfig{Enabled: true, MinAllocations: 1, MaxAllocations: 8},
			},
			{
				DeploymentID:        "dep-2",
				AdaptiveAllocations: nil,
			},
		},
	}

	a.reconcileScalers(snapshot)

	assert.Len(t, a.scalers, 1)
	assert.Contains(t, a.scalers, "dep-1")
	assert.Equal(t, 3, a.scalers["dep-1"].CurrentAllocations())
}

func TestReconcileScalersRemovesDisabledDeployments(t *testing.T) {
	a := newTestAAS()
	a.scalers["dep-1"] = NewPerDeploymentScaler("dep-1", 2, 1, 4)

	snapshot := &types.ClusterStateSnapshot{
		Deployments: []*types.DeploymentAssignment{
			{DeploymentID: "dep-1", AdaptiveAllocations: &types.AdaptiveAllocationsConfig{Enabled: false}},
		},
	}

	a.reconcileScalers(snapshot)

	assert.Empty(t, a.scalers)
}

func TestReconcileScalersUpdatesBoundsOnExisting(t *testing.T) {
	a := newTestAAS()
	a.scalers["dep-1"] = NewPerDeploymentScaler("dep-1", 2, 1, 4)

	snapshot := &types.ClusterStateSnapshot{
		Deployments: []*types.DeploymentAssignment{
			{
				DeploymentID:           "dep-1",
				TotalTargetAllocations: 2,
				AdaptiveAllocations:    &types.AdaptiveAllocationsConfig{Enabled: true, MinAllocations: 2, MaxAllocations: 10},
			},
		},
	}

	a.reconcileScalers(snapshot)

	assert.Equal(t, 2, a.scalers["dep-1"].minAllocations)
	assert.Equal(t, 10, a.scalers["dep-1"].maxAllocations)
}

func TestDeploymentIDFromKey(t *testing.T) {
	assert.Equal(t, "dep-1", deploymentIDFromKey("dep-1/node-a"))
	assert.Equal(t, "dep-1", deploymentIDFromKey("dep-1"))
}

func TestProcessStatsNoDeltaProducesNoChange(t *testing.T) {
	a := newTestAAS()
	a.interval = DefaultInterval
	a.scalers["dep-1"] = NewPerDeploymentScaler("dep-1", 2, 1, 10)

	stats := map[string]types.Stats{
		"dep-1/node-a": {SuccessCount: 10, AvgInferenceTime: 0.1},
	}

	// First tick: no prior, recent == current.
	a.processStats(stats)
	// Second tick: identical counters, so recent == zero-delta.
	a.processStats(stats)

	_, changed := a.scalers["dep-1"].Scale()
	assert.False(t, changed)
}
