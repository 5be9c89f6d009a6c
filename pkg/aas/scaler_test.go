package aas

import (
	"testing"

	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestPerDeploymentScalerClampsToMax(t *testing.T) {
	s := NewPerDeploymentScaler("dep-1", 1, 1, 4)

	// Large load pushes the raw estimate well above max.
	recent := types.Stats{SuccessCount: 100, PendingCount: 0, AvgInferenceTime: 1.0}
	s.Process(recent, 10, 1)

	newCount, changed := s.Scale()
	assert.True(t, changed)
	assert.Equal(t, 4, newCount)
}

func TestPerDeploymentScalerClampsToMin(t *testing.T) {
	s := NewPerDeploymentScaler("dep-1", 4, 1, 4)

	recent := types.Stats{SuccessCount: 0, PendingCount: 0, AvgInferenceTime: 0}
	s.Process(recent, 10, 4)

	newCount, changed := s.Scale()
	assert.True(t, changed)
	assert.Equal(t, 1, newCount)
}

func TestPerDeploymentScalerNoChangeWithinDeadband(t *testing.T) {
	s := NewPerDeploymentScaler("dep-1", 2, 1, 10)

	// Tuned so the raw estimate lands within one allocation of current.
	recent := types.Stats{SuccessCount: 16, PendingCount: 0, AvgInferenceTime: 1.0}
	s.Process(recent, 10, 2)

	_, changed := s.Scale()
	assert.False(t, changed)
}

func TestPerDeploymentScalerNoLoadNoChange(t *testing.T) {
	s := NewPerDeploymentScaler("dep-1", 2, 1, 10)

	s.Process(types.Stats{}, 10, 2)

	_, changed := s.Scale()
	assert.False(t, changed)
}

func TestPerDeploymentScalerUnboundedWhenNoLimits(t *testing.T) {
	s := NewPerDeploymentScaler("dep-1", 1, 0, 0)

	recent := types.Stats{SuccessCount: 100, PendingCount: 0, AvgInferenceTime: 1.0}
	s.Process(recent, 10, 1)

	newCount, changed := s.Scale()
	assert.True(t, changed)
	assert.Equal(t, 13, newCount) // ceil(100*1.0/10/0.8) = ceil(12.5) = 13
}
