package dslc

import (
	"testing"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestMaxAgeForDefaultsWhenRetentionUnset(t *testing.T) {
	ds := &types.DataStream{Name: "logs", Lifecycle: &types.LifecycleSpec{}}
	assert.Equal(t, defaultMaxAge, maxAgeFor(ds))
}

func TestMaxAgeForDefaultsWhenRetentionLonger(t *testing.T) {
	ds := &types.DataStream{
		Name: "logs",
		Lifecycle: &types.LifecycleSpec{
			RetentionSet:  true,
			DataRetention: 700 * 24 * time.Hour,
		},
	}
	assert.Equal(t, defaultMaxAge, maxAgeFor(ds))
}

func TestMaxAgeForSubstitutesShorterRetention(t *testing.T) {
	ds := &types.DataStream{
		Name: "logs",
		Lifecycle: &types.LifecycleSpec{
			RetentionSet:  true,
			DataRetention: 3 * 24 * time.Hour,
		},
	}
	assert.Equal(t, 3*24*time.Hour, maxAgeFor(ds))
}

func TestRolloverRequestBuilderBuild(t *testing.T) {
	ds := &types.DataStream{
		Name: "logs",
		Lifecycle: &types.LifecycleSpec{
			RetentionSet:  true,
			DataRetention: 5 * 24 * time.Hour,
		},
	}

	req := RolloverRequestBuilder{}.Build(ds, "logs-000002")

	assert.Equal(t, "logs", req.StreamName)
	assert.Equal(t, "logs-000002", req.NewIndexName)
	assert.Equal(t, 5*24*time.Hour, req.Conditions.MaxAge)
}
