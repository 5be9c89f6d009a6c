package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsAdd(t *testing.T) {
	a := Stats{SuccessCount: 10, PendingCount: 1, FailedCount: 0, AvgInferenceTime: 0.2}
	b := Stats{SuccessCount: 5, PendingCount: 0, FailedCount: 1, AvgInferenceTime: 0.5}

	sum := a.Add(b)

	assert.Equal(t, int64(15), sum.SuccessCount)
	assert.Equal(t, int64(1), sum.PendingCount)
	assert.Equal(t, int64(1), sum.FailedCount)
	// total = 10*0.2 + 5*0.5 = 4.5, avg = 4.5/15 = 0.3
	assert.InDelta(t, 0.3, sum.AvgInferenceTime, 1e-9)
}

func TestStatsAddZeroSuccessYieldsNaN(t *testing.T) {
	a := Stats{}
	b := Stats{}

	sum := a.Add(b)
	assert.True(t, math.IsNaN(sum.AvgInferenceTime))
}

func TestStatsSub(t *testing.T) {
	prior := Stats{SuccessCount: 10, PendingCount: 1, FailedCount: 0, AvgInferenceTime: 0.2}
	current := Stats{SuccessCount: 15, PendingCount: 1, FailedCount: 1, AvgInferenceTime: 0.3}

	delta := current.Sub(prior)

	assert.Equal(t, int64(5), delta.SuccessCount)
	assert.Equal(t, int64(0), delta.PendingCount)
	assert.Equal(t, int64(1), delta.FailedCount)
	// total_current = 15*0.3 = 4.5, total_prior = 10*0.2 = 2, delta_total = 2.5, avg = 2.5/5 = 0.5
	assert.InDelta(t, 0.5, delta.AvgInferenceTime, 1e-9)
}

func TestStatsSubCounterResetTreatsAsAbsent(t *testing.T) {
	prior := Stats{SuccessCount: 10, PendingCount: 1, FailedCount: 0, AvgInferenceTime: 0.2}
	current := Stats{SuccessCount: 3, PendingCount: 1, FailedCount: 0, AvgInferenceTime: 0.1}

	delta := current.Sub(prior)

	assert.Equal(t, current, delta)
}

func TestStatsAddThenSubRoundTrips(t *testing.T) {
	a := Stats{SuccessCount: 20, PendingCount: 2, FailedCount: 1, AvgInferenceTime: 0.4}
	b := Stats{SuccessCount: 5, PendingCount: 0, FailedCount: 0, AvgInferenceTime: 0.1}

	sum := a.Add(b)
	back := sum.Sub(b)

	assert.Equal(t, a.SuccessCount, back.SuccessCount)
	assert.Equal(t, a.PendingCount, back.PendingCount)
	assert.Equal(t, a.FailedCount, back.FailedCount)
	assert.InDelta(t, a.AvgInferenceTime, back.AvgInferenceTime, 1e-9)
}
