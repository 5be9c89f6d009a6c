package aas

import (
	"math"

	"github.com/clustercore/lifecyclectl/pkg/types"
)

// targetUtilization is the denominator of the load-ratio estimator: the
// fraction of each allocation's capacity PerDeploymentScaler aims to keep
// busy.
const targetUtilization = 0.8

// deadband is the largest delta, in allocations, between the estimator's
// target and the current allocation count that still counts as no change;
// a scale request is issued only when the delta exceeds it. It exists to absorb sampling noise between ticks rather than
// oscillating by one allocation every interval.
const deadband = 1

// PerDeploymentScaler is a stateful estimator that turns a deployment's
// recent load into a target allocation count, respecting configured
// bounds. The underlying model is a simple load-ratio controller: a
// deployment spending more aggregate inference time per second than its
// allocations can absorb at targetUtilization needs more allocations, and
// vice versa — grounded on the gamma/percent-change deadband shape of
// inference-autoscaler tuners, adapted here to integer allocation counts.
type PerDeploymentScaler struct {
	DeploymentID       string
	currentAllocations int
	minAllocations     int
	maxAllocations     int
	estimatedTarget    int
}

// NewPerDeploymentScaler creates a scaler seeded at initialAllocations.
func NewPerDeploymentScaler(deploymentID string, initialAllocations, min, max int) *PerDeploymentScaler {
	return &PerDeploymentScaler{
		DeploymentID:       deploymentID,
		currentAllocations: initialAllocations,
		minAllocations:     min,
		maxAllocations:     max,
	}
}

// SetBounds updates the scaler's min/max clamp, leaving its current
// allocation estimate untouched.
func (p *PerDeploymentScaler) SetBounds(min, max int) {
	p.minAllocations = min
	p.maxAllocations = max
}

// CurrentAllocations reports the scaler's last observed allocation count.
func (p *PerDeploymentScaler) CurrentAllocations() int {
	return p.currentAllocations
}

// Process folds recent inference stats and the deployment's last observed
// allocation count into the scaler's internal estimate. observedAllocations
// is recorded unconditionally, so the deadband comparison in Scale tracks
// reality rather than the scaler's own last request.
func (p *PerDeploymentScaler) Process(recent types.Stats, intervalSeconds float64, observedAllocations int) {
	p.currentAllocations = observedAllocations

	if intervalSeconds <= 0 || observedAllocations <= 0 {
		p.estimatedTarget = observedAllocations
		return
	}

	load := float64(recent.SuccessCount+recent.PendingCount) * recent.AvgInferenceTime
	if math.IsNaN(load) {
		// No information to act on (e.g. AvgInferenceTime unset because
		// nothing has completed yet) — hold the target where it is rather
		// than guessing.
		p.estimatedTarget = observedAllocations
		return
	}
	if load <= 0 {
		// Confirmed zero load: decay the target toward 0 rather than
		// pinning it at the current count, so Scale can clamp it back up
		// to minAllocations instead of reporting "no change".
		p.estimatedTarget = 0
		return
	}

	p.estimatedTarget = int(math.Ceil(load / intervalSeconds / targetUtilization))
}

// Scale clamps the last estimate produced by Process to [min, max] (when
// set) and reports it as a change only if it differs from the current
// allocation count by more than the deadband. Returns ok=false ("no
// change") otherwise.
func (p *PerDeploymentScaler) Scale() (int, bool) {
	target := p.estimatedTarget
	if p.minAllocations > 0 && target < p.minAllocations {
		target = p.minAllocations
	}
	if p.maxAllocations > 0 && target > p.maxAllocations {
		target = p.maxAllocations
	}

	delta := target - p.currentAllocations
	if delta < 0 {
		delta = -delta
	}
	if delta <= deadband {
		return 0, false
	}

	p.currentAllocations = target
	return target, true
}
