package aas

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/clustercore/lifecyclectl/pkg/events"
	"github.com/clustercore/lifecyclectl/pkg/log"
	"github.com/clustercore/lifecyclectl/pkg/manager"
	"github.com/clustercore/lifecyclectl/pkg/metrics"
	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/google/uuid"
)

// DefaultInterval is the default period between AAS ticks.
const DefaultInterval = 10 * time.Second

// AAS (Adaptive Allocation Scaler) periodically polls per-deployment
// inference statistics, feeds a PerDeploymentScaler for every deployment
// that has adaptive allocations enabled, and dispatches allocation-count
// updates for any scaler whose estimate moved. Unlike DSLC it is
// ticker-driven rather than event-driven, following the teacher's
// generic-worker scheduling pattern.
type AAS struct {
	mgr      *manager.Manager
	client   client.Client
	interval time.Duration

	mu        sync.Mutex
	ticker    *time.Ticker
	stopCh    chan struct{}
	scalers   map[string]*PerDeploymentScaler
	lastStats map[string]types.Stats // keyed "deploymentID/nodeID"
}

// New creates an AAS bound to mgr and c, ticking every interval (or
// DefaultInterval if interval is zero).
func New(mgr *manager.Manager, c client.Client, interval time.Duration) *AAS {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &AAS{
		mgr:       mgr,
		client:    c,
		interval:  interval,
		scalers:   make(map[string]*PerDeploymentScaler),
		lastStats: make(map[string]types.Stats),
	}
}

// Start reconciles scalers against the current cluster state and, if at
// least one scaler exists, begins ticking. It is safe to call more than
// once; an already-running ticker is kept rather than restarted.
func (a *AAS) Start() {
	snapshot, err := a.mgr.Snapshot()
	if err != nil {
		aasLog := log.WithComponent("aas")
		aasLog.Error().Err(err).Msg("failed to read initial snapshot")
		return
	}
	a.ClusterChanged(snapshot)
}

// ClusterChanged reconciles scalers against snapshot and starts or stops
// the ticker as needed. It is the Manager.SetClusterChangeListener hook,
// but may also be called directly (e.g. from Start).
func (a *AAS) ClusterChanged(snapshot *types.ClusterStateSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reconcileScalers(snapshot)

	if len(a.scalers) == 0 {
		a.stopLocked()
		return
	}
	if a.ticker == nil {
		a.startLocked()
	}
}

// reconcileScalers must be called with a.mu held.
func (a *AAS) reconcileScalers(snapshot *types.ClusterStateSnapshot) {
	wanted := make(map[string]*types.DeploymentAssignment)
	for _, d := range snapshot.Deployments {
		if d.AdaptiveAllocations != nil && d.AdaptiveAllocations.Enabled {
			wanted[d.DeploymentID] = d
		}
	}

	for id := range a.scalers {
		if _, ok := wanted[id]; !ok {
			delete(a.scalers, id)
		}
	}

	for id, d := range wanted {
		scaler, ok := a.scalers[id]
		if !ok {
			scaler = NewPerDeploymentScaler(id, d.TotalTargetAllocations, d.AdaptiveAllocations.MinAllocations, d.AdaptiveAllocations.MaxAllocations)
			a.scalers[id] = scaler
			continue
		}
		scaler.SetBounds(d.AdaptiveAllocations.MinAllocations, d.AdaptiveAllocations.MaxAllocations)
	}
}

// startLocked starts the ticker goroutine. Must be called with a.mu held.
func (a *AAS) startLocked() {
	a.stopCh = make(chan struct{})
	a.ticker = time.NewTicker(a.interval)
	stopCh := a.stopCh
	ticker := a.ticker

	go func() {
		for {
			select {
			case <-ticker.C:
				a.Trigger()
			case <-stopCh:
				return
			}
		}
	}()
}

// stopLocked cancels the ticker and nils out the handle so Start/Stop can
// be called again safely. Must be called with a.mu held.
func (a *AAS) stopLocked() {
	if a.ticker == nil {
		return
	}
	a.ticker.Stop()
	close(a.stopCh)
	a.ticker = nil
	a.stopCh = nil
}

// Stop cancels the periodic schedule. Idempotent.
func (a *AAS) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

// Trigger runs one tick: poll stats, compute deltas, feed scalers, dispatch
// any resulting allocation changes. It is exported so callers can drive a
// tick without waiting on the ticker.
func (a *AAS) Trigger() {
	if !a.mgr.IsLeader() {
		return
	}

	timer := metrics.NewTimer()

	a.mu.Lock()
	deploymentIDs := make([]string, 0, len(a.scalers))
	for id := range a.scalers {
		deploymentIDs = append(deploymentIDs, id)
	}
	a.mu.Unlock()

	if len(deploymentIDs) == 0 {
		return
	}
	sort.Strings(deploymentIDs)

	aasLog := log.WithComponent("aas")
	req := client.GetDeploymentStatsRequest{DeploymentIDs: deploymentIDs}

	a.client.Execute(context.Background(), client.ActionGetDeploymentStats, req, func(resp any, err error) {
		timer.ObserveDuration(metrics.StatsPollDuration)

		if err != nil {
			aasLog.Warn().Err(err).Msg("stats poll failed")
			return
		}

		var statsResp client.GetDeploymentStatsResponse
		raw, _ := resp.(json.RawMessage)
		if uerr := json.Unmarshal(raw, &statsResp); uerr != nil {
			aasLog.Warn().Err(uerr).Msg("failed to decode stats response")
			return
		}

		a.processStats(statsResp.Stats)
	})
}

// processStats computes per-deployment recent load from the latest
// (deployment,node) snapshots, feeds every live scaler, and dispatches any
// resulting allocation change.
func (a *AAS) processStats(statsByKey map[string]types.Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	recentByDeployment := make(map[string]types.Stats)

	for key, current := range statsByKey {
		deploymentID := deploymentIDFromKey(key)
		if _, tracked := a.scalers[deploymentID]; !tracked {
			continue
		}

		prior, hadPrior := a.lastStats[key]
		var recent types.Stats
		if hadPrior {
			recent = current.Sub(prior)
		} else {
			recent = current
		}
		a.lastStats[key] = current

		recentByDeployment[deploymentID] = recentByDeployment[deploymentID].Add(recent)
	}

	intervalSeconds := a.interval.Seconds()

	for deploymentID, scaler := range a.scalers {
		recent, ok := recentByDeployment[deploymentID]
		if !ok {
			continue
		}

		prevCount := scaler.CurrentAllocations()
		scaler.Process(recent, intervalSeconds, prevCount)
		newCount, changed := scaler.Scale()
		if !changed {
			continue
		}

		direction := "up"
		if newCount < prevCount {
			direction = "down"
		}
		metrics.ScaleRequestsTotal.WithLabelValues(direction).Inc()
		metrics.AllocationTarget.WithLabelValues(deploymentID).Set(float64(newCount))
		a.dispatchScale(deploymentID, newCount)
	}
}

// dispatchScale is split out to keep the locked processStats path free of
// outbound I/O; the Execute call itself is always async.
func (a *AAS) dispatchScale(deploymentID string, newCount int) {
	aasLog := log.WithComponent("aas")
	req := client.UpdateTrainedModelDeploymentRequest{
		DeploymentID:        deploymentID,
		NumberOfAllocations: newCount,
	}
	aasLog.Info().Str("deployment_id", deploymentID).Int("target", newCount).Msg("scaling deployment")

	a.client.Execute(context.Background(), client.ActionUpdateDeployment, req, func(resp any, err error) {
		if err != nil {
			aasLog.Warn().Str("deployment_id", deploymentID).Err(err).Msg("scale request failed")
			return
		}
		a.mgr.PublishEvent(&events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventDeploymentScaled,
			Timestamp: time.Now(),
			Message:   fmt.Sprintf("deployment %s scaled to %d allocations", deploymentID, newCount),
			Metadata:  map[string]string{"deployment_id": deploymentID},
		})
	})
}

func deploymentIDFromKey(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}
