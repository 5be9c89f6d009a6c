/*
Package aas implements the Adaptive Allocation Scaler: a periodic control
loop that keeps each adaptively-managed inference deployment's allocation
count matched to its recent load.

Unlike DSLC, AAS is ticker-driven rather than event-driven — it follows the
teacher's generic recurring-worker pattern (a dedicated goroutine, a
time.Ticker, a stop channel) rather than reacting synchronously to Raft
commits. It does, however, also register as a cluster-change listener so
it can start or stop ticking as deployments gain or lose adaptive
allocations, without waiting for its own next tick:

	a := aas.New(mgr, grpcClient, 10*time.Second)
	a.Start()
	// elsewhere, alongside DSLC's listener:
	mgr.SetClusterChangeListener(func(snap *types.ClusterStateSnapshot) {
		dslcInstance.Run(snap)
		a.ClusterChanged(snap)
	})

# Tick flow

Each tick polls GetDeploymentStats for every deployment with a live
scaler, computes the delta against the last observed (deployment, node)
snapshot, aggregates the deltas per deployment, and feeds the result to
that deployment's PerDeploymentScaler. A scaler that decides to change its
allocation count dispatches UpdateTrainedModelDeployment; one that doesn't
dispatches nothing.

# Concurrency

scalers and lastStats are guarded by a single mutex; tick callbacks and
cluster-change notifications can interleave freely. The stats RPC and the
scale RPC are both dispatched through the async Client, so a tick never
blocks the ticker goroutine past its own dispatch.
*/
package aas
