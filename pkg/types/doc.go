/*
Package types defines the core data structures shared by the manager,
client, dslc, and aas packages.

It holds two families of types, mirroring the two control loops:

  - Data stream lifecycle: DataStream, BackingIndex, LifecycleSpec,
    IndexSettings, RolloverCondition, TombstoneGraveyard.
  - Adaptive allocation: DeploymentAssignment, AdaptiveAllocationsConfig,
    Stats.

ClusterStateSnapshot ties both together as the one immutable view the
manager hands to DSLC and AAS on every cluster-state change. Nothing in
this package talks to storage, Raft, or gRPC — it is plain data, copied
out of the manager's BoltDB-backed store before use.
*/
package types
