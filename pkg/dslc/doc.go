/*
Package dslc drives every managed data stream through its lifecycle:
rollover, merge-policy adjustment, force-merge, and retention delete.

DSLC is event-driven, not ticker-based: Run is invoked synchronously by the
manager's Raft-apply goroutine immediately after a cluster-state mutation
commits, via Manager.SetClusterChangeListener. It never blocks on I/O —
every outbound action is dispatched through a client.Client, which is
itself asynchronous.

	d := dslc.New(mgr, grpcClient, nil)
	mgr.SetClusterChangeListener(d.Run)

# Per-index phase ordering

For each non-write backing index belonging to a managed stream, at most
one of three actions is issued per Run: delete (if past retention),
settings update (if the merge policy hasn't been applied yet), or
force-merge (if settings are applied but completion isn't stamped).
Delete dominates settings, which dominates force-merge.

# Idempotence

Run is safe to invoke repeatedly on an unchanged snapshot: rollover is
keyed on the write index's name so a stream is never rolled over twice for
the same generation, and force-merge requests are deduplicated in flight
by ActionDeduplicator so a retry before completion never issues a second
request.

# Error handling

Transient per-index failures (rollover, delete, settings update,
force-merge) are recorded in an ErrorStore and retried on the next Run; the store is reconciled against
the cluster's tombstone graveyard and the set of currently-managed indices
so stale entries don't accumulate. DSLC never panics out of the Raft-apply
goroutine: every failure path logs through pkg/log and returns.
*/
package dslc
