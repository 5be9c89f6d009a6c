/*
Package manager implements the cluster control plane: Raft-replicated data
stream and deployment metadata, backed locally by pkg/storage.

A cluster consists of 1-N manager nodes forming a Raft quorum. Only the
current leader executes DSLC and AAS actions; every node — leader and
followers alike — applies the replicated log to its own store, so any node
can take over immediately on failover. Mutations go through Manager.Apply,
which marshals a Command, submits it to Raft, and blocks until it is
committed and applied by ClusterFSM.

ClusterFSM.Apply is also where the manager's one cluster-state-change hook
fires: after a command is applied, if a listener was registered via
SetClusterChangeListener, it receives a fresh ClusterStateSnapshot on the
same goroutine that just applied the log entry. This is how DSLC stays
event-driven rather than polling — it runs once per committed mutation, not
on a ticker.

	mgr, _ := manager.NewManager(&manager.Config{NodeID: "m1", BindAddr: ":9000", DataDir: "/var/lib/lifecyclectl"})
	mgr.SetClusterChangeListener(func(snap *types.ClusterStateSnapshot) {
		dslcInstance.Run(snap)
	})
	mgr.Bootstrap()

AAS reads Manager.Snapshot once when it starts; after that the same
listener hands every committed snapshot to AAS.ClusterChanged, which only
reconciles its scalers. Its stats polling and scaling run on its own ticker,
not once per mutation.
*/
package manager
