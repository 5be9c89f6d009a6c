/*
Package storage provides BoltDB-backed persistence for the manager's local
read model: data streams, backing indices, deployments, and the tombstone
graveyard.

Every manager node runs its own BoltStore, one bucket per entity, JSON-
encoded. Cluster-state writes only ever happen from inside FSM.Apply, after a
command has been committed through Raft — callers outside the FSM should
treat that state as read-only and go through the manager's Apply/Command
path to mutate it. The one exception is the CA blob, which the
bootstrapping node writes directly with SaveCA and which is not replicated. Reads (ListDataStreams, Graveyard, ...) bypass Raft entirely since
every node's local store already reflects the latest committed log entry.
*/
package storage
