/*
Package metrics defines and registers lifecyclectl's Prometheus metrics and
the HTTP health/readiness/liveness handlers served alongside them.

All metrics are registered at package init via prometheus.MustRegister onto
the default registry, then exposed for scraping through Handler():

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())
	http.HandleFunc("/live", metrics.LivenessHandler())

# Metric groups

Raft: RaftLeader, RaftLogIndex, RaftAppliedIndex — sampled by Collector from
the manager's current Raft stats.

Cluster state: DataStreamsTotal, BackingIndicesTotal, DeploymentsTotal —
also sampled by Collector, since they reflect the replicated store rather
than any single operation.

DSLC: RolloverTotal, IndexDeletedTotal, SettingsUpdateTotal,
ForceMergeTotal, DSLCErrorsTotal, DSLCRunDuration, DeduplicatorInFlight —
updated directly by the reconciler as it acts, not polled.

AAS: ScaleRequestsTotal, AllocationTarget, StatsPollDuration — updated
directly by the scheduler each tick.

Client: ClientRequestsTotal, ClientRequestDuration — updated by whatever
observer the caller wires to a client.GRPCClient via SetObserver, since
this package cannot import pkg/client without a cycle.

# Timer

Timer is a small helper around a start time, for code that wants to record
a histogram observation without computing the duration by hand:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(someHistogram)

# Health

HealthChecker tracks a flat set of named components (RegisterComponent /
UpdateComponent) and reports them through /health (any unhealthy component
marks the whole process unhealthy) and /ready (only "raft", "store", and
"dslc" gate readiness; other components are informational).
*/
package metrics
