package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifecyclectl_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifecyclectl_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifecyclectl_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// Cluster metrics
	DataStreamsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifecyclectl_data_streams_total",
			Help: "Total number of managed data streams",
		},
	)

	BackingIndicesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifecyclectl_backing_indices_total",
			Help: "Total number of backing indices across all data streams",
		},
	)

	DeploymentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifecyclectl_deployments_total",
			Help: "Total number of tracked inference deployments",
		},
	)

	// DSLC metrics
	RolloverTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecyclectl_dslc_rollover_total",
			Help: "Total number of rollover requests successfully acknowledged",
		},
	)

	IndexDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecyclectl_dslc_index_deleted_total",
			Help: "Total number of backing indices deleted for expired retention",
		},
	)

	SettingsUpdateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecyclectl_dslc_settings_update_total",
			Help: "Total number of index settings updates successfully acknowledged",
		},
	)

	ForceMergeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecyclectl_dslc_force_merge_total",
			Help: "Total number of force-merge requests successfully completed",
		},
	)

	DSLCErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecyclectl_dslc_errors_total",
			Help: "Total number of DSLC action errors recorded, by action",
		},
		[]string{"action"},
	)

	DSLCRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lifecyclectl_dslc_run_duration_seconds",
			Help:    "Time taken to run one full DSLC pass over cluster state",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeduplicatorInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifecyclectl_dslc_deduplicator_in_flight",
			Help: "Number of in-flight deduplicated actions",
		},
	)

	// AAS metrics
	ScaleRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecyclectl_aas_scale_requests_total",
			Help: "Total number of allocation scale requests issued, by direction",
		},
		[]string{"direction"},
	)

	AllocationTarget = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lifecyclectl_aas_allocation_target",
			Help: "Most recently computed allocation target for a deployment",
		},
		[]string{"deployment_id"},
	)

	StatsPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lifecyclectl_aas_stats_poll_duration_seconds",
			Help:    "Time taken to poll deployment stats from all nodes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Client/RPC metrics
	ClientRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecyclectl_client_requests_total",
			Help: "Total number of outbound RPC requests by action and status",
		},
		[]string{"action", "status"},
	)

	ClientRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lifecyclectl_client_request_duration_seconds",
			Help:    "Outbound RPC request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(DataStreamsTotal)
	prometheus.MustRegister(BackingIndicesTotal)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(RolloverTotal)
	prometheus.MustRegister(IndexDeletedTotal)
	prometheus.MustRegister(SettingsUpdateTotal)
	prometheus.MustRegister(ForceMergeTotal)
	prometheus.MustRegister(DSLCErrorsTotal)
	prometheus.MustRegister(DSLCRunDuration)
	prometheus.MustRegister(DeduplicatorInFlight)
	prometheus.MustRegister(ScaleRequestsTotal)
	prometheus.MustRegister(AllocationTarget)
	prometheus.MustRegister(StatsPollDuration)
	prometheus.MustRegister(ClientRequestsTotal)
	prometheus.MustRegister(ClientRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
