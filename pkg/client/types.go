package client

import (
	"encoding/json"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/types"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// ActionType identifies the outbound admin action an Envelope carries.
type ActionType string

const (
	ActionRollover           ActionType = "rollover"
	ActionDeleteIndex        ActionType = "delete_index"
	ActionUpdateSettings     ActionType = "update_settings"
	ActionForceMerge         ActionType = "force_merge"
	ActionUpdateDeployment   ActionType = "update_deployment"
	ActionGetDeploymentStats ActionType = "get_deployment_stats"
	ActionJoinCluster        ActionType = "join_cluster"
	ActionCreateDataStream   ActionType = "create_data_stream"
	ActionUpsertDeployment   ActionType = "upsert_deployment"
	ActionReportStats        ActionType = "report_stats"
	ActionGetSnapshot        ActionType = "get_snapshot"
	ActionRequestCertificate ActionType = "request_certificate"
)

// bootstrapActions are the only actions the Control server will dispatch
// without a verified client certificate on the connection: a node cannot
// present one until it has joined or requested one.
var bootstrapActions = map[ActionType]bool{
	ActionJoinCluster:        true,
	ActionRequestCertificate: true,
}

// IsBootstrapAction reports whether action may be dispatched over a
// connection with no verified client certificate.
func IsBootstrapAction(action ActionType) bool {
	return bootstrapActions[action]
}

// Envelope is the single wire message the hand-rolled Control service
// exchanges in both directions: Payload holds the action-specific request or
// response, JSON-encoded. Timestamp records when the envelope was produced,
// carried as a real google.golang.org/protobuf well-known type even though
// the transport codec is JSON rather than protobuf wire format.
type Envelope struct {
	Action    ActionType             `json:"action,omitempty"`
	Payload   json.RawMessage        `json:"payload,omitempty"`
	Timestamp *timestamppb.Timestamp `json:"timestamp,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// RolloverConditions carries the condition set a rollover request was
// issued under: the configured template conditions merged with the
// automatic max-age default (or the stream's retention, when shorter).
type RolloverConditions struct {
	MaxAge time.Duration `json:"max_age"`
}

// RolloverRequest asks the target node to roll streamName over to a new
// write index. Conditions.MaxAge is the condition that triggered this
// rollover; the target node records it against the outgoing write index's
// rollover info.
type RolloverRequest struct {
	StreamName   string             `json:"stream_name"`
	NewIndexName string             `json:"new_index_name"`
	Conditions   RolloverConditions `json:"conditions"`
}

// RolloverResponse acknowledges a rollover.
type RolloverResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// DeleteIndexRequest asks the target node to delete one backing index.
type DeleteIndexRequest struct {
	StreamName string `json:"stream_name"`
	IndexName  string `json:"index_name"`
}

// DeleteIndexResponse acknowledges a deletion.
type DeleteIndexResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// UpdateSettingsRequest asks the target node to apply new settings to one
// backing index.
type UpdateSettingsRequest struct {
	StreamName string              `json:"stream_name"`
	IndexName  string              `json:"index_name"`
	Settings   types.IndexSettings `json:"settings"`
}

// UpdateSettingsResponse acknowledges a settings update.
type UpdateSettingsResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// ForceMergeRequest asks the target node to force-merge a set of indices.
// RequestID is part of ForceMergeRequestKey equality; ParentTaskID, which
// is excluded, lives only on the response.
type ForceMergeRequest struct {
	Indices            []string `json:"indices"`
	OnlyExpungeDeletes bool     `json:"only_expunge_deletes"`
	Flush              bool     `json:"flush"`
	MaxNumSegments     int      `json:"max_num_segments"`
	RequestID          string   `json:"request_id"`
}

// ForceMergeResponse reports the shard-level outcome of a force-merge.
type ForceMergeResponse struct {
	TotalShards      int    `json:"total_shards"`
	SuccessfulShards int    `json:"successful_shards"`
	FailedShards     int    `json:"failed_shards"`
	ParentTaskID     string `json:"parent_task_id"`
}

// UpdateTrainedModelDeploymentRequest asks the target node to change the
// number of allocations serving a deployment.
type UpdateTrainedModelDeploymentRequest struct {
	DeploymentID        string `json:"deployment_id"`
	NumberOfAllocations int    `json:"number_of_allocations"`
}

// UpdateTrainedModelDeploymentResponse acknowledges an allocation change.
type UpdateTrainedModelDeploymentResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// GetDeploymentStatsRequest requests per-node inference stats for one or
// more deployments.
type GetDeploymentStatsRequest struct {
	DeploymentIDs []string `json:"deployment_ids"`
}

// GetDeploymentStatsResponse carries per-(deployment,node) stats snapshots.
type GetDeploymentStatsResponse struct {
	// Stats is keyed "<deployment_id>/<node_id>".
	Stats map[string]types.Stats `json:"stats"`
}

// JoinClusterRequest asks the leader to add a new manager node as a Raft
// voter.
type JoinClusterRequest struct {
	NodeID   string `json:"node_id"`
	BindAddr string `json:"bind_addr"`
	Token    string `json:"token"`
}

// JoinClusterResponse acknowledges a join and carries the cert material
// the new node needs to dial the cluster's Control endpoints from then on:
// a certificate signed by the cluster CA, its private key, and the CA
// certificate itself, all PEM-encoded.
type JoinClusterResponse struct {
	Acknowledged bool   `json:"acknowledged"`
	Certificate  []byte `json:"certificate,omitempty"`
	PrivateKey   []byte `json:"private_key,omitempty"`
	CACert       []byte `json:"ca_cert,omitempty"`
}

// RequestCertificateRequest asks a manager to issue a certificate for
// identity, gated on a valid join token. Used by CLI clients bootstrapping
// their own certificate, and by any node re-requesting one after rotation.
type RequestCertificateRequest struct {
	Identity string `json:"identity"`
	Token    string `json:"token"`
}

// RequestCertificateResponse carries the PEM-encoded certificate, private
// key, and CA certificate issued for the requested identity.
type RequestCertificateResponse struct {
	Certificate []byte `json:"certificate"`
	PrivateKey  []byte `json:"private_key"`
	CACert      []byte `json:"ca_cert"`
}

// CreateDataStreamRequest asks the leader to register a new, empty data
// stream with the given lifecycle. RetentionSet becomes
// LifecycleSpec.RetentionSet; when it is false RetentionSeconds is not
// applied, and when it is true a RetentionSeconds of 0 is a zero retention.
type CreateDataStreamRequest struct {
	Name             string `json:"name"`
	RetentionSeconds int64  `json:"retention_seconds"`
	RetentionSet     bool   `json:"retention_set"`
}

// CreateDataStreamResponse acknowledges a data stream creation.
type CreateDataStreamResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// UpsertDeploymentRequest asks the leader to create or replace a
// deployment assignment, including its adaptive allocation bounds.
type UpsertDeploymentRequest struct {
	DeploymentID           string   `json:"deployment_id"`
	NodeIDs                []string `json:"node_ids"`
	TotalTargetAllocations int      `json:"total_target_allocations"`
	AdaptiveEnabled        bool     `json:"adaptive_enabled"`
	MinAllocations         int      `json:"min_allocations"`
	MaxAllocations         int      `json:"max_allocations"`
}

// UpsertDeploymentResponse acknowledges a deployment upsert.
type UpsertDeploymentResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// ReportStatsRequest pushes a fresh inference-stats snapshot for one
// (deployment, node) pair into the target node's local StatsStore.
type ReportStatsRequest struct {
	DeploymentID string      `json:"deployment_id"`
	NodeID       string      `json:"node_id"`
	Stats        types.Stats `json:"stats"`
}

// ReportStatsResponse acknowledges a stats report.
type ReportStatsResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// GetSnapshotRequest requests the full cluster-state snapshot: every data
// stream, the tombstone graveyard, and every deployment assignment.
type GetSnapshotRequest struct{}

// GetSnapshotResponse carries the cluster-state snapshot.
type GetSnapshotResponse struct {
	Snapshot *types.ClusterStateSnapshot `json:"snapshot"`
}
