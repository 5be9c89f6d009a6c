package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/clustercore/lifecyclectl/pkg/log"
	"github.com/clustercore/lifecyclectl/pkg/types"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

// StatsProvider supplies the most recently observed per-(deployment,node)
// inference stats. Stats themselves are never replicated through Raft —
// they are transient and re-polled on every AAS tick — so the control
// server asks for them through this hook rather than reading the store.
type StatsProvider func(deploymentIDs []string) map[string]types.Stats

// ControlServer adapts a Manager to client.ControlHandler, serving the
// hand-rolled Control/Execute RPC that DSLC and AAS use to dispatch actions.
type ControlServer struct {
	mgr           *Manager
	statsStore    *StatsStore
	statsProvider StatsProvider
}

// NewControlServer wraps mgr for serving Control/Execute RPCs. It carries
// its own StatsStore, used by default to answer ActionGetDeploymentStats
// and always used to record ActionReportStats.
func NewControlServer(mgr *Manager) *ControlServer {
	store := NewStatsStore()
	return &ControlServer{mgr: mgr, statsStore: store, statsProvider: store.Query}
}

// SetStatsProvider overrides the hook used to answer
// ActionGetDeploymentStats, in case stats are sourced from somewhere other
// than this server's own StatsStore.
func (s *ControlServer) SetStatsProvider(fn StatsProvider) {
	s.statsProvider = fn
}

// StatsStore returns the server's local stats store.
func (s *ControlServer) StatsStore() *StatsStore {
	return s.statsStore
}

// peerHasCert reports whether ctx's connection presented a client
// certificate. The server's TLS config (ClientAuth = VerifyClientCertIfGiven)
// already verified it against the cluster CA at handshake time if one was
// presented; this just checks that one was, since presenting none is only
// acceptable for bootstrap actions.
func peerHasCert(ctx context.Context) bool {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return false
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return false
	}
	return len(tlsInfo.State.PeerCertificates) > 0
}

// Execute implements client.ControlHandler.
func (s *ControlServer) Execute(ctx context.Context, env *client.Envelope) (*client.Envelope, error) {
	if !client.IsBootstrapAction(env.Action) && !peerHasCert(ctx) {
		return &client.Envelope{Action: env.Action, Error: "client certificate required"}, nil
	}

	var (
		resp any
		err  error
	)

	switch env.Action {
	case client.ActionRollover:
		var req client.RolloverRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			now := time.Now()
			err = s.mgr.RolloverDataStream(req.StreamName, &types.BackingIndex{
				Name:      req.NewIndexName,
				CreatedAt: now,
			}, types.RolloverCondition{Name: "max_age", Met: now})
			resp = client.RolloverResponse{Acknowledged: err == nil}
		}

	case client.ActionDeleteIndex:
		var req client.DeleteIndexRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			err = s.mgr.DeleteIndex(req.StreamName, req.IndexName)
			if err == nil {
				err = s.mgr.RecordTombstone(req.IndexName, time.Now())
			}
			resp = client.DeleteIndexResponse{Acknowledged: err == nil}
		}

	case client.ActionUpdateSettings:
		var req client.UpdateSettingsRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			err = s.mgr.UpdateIndexSettings(req.StreamName, req.IndexName, req.Settings)
			resp = client.UpdateSettingsResponse{Acknowledged: err == nil}
		}

	case client.ActionForceMerge:
		var req client.ForceMergeRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			resp, err = s.executeForceMerge(req)
		}

	case client.ActionUpdateDeployment:
		var req client.UpdateTrainedModelDeploymentRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			err = s.updateDeploymentAllocations(req)
			resp = client.UpdateTrainedModelDeploymentResponse{Acknowledged: err == nil}
		}

	case client.ActionGetDeploymentStats:
		var req client.GetDeploymentStatsRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			stats := map[string]types.Stats{}
			if s.statsProvider != nil {
				stats = s.statsProvider(req.DeploymentIDs)
			}
			resp = client.GetDeploymentStatsResponse{Stats: stats}
		}

	case client.ActionCreateDataStream:
		var req client.CreateDataStreamRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			now := time.Now()
			err = s.mgr.CreateDataStream(&types.DataStream{
				Name: req.Name,
				Indices: []*types.BackingIndex{
					{Name: fmt.Sprintf("%s-000001", req.Name), CreatedAt: now},
				},
				Lifecycle: &types.LifecycleSpec{
					DataRetention: time.Duration(req.RetentionSeconds) * time.Second,
					RetentionSet:  req.RetentionSet,
				},
				CreatedAt: now,
			})
			resp = client.CreateDataStreamResponse{Acknowledged: err == nil}
		}

	case client.ActionUpsertDeployment:
		var req client.UpsertDeploymentRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			d := &types.DeploymentAssignment{
				DeploymentID:           req.DeploymentID,
				NodeIDs:                req.NodeIDs,
				TotalTargetAllocations: req.TotalTargetAllocations,
			}
			if req.AdaptiveEnabled {
				d.AdaptiveAllocations = &types.AdaptiveAllocationsConfig{
					Enabled:        true,
					MinAllocations: req.MinAllocations,
					MaxAllocations: req.MaxAllocations,
				}
			}
			err = s.mgr.UpsertDeployment(d)
			resp = client.UpsertDeploymentResponse{Acknowledged: err == nil}
		}

	case client.ActionReportStats:
		var req client.ReportStatsRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			s.statsStore.Report(req.DeploymentID, req.NodeID, req.Stats)
			resp = client.ReportStatsResponse{Acknowledged: true}
		}

	case client.ActionGetSnapshot:
		var snapshot *types.ClusterStateSnapshot
		snapshot, err = s.mgr.Snapshot()
		if err == nil {
			resp = client.GetSnapshotResponse{Snapshot: snapshot}
		}

	case client.ActionJoinCluster:
		var req client.JoinClusterRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			_, err = s.mgr.ValidateJoinToken(req.Token)
			if err == nil {
				err = s.mgr.AddVoter(req.NodeID, req.BindAddr)
			}
			var certPEM, keyPEM, caPEM []byte
			if err == nil {
				host := req.BindAddr
				if h, _, serr := net.SplitHostPort(req.BindAddr); serr == nil {
					host = h
				}
				var ips []net.IP
				if ip := net.ParseIP(host); ip != nil {
					ips = append(ips, ip)
				}
				certPEM, keyPEM, caPEM, err = s.mgr.IssueCertificate(fmt.Sprintf("manager-%s", req.NodeID), ips)
			}
			resp = client.JoinClusterResponse{
				Acknowledged: err == nil,
				Certificate:  certPEM,
				PrivateKey:   keyPEM,
				CACert:       caPEM,
			}
		}

	case client.ActionRequestCertificate:
		var req client.RequestCertificateRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			_, err = s.mgr.ValidateJoinToken(req.Token)
			if err == nil && !s.mgr.IsLeader() {
				err = fmt.Errorf("not the leader, only the leader holds the cluster CA")
			}
			if err == nil {
				var certPEM, keyPEM, caPEM []byte
				certPEM, keyPEM, caPEM, err = s.mgr.IssueCertificate(req.Identity, nil)
				if err == nil {
					resp = client.RequestCertificateResponse{
						Certificate: certPEM,
						PrivateKey:  keyPEM,
						CACert:      caPEM,
					}
				}
			}
		}

	default:
		err = fmt.Errorf("unknown action: %s", env.Action)
	}

	if err != nil {
		log.Error("control action failed: " + string(env.Action) + ": " + err.Error())
		return &client.Envelope{Action: env.Action, Error: err.Error()}, nil
	}

	payload, merr := json.Marshal(resp)
	if merr != nil {
		return nil, merr
	}
	return &client.Envelope{Action: env.Action, Payload: payload}, nil
}

// executeForceMerge simulates the underlying index engine performing the
// force-merge synchronously, then stamps completion the same way a
// successful async merge callback would.
func (s *ControlServer) executeForceMerge(req client.ForceMergeRequest) (client.ForceMergeResponse, error) {
	resp := client.ForceMergeResponse{
		TotalShards:      len(req.Indices),
		SuccessfulShards: len(req.Indices),
		FailedShards:     0,
		ParentTaskID:     req.RequestID,
	}

	for _, name := range req.Indices {
		ds, err := s.findStreamForIndex(name)
		if err != nil {
			continue
		}
		if err := s.mgr.StampForceMergeCompleted(ds, name, time.Now()); err != nil {
			resp.FailedShards++
			resp.SuccessfulShards--
		}
	}

	return resp, nil
}

func (s *ControlServer) findStreamForIndex(indexName string) (string, error) {
	streams, err := s.mgr.ListDataStreams()
	if err != nil {
		return "", err
	}
	for _, ds := range streams {
		for _, idx := range ds.Indices {
			if idx.Name == indexName {
				return ds.Name, nil
			}
		}
	}
	return "", fmt.Errorf("index not found: %s", indexName)
}

func (s *ControlServer) updateDeploymentAllocations(req client.UpdateTrainedModelDeploymentRequest) error {
	d, err := s.mgr.GetDeployment(req.DeploymentID)
	if err != nil {
		return err
	}
	d.TotalTargetAllocations = req.NumberOfAllocations
	return s.mgr.UpsertDeployment(d)
}
