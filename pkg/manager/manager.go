package manager

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/clustercore/lifecyclectl/pkg/events"
	"github.com/clustercore/lifecyclectl/pkg/log"
	"github.com/clustercore/lifecyclectl/pkg/security"
	"github.com/clustercore/lifecyclectl/pkg/storage"
	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Manager replicates cluster metadata (data streams, backing indices,
// deployments) across manager nodes via Raft, and exposes it through a
// local BoltDB-backed read model. Only the current Raft leader executes
// DSLC and AAS actions; followers still apply the log and keep their store
// in sync so they are ready to take over on failover.
type Manager struct {
	nodeID      string
	bindAddr    string
	controlAddr string
	dataDir     string
	certDir     string

	raft         *raft.Raft
	fsm          *ClusterFSM
	store        storage.Store
	tokenManager *TokenManager
	eventBroker  *events.Broker
	ca           *security.CertAuthority
}

// Config holds configuration for creating a Manager.
type Config struct {
	NodeID   string
	BindAddr string
	// ControlAddr is the address this node's Control gRPC server listens on.
	// It is used only to scope the node's own TLS certificate (IP/DNS
	// SANs); Raft traffic is unaffected.
	ControlAddr string
	DataDir     string
}

// NewManager creates a new Manager instance.
func NewManager(cfg *Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %v", err)
	}

	fsm := NewClusterFSM(store)
	tokenManager := NewTokenManager()

	eventBroker := events.NewBroker()
	eventBroker.Start()

	certDir, err := security.GetCertDir("manager", cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cert directory: %v", err)
	}

	if err := security.SetClusterEncryptionKey(security.DeriveKeyFromClusterID(cfg.NodeID)); err != nil {
		return nil, fmt.Errorf("failed to set cluster encryption key: %v", err)
	}

	m := &Manager{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		controlAddr:  cfg.ControlAddr,
		dataDir:      cfg.DataDir,
		certDir:      certDir,
		fsm:          fsm,
		store:        store,
		tokenManager: tokenManager,
		eventBroker:  eventBroker,
		ca:           security.NewCertAuthority(store),
	}

	return m, nil
}

// CertDir returns the directory this node's own Control TLS certificate
// and the cluster CA certificate are kept in.
func (m *Manager) CertDir() string {
	return m.certDir
}

// ensureCA loads the cluster CA from the store, or — if none exists yet —
// mints one and persists it. Only Bootstrap calls it, so only the
// bootstrapping node holds the CA key; a node that joins never runs it and
// keeps just the CA certificate its JoinCluster response carried.
func (m *Manager) ensureCA() error {
	if err := m.ca.LoadFromStore(); err == nil {
		return nil
	}

	if err := m.ca.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize CA: %v", err)
	}
	return m.ca.SaveToStore()
}

// issueSelfCertificate issues and saves to certDir a certificate for this
// node's own Control endpoint, scoped to controlAddr's host.
func (m *Manager) issueSelfCertificate() error {
	host := m.controlAddr
	if h, _, err := net.SplitHostPort(m.controlAddr); err == nil {
		host = h
	}

	var ips []net.IP
	var dns []string
	if ip := net.ParseIP(host); ip != nil {
		ips = append(ips, ip)
	} else if host != "" {
		dns = append(dns, host)
	}
	ips = append(ips, net.ParseIP("127.0.0.1"))

	cert, err := m.ca.IssueCertificate(fmt.Sprintf("manager-%s", m.nodeID), dns, ips)
	if err != nil {
		return fmt.Errorf("failed to issue self certificate: %v", err)
	}

	if err := security.SaveCertToFile(cert, m.certDir); err != nil {
		return err
	}
	return security.SaveCACertToFile(m.ca.GetRootCACert(), m.certDir)
}

// IssueCertificate signs a new certificate for commonName (a joining
// manager's node ID, or a CLI client's requested identity), scoped to
// ipAddresses, and returns its PEM-encoded certificate, private key, and
// the cluster CA certificate.
func (m *Manager) IssueCertificate(commonName string, ipAddresses []net.IP) (certPEM, keyPEM, caPEM []byte, err error) {
	tlsCert, err := m.ca.IssueCertificate(commonName, nil, ipAddresses)
	if err != nil {
		return nil, nil, nil, err
	}
	return security.EncodeCertPEM(tlsCert), security.EncodeKeyPEM(tlsCert), security.EncodeCACertPEM(m.ca.GetRootCACert()), nil
}

// ServerTLSConfig builds the TLS configuration the Control gRPC server
// listens with: it always presents this node's own CA-issued certificate,
// and accepts (but, at the transport layer, does not require) a client
// certificate signed by the same CA — pkg/manager's RPC dispatch enforces
// which actions require one.
func (m *Manager) ServerTLSConfig() (*tls.Config, error) {
	nodeCert, err := security.LoadCertFromFile(m.certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load node certificate: %w", err)
	}

	caCert, err := security.LoadCACertFromFile(m.certDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	return &tls.Config{
		Certificates: []tls.Certificate{*nodeCert},
		ClientCAs:    pool,
		ClientAuth:   tls.VerifyClientCertIfGiven,
	}, nil
}

// SetClusterChangeListener registers fn to run, synchronously, on the
// goroutine that applies committed Raft log entries. This is how DSLC is
// wired to the manager: DSLC.Run is invoked here after every mutation,
// rather than on a separate ticker.
func (m *Manager) SetClusterChangeListener(fn ClusterChangeFunc) {
	m.fsm.SetOnApplied(fn)
}

// Bootstrap initializes a new single-node Raft cluster.
func (m *Manager) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)

	// Tuned for LAN deployments: faster failure detection and election than
	// hashicorp/raft's WAN-oriented defaults.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %v", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %v", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %v", err)
	}

	logStorePath := filepath.Join(m.dataDir, "raft-log.db")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return fmt.Errorf("failed to create log store: %v", err)
	}

	stableStorePath := filepath.Join(m.dataDir, "raft-stable.db")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return fmt.Errorf("failed to create stable store: %v", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %v", err)
	}

	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      config.LocalID,
				Address: transport.LocalAddr(),
			},
		},
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %v", err)
	}

	if err := m.ensureCA(); err != nil {
		return err
	}
	if err := m.issueSelfCertificate(); err != nil {
		return err
	}

	return nil
}

// Join adds this manager to an existing cluster by asking its leader, over
// the Control RPC, to add this node as a Raft voter, then starts this
// node's own Raft instance against the now-expanded configuration.
func (m *Manager) Join(leaderAddr string, token string) error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %v", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %v", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %v", err)
	}

	logStorePath := filepath.Join(m.dataDir, "raft-log.db")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return fmt.Errorf("failed to create log store: %v", err)
	}

	stableStorePath := filepath.Join(m.dataDir, "raft-stable.db")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return fmt.Errorf("failed to create stable store: %v", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %v", err)
	}

	m.raft = r

	if err := client.JoinCluster(leaderAddr, m.nodeID, m.bindAddr, token, m.certDir); err != nil {
		return fmt.Errorf("failed to join cluster: %v", err)
	}

	log.Info("joined cluster via " + leaderAddr)
	return nil
}

// AddVoter adds a new manager node to the Raft cluster.
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}

	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %v", err)
	}

	return nil
}

// RemoveServer removes a server from the Raft cluster.
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}

	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}

	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %v", err)
	}

	return nil
}

// GetClusterServers returns information about all servers in the Raft
// cluster.
func (m *Manager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}

	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %v", err)
	}

	return future.Configuration().Servers, nil
}

// IsLeader returns true if this manager is the Raft leader. DSLC and AAS
// both consult this before issuing any action: only the leader executes.
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

// GetRaftStats returns Raft statistics for metrics collection.
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = string(m.raft.Leader())

	return stats
}

// GetEventBroker returns the event broker.
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// PublishEvent publishes an event to all subscribers.
func (m *Manager) PublishEvent(event *events.Event) {
	if m.eventBroker != nil {
		m.eventBroker.Publish(event)
	}
}

// Apply submits a command to the Raft cluster. It blocks until the command
// is committed and applied by the local FSM.
func (m *Manager) Apply(cmd Command) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %v", err)
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply command: %v", err)
	}

	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}

	return nil
}

// CreateDataStream registers a new data stream with its initial write
// index.
func (m *Manager) CreateDataStream(ds *types.DataStream) error {
	data, err := json.Marshal(ds)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: OpCreateDataStream, Data: data})
}

// RolloverDataStream stamps condition onto streamName's current write
// index and appends newIndex as the new one.
func (m *Manager) RolloverDataStream(streamName string, newIndex *types.BackingIndex, condition types.RolloverCondition) error {
	data, err := json.Marshal(RolloverPayload{StreamName: streamName, NewIndex: newIndex, Condition: condition})
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: OpRolloverDataStream, Data: data})
}

// UpdateIndexSettings replaces the settings of one backing index.
func (m *Manager) UpdateIndexSettings(streamName, indexName string, settings types.IndexSettings) error {
	data, err := json.Marshal(UpdateIndexSettingsPayload{
		StreamName: streamName,
		IndexName:  indexName,
		Settings:   settings,
	})
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: OpUpdateIndexSettings, Data: data})
}

// DeleteIndex removes a backing index from its data stream.
func (m *Manager) DeleteIndex(streamName, indexName string) error {
	data, err := json.Marshal(DeleteIndexPayload{StreamName: streamName, IndexName: indexName})
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: OpDeleteIndex, Data: data})
}

// StampForceMergeCompleted records the completion timestamp of a
// force-merge on one backing index.
func (m *Manager) StampForceMergeCompleted(streamName, indexName string, completedAt time.Time) error {
	data, err := json.Marshal(StampForceMergeCompletedPayload{
		StreamName:  streamName,
		IndexName:   indexName,
		CompletedAt: completedAt,
	})
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: OpStampForceMergeCompleted, Data: data})
}

// UpsertDeployment creates or replaces a deployment assignment.
func (m *Manager) UpsertDeployment(d *types.DeploymentAssignment) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: OpUpsertDeployment, Data: data})
}

// DeleteDeployment removes a deployment assignment.
func (m *Manager) DeleteDeployment(id string) error {
	data, err := json.Marshal(DeleteDeploymentPayload{DeploymentID: id})
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: OpDeleteDeployment, Data: data})
}

// RecordTombstone marks an index as deleted in the graveyard.
func (m *Manager) RecordTombstone(indexName string, deletedAt time.Time) error {
	data, err := json.Marshal(RecordTombstonePayload{IndexName: indexName, DeletedAt: deletedAt})
	if err != nil {
		return err
	}
	return m.Apply(Command{Op: OpRecordTombstone, Data: data})
}

// GetDataStream retrieves a data stream by name (read from local store).
func (m *Manager) GetDataStream(name string) (*types.DataStream, error) {
	return m.store.GetDataStream(name)
}

// ListDataStreams returns all data streams (read from local store).
func (m *Manager) ListDataStreams() ([]*types.DataStream, error) {
	return m.store.ListDataStreams()
}

// GetDeployment retrieves a deployment by ID (read from local store).
func (m *Manager) GetDeployment(id string) (*types.DeploymentAssignment, error) {
	return m.store.GetDeployment(id)
}

// ListDeployments returns all deployments (read from local store).
func (m *Manager) ListDeployments() ([]*types.DeploymentAssignment, error) {
	return m.store.ListDeployments()
}

// Snapshot returns the current cluster state, for callers (such as AAS's
// periodic poll) outside the Raft-apply path that need a consistent view.
func (m *Manager) Snapshot() (*types.ClusterStateSnapshot, error) {
	return snapshotFromStore(m.store)
}

// GenerateJoinToken generates a new join token for adding manager nodes.
func (m *Manager) GenerateJoinToken(role string) (*JoinToken, error) {
	if !m.IsLeader() {
		return nil, fmt.Errorf("not the leader, tokens can only be generated by the leader")
	}
	return m.tokenManager.GenerateToken(role, 24*time.Hour)
}

// ValidateJoinToken validates a join token.
func (m *Manager) ValidateJoinToken(token string) (string, error) {
	return m.tokenManager.ValidateToken(token)
}

// Shutdown gracefully shuts down the manager.
func (m *Manager) Shutdown() error {
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}

	if m.raft != nil {
		future := m.raft.Shutdown()
		if err := future.Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %v", err)
		}
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %v", err)
		}
	}

	log.Info("manager shut down")
	return nil
}
