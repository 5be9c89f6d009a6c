package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clustercore/lifecyclectl/pkg/aas"
	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/clustercore/lifecyclectl/pkg/dslc"
	"github.com/clustercore/lifecyclectl/pkg/log"
	"github.com/clustercore/lifecyclectl/pkg/manager"
	"github.com/clustercore/lifecyclectl/pkg/metrics"
	"github.com/clustercore/lifecyclectl/pkg/security"
	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliCertDir returns the directory the CLI's own bootstrapped certificate
// (issued via 'cluster request-cert') and the cluster CA certificate live
// in. Commands that haven't bootstrapped one yet fall back to a
// CA-unverified TLS dial, which only a leader-side cert check gates.
func cliCertDir() string {
	dir, err := security.GetCertDir("cli", "default")
	if err != nil {
		return ""
	}
	return dir
}

var rootCmd = &cobra.Command{
	Use:   "lifecyclectl",
	Short: "lifecyclectl - data stream lifecycle and adaptive allocation manager",
	Long: `lifecyclectl runs the control plane for data stream lifecycle
management and adaptive allocation scaling: a Raft-replicated cluster of
manager nodes, a per-stream lifecycle controller (DSLC), and a per-deployment
allocation scaler (AAS). Only the current Raft leader runs the control
loops; followers stay hot and ready to take over on failover.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"lifecyclectl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(statusCmd)
}

// Cluster commands
var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage the lifecyclectl manager cluster",
}

var clusterInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new cluster with this node as the first manager",
	Long: `Initialize a new cluster with this node as the sole Raft voter,
then run the control plane (DSLC, AAS, the Control RPC server, and the
metrics/health HTTP server) until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		controlAddr, _ := cmd.Flags().GetString("control-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		aasInterval, _ := cmd.Flags().GetDuration("aas-interval")

		fmt.Println("Initializing cluster...")
		fmt.Printf("  Node ID: %s\n", nodeID)
		fmt.Printf("  Raft Address: %s\n", bindAddr)
		fmt.Printf("  Control Address: %s\n", controlAddr)
		fmt.Printf("  Data Directory: %s\n", dataDir)
		fmt.Println()

		mgr, err := manager.NewManager(&manager.Config{
			NodeID:      nodeID,
			BindAddr:    bindAddr,
			ControlAddr: controlAddr,
			DataDir:     dataDir,
		})
		if err != nil {
			return fmt.Errorf("failed to create manager: %v", err)
		}

		if err := mgr.Bootstrap(); err != nil {
			return fmt.Errorf("failed to bootstrap cluster: %v", err)
		}

		fmt.Println("✓ cluster initialized")
		return runControlPlane(mgr, controlAddr, metricsAddr, aasInterval)
	},
}

var clusterJoinTokenCmd = &cobra.Command{
	Use:   "join-token ROLE",
	Short: "Explain how join tokens for a new manager or CLI client are obtained (role: manager, cli)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role := args[0]
		if role != "manager" && role != "cli" {
			return fmt.Errorf("role must be 'manager' or 'cli'")
		}
		// Tokens are minted by a live leader's in-memory TokenManager, not
		// by a bare CLI invocation, so this subcommand documents the path
		// rather than issuing one itself.
		fmt.Println("join tokens are minted in-process by the current leader's Manager.GenerateJoinToken; no lifecyclectl command or RPC returns one. A token obtained that way is passed to 'cluster join --token' or 'cluster request-cert --token'")
		return nil
	},
}

var clusterRequestCertCmd = &cobra.Command{
	Use:   "request-cert IDENTITY",
	Short: "Bootstrap a CLI certificate from a cluster manager using a join token",
	Long: `request-cert exchanges a join token (role: cli) for a certificate
signed by the cluster CA, and saves it to this CLI's certificate
directory. Every later command against --manager dials with that
certificate once it exists.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		managerAddr, _ := cmd.Flags().GetString("manager")
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			return fmt.Errorf("--token is required")
		}

		if err := client.RequestCertificate(managerAddr, args[0], token, cliCertDir()); err != nil {
			return fmt.Errorf("failed to request certificate: %v", err)
		}

		fmt.Println("✓ certificate saved to " + cliCertDir())
		return nil
	},
}

var clusterJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join this node to an existing cluster as a new manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		nodeID, _ := cmd.Flags().GetString("node-id")
		bindAddr, _ := cmd.Flags().GetString("bind-addr")
		controlAddr, _ := cmd.Flags().GetString("control-addr")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		aasInterval, _ := cmd.Flags().GetDuration("aas-interval")
		leaderAddr, _ := cmd.Flags().GetString("leader-addr")
		token, _ := cmd.Flags().GetString("token")
		if leaderAddr == "" || token == "" {
			return fmt.Errorf("--leader-addr and --token are required")
		}

		mgr, err := manager.NewManager(&manager.Config{
			NodeID:      nodeID,
			BindAddr:    bindAddr,
			ControlAddr: controlAddr,
			DataDir:     dataDir,
		})
		if err != nil {
			return fmt.Errorf("failed to create manager: %v", err)
		}

		if err := mgr.Join(leaderAddr, token); err != nil {
			return fmt.Errorf("failed to join cluster: %v", err)
		}

		fmt.Println("✓ joined cluster via " + leaderAddr)
		return runControlPlane(mgr, controlAddr, metricsAddr, aasInterval)
	},
}

func init() {
	clusterCmd.AddCommand(clusterInitCmd)
	clusterCmd.AddCommand(clusterJoinTokenCmd)
	clusterCmd.AddCommand(clusterJoinCmd)
	clusterCmd.AddCommand(clusterRequestCertCmd)

	clusterRequestCertCmd.Flags().String("manager", "127.0.0.1:8080", "control address of a cluster manager")
	clusterRequestCertCmd.Flags().String("token", "", "join token (role: cli) minted by the current leader")

	for _, c := range []*cobra.Command{clusterInitCmd, clusterJoinCmd} {
		c.Flags().String("node-id", "manager-1", "unique node ID")
		c.Flags().String("bind-addr", "127.0.0.1:7946", "address for Raft communication")
		c.Flags().String("control-addr", "127.0.0.1:8080", "address for the Control gRPC server")
		c.Flags().String("metrics-addr", "127.0.0.1:9090", "address for the metrics/health HTTP server")
		c.Flags().String("data-dir", "./lifecyclectl-data", "data directory for cluster state")
		c.Flags().Duration("aas-interval", aas.DefaultInterval, "interval between AAS ticks")
	}

	clusterJoinCmd.Flags().String("leader-addr", "", "control address of an existing cluster manager")
	clusterJoinCmd.Flags().String("token", "", "join token (role: manager) minted by the current leader")
}

// runControlPlane wires together the Control gRPC server, DSLC, AAS, the
// metrics/health HTTP server, and the client those control loops use to
// talk back to this node's own Control server. It blocks until the process
// receives SIGINT/SIGTERM, then shuts everything down in reverse order.
func runControlPlane(mgr *manager.Manager, controlAddr, metricsAddr string, aasInterval time.Duration) error {
	metrics.SetVersion(Version)

	controlServer := manager.NewControlServer(mgr)

	lis, err := net.Listen("tcp", controlAddr)
	if err != nil {
		return fmt.Errorf("failed to bind control address: %v", err)
	}
	tlsConfig, err := mgr.ServerTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build control server TLS config: %v", err)
	}
	grpcServer := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsConfig)))
	client.RegisterControlServer(grpcServer, controlServer)
	errCh := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("control server error: %v", err)
		}
	}()
	fmt.Println("✓ control server listening on " + controlAddr)

	rpcClient, err := client.NewClient(controlAddr, mgr.CertDir())
	if err != nil {
		return fmt.Errorf("failed to dial own control server: %v", err)
	}
	rpcClient.SetObserver(func(action client.ActionType, ok bool, duration time.Duration) {
		metrics.ClientRequestsTotal.WithLabelValues(string(action), fmt.Sprint(ok)).Inc()
		metrics.ClientRequestDuration.WithLabelValues(string(action)).Observe(duration.Seconds())
	})

	dslcInstance := dslc.New(mgr, rpcClient, time.Now)
	aasInstance := aas.New(mgr, rpcClient, aasInterval)

	mgr.SetClusterChangeListener(func(snapshot *types.ClusterStateSnapshot) {
		dslcInstance.Run(snapshot)
		aasInstance.ClusterChanged(snapshot)
	})
	aasInstance.Start()
	fmt.Println("✓ DSLC and AAS wired to cluster-change events")

	metrics.RegisterComponent("raft", true, "bootstrapped")
	metrics.RegisterComponent("store", true, "ready")
	metrics.RegisterComponent("dslc", true, "ready")

	collector := metrics.NewCollector(mgr)
	collector.Start()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", metrics.HealthHandler())
	mux.HandleFunc("/readyz", metrics.ReadyHandler())
	mux.HandleFunc("/livez", metrics.LivenessHandler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server error: %v", err)
		}
	}()
	fmt.Println("✓ metrics server listening on " + metricsAddr)

	fmt.Println()
	fmt.Println("Control plane is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	collector.Stop()
	aasInstance.Stop()
	rpcClient.Close()
	grpcServer.GracefulStop()
	_ = metricsServer.Close()

	if err := mgr.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown: %v", err)
	}

	log.Info("shutdown complete")
	fmt.Println("✓ shutdown complete")
	return nil
}
