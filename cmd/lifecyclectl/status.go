package main

import (
	"fmt"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/clustercore/lifecyclectl/pkg/types"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the cluster's data streams and deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		managerAddr, _ := cmd.Flags().GetString("manager")

		c, err := client.NewClient(managerAddr, cliCertDir())
		if err != nil {
			return fmt.Errorf("failed to connect to manager: %v", err)
		}
		defer c.Close()

		var resp client.GetSnapshotResponse
		if err := executeSync(c, client.ActionGetSnapshot, client.GetSnapshotRequest{}, &resp); err != nil {
			return fmt.Errorf("failed to fetch cluster state: %v", err)
		}
		if resp.Snapshot == nil {
			fmt.Println("empty snapshot")
			return nil
		}

		fmt.Printf("Data streams (%d):\n", len(resp.Snapshot.DataStreams))
		for _, ds := range resp.Snapshot.DataStreams {
			write := ds.WriteIndex()
			writeName := "<none>"
			if write != nil {
				writeName = write.Name
			}
			fmt.Printf("  %-30s indices=%-3d write=%s\n", ds.Name, len(ds.Indices), writeName)
		}

		fmt.Printf("\nDeployments (%d):\n", len(resp.Snapshot.Deployments))
		for _, d := range resp.Snapshot.Deployments {
			adaptive := "disabled"
			if d.AdaptiveAllocations != nil && d.AdaptiveAllocations.Enabled {
				adaptive = fmt.Sprintf("enabled [%d,%d]", d.AdaptiveAllocations.MinAllocations, d.AdaptiveAllocations.MaxAllocations)
			}
			fmt.Printf("  %-30s target=%-3d adaptive=%s\n", d.DeploymentID, d.TotalTargetAllocations, adaptive)
		}

		return nil
	},
}

func init() {
	statusCmd.Flags().String("manager", "127.0.0.1:8080", "control address of a cluster manager")
}

var reportStatsCmd = &cobra.Command{
	Use:   "report-stats DEPLOYMENT_ID NODE_ID",
	Short: "Push an inference-stats snapshot for a (deployment, node) pair",
	Long: `report-stats feeds AAS its only input. Until a real inference
serving node is wired in as a client, this is how operators and tests
drive the scaler: it pushes one (deployment, node) Stats snapshot into the
target manager's local StatsStore, which GetDeploymentStats reads from on
every AAS tick.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		managerAddr, _ := cmd.Flags().GetString("manager")
		successCount, _ := cmd.Flags().GetInt64("success-count")
		pendingCount, _ := cmd.Flags().GetInt64("pending-count")
		failedCount, _ := cmd.Flags().GetInt64("failed-count")
		avgInferenceTime, _ := cmd.Flags().GetFloat64("avg-inference-time")

		c, err := client.NewClient(managerAddr, cliCertDir())
		if err != nil {
			return fmt.Errorf("failed to connect to manager: %v", err)
		}
		defer c.Close()

		req := client.ReportStatsRequest{
			DeploymentID: args[0],
			NodeID:       args[1],
			Stats: types.Stats{
				SuccessCount:     successCount,
				PendingCount:     pendingCount,
				FailedCount:      failedCount,
				AvgInferenceTime: avgInferenceTime,
			},
		}

		var resp client.ReportStatsResponse
		if err := executeSync(c, client.ActionReportStats, req, &resp); err != nil {
			return fmt.Errorf("failed to report stats: %v", err)
		}

		fmt.Printf("✓ stats recorded for %s/%s\n", args[0], args[1])
		return nil
	},
}

func init() {
	reportStatsCmd.Flags().String("manager", "127.0.0.1:8080", "control address of a cluster manager")
	reportStatsCmd.Flags().Int64("success-count", 0, "cumulative successful inference count")
	reportStatsCmd.Flags().Int64("pending-count", 0, "current pending inference count")
	reportStatsCmd.Flags().Int64("failed-count", 0, "cumulative failed inference count (errors+timeouts+rejections)")
	reportStatsCmd.Flags().Float64("avg-inference-time", 0, "average inference time in seconds")

	rootCmd.AddCommand(reportStatsCmd)
}
