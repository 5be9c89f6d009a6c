package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/clustercore/lifecyclectl/pkg/client"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a resource definition",
	Long: `Apply a lifecyclectl resource from a YAML file against a cluster
manager's Control RPC.

Examples:
  # Register a new data stream
  lifecyclectl apply -f data-stream.yaml

  # Create or update a deployment's allocation bounds
  lifecyclectl apply -f deployment.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	applyCmd.Flags().String("manager", "127.0.0.1:8080", "control address of a cluster manager")
	_ = applyCmd.MarkFlagRequired("file")
}

// Resource is a generic lifecyclectl resource definition, following the
// apiVersion/kind/metadata/spec shape common to the rest of this lineage's
// config surfaces.
type Resource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   ResourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	managerAddr, _ := cmd.Flags().GetString("manager")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	var resource Resource
	if err := yaml.Unmarshal(data, &resource); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}

	c, err := client.NewClient(managerAddr, cliCertDir())
	if err != nil {
		return fmt.Errorf("failed to connect to manager: %v", err)
	}
	defer c.Close()

	switch resource.Kind {
	case "DataStream":
		return applyDataStream(c, &resource)
	case "Deployment":
		return applyDeployment(c, &resource)
	default:
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func applyDataStream(c *client.GRPCClient, resource *Resource) error {
	name := resource.Metadata.Name
	retentionSeconds := getInt(resource.Spec, "retentionSeconds", 0)

	req := client.CreateDataStreamRequest{
		Name:             name,
		RetentionSeconds: int64(retentionSeconds),
		RetentionSet:     retentionSeconds > 0,
	}

	fmt.Printf("Creating data stream: %s\n", name)
	var resp client.CreateDataStreamResponse
	if err := executeSync(c, client.ActionCreateDataStream, req, &resp); err != nil {
		return fmt.Errorf("failed to create data stream: %v", err)
	}
	if !resp.Acknowledged {
		return fmt.Errorf("data stream creation was not acknowledged")
	}

	fmt.Printf("✓ Data stream created: %s\n", name)
	return nil
}

func applyDeployment(c *client.GRPCClient, resource *Resource) error {
	deploymentID := resource.Metadata.Name
	totalAllocations := getInt(resource.Spec, "totalTargetAllocations", 1)

	req := client.UpsertDeploymentRequest{
		DeploymentID:           deploymentID,
		TotalTargetAllocations: totalAllocations,
	}

	if nodeIDs, ok := resource.Spec["nodeIds"].([]interface{}); ok {
		for _, n := range nodeIDs {
			req.NodeIDs = append(req.NodeIDs, fmt.Sprintf("%v", n))
		}
	}

	if aaSpec, ok := resource.Spec["adaptiveAllocations"].(map[string]interface{}); ok {
		req.AdaptiveEnabled = getBool(aaSpec, "enabled", false)
		req.MinAllocations = getInt(aaSpec, "minAllocations", 0)
		req.MaxAllocations = getInt(aaSpec, "maxAllocations", 0)
	}

	fmt.Printf("Applying deployment: %s\n", deploymentID)
	var resp client.UpsertDeploymentResponse
	if err := executeSync(c, client.ActionUpsertDeployment, req, &resp); err != nil {
		return fmt.Errorf("failed to apply deployment: %v", err)
	}
	if !resp.Acknowledged {
		return fmt.Errorf("deployment upsert was not acknowledged")
	}

	fmt.Printf("✓ Deployment applied: %s\n", deploymentID)
	return nil
}

// executeSync adapts the async Client.Execute to the one-shot, blocking
// nature of a CLI invocation: it waits for the callback and decodes its
// json.RawMessage payload into out.
func executeSync(c *client.GRPCClient, action client.ActionType, req any, out any) error {
	done := make(chan error, 1)
	c.Execute(context.Background(), action, req, func(resp any, err error) {
		if err != nil {
			done <- err
			return
		}
		raw, _ := resp.(json.RawMessage)
		done <- json.Unmarshal(raw, out)
	})
	return <-done
}

func getInt(m map[string]interface{}, key string, defaultValue int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultValue
}

func getBool(m map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return defaultValue
}
